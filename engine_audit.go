package authsystem

import (
	"context"
	"errors"

	"github.com/neecatt/UserAuthSystem/internal/audit"
)

const (
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterDuplicate        = "register_duplicate"
	auditEventRegisterFailure          = "register_failure"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginTwoFactorRequired   = "login_second_factor_required"
	auditEventPasswordChangeSuccess    = "password_change_success"
	auditEventPasswordChangeInvalidOld = "password_change_invalid_old"
	auditEventPasswordChangeFailure    = "password_change_failure"
	auditEventPasswordRehashed         = "password_rehashed"
	auditEventEnrollmentStarted        = "two_factor_enrollment_started"
	auditEventTwoFactorEnabled         = "two_factor_enabled"
	auditEventTwoFactorConfirmFailure  = "two_factor_confirm_failure"
	auditEventTwoFactorDisabled        = "two_factor_disabled"
	auditEventTwoFactorVerifySuccess   = "two_factor_verify_success"
	auditEventTwoFactorVerifyFailure   = "two_factor_verify_failure"
	auditEventChallengeExhausted       = "two_factor_challenge_exhausted"
	auditEventTwoFactorLoginSuccess    = "two_factor_login_success"
	auditEventTwoFactorLoginFailure    = "two_factor_login_failure"
	auditEventTokenRejected            = "token_rejected"
)

// AuditErrorCode is the stable error label carried in audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCode        AuditErrorCode = "invalid_two_factor_code"
	auditErrPrecondition       AuditErrorCode = "precondition_failed"
	auditErrChallengeInvalid   AuditErrorCode = "challenge_invalid"
	auditErrAssertionInvalid   AuditErrorCode = "assertion_invalid"
	auditErrReplay             AuditErrorCode = "two_factor_replay"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidTwoFactorCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrPreconditionFailed):
		return auditErrPrecondition
	case errors.Is(err, ErrTwoFactorChallengeInvalid):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrTwoFactorAssertionInvalid):
		return auditErrAssertionInvalid
	case errors.Is(err, ErrTwoFactorReplay):
		return auditErrReplay
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
