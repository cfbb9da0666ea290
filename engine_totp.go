package authsystem

import (
	"context"
	"errors"
	"fmt"

	"github.com/neecatt/UserAuthSystem/internal/stores"
	"github.com/neecatt/UserAuthSystem/totp"
)

// BeginTwoFactorEnrollment generates a new secret for userID, stores it
// unconfirmed, and returns it with its enrollment URI and QR image. Calling it
// again before confirmation replaces the unconfirmed secret. An account whose
// second factor is already active gets ErrPreconditionFailed; disable first.
func (e *Engine) BeginTwoFactorEnrollment(ctx context.Context, userID string) (*TwoFactorEnrollment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	u, err := e.store.FindByID(ctx, userID)
	if err != nil {
		err = e.backendError("two_factor_enroll", err)
		e.observe(opBeginEnrollment, err)
		return nil, err
	}
	if u.TwoFactorEnabled {
		e.observe(opBeginEnrollment, ErrPreconditionFailed)
		e.emitAudit(ctx, auditEventEnrollmentStarted, false, u.ID, ErrPreconditionFailed, nil)
		return nil, ErrPreconditionFailed
	}

	key, err := e.totp.GenerateSecret(u.Email)
	if err != nil {
		err = e.backendError("two_factor_enroll", err)
		e.observe(opBeginEnrollment, err)
		return nil, err
	}
	image, err := totp.RenderQR(key.URI, e.qrSize)
	if err != nil {
		err = e.backendError("two_factor_enroll", err)
		e.observe(opBeginEnrollment, err)
		return nil, err
	}

	if err := e.store.UpdateTwoFactorSecret(ctx, u.ID, key.Secret); err != nil {
		err = e.backendError("two_factor_enroll", err)
		e.observe(opBeginEnrollment, err)
		e.emitAudit(ctx, auditEventEnrollmentStarted, false, u.ID, err, nil)
		return nil, err
	}

	e.observe(opBeginEnrollment, nil)
	e.emitAudit(ctx, auditEventEnrollmentStarted, true, u.ID, nil, nil)
	return &TwoFactorEnrollment{
		Secret:        key.Secret,
		EnrollmentURI: key.URI,
		QRCodePNG:     image,
	}, nil
}

// RenderEnrollmentImage encodes uri as a PNG QR code. The output depends only
// on uri and the configured image size.
func (e *Engine) RenderEnrollmentImage(uri string) ([]byte, error) {
	size := totp.DefaultQRSize
	if e != nil && e.qrSize > 0 {
		size = e.qrSize
	}
	return totp.RenderQR(uri, size)
}

// ConfirmTwoFactorEnrollment activates the second factor when code matches the
// unconfirmed secret. A wrong code returns ErrInvalidTwoFactorCode and leaves
// the account unchanged.
func (e *Engine) ConfirmTwoFactorEnrollment(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	u, err := e.store.FindByID(ctx, userID)
	if err != nil {
		err = e.backendError("two_factor_confirm", err)
		e.observe(opConfirmEnrollment, err)
		return err
	}
	if u.TwoFactorState() != TwoFactorEnrolled {
		e.observe(opConfirmEnrollment, ErrPreconditionFailed)
		e.emitAudit(ctx, auditEventTwoFactorConfirmFailure, false, u.ID, ErrPreconditionFailed, nil)
		return ErrPreconditionFailed
	}

	ok, err := e.checkCode(ctx, u, code)
	if err == nil && !ok {
		err = ErrInvalidTwoFactorCode
	}
	if err != nil {
		e.observe(opConfirmEnrollment, err)
		e.emitAudit(ctx, auditEventTwoFactorConfirmFailure, false, u.ID, err, nil)
		return err
	}

	if err := e.store.ActivateTwoFactor(ctx, u.ID, u.TwoFactorSecret); err != nil {
		err = e.backendError("two_factor_confirm", err)
		e.observe(opConfirmEnrollment, err)
		e.emitAudit(ctx, auditEventTwoFactorConfirmFailure, false, u.ID, err, nil)
		return err
	}

	e.observe(opConfirmEnrollment, nil)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, u.ID, nil, nil)
	return nil
}

// VerifyTwoFactorCode checks code for an account with an active second factor.
// It returns ErrPreconditionFailed when the factor is not active and
// ErrInvalidCredentials for a wrong code. It grants nothing by itself.
func (e *Engine) VerifyTwoFactorCode(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.verifyActiveCode(ctx, userID, code, "code")
	e.observe(opVerifyTwoFactor, err)
	return err
}

// VerifyTwoFactor checks code like VerifyTwoFactorCode and, on success, mints a
// short-lived single-use assertion that LoginWithTwoFactor exchanges for a
// TwoFactorVerified token. Used for step-up by already authenticated callers.
func (e *Engine) VerifyTwoFactor(ctx context.Context, userID, code string) (*SecondFactorAssertion, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.verifyActiveCode(ctx, userID, code, "step_up")
	if err != nil {
		e.observe(opVerifyTwoFactor, err)
		return nil, err
	}
	assertion, err := e.mintAssertion(ctx, u.ID)
	e.observe(opVerifyTwoFactor, err)
	return assertion, err
}

// DisableTwoFactor turns the second factor off and discards the secret. A
// valid current code is required.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	u, err := e.verifyActiveCode(ctx, userID, code, "disable")
	if err != nil {
		e.observe(opDisableTwoFactor, err)
		return err
	}

	// Disable before clearing so the account is never enabled without a secret.
	if err := e.store.UpdateTwoFactorEnabled(ctx, u.ID, false); err != nil {
		err = e.backendError("two_factor_disable", err)
		e.observe(opDisableTwoFactor, err)
		return err
	}
	if err := e.store.UpdateTwoFactorSecret(ctx, u.ID, ""); err != nil {
		err = e.backendError("two_factor_disable", err)
		e.observe(opDisableTwoFactor, err)
		return err
	}

	e.observe(opDisableTwoFactor, nil)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, u.ID, nil, nil)
	return nil
}

func (e *Engine) verifyActiveCode(ctx context.Context, userID, code, source string) (*User, error) {
	u, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, e.backendError("two_factor_verify", err)
	}
	if u.TwoFactorState() != TwoFactorActive {
		e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, u.ID, ErrPreconditionFailed, func() map[string]string {
			return map[string]string{"source": source}
		})
		return nil, ErrPreconditionFailed
	}

	ok, err := e.checkCode(ctx, u, code)
	if err == nil && !ok {
		err = ErrInvalidCredentials
	}
	if err != nil {
		e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, u.ID, err, func() map[string]string {
			return map[string]string{"source": source}
		})
		return nil, err
	}

	e.emitAudit(ctx, auditEventTwoFactorVerifySuccess, true, u.ID, nil, func() map[string]string {
		return map[string]string{"source": source}
	})
	return u, nil
}

// checkCode verifies code against u's stored secret at the engine clock. With
// replay protection enabled an accepted code is spent for the rest of its
// validity window.
func (e *Engine) checkCode(ctx context.Context, u *User, code string) (bool, error) {
	ok, counter, err := e.totp.Verify(u.TwoFactorSecret, code, e.now())
	if err != nil {
		if errors.Is(err, totp.ErrEmptySecret) {
			return false, ErrPreconditionFailed
		}
		e.logger.WithError(err).WithField("user_id", u.ID).Error("stored totp secret rejected")
		return false, fmt.Errorf("%w: totp: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return false, nil
	}

	if e.config.TOTP.EnforceReplayProtection {
		fresh, err := e.assertions.MarkCodeUsed(ctx, u.ID, counter, e.totp.StepWindow())
		if err != nil {
			return false, e.backendError("two_factor_replay", err)
		}
		if !fresh {
			return false, ErrTwoFactorReplay
		}
	}
	return true, nil
}

func (e *Engine) mintAssertion(ctx context.Context, userID string) (*SecondFactorAssertion, error) {
	id, err := e.newOpaqueID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	ttl := e.config.Challenge.AssertionTTL
	record := &stores.Assertion{
		UserID:     userID,
		VerifiedAt: now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
	if err := e.assertions.Save(ctx, id, record, ttl); err != nil {
		return nil, e.backendError("mint_assertion", err)
	}
	return &SecondFactorAssertion{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(ttl).UTC(),
	}, nil
}
