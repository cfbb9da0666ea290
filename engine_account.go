package authsystem

import (
	"context"
	"errors"
	"fmt"

	"github.com/neecatt/UserAuthSystem/password"
)

// Register creates an account for email with a freshly hashed password. Emails
// are compared case-insensitively; a duplicate returns ErrDuplicateAccount and
// leaves the existing record untouched.
//
// Register does not judge address format or password strength; callers that
// accept untrusted input validate it first.
func (e *Engine) Register(ctx context.Context, email, plaintext string) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	hash, err := e.passwords.Hash(ctx, plaintext)
	if err != nil {
		err = e.hashError("register", err)
		e.observe(opRegister, err)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, err
	}

	u, err := e.store.Create(ctx, email, hash)
	if err != nil {
		err = e.backendError("register", err)
		e.observe(opRegister, err)
		if errors.Is(err, ErrDuplicateAccount) {
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", err, nil)
		} else {
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		}
		return nil, err
	}

	e.observe(opRegister, nil)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, u.ID, nil, nil)
	return u, nil
}

// ChangePassword replaces the password of userID after verifying current. The
// current password is always required, even for a freshly issued token.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	u, err := e.store.FindByID(ctx, userID)
	if err != nil {
		err = e.backendError("change_password", err)
		e.observe(opChangePassword, err)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, err, nil)
		return nil, err
	}

	ok, err := e.verifyPassword(ctx, u, current)
	if err != nil {
		e.observe(opChangePassword, err)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, u.ID, err, nil)
		return nil, err
	}
	if !ok {
		e.observe(opChangePassword, ErrInvalidCredentials)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, u.ID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	hash, err := e.passwords.Hash(ctx, next)
	if err != nil {
		err = e.hashError("change_password", err)
		e.observe(opChangePassword, err)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, u.ID, err, nil)
		return nil, err
	}

	updated, err := e.store.UpdatePassword(ctx, u.ID, hash)
	if err != nil {
		err = e.backendError("change_password", err)
		e.observe(opChangePassword, err)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, u.ID, err, nil)
		return nil, err
	}

	e.observe(opChangePassword, nil)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, u.ID, nil, nil)
	return updated, nil
}

// GetUser returns the stored user. PasswordHash and TwoFactorSecret are
// populated; they are excluded from JSON but callers must not log them.
func (e *Engine) GetUser(ctx context.Context, userID string) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, e.backendError("get_user", err)
	}
	return u, nil
}

// verifyPassword checks plaintext against u.PasswordHash. A stored hash in an
// unknown format is logged and treated as a mismatch.
func (e *Engine) verifyPassword(ctx context.Context, u *User, plaintext string) (bool, error) {
	ok, err := e.passwords.Verify(ctx, plaintext, u.PasswordHash)
	if err == nil {
		return ok, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, err
	}
	if errors.Is(err, password.ErrPasswordTooLong) {
		return false, nil
	}
	e.logger.WithError(err).WithField("user_id", u.ID).Warn("stored password hash rejected")
	return false, nil
}

// hashError maps a hashing failure. Inputs the hasher refuses are the caller's
// fault; anything else is a backend failure.
func (e *Engine) hashError(op string, err error) error {
	switch {
	case errors.Is(err, password.ErrPasswordTooLong):
		return fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		e.logger.WithError(err).WithField("op", op).Error("password hashing failed")
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
