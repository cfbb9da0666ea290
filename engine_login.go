package authsystem

import (
	"context"
	"errors"
	"fmt"

	"github.com/neecatt/UserAuthSystem/internal"
	"github.com/neecatt/UserAuthSystem/internal/stores"
)

// Login verifies email and password.
//
// For an account without an active second factor the result carries an access
// token. For an account with one, the result carries only a login challenge;
// exchange it with CompleteLoginChallenge and LoginWithTwoFactor.
//
// An unknown email returns an error matching both ErrInvalidCredentials and
// ErrUserNotFound, after spending the same hashing work as a wrong password.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	u, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.passwords.Verify(ctx, plaintext, e.dummyHash)
			err = fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrUserNotFound)
			e.observe(opLogin, err)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", err, func() map[string]string {
				return map[string]string{"reason": "unknown_account"}
			})
			return nil, err
		}
		err = e.backendError("login", err)
		e.observe(opLogin, err)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", err, nil)
		return nil, err
	}

	ok, err := e.verifyPassword(ctx, u, plaintext)
	if err != nil {
		e.observe(opLogin, err)
		e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, err, nil)
		return nil, err
	}
	if !ok {
		e.observe(opLogin, ErrInvalidCredentials)
		e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "bad_password"}
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, u, plaintext)
	}

	// The enabled flag alone decides; an enabled account with a missing secret
	// fails later at the code step instead of receiving a token here.
	if u.TwoFactorEnabled {
		challengeID, err := e.createLoginChallenge(ctx, u)
		if err != nil {
			e.observe(opLogin, err)
			e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, err, nil)
			return nil, err
		}
		e.metrics.observeOperation(opLogin, outcomeTwoFactorRequired)
		e.emitAudit(ctx, auditEventLoginTwoFactorRequired, true, u.ID, nil, nil)
		return &LoginResult{
			TwoFactorRequired: true,
			Challenge:         challengeID,
		}, nil
	}

	result, err := e.issueToken(u, false)
	if err != nil {
		e.observe(opLogin, err)
		e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, err, nil)
		return nil, err
	}
	e.observe(opLogin, nil)
	e.emitAudit(ctx, auditEventLoginSuccess, true, u.ID, nil, nil)
	return result, nil
}

// CompleteLoginChallenge checks code against the account bound to challengeID
// and, on success, consumes the challenge and returns a single-use
// second-factor assertion. A wrong code counts against the challenge; once
// Challenge.MaxAttempts is reached the challenge is discarded and
// ErrTwoFactorChallengeInvalid is returned.
func (e *Engine) CompleteLoginChallenge(ctx context.Context, challengeID, code string) (*SecondFactorAssertion, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !internal.ValidOpaqueID(challengeID) {
		e.observe(opLoginChallenge, ErrTwoFactorChallengeInvalid)
		return nil, ErrTwoFactorChallengeInvalid
	}

	record, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		err = e.mapChallengeError("login_challenge", err)
		e.observe(opLoginChallenge, err)
		e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, "", err, nil)
		return nil, err
	}

	u, err := e.store.FindByID(ctx, record.UserID)
	if err != nil {
		err = e.backendError("login_challenge", err)
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.challenges.Delete(ctx, challengeID)
			err = ErrTwoFactorChallengeInvalid
		}
		e.observe(opLoginChallenge, err)
		e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, record.UserID, err, nil)
		return nil, err
	}
	if u.TwoFactorState() != TwoFactorActive {
		_, _ = e.challenges.Delete(ctx, challengeID)
		e.observe(opLoginChallenge, ErrPreconditionFailed)
		e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, u.ID, ErrPreconditionFailed, nil)
		return nil, ErrPreconditionFailed
	}

	ok, err := e.checkCode(ctx, u, code)
	if err != nil {
		e.observe(opLoginChallenge, err)
		e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, u.ID, err, nil)
		return nil, err
	}
	if !ok {
		return nil, e.failLoginChallenge(ctx, challengeID, u.ID)
	}

	deleted, err := e.challenges.Delete(ctx, challengeID)
	if err != nil {
		err = e.mapChallengeError("login_challenge", err)
		e.observe(opLoginChallenge, err)
		return nil, err
	}
	if !deleted {
		// A concurrent request redeemed the same challenge first.
		e.observe(opLoginChallenge, ErrTwoFactorChallengeInvalid)
		e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, u.ID, ErrTwoFactorChallengeInvalid, nil)
		return nil, ErrTwoFactorChallengeInvalid
	}

	assertion, err := e.mintAssertion(ctx, u.ID)
	if err != nil {
		e.observe(opLoginChallenge, err)
		return nil, err
	}
	e.observe(opLoginChallenge, nil)
	e.emitAudit(ctx, auditEventTwoFactorVerifySuccess, true, u.ID, nil, func() map[string]string {
		return map[string]string{"source": "login_challenge"}
	})
	return assertion, nil
}

// LoginWithTwoFactor redeems a second-factor assertion for an access token
// marked TwoFactorVerified. The assertion is consumed even when the request
// fails afterwards, and the account must still have an active second factor.
func (e *Engine) LoginWithTwoFactor(ctx context.Context, assertionID string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !internal.ValidOpaqueID(assertionID) {
		e.observe(opLoginWithTwoFactor, ErrTwoFactorAssertionInvalid)
		return nil, ErrTwoFactorAssertionInvalid
	}

	record, err := e.assertions.Consume(ctx, assertionID)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrAssertionNotFound), errors.Is(err, stores.ErrAssertionExpired):
			err = ErrTwoFactorAssertionInvalid
		default:
			err = e.backendError("login_two_factor", err)
		}
		e.observe(opLoginWithTwoFactor, err)
		e.emitAudit(ctx, auditEventTwoFactorLoginFailure, false, "", err, nil)
		return nil, err
	}

	u, err := e.store.FindByID(ctx, record.UserID)
	if err != nil {
		err = e.backendError("login_two_factor", err)
		if errors.Is(err, ErrUserNotFound) {
			err = ErrTwoFactorAssertionInvalid
		}
		e.observe(opLoginWithTwoFactor, err)
		e.emitAudit(ctx, auditEventTwoFactorLoginFailure, false, record.UserID, err, nil)
		return nil, err
	}
	if u.TwoFactorState() != TwoFactorActive {
		e.observe(opLoginWithTwoFactor, ErrPreconditionFailed)
		e.emitAudit(ctx, auditEventTwoFactorLoginFailure, false, u.ID, ErrPreconditionFailed, nil)
		return nil, ErrPreconditionFailed
	}

	result, err := e.issueToken(u, true)
	if err != nil {
		e.observe(opLoginWithTwoFactor, err)
		e.emitAudit(ctx, auditEventTwoFactorLoginFailure, false, u.ID, err, nil)
		return nil, err
	}
	e.observe(opLoginWithTwoFactor, nil)
	e.emitAudit(ctx, auditEventTwoFactorLoginSuccess, true, u.ID, nil, nil)
	return result, nil
}

func (e *Engine) createLoginChallenge(ctx context.Context, u *User) (string, error) {
	id, err := e.newOpaqueID()
	if err != nil {
		return "", err
	}
	ttl := e.config.Challenge.LoginTTL
	record := &stores.LoginChallenge{
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: e.now().Add(ttl).Unix(),
	}
	if err := e.challenges.Save(ctx, id, record, ttl); err != nil {
		return "", e.backendError("create_login_challenge", err)
	}
	return id, nil
}

func (e *Engine) failLoginChallenge(ctx context.Context, challengeID, userID string) error {
	exceeded, err := e.challenges.RecordFailure(ctx, challengeID, e.config.Challenge.MaxAttempts)
	if err != nil {
		err = e.mapChallengeError("login_challenge", err)
		e.observe(opLoginChallenge, err)
		e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, userID, err, nil)
		return err
	}
	if exceeded {
		e.observe(opLoginChallenge, ErrTwoFactorChallengeInvalid)
		e.emitAudit(ctx, auditEventChallengeExhausted, false, userID, ErrTwoFactorChallengeInvalid, nil)
		return ErrTwoFactorChallengeInvalid
	}
	e.observe(opLoginChallenge, ErrInvalidCredentials)
	e.emitAudit(ctx, auditEventTwoFactorVerifyFailure, false, userID, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"source": "login_challenge"}
	})
	return ErrInvalidCredentials
}

func (e *Engine) mapChallengeError(op string, err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound), errors.Is(err, stores.ErrChallengeExpired):
		return ErrTwoFactorChallengeInvalid
	default:
		return e.backendError(op, err)
	}
}

// upgradeHash rewrites u's hash with the primary scheme when the stored one is
// weaker or from another scheme. Failures are logged and never fail the login.
func (e *Engine) upgradeHash(ctx context.Context, u *User, plaintext string) {
	needs, err := e.passwords.NeedsRehash(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.passwords.Hash(ctx, plaintext)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", u.ID).Warn("password rehash failed")
		return
	}
	if _, err := e.store.UpdatePassword(ctx, u.ID, hash); err != nil {
		e.logger.WithError(err).WithField("user_id", u.ID).Warn("password rehash not stored")
		return
	}
	e.emitAudit(ctx, auditEventPasswordRehashed, true, u.ID, nil, nil)
}
