package authsystem

import (
	"errors"

	"github.com/neecatt/UserAuthSystem/jwt"
)

var (
	// ErrInvalidCredentials is returned for a wrong password or a wrong code.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateAccount is returned when the email is already registered.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidToken aliases jwt.ErrInvalidToken so callers need only this package.
	ErrInvalidToken = jwt.ErrInvalidToken
	// ErrUnauthorized is returned by bearer validation for any rejected request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTwoFactorCode is returned when enrollment confirmation fails.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrPreconditionFailed is returned when the account is in the wrong
	// second-factor state for the requested operation.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrTwoFactorChallengeInvalid is returned for an unknown, expired, or
	// exhausted login challenge.
	ErrTwoFactorChallengeInvalid = errors.New("two-factor challenge invalid")
	// ErrTwoFactorAssertionInvalid is returned for an unknown, expired, or
	// already redeemed second-factor assertion.
	ErrTwoFactorAssertionInvalid = errors.New("two-factor assertion invalid")
	// ErrTwoFactorReplay is returned when a code that was already accepted is
	// presented again inside its validity window.
	ErrTwoFactorReplay = errors.New("two-factor code already used")
	// ErrBackendUnavailable wraps store and Redis failures.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned when the engine was not built by Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)
