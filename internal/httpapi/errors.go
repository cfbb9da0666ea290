package httpapi

import (
	"context"
	"errors"
	"net/http"

	authsystem "github.com/neecatt/UserAuthSystem"
)

// errorMapping pairs an engine error with its response. Order matters: the
// first match wins, so wrapped errors resolve to the outer meaning.
type errorMapping struct {
	err     error
	status  int
	message string
}

var errorTable = []errorMapping{
	{authsystem.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{authsystem.ErrDuplicateAccount, http.StatusConflict, "account already exists"},
	{authsystem.ErrTwoFactorChallengeInvalid, http.StatusUnauthorized, "login challenge is invalid or expired"},
	{authsystem.ErrTwoFactorAssertionInvalid, http.StatusUnauthorized, "second-factor assertion is invalid or expired"},
	{authsystem.ErrTwoFactorReplay, http.StatusUnauthorized, "code already used"},
	{authsystem.ErrInvalidTwoFactorCode, http.StatusBadRequest, "invalid two-factor code"},
	{authsystem.ErrPreconditionFailed, http.StatusConflict, "operation not allowed in the current two-factor state"},
	{authsystem.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{authsystem.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{authsystem.ErrUserNotFound, http.StatusNotFound, "user not found"},
	{authsystem.ErrBackendUnavailable, http.StatusServiceUnavailable, "service unavailable"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "request timeout"},
}

// statusFor returns the HTTP status and client-facing message for err.
// Unmapped errors become 500 without exposing their text.
func statusFor(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "internal error"
}
