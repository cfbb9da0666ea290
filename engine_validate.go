package authsystem

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const bearerPrefix = "Bearer "

// ValidateBearerToken authenticates an Authorization header value of the form
// "Bearer <token>". The token is verified and its subject re-read from the
// store, so a deleted account stops authenticating immediately.
//
// Every rejection matches ErrUnauthorized. When the token itself was bad the
// error also matches ErrInvalidToken.
func (e *Engine) ValidateBearerToken(ctx context.Context, authorization string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	token, ok := parseBearer(authorization)
	if !ok {
		e.rejectToken(ctx, "", ErrUnauthorized, "malformed_header")
		return nil, ErrUnauthorized
	}

	payload, err := e.jwt.Validate(token)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUnauthorized, err)
		e.rejectToken(ctx, "", err, "invalid_token")
		return nil, err
	}

	u, err := e.store.FindByID(ctx, payload.SubjectID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			err = fmt.Errorf("%w: %w", ErrUnauthorized, ErrUserNotFound)
			e.rejectToken(ctx, payload.SubjectID, err, "unknown_subject")
			return nil, err
		}
		err = e.backendError("validate_token", err)
		e.observe(opValidateBearerToken, err)
		return nil, err
	}

	e.observe(opValidateBearerToken, nil)
	return &Identity{
		UserID:            u.ID,
		Email:             u.Email,
		TwoFactorVerified: payload.TwoFactorVerified,
		TwoFactorEnabled:  u.TwoFactorEnabled,
	}, nil
}

func (e *Engine) rejectToken(ctx context.Context, userID string, err error, reason string) {
	e.observe(opValidateBearerToken, err)
	e.emitAudit(ctx, auditEventTokenRejected, false, userID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

// parseBearer extracts the token from an Authorization header. The scheme is
// matched case-insensitively.
func parseBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
