package authsystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/neecatt/UserAuthSystem/internal"
	"github.com/neecatt/UserAuthSystem/internal/audit"
	"github.com/neecatt/UserAuthSystem/internal/stores"
	"github.com/neecatt/UserAuthSystem/jwt"
	"github.com/neecatt/UserAuthSystem/password"
	"github.com/neecatt/UserAuthSystem/totp"
	"github.com/sirupsen/logrus"
)

// Engine is the authentication service. Build one with New().…Build(); the zero
// value returns ErrEngineNotReady from every operation.
type Engine struct {
	config     Config
	store      CredentialStore
	passwords  *password.Pool
	dummyHash  string
	jwt        *jwt.Manager
	totp       *totp.Manager
	qrSize     int
	challenges *stores.ChallengeStore
	assertions *stores.AssertionStore
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     logrus.FieldLogger
	now        func() time.Time
	random     io.Reader
}

// Close flushes pending audit events. It does not close the store or the Redis
// client, which the caller owns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AccessTTL reports the lifetime of issued access tokens.
func (e *Engine) AccessTTL() time.Duration {
	if e == nil || e.jwt == nil {
		return 0
	}
	return e.jwt.AccessTTL()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.passwords == nil || e.jwt == nil ||
		e.totp == nil || e.challenges == nil || e.assertions == nil {
		return ErrEngineNotReady
	}
	return nil
}

// backendError logs err and returns it wrapped as ErrBackendUnavailable.
// Sentinels already understood by callers pass through unchanged.
func (e *Engine) backendError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrUserNotFound,
		ErrDuplicateAccount,
		ErrPreconditionFailed,
		ErrBackendUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.logger.WithError(err).WithField("op", op).Error("auth backend failure")
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// issueToken signs an access token for u.
func (e *Engine) issueToken(u *User, twoFactorVerified bool) (*LoginResult, error) {
	token, err := e.jwt.Issue(TokenPayload{
		SubjectID:         u.ID,
		Email:             u.Email,
		TwoFactorVerified: twoFactorVerified,
	}, 0)
	if err != nil {
		e.logger.WithError(err).WithField("op", "issue_token").Error("token signing failed")
		return nil, fmt.Errorf("%w: token signing: %v", ErrBackendUnavailable, err)
	}
	return &LoginResult{
		AccessToken: token,
		ExpiresAt:   e.now().Add(e.jwt.AccessTTL()).UTC(),
	}, nil
}

func (e *Engine) newOpaqueID() (string, error) {
	id, err := internal.NewOpaqueID(e.random)
	if err != nil {
		e.logger.WithError(err).Error("random source failure")
		return "", fmt.Errorf("%w: random source: %v", ErrBackendUnavailable, err)
	}
	return id, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
