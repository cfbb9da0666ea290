package authsystem

import (
	"context"
	"time"

	"github.com/neecatt/UserAuthSystem/jwt"
)

// User is the persisted credential record. PasswordHash and TwoFactorSecret are
// excluded from JSON so a User can never leak them through serialization.
//
// A User with TwoFactorEnabled always has a non-empty TwoFactorSecret.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	TwoFactorSecret  string    `json:"-"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TwoFactorState is the derived second-factor lifecycle position of a User.
type TwoFactorState int

const (
	// TwoFactorUnenrolled means no secret is stored.
	TwoFactorUnenrolled TwoFactorState = iota
	// TwoFactorEnrolled means a secret is stored but not yet confirmed.
	TwoFactorEnrolled
	// TwoFactorActive means the secret is confirmed and required at login.
	TwoFactorActive
)

func (s TwoFactorState) String() string {
	switch s {
	case TwoFactorEnrolled:
		return "enrolled"
	case TwoFactorActive:
		return "active"
	default:
		return "unenrolled"
	}
}

// TwoFactorState reports where u sits in the enrollment lifecycle.
func (u *User) TwoFactorState() TwoFactorState {
	switch {
	case u.TwoFactorSecret == "":
		return TwoFactorUnenrolled
	case u.TwoFactorEnabled:
		return TwoFactorActive
	default:
		return TwoFactorEnrolled
	}
}

// CredentialStore persists users. Implementations must make the
// email-uniqueness check and insert in Create atomic, compare emails
// case-insensitively, and refuse to leave an account enabled without a secret.
type CredentialStore interface {
	// FindByEmail returns ErrUserNotFound when absent.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByID returns ErrUserNotFound when absent.
	FindByID(ctx context.Context, id string) (*User, error)
	// Create returns ErrDuplicateAccount when the email is taken.
	Create(ctx context.Context, email, passwordHash string) (*User, error)
	UpdatePassword(ctx context.Context, id, newHash string) (*User, error)
	// UpdateTwoFactorSecret stores secret; an empty secret clears it. Any
	// write must fail with ErrPreconditionFailed while the second factor is
	// enabled.
	UpdateTwoFactorSecret(ctx context.Context, id, secret string) error
	// UpdateTwoFactorEnabled must fail with ErrPreconditionFailed when enabling
	// an account that has no secret.
	UpdateTwoFactorEnabled(ctx context.Context, id string, enabled bool) error
	// ActivateTwoFactor enables the second factor only if the stored secret
	// still equals secret, and fails with ErrPreconditionFailed otherwise.
	ActivateTwoFactor(ctx context.Context, id, secret string) error
}

// TokenPayload is the content of an access token.
type TokenPayload = jwt.Payload

// LoginResult is returned by the login operations. Exactly one of AccessToken
// or Challenge is set.
type LoginResult struct {
	AccessToken       string    `json:"accessToken,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt,omitzero"`
	TwoFactorRequired bool      `json:"twoFactorRequired"`
	Challenge         string    `json:"challenge,omitempty"`
}

// TwoFactorEnrollment is returned once by BeginTwoFactorEnrollment. Only the
// secret is persisted.
type TwoFactorEnrollment struct {
	Secret        string `json:"secret"`
	EnrollmentURI string `json:"enrollmentUri"`
	QRCodePNG     []byte `json:"-"`
}

// SecondFactorAssertion proves that a code was verified for UserID. It is
// redeemed once by LoginWithTwoFactor before ExpiresAt.
type SecondFactorAssertion struct {
	ID        string    `json:"assertion"`
	UserID    string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID            string
	Email             string
	TwoFactorVerified bool
	TwoFactorEnabled  bool
}
