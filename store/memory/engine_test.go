package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	authsystem "github.com/neecatt/UserAuthSystem"
	"github.com/neecatt/UserAuthSystem/store/memory"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

// TestEngineWithMemoryStore walks the full account lifecycle against the
// in-memory store.
func TestEngineWithMemoryStore(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	now := time.Unix(1_700_000_010, 0)
	clock := func() time.Time { return now }

	cfg := authsystem.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.BcryptCost = 10
	cfg.Audit.Enabled = false

	engine, err := authsystem.New().
		WithConfig(cfg).
		WithStore(memory.New(memory.WithClock(clock))).
		WithRedis(rdb).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	u, err := engine.Register(ctx, "a@x.com", "pw12345678")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := engine.Register(ctx, "a@x.com", "pw12345678"); !errors.Is(err, authsystem.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
	if _, err := engine.Login(ctx, "a@x.com", "wrong"); !errors.Is(err, authsystem.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	res, err := engine.Login(ctx, "a@x.com", "pw12345678")
	if err != nil || res.AccessToken == "" {
		t.Fatalf("Login failed: res=%+v err=%v", res, err)
	}

	enrollment, err := engine.BeginTwoFactorEnrollment(ctx, u.ID)
	if err != nil {
		t.Fatalf("BeginTwoFactorEnrollment failed: %v", err)
	}
	code, err := totp.GenerateCode(enrollment.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	if err := engine.ConfirmTwoFactorEnrollment(ctx, u.ID, code); err != nil {
		t.Fatalf("ConfirmTwoFactorEnrollment failed: %v", err)
	}

	res, err = engine.Login(ctx, "a@x.com", "pw12345678")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.AccessToken != "" || !res.TwoFactorRequired {
		t.Fatalf("expected challenge only, got %+v", res)
	}
	assertion, err := engine.CompleteLoginChallenge(ctx, res.Challenge, code)
	if err != nil {
		t.Fatalf("CompleteLoginChallenge failed: %v", err)
	}
	final, err := engine.LoginWithTwoFactor(ctx, assertion.ID)
	if err != nil {
		t.Fatalf("LoginWithTwoFactor failed: %v", err)
	}

	identity, err := engine.ValidateBearerToken(ctx, "Bearer "+final.AccessToken)
	if err != nil {
		t.Fatalf("ValidateBearerToken failed: %v", err)
	}
	if identity.UserID != u.ID || !identity.TwoFactorVerified {
		t.Fatalf("unexpected identity %+v", identity)
	}
}
