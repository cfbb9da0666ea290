package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, clock *fixedClock, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		Secret:        testSecret,
		Issuer:        "user-auth",
		Audience:      "api",
		Now:           clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueValidateRoundTrip(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock, nil)

	for _, tfa := range []bool{false, true} {
		in := Payload{SubjectID: "u-1", Email: "a@x.com", TwoFactorVerified: tfa}
		token, err := m.Issue(in, 0)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		out, err := m.Validate(token)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if *out != in {
			t.Fatalf("payload mismatch: got %+v want %+v", *out, in)
		}
	}
}

func TestIssueUsesConfiguredAndExplicitTTL(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock, nil)

	token, err := m.Issue(Payload{SubjectID: "u-1"}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.now = clock.now.Add(14 * time.Minute)
	if _, err := m.Validate(token); err != nil {
		t.Fatalf("expected token valid before default ttl: %v", err)
	}
	clock.now = clock.now.Add(2 * time.Minute)
	if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail with ErrInvalidToken, got %v", err)
	}

	short, err := m.Issue(Payload{SubjectID: "u-1"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.now = clock.now.Add(61 * time.Second)
	if _, err := m.Validate(short); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected explicit ttl to apply, got %v", err)
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock, nil)

	token, err := m.Issue(Payload{SubjectID: "u-1", Email: "a@x.com"}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(token, ".")
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{
		TwoFactorVerified: true,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    "user-auth",
			Audience:  gjwt.ClaimStrings{"api"},
			ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Hour)),
			IssuedAt:  gjwt.NewNumericDate(clock.now),
		},
	}).SignedString([]byte("ffffffffffffffffffffffffffffffff"))
	if err != nil {
		t.Fatalf("sign forged: %v", err)
	}
	forgedParts := strings.Split(forged, ".")

	cases := map[string]string{
		"empty":            "",
		"garbage":          "not.a.jwt",
		"wrong key":        forged,
		"swapped payload":  parts[0] + "." + forgedParts[1] + "." + parts[2],
		"truncated sig":    parts[0] + "." + parts[1] + "." + parts[2][:10],
		"alg none":         "eyJhbGciOiJub25lIn0." + parts[1] + ".",
		"missing segments": parts[0] + "." + parts[1],
	}
	for name, tok := range cases {
		if _, err := m.Validate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestValidateRejectsWrongAlgorithm(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock, nil)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u-1",
		Issuer:    "user-auth",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(clock.now),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestValidateIssuerAudienceAndLeeway(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock, func(c *Config) { c.Leeway = 30 * time.Second })

	sign := func(iss, aud string, exp time.Time) string {
		t.Helper()
		tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(clock.now.Add(-time.Minute)),
		}}).SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}

	if _, err := m.Validate(sign("other", "api", clock.now.Add(time.Minute))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Validate(sign("user-auth", "other-api", clock.now.Add(time.Minute))); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Validate(sign("user-auth", "api", clock.now.Add(-15*time.Second))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Validate(sign("user-auth", "api", clock.now.Add(-2*time.Minute))); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestValidateRejectsMissingExpiry(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock, func(c *Config) { c.Issuer = ""; c.Audience = "" })

	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject: "u-1",
	}}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Validate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token without exp to fail, got %v", err)
	}
}

func TestKeyRotation(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	oldSecret := []byte("old-old-old-old-old-old-old-old-")

	previous := newTestManager(t, clock, func(c *Config) {
		c.Secret = oldSecret
		c.KeyID = "k1"
	})
	current := newTestManager(t, clock, func(c *Config) {
		c.KeyID = "k2"
		c.VerifyKeys = map[string][]byte{"k1": oldSecret}
	})

	oldToken, err := previous.Issue(Payload{SubjectID: "u-1"}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := current.Validate(oldToken); err != nil {
		t.Fatalf("expected retired key token to validate during rotation: %v", err)
	}

	newToken, err := current.Issue(Payload{SubjectID: "u-1"}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := current.Validate(newToken); err != nil {
		t.Fatalf("expected active key token to validate: %v", err)
	}
	if _, err := previous.Validate(newToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unknown kid to fail, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	base := Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, Secret: testSecret}

	cases := map[string]func(*Config){
		"zero ttl":       func(c *Config) { c.AccessTTL = 0 },
		"short secret":   func(c *Config) { c.Secret = []byte("short") },
		"bad method":     func(c *Config) { c.SigningMethod = "rs256" },
		"huge leeway":    func(c *Config) { c.Leeway = time.Hour },
		"kid missing":    func(c *Config) { c.VerifyKeys = map[string][]byte{"k1": testSecret} },
		"active in set":  func(c *Config) { c.KeyID = "k1"; c.VerifyKeys = map[string][]byte{"k1": testSecret} },
		"short old key":  func(c *Config) { c.KeyID = "k2"; c.VerifyKeys = map[string][]byte{"k1": []byte("x")} },
		"empty kid name": func(c *Config) { c.KeyID = "k2"; c.VerifyKeys = map[string][]byte{" ": testSecret} },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected NewManager to fail", name)
		}
	}

	for _, method := range []SigningMethod{MethodHS256, MethodHS384, MethodHS512} {
		cfg := base
		cfg.SigningMethod = method
		if _, err := NewManager(cfg); err != nil {
			t.Fatalf("%s: unexpected error %v", method, err)
		}
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	m := newTestManager(t, &fixedClock{now: time.Now()}, nil)
	if _, err := m.Issue(Payload{Email: "a@x.com"}, 0); err == nil {
		t.Fatal("expected empty subject to be rejected")
	}
}
