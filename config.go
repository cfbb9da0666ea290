package authsystem

import (
	"errors"
	"strings"
	"time"

	"github.com/neecatt/UserAuthSystem/jwt"
	"github.com/neecatt/UserAuthSystem/password"
	"github.com/neecatt/UserAuthSystem/totp"
)

// Config groups engine settings. Build it with DefaultConfig and override
// fields; Builder.Build calls Validate.
type Config struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Password  PasswordConfig  `yaml:"password"`
	TOTP      TOTPConfig      `yaml:"totp"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Audit     AuditConfig     `yaml:"audit"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token signing. Secret is read once at startup
// and never changes for the life of the process.
type JWTConfig struct {
	Secret        []byte            `yaml:"-"`
	SigningMethod string            `yaml:"signing_method"` // hs256 (default), hs384, hs512
	AccessTTL     time.Duration     `yaml:"access_ttl"`
	Issuer        string            `yaml:"issuer"`
	Audience      string            `yaml:"audience"`
	Leeway        time.Duration     `yaml:"leeway"`
	KeyID         string            `yaml:"key_id"`
	PreviousKeys  map[string][]byte `yaml:"-"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// Password hashing schemes accepted by PasswordConfig.Scheme.
const (
	PasswordSchemeBcrypt   = string(password.SchemeBcrypt)
	PasswordSchemeArgon2id = string(password.SchemeArgon2id)
)

// PasswordConfig selects the primary hash scheme and its cost. Hashes from the
// other scheme still verify and are upgraded on login when UpgradeOnLogin is set.
type PasswordConfig struct {
	Scheme         string                `yaml:"scheme"`
	BcryptCost     int                   `yaml:"bcrypt_cost"`
	Argon2         password.Argon2Config `yaml:"argon2"`
	MaxConcurrent  int64                 `yaml:"max_concurrent"`
	UpgradeOnLogin bool                  `yaml:"upgrade_on_login"`
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig configures the second factor. Period, Skew, Digits and Algorithm
// must match what authenticator apps assume unless every client is controlled.
type TOTPConfig struct {
	Issuer                  string `yaml:"issuer"`
	Period                  uint   `yaml:"period"`
	Skew                    uint   `yaml:"skew"`
	Digits                  int    `yaml:"digits"`
	Algorithm               string `yaml:"algorithm"`
	QRSize                  int    `yaml:"qr_size"`
	EnforceReplayProtection bool   `yaml:"enforce_replay_protection"`
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig bounds the Redis records that bind the two login steps.
type ChallengeConfig struct {
	LoginTTL     time.Duration `yaml:"login_ttl"`
	MaxAttempts  int           `yaml:"max_attempts"`
	AssertionTTL time.Duration `yaml:"assertion_ttl"`
	RedisPrefix  string        `yaml:"redis_prefix"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls asynchronous audit delivery.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// DefaultConfig returns production defaults. JWT.Secret is left empty and must
// be supplied.
func DefaultConfig() Config {
	tc := totp.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodHS256),
			AccessTTL:     15 * time.Minute,
			Issuer:        "user-auth-system",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Scheme:         PasswordSchemeBcrypt,
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			MaxConcurrent:  8,
			UpgradeOnLogin: true,
		},
		TOTP: TOTPConfig{
			Issuer:    tc.Issuer,
			Period:    tc.Period,
			Skew:      tc.Skew,
			Digits:    tc.Digits,
			Algorithm: tc.Algorithm,
			QRSize:    totp.DefaultQRSize,
		},
		Challenge: ChallengeConfig{
			LoginTTL:     5 * time.Minute,
			MaxAttempts:  5,
			AssertionTTL: 2 * time.Minute,
			RedisPrefix:  "uas",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.JWT.PreviousKeys != nil {
		out.JWT.PreviousKeys = make(map[string][]byte, len(cfg.JWT.PreviousKeys))
		for k, v := range cfg.JWT.PreviousKeys {
			out.JWT.PreviousKeys[k] = cloneBytes(v)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting. Component constructors perform
// deeper checks during Build.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < jwt.MinSecretBytes {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}

	// Password
	switch strings.ToLower(c.Password.Scheme) {
	case PasswordSchemeBcrypt:
		if c.Password.BcryptCost < password.MinBcryptCost {
			return errors.New("Password BcryptCost must be >= 10")
		}
	case PasswordSchemeArgon2id:
	default:
		return errors.New("Password Scheme must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.MaxConcurrent < 1 {
		return errors.New("Password MaxConcurrent must be >= 1")
	}

	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}

	// Challenge
	if c.Challenge.LoginTTL <= 0 {
		return errors.New("Challenge LoginTTL must be > 0")
	}
	if c.Challenge.LoginTTL > 15*time.Minute {
		return errors.New("Challenge LoginTTL must be <= 15m")
	}
	if c.Challenge.MaxAttempts <= 0 {
		return errors.New("Challenge MaxAttempts must be > 0")
	}
	if c.Challenge.AssertionTTL <= 0 {
		return errors.New("Challenge AssertionTTL must be > 0")
	}
	if c.Challenge.AssertionTTL > 10*time.Minute {
		return errors.New("Challenge AssertionTTL must be <= 10m")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
