package authsystem

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/neecatt/UserAuthSystem/internal/audit"
	"github.com/neecatt/UserAuthSystem/internal/stores"
	"github.com/neecatt/UserAuthSystem/jwt"
	"github.com/neecatt/UserAuthSystem/password"
	"github.com/neecatt/UserAuthSystem/totp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an Engine. Configure it during initialization, call Build
// once, and discard it.
type Builder struct {
	config Config
	store  CredentialStore
	redis  redis.UniversalClient

	logger    logrus.FieldLogger
	now       func() time.Time
	random    io.Reader
	metrics   *Metrics
	auditSink audit.Sink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithRedis sets the client backing login challenges and second-factor
// assertions. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger used for backend failures. Defaults to a logger
// that discards everything.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token timestamps, TOTP verification, and
// challenge expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom overrides crypto/rand for salts, TOTP secrets, token IDs, and
// challenge identifiers.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithMetrics attaches Prometheus collectors created by NewMetrics.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// WithAuditSink sets the destination for audit events. Delivery is
// asynchronous when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and constructs every component. Any
// misconfiguration is reported here and never from a request path.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}
	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	// -------- PASSWORD --------
	hasher, err := buildHasher(cfg.Password, random)
	if err != nil {
		return nil, err
	}
	pool, err := password.NewPool(hasher, cfg.Password.MaxConcurrent, b.metrics.observeHash)
	if err != nil {
		return nil, err
	}
	// Login for an unknown email verifies against this hash so the response
	// time matches a wrong password.
	dummyHash, err := hasher.Hash("authsystem-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("password hasher self-test failed: %w", err)
	}

	// -------- JWT --------
	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		Secret:        cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.PreviousKeys,
		Now:           now,
		Random:        random,
	})
	if err != nil {
		return nil, err
	}

	// -------- TOTP --------
	totpManager, err := totp.NewManager(totp.Config{
		Issuer:     cfg.TOTP.Issuer,
		Period:     cfg.TOTP.Period,
		Skew:       cfg.TOTP.Skew,
		Digits:     cfg.TOTP.Digits,
		Algorithm:  cfg.TOTP.Algorithm,
		SecretSize: totp.DefaultSecretSize,
	}, random)
	if err != nil {
		return nil, err
	}
	qrSize := cfg.TOTP.QRSize
	if qrSize <= 0 {
		qrSize = totp.DefaultQRSize
	}

	// -------- CHALLENGE / ASSERTION STORES --------
	prefix := cfg.Challenge.RedisPrefix
	challenges := stores.NewChallengeStore(b.redis, prefix+":alc", now)
	assertions := stores.NewAssertionStore(b.redis, prefix+":asa", now)

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogrusSink(logger)
	}
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink, b.metrics.auditDropped)

	b.built = true

	return &Engine{
		config:     cfg,
		store:      b.store,
		passwords:  pool,
		dummyHash:  dummyHash,
		jwt:        jwtManager,
		totp:       totpManager,
		qrSize:     qrSize,
		challenges: challenges,
		assertions: assertions,
		audit:      dispatcher,
		metrics:    b.metrics,
		logger:     logger,
		now:        now,
		random:     random,
	}, nil
}

func buildHasher(cfg PasswordConfig, random io.Reader) (*password.Multi, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil && strings.ToLower(cfg.Scheme) == PasswordSchemeBcrypt {
		return nil, err
	}
	if err != nil {
		// Argon2id is primary; bcrypt only verifies legacy hashes, so an unset
		// cost falls back to the default.
		if bc, err = password.NewBcrypt(password.DefaultBcryptCost); err != nil {
			return nil, err
		}
	}
	ag, err := password.NewArgon2(cfg.Argon2, random)
	if err != nil {
		return nil, err
	}

	if strings.ToLower(cfg.Scheme) == PasswordSchemeArgon2id {
		return password.NewMulti(ag, bc)
	}
	return password.NewMulti(bc, ag)
}
