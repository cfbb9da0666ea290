package jwt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the HMAC variant used to sign access tokens.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"

	// MinSecretBytes is the shortest signing secret NewManager accepts.
	MinSecretBytes = 32
)

// ErrInvalidToken is returned by Validate for any token that must not be trusted:
// bad signature, malformed input, wrong algorithm, wrong issuer or audience, or
// expiry.
var ErrInvalidToken = errors.New("invalid token")

// Config defines signing and validation parameters.
//
// Config instances are intended to be configured during initialization and then
// treated as immutable.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// KeyID is stamped into the "kid" header when set. VerifyKeys maps the kid
	// of a retired secret to that secret so tokens it signed stay valid during a
	// rotation window.
	KeyID      string
	VerifyKeys map[string][]byte

	// Now and Random default to time.Now and crypto/rand.
	Now    func() time.Time
	Random io.Reader
}

// Payload is the application-level content of an access token. Issue and
// Validate use the same shape.
type Payload struct {
	SubjectID         string
	Email             string
	TwoFactorVerified bool
}

// Claims is the wire form of an access token.
type Claims struct {
	Email             string `json:"email"`
	TwoFactorVerified bool   `json:"tfa"`
	jwt.RegisteredClaims
}

// Manager signs and validates access tokens. It holds no mutable state and is
// safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	method, err := methodFor(cfg.SigningMethod)
	if err != nil {
		return nil, err
	}
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretBytes)
	}

	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < MinSecretBytes {
			return nil, fmt.Errorf("verify key for kid %q is shorter than %d bytes", kid, MinSecretBytes)
		}
	}
	if len(cfg.VerifyKeys) > 0 {
		if cfg.KeyID == "" {
			return nil, errors.New("KeyID is required when VerifyKeys is set")
		}
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; ok {
			return nil, errors.New("VerifyKeys must not contain the active KeyID")
		}
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}

	return &Manager{config: cfg, method: method}, nil
}

// AccessTTL returns the configured default lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// Issue signs payload. A non-positive ttl falls back to the configured AccessTTL.
func (m *Manager) Issue(payload Payload, ttl time.Duration) (string, error) {
	if payload.SubjectID == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		ttl = m.config.AccessTTL
	}

	jti, err := uuid.NewRandomFromReader(m.config.Random)
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := m.config.Now()
	claims := Claims{
		Email:             payload.Email,
		TwoFactorVerified: payload.TwoFactorVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.SubjectID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
			ID:        jti.String(),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	return token.SignedString(m.config.Secret)
}

// Validate verifies signature, algorithm, expiry, issuer and audience, and
// returns the embedded payload. Tokens issued in the future (beyond Leeway) are
// rejected. Every failure wraps ErrInvalidToken.
func (m *Manager) Validate(tokenStr string) (*Payload, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Payload{
		SubjectID:         claims.Subject,
		Email:             claims.Email,
		TwoFactorVerified: claims.TwoFactorVerified,
	}, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if kid == m.config.KeyID {
		return m.config.Secret, nil
	}
	if key, ok := m.config.VerifyKeys[kid]; ok {
		return key, nil
	}
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	return nil, errors.New("unknown kid")
}

func methodFor(name SigningMethod) (jwt.SigningMethod, error) {
	switch SigningMethod(strings.ToLower(string(name))) {
	case MethodHS256, "":
		return jwt.SigningMethodHS256, nil
	case MethodHS384:
		return jwt.SigningMethodHS384, nil
	case MethodHS512:
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing method %q", name)
	}
}
