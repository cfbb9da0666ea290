package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pquerna/otp"
	ptotp "github.com/pquerna/otp/totp"
)

// DefaultSecretSize is the raw secret length in bytes (160 bits, RFC 4226 §4).
const DefaultSecretSize = 20

// ErrEmptySecret is returned when verification is attempted without a secret.
var ErrEmptySecret = errors.New("empty totp secret")

// Config controls code shape and verification tolerance.
type Config struct {
	Issuer     string `yaml:"issuer"`
	Period     uint   `yaml:"period"`
	Skew       uint   `yaml:"skew"`
	Digits     int    `yaml:"digits"`
	Algorithm  string `yaml:"algorithm"`
	SecretSize uint   `yaml:"secret_size"`
}

// DefaultConfig returns 6-digit SHA1 codes with a 30 second step and one step
// of tolerance either side, which is what authenticator apps assume.
func DefaultConfig() Config {
	return Config{
		Issuer:     "UserAuthSystem",
		Period:     30,
		Skew:       1,
		Digits:     6,
		Algorithm:  "SHA1",
		SecretSize: DefaultSecretSize,
	}
}

// Key is a freshly generated secret and its provisioning URI.
type Key struct {
	Secret string
	URI    string
}

// Manager generates and verifies codes for one issuer.
type Manager struct {
	config    Config
	digits    otp.Digits
	algorithm otp.Algorithm
	rand      io.Reader
}

// NewManager validates cfg. A nil random falls back to crypto/rand.
func NewManager(cfg Config, random io.Reader) (*Manager, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("totp issuer is required")
	}
	if cfg.Period == 0 {
		return nil, errors.New("totp period must be > 0")
	}
	if cfg.Skew > 3 {
		return nil, errors.New("totp skew must be <= 3")
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = DefaultSecretSize
	}
	if cfg.SecretSize < 16 {
		return nil, errors.New("totp secret size must be >= 16 bytes")
	}

	var digits otp.Digits
	switch cfg.Digits {
	case 6:
		digits = otp.DigitsSix
	case 8:
		digits = otp.DigitsEight
	default:
		return nil, fmt.Errorf("unsupported totp digits %d", cfg.Digits)
	}

	algorithm, err := parseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	if random == nil {
		random = rand.Reader
	}
	return &Manager{config: cfg, digits: digits, algorithm: algorithm, rand: random}, nil
}

// Issuer returns the configured issuer label.
func (m *Manager) Issuer() string {
	return m.config.Issuer
}

// GenerateSecret draws a new secret from the manager's random source and
// builds the otpauth:// URI for account.
func (m *Manager) GenerateSecret(account string) (*Key, error) {
	if account == "" {
		return nil, errors.New("account name is required")
	}

	raw := make([]byte, m.config.SecretSize)
	if _, err := io.ReadFull(m.rand, raw); err != nil {
		return nil, fmt.Errorf("read totp secret: %w", err)
	}

	key, err := ptotp.Generate(ptotp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: account,
		Period:      m.config.Period,
		SecretSize:  m.config.SecretSize,
		Secret:      raw,
		Digits:      m.digits,
		Algorithm:   m.algorithm,
	})
	if err != nil {
		return nil, err
	}

	return &Key{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify reports whether code matches secret at now or within Skew steps of it.
// On success the matching time-step counter is returned.
func (m *Manager) Verify(secret, code string, now time.Time) (bool, int64, error) {
	if secret == "" {
		return false, 0, ErrEmptySecret
	}

	code = strings.TrimSpace(code)
	if len(code) != m.digits.Length() || !isNumeric(code) {
		return false, 0, nil
	}

	period := int64(m.config.Period)
	base := now.Unix() / period
	skew := int64(m.config.Skew)
	matched := int64(-1)

	// Every candidate step is checked so timing does not reveal which one matched.
	for step := -skew; step <= skew; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		expected, err := m.Code(secret, time.Unix(counter*period, 0))
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 && matched < 0 {
			matched = counter
		}
	}

	if matched < 0 {
		return false, 0, nil
	}
	return true, matched, nil
}

// Code returns the code for secret at t.
func (m *Manager) Code(secret string, t time.Time) (string, error) {
	return ptotp.GenerateCodeCustom(secret, t, ptotp.ValidateOpts{
		Period:    m.config.Period,
		Digits:    m.digits,
		Algorithm: m.algorithm,
	})
}

// StepWindow is how long a matched counter stays inside the verification
// window, used as the TTL of replay markers.
func (m *Manager) StepWindow() time.Duration {
	return time.Duration(2*m.config.Skew+1) * time.Duration(m.config.Period) * time.Second
}

func parseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("unsupported totp algorithm %q", name)
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
