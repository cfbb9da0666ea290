package password

import (
	"errors"
	"strings"
)

// Scheme names a hash family recognised by this package.
type Scheme string

const (
	// SchemeBcrypt identifies $2a$/$2b$/$2y$ hashes.
	SchemeBcrypt Scheme = "bcrypt"
	// SchemeArgon2id identifies PHC-encoded argon2id hashes.
	SchemeArgon2id Scheme = "argon2id"
)

var (
	// ErrUnsupportedHash is returned when a stored hash matches no known scheme.
	ErrUnsupportedHash = errors.New("unsupported password hash format")
	// ErrPasswordTooLong is returned when the plaintext exceeds the scheme's limit.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
)

// Hasher hashes and verifies passwords for a single scheme.
type Hasher interface {
	Scheme() Scheme
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsRehash(encodedHash string) (bool, error)
}

// Identify reports which scheme produced encodedHash.
func Identify(encodedHash string) (Scheme, bool) {
	switch {
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return SchemeBcrypt, true
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return SchemeArgon2id, true
	default:
		return "", false
	}
}
