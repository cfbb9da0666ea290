package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinBcryptCost is the lowest work factor NewBcrypt accepts.
	MinBcryptCost = 10
	// DefaultBcryptCost is the work factor used by production builds.
	DefaultBcryptCost = 12

	bcryptMaxPasswordBytes = 72
)

// Bcrypt hashes passwords with a work factor fixed at construction.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. cost must lie in [MinBcryptCost, bcrypt.MaxCost].
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < MinBcryptCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", MinBcryptCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Scheme implements Hasher.
func (b *Bcrypt) Scheme() Scheme {
	return SchemeBcrypt
}

// Cost returns the configured work factor.
func (b *Bcrypt) Cost() int {
	return b.cost
}

// Hash returns a bcrypt hash with an embedded random salt and cost.
func (b *Bcrypt) Hash(password string) (string, error) {
	// bcrypt silently ignores bytes past 72, reject instead of truncating.
	if len(password) > bcryptMaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify compares password against encodedHash in constant time.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if len(password) > bcryptMaxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsRehash reports whether encodedHash was produced with a lower cost.
func (b *Bcrypt) NeedsRehash(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}
