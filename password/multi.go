package password

import (
	"errors"
	"fmt"
)

// Multi hashes with a primary scheme and verifies hashes from any registered
// scheme. It lets a deployment migrate between bcrypt and argon2id without
// invalidating existing credentials.
type Multi struct {
	primary Hasher
	byName  map[Scheme]Hasher
}

// NewMulti returns a Multi whose new hashes come from primary. Additional
// hashers are used only for verification.
func NewMulti(primary Hasher, others ...Hasher) (*Multi, error) {
	if primary == nil {
		return nil, errors.New("primary hasher is required")
	}
	m := &Multi{
		primary: primary,
		byName:  map[Scheme]Hasher{primary.Scheme(): primary},
	}
	for _, h := range others {
		if h == nil {
			continue
		}
		if _, dup := m.byName[h.Scheme()]; dup {
			return nil, fmt.Errorf("duplicate hasher for scheme %q", h.Scheme())
		}
		m.byName[h.Scheme()] = h
	}
	return m, nil
}

// Scheme reports the primary scheme.
func (m *Multi) Scheme() Scheme {
	return m.primary.Scheme()
}

// Hash delegates to the primary hasher.
func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

// Verify routes to the hasher that produced encodedHash.
func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	h, err := m.lookup(encodedHash)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encodedHash)
}

// NeedsRehash is true when encodedHash came from a non-primary scheme or from
// the primary scheme with weaker parameters.
func (m *Multi) NeedsRehash(encodedHash string) (bool, error) {
	scheme, ok := Identify(encodedHash)
	if !ok {
		return false, ErrUnsupportedHash
	}
	if scheme != m.primary.Scheme() {
		return true, nil
	}
	return m.primary.NeedsRehash(encodedHash)
}

func (m *Multi) lookup(encodedHash string) (Hasher, error) {
	scheme, ok := Identify(encodedHash)
	if !ok {
		return nil, ErrUnsupportedHash
	}
	h, ok := m.byName[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no hasher registered for %s", ErrUnsupportedHash, scheme)
	}
	return h, nil
}
