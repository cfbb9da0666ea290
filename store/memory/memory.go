// Package memory is an in-process authsystem.CredentialStore.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	authsystem "github.com/neecatt/UserAuthSystem"
)

// Store keeps users in maps guarded by a mutex. Records are copied in and out
// so callers never share memory with the store.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*authsystem.User
	byEmail map[string]string
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the source of CreatedAt and UpdatedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		byID:    make(map[string]*authsystem.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clone(u *authsystem.User) *authsystem.User {
	cp := *u
	return &cp
}

// FindByEmail implements authsystem.CredentialStore.
func (s *Store) FindByEmail(_ context.Context, email string) (*authsystem.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, authsystem.ErrUserNotFound
	}
	return clone(s.byID[id]), nil
}

// FindByID implements authsystem.CredentialStore.
func (s *Store) FindByID(_ context.Context, id string) (*authsystem.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, authsystem.ErrUserNotFound
	}
	return clone(u), nil
}

// Create implements authsystem.CredentialStore.
func (s *Store) Create(_ context.Context, email, passwordHash string) (*authsystem.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(email)
	if _, exists := s.byEmail[key]; exists {
		return nil, authsystem.ErrDuplicateAccount
	}

	now := s.now().UTC()
	u := &authsystem.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.ID] = u
	s.byEmail[key] = u.ID
	return clone(u), nil
}

// UpdatePassword implements authsystem.CredentialStore.
func (s *Store) UpdatePassword(_ context.Context, id, newHash string) (*authsystem.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, authsystem.ErrUserNotFound
	}
	u.PasswordHash = newHash
	u.UpdatedAt = s.now().UTC()
	return clone(u), nil
}

// UpdateTwoFactorSecret implements authsystem.CredentialStore.
func (s *Store) UpdateTwoFactorSecret(_ context.Context, id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return authsystem.ErrUserNotFound
	}
	if u.TwoFactorEnabled {
		return authsystem.ErrPreconditionFailed
	}
	u.TwoFactorSecret = secret
	u.UpdatedAt = s.now().UTC()
	return nil
}

// ActivateTwoFactor implements authsystem.CredentialStore.
func (s *Store) ActivateTwoFactor(_ context.Context, id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return authsystem.ErrUserNotFound
	}
	if secret == "" || u.TwoFactorSecret != secret {
		return authsystem.ErrPreconditionFailed
	}
	u.TwoFactorEnabled = true
	u.UpdatedAt = s.now().UTC()
	return nil
}

// UpdateTwoFactorEnabled implements authsystem.CredentialStore.
func (s *Store) UpdateTwoFactorEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return authsystem.ErrUserNotFound
	}
	if enabled && u.TwoFactorSecret == "" {
		return authsystem.ErrPreconditionFailed
	}
	u.TwoFactorEnabled = enabled
	u.UpdatedAt = s.now().UTC()
	return nil
}

// Len reports the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ authsystem.CredentialStore = (*Store)(nil)
