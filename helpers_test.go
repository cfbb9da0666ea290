package authsystem

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testJWTSecret = []byte("0123456789abcdef0123456789abcdef")

// t0 sits on a 30 second boundary.
var t0 = time.Unix(1_700_000_010, 0)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*User
	byEmail map[string]string
	seq     int
	now     func() time.Time

	failWith error
	// beforeSecretWrite and beforeActivate run once, unlocked, ahead of the
	// next write of that kind.
	beforeSecretWrite func()
	beforeActivate    func()
}

// runHookLocked clears *hook and runs it with s.mu released.
func (s *fakeStore) runHookLocked(hook *func()) {
	fn := *hook
	if fn == nil {
		return
	}
	*hook = nil
	s.mu.Unlock()
	fn()
	s.mu.Lock()
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		users:   map[string]*User{},
		byEmail: map[string]string{},
		now:     now,
	}
}

func (s *fakeStore) get(id string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *fakeStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		delete(s.byEmail, strings.ToLower(u.Email))
		delete(s.users, id)
	}
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) Create(_ context.Context, email, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	key := strings.ToLower(email)
	if _, dup := s.byEmail[key]; dup {
		return nil, ErrDuplicateAccount
	}
	s.seq++
	id := "u" + strconv.Itoa(s.seq)
	now := s.now()
	u := &User{ID: id, Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	s.users[id] = u
	s.byEmail[key] = id
	cp := *u
	return &cp, nil
}

func (s *fakeStore) UpdatePassword(_ context.Context, id, newHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.PasswordHash = newHash
	u.UpdatedAt = s.now()
	cp := *u
	return &cp, nil
}

func (s *fakeStore) UpdateTwoFactorSecret(_ context.Context, id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	s.runHookLocked(&s.beforeSecretWrite)
	if u.TwoFactorEnabled {
		return ErrPreconditionFailed
	}
	u.TwoFactorSecret = secret
	u.UpdatedAt = s.now()
	return nil
}

func (s *fakeStore) ActivateTwoFactor(_ context.Context, id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	s.runHookLocked(&s.beforeActivate)
	if secret == "" || u.TwoFactorSecret != secret {
		return ErrPreconditionFailed
	}
	u.TwoFactorEnabled = true
	u.UpdatedAt = s.now()
	return nil
}

func (s *fakeStore) UpdateTwoFactorEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if enabled && u.TwoFactorSecret == "" {
		return ErrPreconditionFailed
	}
	u.TwoFactorEnabled = enabled
	u.UpdatedAt = s.now()
	return nil
}

type testEnv struct {
	engine *Engine
	store  *fakeStore
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testJWTSecret
	cfg.Password.BcryptCost = 10
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: t0}
	store := newFakeStore(clock.Now)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(rdb).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, clock: clock, mr: mr, rdb: rdb}
}

func (env *testEnv) register(t *testing.T, email, password string) *User {
	t.Helper()
	u, err := env.engine.Register(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Register(%q) failed: %v", email, err)
	}
	return u
}

func (env *testEnv) code(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := env.engine.totp.Code(secret, at)
	if err != nil {
		t.Fatalf("totp Code failed: %v", err)
	}
	return code
}

// enableTwoFactor takes u through enrollment and confirmation and returns the
// secret.
func (env *testEnv) enableTwoFactor(t *testing.T, u *User) string {
	t.Helper()
	ctx := context.Background()
	enrollment, err := env.engine.BeginTwoFactorEnrollment(ctx, u.ID)
	if err != nil {
		t.Fatalf("BeginTwoFactorEnrollment failed: %v", err)
	}
	if err := env.engine.ConfirmTwoFactorEnrollment(ctx, u.ID, env.code(t, enrollment.Secret, env.clock.Now())); err != nil {
		t.Fatalf("ConfirmTwoFactorEnrollment failed: %v", err)
	}
	return enrollment.Secret
}

// wrongCode returns a well-formed code that does not match secret anywhere in
// the verification window around at.
func (env *testEnv) wrongCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	valid := map[string]bool{}
	for _, off := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		valid[env.code(t, secret, at.Add(off))] = true
	}
	for i := 0; i < 1_000_000; i++ {
		c := strconv.Itoa(100000 + i)
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no wrong code found")
	return ""
}

func assertIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
