package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

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

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestChallengeSaveGetDelete(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	s := NewChallengeStore(rdb, "", clock.Now)

	rec := &LoginChallenge{UserID: "u1", Email: "a@x.com", ExpiresAt: clock.Now().Add(5 * time.Minute).Unix()}
	if err := s.Save(ctx, "c1", rec, 5*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != *rec {
		t.Fatalf("round trip mismatch: got %+v want %+v", *got, *rec)
	}

	deleted, err := s.Delete(ctx, "c1")
	if err != nil || !deleted {
		t.Fatalf("expected first delete to succeed, deleted=%v err=%v", deleted, err)
	}
	deleted, err = s.Delete(ctx, "c1")
	if err != nil || deleted {
		t.Fatalf("expected second delete to report missing, deleted=%v err=%v", deleted, err)
	}
	if _, err := s.Get(ctx, "c1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeExpiresByInjectedClock(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	s := NewChallengeStore(rdb, "alc", clock.Now)

	rec := &LoginChallenge{UserID: "u1", ExpiresAt: clock.Now().Add(time.Minute).Unix()}
	if err := s.Save(ctx, "c1", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := s.Get(ctx, "c1"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	if mr.Exists("alc:c1") {
		t.Fatal("expected expired challenge to be removed")
	}
}

func TestChallengeRecordFailureCapsAttempts(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	s := NewChallengeStore(rdb, "alc", clock.Now)

	rec := &LoginChallenge{UserID: "u1", ExpiresAt: clock.Now().Add(5 * time.Minute).Unix()}
	if err := s.Save(ctx, "c1", rec, 5*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for i := 1; i < 3; i++ {
		exceeded, err := s.RecordFailure(ctx, "c1", 3)
		if err != nil {
			t.Fatalf("RecordFailure #%d: %v", i, err)
		}
		if exceeded {
			t.Fatalf("attempt %d should not exceed cap", i)
		}
		got, err := s.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if int(got.Attempts) != i {
			t.Fatalf("expected %d attempts, got %d", i, got.Attempts)
		}
	}
	if ttl := mr.TTL("alc:c1"); ttl <= 0 {
		t.Fatalf("expected ttl to be preserved across updates, got %s", ttl)
	}

	exceeded, err := s.RecordFailure(ctx, "c1", 3)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if !exceeded {
		t.Fatal("expected third failure to exceed cap")
	}
	if _, err := s.Get(ctx, "c1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected exhausted challenge to be deleted, got %v", err)
	}
	if _, err := s.RecordFailure(ctx, "c1", 3); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after deletion, got %v", err)
	}
}

func TestChallengeRecordFailureExpired(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	s := NewChallengeStore(rdb, "alc", clock.Now)

	rec := &LoginChallenge{UserID: "u1", ExpiresAt: clock.Now().Add(time.Minute).Unix()}
	if err := s.Save(ctx, "c1", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := s.RecordFailure(ctx, "c1", 5); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestChallengeCorruptRecordTreatedAsMissing(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "alc", nil)

	if err := mr.Set("alc:bad", "\x09garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Get(ctx, "bad"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound for corrupt record, got %v", err)
	}
}

func TestChallengeBackendFailure(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "alc", nil)

	mr.Close()
	err := s.Save(ctx, "c1", &LoginChallenge{UserID: "u1"}, time.Minute)
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}

func TestAssertionConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	s := NewAssertionStore(rdb, "", clock.Now)

	rec := &Assertion{UserID: "u1", VerifiedAt: clock.Now().Unix(), ExpiresAt: clock.Now().Add(2 * time.Minute).Unix()}
	if err := s.Save(ctx, "a1", rec, 2*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Consume(ctx, "a1")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if *got != *rec {
		t.Fatalf("round trip mismatch: got %+v want %+v", *got, *rec)
	}
	if _, err := s.Consume(ctx, "a1"); !errors.Is(err, ErrAssertionNotFound) {
		t.Fatalf("expected second consume to fail with ErrAssertionNotFound, got %v", err)
	}
}

func TestAssertionConcurrentConsumeOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	s := NewAssertionStore(rdb, "asa", nil)

	rec := &Assertion{UserID: "u1", ExpiresAt: time.Now().Add(time.Minute).Unix()}
	if err := s.Save(ctx, "a1", rec, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "a1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins)
	}
}

func TestAssertionExpired(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	s := NewAssertionStore(rdb, "asa", clock.Now)

	rec := &Assertion{UserID: "u1", ExpiresAt: clock.Now().Add(time.Minute).Unix()}
	if err := s.Save(ctx, "a1", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := s.Consume(ctx, "a1"); !errors.Is(err, ErrAssertionExpired) {
		t.Fatalf("expected ErrAssertionExpired, got %v", err)
	}
}

func TestMarkCodeUsed(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewAssertionStore(rdb, "asa", nil)

	first, err := s.MarkCodeUsed(ctx, "u1", 42, 90*time.Second)
	if err != nil || !first {
		t.Fatalf("expected first mark to succeed, ok=%v err=%v", first, err)
	}
	again, err := s.MarkCodeUsed(ctx, "u1", 42, 90*time.Second)
	if err != nil || again {
		t.Fatalf("expected replay to be detected, ok=%v err=%v", again, err)
	}
	other, err := s.MarkCodeUsed(ctx, "u2", 42, 90*time.Second)
	if err != nil || !other {
		t.Fatalf("expected markers to be per user, ok=%v err=%v", other, err)
	}

	mr.FastForward(91 * time.Second)
	after, err := s.MarkCodeUsed(ctx, "u1", 42, 90*time.Second)
	if err != nil || !after {
		t.Fatalf("expected marker to expire, ok=%v err=%v", after, err)
	}
}
