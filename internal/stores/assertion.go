package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrAssertionNotFound means the assertion is unknown or already redeemed.
	ErrAssertionNotFound = errors.New("second-factor assertion not found")
	// ErrAssertionExpired means the assertion outlived its TTL.
	ErrAssertionExpired = errors.New("second-factor assertion expired")
)

// Assertion proves that UserID presented a valid second-factor code at
// VerifiedAt. It can be consumed exactly once.
type Assertion struct {
	UserID     string
	VerifiedAt int64
	ExpiresAt  int64
}

// AssertionStore persists single-use Assertion records and used-code markers.
type AssertionStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewAssertionStore returns a store writing under prefix (default "asa").
func NewAssertionStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *AssertionStore {
	if prefix == "" {
		prefix = "asa"
	}
	if now == nil {
		now = time.Now
	}
	return &AssertionStore{redis: redisClient, prefix: prefix, now: now}
}

func (s *AssertionStore) key(assertionID string) string {
	return s.prefix + ":" + assertionID
}

func (s *AssertionStore) usedKey(userID string, counter int64) string {
	return s.prefix + ":used:" + userID + ":" + strconv.FormatInt(counter, 10)
}

// Save writes record under assertionID for ttl.
func (s *AssertionStore) Save(ctx context.Context, assertionID string, record *Assertion, ttl time.Duration) error {
	encoded, err := encodeAssertion(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(assertionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Consume atomically reads and deletes an assertion. A second Consume of the
// same ID returns ErrAssertionNotFound.
func (s *AssertionStore) Consume(ctx context.Context, assertionID string) (*Assertion, error) {
	data, err := s.redis.GetDel(ctx, s.key(assertionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAssertionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	record, err := decodeAssertion(data)
	if err != nil {
		return nil, ErrAssertionNotFound
	}
	if s.now().Unix() > record.ExpiresAt {
		return nil, ErrAssertionExpired
	}
	return record, nil
}

// MarkCodeUsed records that userID spent the code for counter. It returns false
// when the marker already existed, meaning the code is a replay.
func (s *AssertionStore) MarkCodeUsed(ctx context.Context, userID string, counter int64, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.usedKey(userID, counter), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return ok, nil
}
