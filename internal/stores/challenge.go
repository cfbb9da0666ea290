package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrChallengeNotFound means the challenge was never issued or is already consumed.
	ErrChallengeNotFound = errors.New("login challenge not found")
	// ErrChallengeExpired means the challenge outlived its TTL.
	ErrChallengeExpired = errors.New("login challenge expired")
	// ErrBackend wraps Redis failures.
	ErrBackend = errors.New("challenge backend unavailable")
)

// LoginChallenge records that the password step succeeded for UserID and that
// a code is still owed.
type LoginChallenge struct {
	UserID    string
	Email     string
	ExpiresAt int64
	Attempts  uint16
}

// ChallengeStore persists LoginChallenge records.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewChallengeStore returns a store writing under prefix (default "alc").
func NewChallengeStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *ChallengeStore {
	if prefix == "" {
		prefix = "alc"
	}
	if now == nil {
		now = time.Now
	}
	return &ChallengeStore{redis: redisClient, prefix: prefix, now: now}
}

func (s *ChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Save writes record under challengeID for ttl.
func (s *ChallengeStore) Save(ctx context.Context, challengeID string, record *LoginChallenge, ttl time.Duration) error {
	encoded, err := encodeChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Get loads a live challenge. Expired records are removed and reported as
// ErrChallengeExpired.
func (s *ChallengeStore) Get(ctx context.Context, challengeID string) (*LoginChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	record, err := decodeChallenge(data)
	if err != nil {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrChallengeNotFound
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Delete removes a challenge and reports whether it existed. A false return on
// the success path means a concurrent request already consumed it.
func (s *ChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n > 0, nil
}

// RecordFailure increments the attempt counter. When the counter reaches
// maxAttempts the challenge is deleted and exceeded is true.
func (s *ChallengeStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int) (exceeded bool, err error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		exceeded = false
		err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}

			remaining := time.Unix(record.ExpiresAt, 0).Sub(s.now())
			if remaining <= 0 {
				if err := deleteInTx(ctx, tx, key); err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				return deleteInTx(ctx, tx, key)
			}

			updated, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil:
			return exceeded, nil
		case errors.Is(err, redis.Nil), errors.Is(err, errRecordCorrupt):
			return false, ErrChallengeNotFound
		case errors.Is(err, ErrChallengeExpired):
			return false, err
		default:
			return false, fmt.Errorf("%w: %v", ErrBackend, err)
		}
	}

	return false, fmt.Errorf("%w: contention on challenge", ErrBackend)
}

func deleteInTx(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}
