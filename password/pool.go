package password

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// DurationObserver receives the wall time of each hash or verify call.
type DurationObserver func(op string, d time.Duration)

// Pool limits the number of concurrent hash and verify calls against a Hasher.
// Callers block until a slot is free or ctx is done.
type Pool struct {
	hasher  Hasher
	sem     *semaphore.Weighted
	observe DurationObserver
}

// NewPool wraps hasher with a weighted semaphore of size maxConcurrent.
// observe may be nil.
func NewPool(hasher Hasher, maxConcurrent int64, observe DurationObserver) (*Pool, error) {
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if maxConcurrent < 1 {
		return nil, errors.New("max concurrent hash operations must be >= 1")
	}
	return &Pool{
		hasher:  hasher,
		sem:     semaphore.NewWeighted(maxConcurrent),
		observe: observe,
	}, nil
}

// Hash acquires a slot and hashes password.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	start := time.Now()
	out, err := p.hasher.Hash(password)
	p.record("hash", start)
	return out, err
}

// Verify acquires a slot and verifies password against encodedHash.
func (p *Pool) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	start := time.Now()
	ok, err := p.hasher.Verify(password, encodedHash)
	p.record("verify", start)
	return ok, err
}

// NeedsRehash is cheap and does not take a slot.
func (p *Pool) NeedsRehash(encodedHash string) (bool, error) {
	return p.hasher.NeedsRehash(encodedHash)
}

func (p *Pool) record(op string, start time.Time) {
	if p.observe != nil {
		p.observe(op, time.Since(start))
	}
}
