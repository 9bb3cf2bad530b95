package cache

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Lock is an acquired rotation lock. The Value is the owner token that
// Release compares against, so an expired lock re-acquired by another holder
// is never deleted out from under them.
type Lock struct {
	Key   string
	Value string
}

// LockManager serialises the "who gets to mint" decision across service
// instances. It is not an in-process mutex: rotation requests for the same
// token may land on different instances behind the load balancer, so the
// exclusion lives in the shared cache store with its own TTL as the backstop
// against a crashed holder.
type LockManager struct {
	store       Store
	expiry      time.Duration
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

type LockManagerOption func(*LockManager)

// WithLockExpiry sets the server-side TTL on acquired locks.
func WithLockExpiry(expiry time.Duration) LockManagerOption {
	return func(lm *LockManager) {
		lm.expiry = expiry
	}
}

// WithRetryPolicy sets the attempt budget and backoff window.
func WithRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) LockManagerOption {
	return func(lm *LockManager) {
		lm.maxAttempts = maxAttempts
		lm.baseDelay = baseDelay
		lm.maxDelay = maxDelay
	}
}

func NewLockManager(store Store, options ...LockManagerOption) *LockManager {
	lm := &LockManager{
		store:       store,
		expiry:      15 * time.Second,
		maxAttempts: 5,
		baseDelay:   50 * time.Millisecond,
		maxDelay:    800 * time.Millisecond,
	}
	for _, opt := range options {
		opt(lm)
	}
	return lm
}

// Acquire attempts to take the lock at lockKey, watching cacheKey the whole
// time. It returns exactly one of:
//
//   - a non-nil *Lock: the caller won and must Release it when done;
//   - a non-empty cached payload: another holder finished the rotation while
//     we were waiting, so there is nothing left to mint;
//   - ErrLockNotAcquired: the retry budget ran out with the lock still held
//     and no cache entry in sight. Callers surface this as retryable.
//
// The cache re-check before each attempt and immediately after each failed
// attempt is what lets losers of the lock race return the winner's result
// instead of queueing up behind the lock.
func (lm *LockManager) Acquire(ctx context.Context, lockKey, cacheKey string) (*Lock, string, error) {
	value := uuid.New().String()
	delay := lm.baseDelay

	for attempt := 0; attempt < lm.maxAttempts; attempt++ {
		payload, err := lm.store.Get(ctx, cacheKey)
		if err == nil {
			return nil, payload, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, "", err
		}

		ok, err := lm.store.SetIfAbsent(ctx, lockKey, value, lm.expiry)
		if err != nil {
			return nil, "", err
		}
		if ok {
			return &Lock{Key: lockKey, Value: value}, "", nil
		}

		// Lost the attempt. The holder may have finished in the meantime, so
		// look for its result before committing to a backoff sleep.
		payload, err = lm.store.Get(ctx, cacheKey)
		if err == nil {
			return nil, payload, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, "", err
		}

		if err := sleepContext(ctx, withJitter(delay)); err != nil {
			return nil, "", err
		}
		delay = min(delay*2, lm.maxDelay)
	}

	return nil, "", ErrLockNotAcquired
}

// Release deletes the lock only if it is still ours. Failures are logged and
// swallowed: a leaked lock costs one TTL of extra serialisation for this
// token and nothing else.
func (lm *LockManager) Release(ctx context.Context, lock *Lock) {
	if lock == nil {
		return
	}
	deleted, err := lm.store.DeleteIfEquals(ctx, lock.Key, lock.Value)
	if err != nil {
		log.Err(err).Str("lock_key", lock.Key).Msg("failed to release rotation lock")
		return
	}
	if !deleted {
		log.Warn().Str("lock_key", lock.Key).Msg("rotation lock expired before release")
	}
}

// withJitter spreads retries out so callers that collided once do not all
// wake up and collide again.
func withJitter(delay time.Duration) time.Duration {
	return delay + rand.N(delay/2+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
