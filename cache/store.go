// Package cache provides the Redis-backed coordination layer for refresh
// token rotation: a small cache store with the atomic primitives rotation
// needs (set-if-absent, compare-and-delete, dual-key set) and a distributed
// lock manager built on top of them.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned by Get when the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrLockNotAcquired is returned by Acquire when the retry budget is
	// exhausted without either winning the lock or observing a cache hit.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Store is the cache surface consumed by the rotation flow. All three write
// operations are atomic on the cache server; none of them is a read-modify-
// write sequence on the client.
type Store interface {
	// Get returns the value at key, or ErrCacheMiss if absent.
	Get(ctx context.Context, key string) (string, error)

	// SetIfAbsent sets key to value with the given TTL only if the key does
	// not exist. Returns true if the key was set.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// DeleteIfEquals deletes key only if its current value equals expected.
	// Returns true if the key was deleted.
	DeleteIfEquals(ctx context.Context, key, expected string) (bool, error)

	// SetDual sets both keys to the same value with two different TTLs as one
	// indivisible operation: no reader can observe only one of them set.
	SetDual(ctx context.Context, shortKey, longKey, value string, shortTTL, longTTL time.Duration) error
}
