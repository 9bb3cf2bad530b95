package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

// deleteIfEqualsScript deletes the key only when the stored value still
// matches. Used for lock release so a holder that outlived its TTL can never
// delete a lock re-acquired by someone else.
var deleteIfEqualsScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// setDualScript writes the same payload under two keys with two TTLs in one
// script execution, so readers never see the pair half-written.
var setDualScript = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3])
return 1
`)

// Redis implements Store on a go-redis client.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

type RedisOption func(*Redis)

// WithKeyPrefix namespaces every key written by this store.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis wraps an existing go-redis client. The caller owns the client's
// lifecycle.
func NewRedis(client redis.UniversalClient, options ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "fitthreads:auth:",
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (r *Redis) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) DeleteIfEquals(ctx context.Context, key, expected string) (bool, error) {
	deleted, err := deleteIfEqualsScript.Run(ctx, r.client, []string{r.key(key)}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("redis delete-if-equals: %w", err)
	}
	return deleted == 1, nil
}

func (r *Redis) SetDual(ctx context.Context, shortKey, longKey, value string, shortTTL, longTTL time.Duration) error {
	err := setDualScript.Run(ctx, r.client,
		[]string{r.key(shortKey), r.key(longKey)},
		value, shortTTL.Milliseconds(), longTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis dual set: %w", err)
	}
	return nil
}
