package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/khentdev/FitThreads-sub000/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedis(client), mr
}

func TestGet_Miss(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "absent")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestSetIfAbsent(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetIfAbsent(ctx, "k", "v1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", value)

	// Key exists, second writer loses.
	ok, err = store.SetIfAbsent(ctx, "k", "v2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	value, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", value)

	// Expiry frees the key for the next writer.
	mr.FastForward(2 * time.Minute)
	ok, err = store.SetIfAbsent(ctx, "k", "v2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDeleteIfEquals(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.SetIfAbsent(ctx, "k", "owner-1", time.Minute)
	require.NoError(t, err)

	deleted, err := store.DeleteIfEquals(ctx, "k", "owner-2")
	require.NoError(t, err)
	require.False(t, deleted, "mismatched value must not delete")

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "owner-1", value)

	deleted, err = store.DeleteIfEquals(ctx, "k", "owner-1")
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestSetDual(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	err := store.SetDual(ctx, "old", "new", "payload", 30*time.Second, 20*time.Minute)
	require.NoError(t, err)

	oldValue, err := store.Get(ctx, "old")
	require.NoError(t, err)
	newValue, err := store.Get(ctx, "new")
	require.NoError(t, err)
	require.Equal(t, oldValue, newValue)

	// The short key falls away first.
	mr.FastForward(time.Minute)
	_, err = store.Get(ctx, "old")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = store.Get(ctx, "new")
	require.NoError(t, err)

	mr.FastForward(20 * time.Minute)
	_, err = store.Get(ctx, "new")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewRedis(client, cache.WithKeyPrefix("test:"))

	ok, err := store.SetIfAbsent(context.Background(), "k", "v", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	raw, err := mr.Get("test:k")
	require.NoError(t, err)
	require.Equal(t, "v", raw)
}
