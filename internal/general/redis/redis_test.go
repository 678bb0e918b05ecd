package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// These tests talk to a real server and run only when REDIS_ADDR is set.
func testClient(t *testing.T) Options {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	return Options{Addr: addr}
}

func TestProcessedStore(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testClient(t), nil)
	require.NoError(t, err)
	defer client.Close()

	store := NewProcessedStore(client, time.Minute)
	id := uuid.NewString()

	seen, err := store.Seen(ctx, id)
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, store.Remember(ctx, id))
	seen, err = store.Seen(ctx, id)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestLockStore(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testClient(t), nil)
	require.NoError(t, err)
	defer client.Close()

	locks := NewLockStore(client)
	key := "cmd:" + uuid.NewString()

	token, ok, err := locks.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locks.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// a stale token must not free the lock
	require.NoError(t, locks.Release(ctx, key, "stale"))
	_, ok, err = locks.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, locks.Release(ctx, key, token))
	_, ok, err = locks.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
