package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKV_IncrWindow(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	n, err := kv.IncrWindow(ctx, "rate:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = kv.IncrWindow(ctx, "rate:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryKV_SetNXHoldsUntilDeleted(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	ok, err := kv.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = kv.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Del(ctx, "lock"))
	ok, err = kv.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryKV_DelEqualOnlyReleasesOwnToken(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	// First holder's TTL elapses, a second holder takes the lock over.
	ok, err := kv.SetNX(ctx, "lock", "token-a", time.Nanosecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(2 * time.Millisecond)

	ok, err = kv.SetNX(ctx, "lock", "token-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder's release must not touch the new holder's lock.
	deleted, err := kv.DelEqual(ctx, "lock", "token-a")
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err = kv.SetNX(ctx, "lock", "token-c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock must still be held by token-b")

	deleted, err = kv.DelEqual(ctx, "lock", "token-b")
	require.NoError(t, err)
	assert.True(t, deleted)
}
