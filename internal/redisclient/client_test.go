package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "lock:purchase:p-1:lotus_bloom", lockKey("purchase:p-1:lotus_bloom"))
	assert.Equal(t, "ad_claim:view-1", claimKey("view-1"))
	assert.Contains(t, releaseLockScript, `redis.call("DEL", KEYS[1])`)
}

func TestLockRoundTrip(t *testing.T) {
	t.Skip("Integration test - requires redis")

	c, err := NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	token, ok, err := c.Acquire(ctx, "test-lock", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.Acquire(ctx, "test-lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Release(ctx, "test-lock", "someone-else"))
	_, ok, _ = c.Acquire(ctx, "test-lock", time.Minute)
	assert.False(t, ok, "a foreign token must not release the lock")

	require.NoError(t, c.Release(ctx, "test-lock", token))
	_, ok, err = c.Acquire(ctx, "test-lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkClaimedOnce(t *testing.T) {
	t.Skip("Integration test - requires redis")

	c, err := NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	first, err := c.MarkClaimed(ctx, "view-42", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.MarkClaimed(ctx, "view-42", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)
}
