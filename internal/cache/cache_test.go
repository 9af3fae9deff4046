package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/omnidotdev/synapse/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, "synapse:cache:", time.Minute)
}

func TestKeyIsStableAcrossEquivalentRequests(t *testing.T) {
	a := &types.CompletionRequest{Model: "gpt-4o", Messages: []types.Message{{Role: types.RoleUser, Content: types.TextContent("hi")}}}
	b := &types.CompletionRequest{Model: "gpt-4o", Messages: []types.Message{{Role: types.RoleUser, Content: types.TextContent("hi")}}}

	keyA, err := Key(a)
	require.NoError(t, err)
	keyB, err := Key(b)
	require.NoError(t, err)
	assert.Equal(t, keyA, keyB)

	c := &types.CompletionRequest{Model: "gpt-4o", Messages: []types.Message{{Role: types.RoleUser, Content: types.TextContent("bye")}}}
	keyC, err := Key(c)
	require.NoError(t, err)
	assert.NotEqual(t, keyA, keyC)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	resp := &types.CompletionResponse{ID: "resp_1", Model: "gpt-4o"}
	c.Set(ctx, "somekey", resp)

	got, ok := c.Get(ctx, "somekey")
	require.True(t, ok)
	assert.Equal(t, "resp_1", got.ID)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Get(context.Background(), "missing")
	assert.False(t, ok)
}

func TestNilCacheIsAlwaysMiss(t *testing.T) {
	var c *Cache
	_, ok := c.Get(context.Background(), "anything")
	assert.False(t, ok)

	// Set on a nil cache must not panic.
	c.Set(context.Background(), "anything", &types.CompletionResponse{})
}
