// Package cache provides an advisory response cache backed by Redis (or
// Valkey): a cache miss or a Redis outage never fails a request, it just
// means the gateway falls through to calling the provider (spec §4.10).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnidotdev/synapse/internal/types"
	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client. A nil *Cache is valid and behaves as an
// always-miss cache, so callers don't need a feature flag at every call
// site — just don't construct one when caching is disabled.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Key derives a deterministic cache key from the fields of a completion
// request that affect its output: model, messages, sampling params, and
// tools.
// Marshaling a canonical struct (rather than the raw wire JSON) is what
// makes the key stable across dialects — an OpenAI-shaped and an
// Anthropic-shaped request for the same conversation hash identically.
func Key(req *types.CompletionRequest) (string, error) {
	canonical := struct {
		Model    string              `json:"model"`
		Messages []types.Message     `json:"messages"`
		Params   types.Params        `json:"params"`
		Tools    []types.ToolDefinition `json:"tools"`
	}{Model: req.Model, Messages: req.Messages, Params: req.Params, Tools: req.Tools}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("cache: marshaling cache key input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Cache) redisKey(key string) string { return c.prefix + ":" + key }

// Get returns the cached response for key, or ok=false on a miss or any
// Redis error — errors are logged, not propagated, per this cache's
// advisory contract.
func (c *Cache) Get(ctx context.Context, key string) (*types.CompletionResponse, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("cache: get failed", "err", err)
		return nil, false
	}

	var resp types.CompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Warn("cache: decoding cached response failed", "err", err)
		return nil, false
	}
	return &resp, true
}

// Set stores resp under key with the cache's configured TTL. Failures
// are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, resp *types.CompletionResponse) {
	if c == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("cache: encoding response for cache failed", "err", err)
		return
	}

	if err := c.client.Set(ctx, c.redisKey(key), data, c.ttl).Err(); err != nil {
		slog.Warn("cache: set failed", "err", err)
	}
}
