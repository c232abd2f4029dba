package nexus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a cached orchestration result stays valid.
const DefaultCacheTTL = time.Hour

// Cache stores completed results in Redis keyed by a digest of the request.
// Lookups and stores are best-effort: a cache failure degrades to a normal
// orchestration, never to a request failure.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache wraps a Redis client. ttl <= 0 means DefaultCacheTTL.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// cacheKey digests the request fields that determine the answer. Override
// requests are never cached, so override models stay out of the key.
func cacheKey(r Request, safePrompt string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%.3f|%d|%s",
		r.TenantID, r.Mode, safePrompt, r.Temperature, r.MaxTokens, r.System))
	return "nexus:cache:" + hex.EncodeToString(sum[:])
}

// Get returns the cached result for the key, or nil on miss or error.
func (c *Cache) Get(ctx context.Context, key string) *Result {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		slog.Warn("cache entry undecodable, ignoring", slog.String("key", key))
		return nil
	}
	return &res
}

// Put stores the result under the key for the configured TTL.
func (c *Cache) Put(ctx context.Context, key string, res *Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("cache store failed", slog.String("error", err.Error()))
	}
}
