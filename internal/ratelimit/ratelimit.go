// Package ratelimit admits requests through a per-key sliding window backed
// by a Redis sorted set. The check-and-admit step runs as a single Lua script
// so concurrent checkers for the same key can never admit past the limit.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default limiter settings: 60 requests per 60 second window.
const (
	DefaultLimit         = 60
	DefaultWindowSeconds = 60
)

// slidingWindow prunes timestamps older than the window, then admits the
// caller only when the remaining count is under the limit. Scores and members
// are the request time in Unix milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, 0, now - window * 1000)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, now)
    redis.call('EXPIRE', key, window)
    return {1, limit - count - 1}
end
return {0, 0}
`)

// Limiter enforces a sliding-window rate limit per key.
type Limiter struct {
	rdb           *redis.Client
	limit         int
	windowSeconds int

	// now is used for testing; defaults to time.Now.
	now func() time.Time
}

// New creates a Limiter. Non-positive limit or window fall back to the
// defaults.
func New(rdb *redis.Client, limit, windowSeconds int) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	return &Limiter{rdb: rdb, limit: limit, windowSeconds: windowSeconds, now: time.Now}
}

// Limit returns the configured per-window limit.
func (l *Limiter) Limit() int { return l.limit }

// Allow checks and consumes one slot for key. It returns whether the request
// is admitted and how many slots remain in the current window. A Redis
// failure fails open: admission control should not take the gateway down with
// the store.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int, error) {
	nowMs := l.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.rdb, []string{key},
		l.limit, l.windowSeconds, nowMs).Int64Slice()
	if err != nil {
		return true, 0, err
	}
	if len(res) != 2 {
		return true, 0, nil
	}
	return res[0] == 1, int(res[1]), nil
}

// Pending returns the number of live entries in the key's window without
// consuming a slot.
func (l *Limiter) Pending(ctx context.Context, key string) (int, error) {
	cutoff := l.now().UnixMilli() - int64(l.windowSeconds)*1000
	if cutoff < 0 {
		cutoff = 0
	}
	if err := l.rdb.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return 0, err
	}
	n, err := l.rdb.ZCard(ctx, key).Result()
	return int(n), err
}
