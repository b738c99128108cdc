package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript atomically evicts admission timestamps older than
// now-1s, admits the caller if the remaining count is below limit, and sets
// a 2s inactivity expiry on the key — all in one round trip, the same
// atomicity discipline as the teacher's multiLimitLuaScript but over a true
// sliding window (a ZSET of timestamps) instead of fixed time buckets.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local member = ARGV[3]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - 1000)

local count = redis.call("ZCARD", key)
if count >= limit then
    local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
    local retryAt = now + 1000
    if oldest[2] ~= nil then
        retryAt = tonumber(oldest[2]) + 1000
    end
    return {0, retryAt}
end

redis.call("ZADD", key, now, member)
redis.call("PEXPIRE", key, 2000)
return {1, 0}
`

// RedisLimiter implements Limiter with a Redis ZSET of admission timestamps
// per campaign, trimmed to the last second on every call via a single Lua
// script for atomicity, grounded on internal/worker/rate_limiter.go's
// redis.NewScript calling convention.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisLimiter creates a Redis-backed Limiter.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, script: redis.NewScript(slidingWindowScript)}
}

// TryAcquire admits one unit for campaignID against limitPerSecond at now.
func (r *RedisLimiter) TryAcquire(ctx context.Context, campaignID string, limitPerSecond int, now time.Time) (bool, time.Duration, error) {
	if limitPerSecond < 1 {
		return false, 0, fmt.Errorf("ratelimit: limit must be >= 1, got %d", limitPerSecond)
	}

	key := fmt.Sprintf("ratelimit:campaign:%s", campaignID)
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, randSuffix())

	res, err := r.script.Run(ctx, r.client, []string{key}, nowMs, limitPerSecond, member).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: script failed: %w", err)
	}

	admitted := res[0].(int64) == 1
	if admitted {
		return true, 0, nil
	}

	retryAtMs := res[1].(int64)
	retryAfter := time.Duration(retryAtMs-nowMs) * time.Millisecond
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter, nil
}

var randCounter uint64

// randSuffix distinguishes concurrent admissions landing on the same
// millisecond so ZADD never collapses two distinct callers into one member.
func randSuffix() string {
	return fmt.Sprintf("%d", atomic.AddUint64(&randCounter, 1))
}
