package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "rate_limit:"

// token bucket: capacity tokens, refilled at rate tokens per second.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

local elapsed = math.max(0, now - updated_at)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local retry_after = 0

if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = (requested - tokens) / rate
end

redis.call('HSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, 86400)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter is a per-key token bucket stored in redis.
type RateLimiter struct {
	client *Client
	qps    int
	now    func() time.Time
}

// NewRateLimiter builds a limiter allowing qps requests per second with a burst of 2*qps.
func NewRateLimiter(client *Client, qps int) *RateLimiter {
	return &RateLimiter{client: client, qps: qps, now: time.Now}
}

// Enabled reports whether checks hit redis at all.
func (l *RateLimiter) Enabled() bool {
	return l != nil && l.qps > 0 && l.client.Available()
}

// Allow consumes one token for key. Errors leave the caller to decide; the
// returned decision is permissive whenever err != nil.
func (l *RateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	capacity := 2 * l.qps
	now := float64(l.now().UnixNano()) / 1e9
	res, err := tokenBucket.Run(ctx, l.client.inner, []string{rateLimitKeyPrefix + key}, capacity, l.qps, now, 1).Result()
	if err != nil {
		return Decision{Allowed: true, Limit: capacity, Remaining: capacity}, fmt.Errorf("rate limit eval: %w", err)
	}
	d := Decision{Limit: capacity, Remaining: capacity}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 3 {
		d.Allowed = true
		return d, fmt.Errorf("rate limit eval: unexpected reply %T", res)
	}
	if v, ok := arr[0].(int64); ok {
		d.Allowed = v == 1
	}
	if v, ok := arr[1].(int64); ok {
		d.Remaining = int(v)
	}
	if v, ok := arr[2].(int64); ok {
		d.RetryAfter = time.Duration(v) * time.Second
	}
	return d, nil
}
