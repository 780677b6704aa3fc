package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/chat-gateway/internal/auth"
	"github.com/af-corp/chat-gateway/internal/config"
)

const keyPrefix = "chat:rl:"

var errNoBackend = errors.New("no counter backend")

// Counter atomically adds n to the counter at key and returns the new value
// together with the time left in the current window.
type Counter interface {
	Incr(ctx context.Context, key string, n int64, window time.Duration) (count int64, ttl time.Duration, err error)
}

// RedisCounter implements Counter with a fixed window per key.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// fixedWindowScript atomically increments and starts the window on first write.
// A zero increment only reads, so it never opens a window.
// KEYS[1] = counter key
// ARGV[1] = increment
// ARGV[2] = window in milliseconds
// Returns: [count, pttl]
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local incr = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

if incr <= 0 then
    local current = tonumber(redis.call('GET', key) or '0')
    return {current, redis.call('PTTL', key)}
end

local count = redis.call('INCRBY', key, incr)
local ttl = redis.call('PTTL', key)
if ttl < 0 then
    redis.call('PEXPIRE', key, window)
    ttl = window
end
return {count, ttl}
`)

func (c *RedisCounter) Incr(ctx context.Context, key string, n int64, window time.Duration) (int64, time.Duration, error) {
	if c == nil || c.rdb == nil {
		return 0, 0, errNoBackend
	}
	res, err := fixedWindowScript.Run(ctx, c.rdb, []string{keyPrefix + key}, n, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// LimitResult is the outcome of a quota check.
type LimitResult struct {
	// Checked is false when no counter reading was available.
	Checked      bool
	Allowed      bool
	Key          string
	IdentityType string
	Count        int64
	Limit        int64
	Remaining    int64
	ResetAfter   time.Duration
}

// Limiter enforces the per-identity message quota over a fixed window.
type Limiter struct {
	counter Counter
	cfg     atomic.Pointer[config.RateLimitConfig]
}

// NewLimiter creates a quota limiter. If counter is nil, or the counter
// fails, all checks pass (fail open).
func NewLimiter(counter Counter, cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{counter: counter}
	l.Update(cfg)
	return l
}

func (l *Limiter) Update(cfg config.RateLimitConfig) {
	l.cfg.Store(&cfg)
}

func (l *Limiter) Config() config.RateLimitConfig {
	return *l.cfg.Load()
}

// Check charges increment messages to the caller's identity and reports
// whether the post-increment count is within quota. A zero increment is
// not charged but is still refused once the quota is used up.
func (l *Limiter) Check(ctx context.Context, id auth.Identity, clientIP string, increment int) (LimitResult, error) {
	cfg := l.Config()
	limit := int64(cfg.AnonymousQuota)
	if id.Authenticated {
		limit = int64(cfg.AuthenticatedQuota)
	}
	result := LimitResult{
		Allowed:      true,
		Key:          IdentityKey(id, clientIP, cfg.DevIdentity),
		IdentityType: id.Type(),
		Limit:        limit,
		Remaining:    limit,
		ResetAfter:   cfg.Window,
	}
	if l.counter == nil {
		return result, nil
	}

	charge := int64(max(increment, 0))
	count, ttl, err := l.counter.Incr(ctx, result.Key, charge, cfg.Window)
	if err != nil {
		slog.Warn("rate limit counter unavailable, failing open", "key", result.Key, "error", err)
		return result, nil
	}

	result.Checked = true
	result.Count = count
	if charge == 0 {
		result.Allowed = count < limit
	} else {
		result.Allowed = count <= limit
	}
	result.Remaining = max(limit-count, 0)
	if ttl > 0 {
		result.ResetAfter = ttl
	}
	return result, nil
}
