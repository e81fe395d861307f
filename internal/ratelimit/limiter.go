// Package ratelimit guards the grounding endpoint. Every admitted request can
// turn into a metered web search upstream, so admission is checked on two
// dimensions: a sliding window over recent requests and a daily budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/probelab/groundcheck/internal/config"
)

const (
	// DimensionWindow denies a burst that exceeds the sliding window.
	DimensionWindow = "window"
	// DimensionDaily denies a client that burned its daily search budget.
	DimensionDaily = "daily"
)

// Decision is the outcome of admission control for one request. Denials name
// the dimension that fired so a caller can tell a burst apart from an
// exhausted budget.
type Decision struct {
	Allowed    bool
	Dimension  string // set when denied
	Remaining  int64  // slots left in the sliding window
	DailyUsed  int64
	DailyLimit int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter performs two-dimension admission control backed by Redis. If rdb is
// nil, or Redis errors, every check passes (fail open): losing the limiter
// must not take the engine down with it.
type Limiter struct {
	rdb *redis.Client
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// windowScript atomically expires entries older than the window, admits if
// under the limit, and reports the oldest surviving entry so a denied caller
// learns when a slot actually frees up instead of a guess.
// KEYS[1] = sorted set key
// ARGV[1] = window start (unix micro)
// ARGV[2] = now (unix micro) — score and member uniqueness
// ARGV[3] = limit
// ARGV[4] = TTL seconds for the key
// Returns: [current_count, 1=admitted/0=denied, oldest score (0 when admitted)]
var windowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, ttl)
    return {count + 1, 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
redis.call('EXPIRE', key, ttl)
return {count, 0, tonumber(oldest[2])}
`)

func windowKey(client string) string {
	return fmt.Sprintf("groundcheck:rl:window:%s", client)
}

func dailyKey(client string, day time.Time) string {
	return fmt.Sprintf("groundcheck:rl:daily:%s:%s", client, day.UTC().Format("2006-01-02"))
}

// Admit checks both dimensions for one request: the sliding window first,
// then the daily budget when one is configured. An admitted request is
// counted against both; a window denial does not consume daily budget.
func (l *Limiter) Admit(ctx context.Context, client string, rl config.RateLimitConfig) (Decision, error) {
	now := time.Now()
	if l.rdb == nil {
		return Decision{
			Allowed:    true,
			Remaining:  rl.Limit - 1,
			DailyLimit: rl.DailyQuota,
			ResetAt:    now.Add(rl.Window),
		}, nil
	}

	decision, err := l.checkWindow(ctx, client, rl, now)
	if err != nil {
		// Fail open on Redis errors
		return Decision{Allowed: true, Remaining: rl.Limit, DailyLimit: rl.DailyQuota, ResetAt: now.Add(rl.Window)}, nil
	}
	if !decision.Allowed {
		return decision, nil
	}

	if rl.DailyQuota > 0 {
		used, err := l.recordDaily(ctx, client, now)
		if err != nil {
			decision.DailyLimit = rl.DailyQuota
			return decision, nil
		}
		decision.DailyUsed = used
		decision.DailyLimit = rl.DailyQuota
		if used > rl.DailyQuota {
			decision.Allowed = false
			decision.Dimension = DimensionDaily
			decision.RetryAfter = endOfDay(now).Sub(now)
		}
	}
	return decision, nil
}

func (l *Limiter) checkWindow(ctx context.Context, client string, rl config.RateLimitConfig, now time.Time) (Decision, error) {
	windowStart := now.Add(-rl.Window).UnixMicro()
	ttlSecs := int64(rl.Window.Seconds()) + 1

	result, err := windowScript.Run(ctx, l.rdb, []string{windowKey(client)},
		windowStart, now.UnixMicro(), rl.Limit, ttlSecs,
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}

	count := result[0]
	allowed := result[1] == 1
	remaining := rl.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	decision := Decision{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   now.Add(rl.Window),
	}
	if !allowed {
		decision.Dimension = DimensionWindow
		// A slot frees when the oldest entry ages out of the window.
		oldest := time.UnixMicro(result[2])
		decision.RetryAfter = oldest.Add(rl.Window).Sub(now)
		if decision.RetryAfter < time.Second {
			decision.RetryAfter = time.Second
		}
		decision.ResetAt = oldest.Add(rl.Window)
	}
	return decision, nil
}

// recordDaily counts the request against the client's daily budget and
// returns the new total. The key expires shortly after the UTC day ends.
func (l *Limiter) recordDaily(ctx context.Context, client string, now time.Time) (int64, error) {
	key := dailyKey(client, now)
	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, endOfDay(now).Sub(now)+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func endOfDay(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
