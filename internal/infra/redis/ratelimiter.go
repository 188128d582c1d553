package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/binlookup-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultInterval = time.Second
	limiterKey      = "binapi:last_request_ms"
)

// reserveScript stores the last outbound request timestamp (ms). It returns 0
// when the caller may proceed, otherwise the remaining wait in ms. The key
// expires after two intervals so a quiet period clears the state.
var reserveScript = goredis.NewScript(`
local last = tonumber(redis.call("GET", KEYS[1]) or "0")
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local elapsed = now - last
if elapsed >= interval then
  redis.call("SET", KEYS[1], now, "PX", interval * 2)
  return 0
end
return interval - elapsed
`)

var _ ratelimit.RateLimiter = (*IntervalRateLimiter)(nil)

// IntervalRateLimiter enforces a minimum spacing between upstream requests,
// shared across all processes through Redis.
type IntervalRateLimiter struct {
	client   *goredis.Client
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	script   *goredis.Script
}

func NewIntervalRateLimiter(client *goredis.Client, interval time.Duration) (*IntervalRateLimiter, error) {
	return newIntervalRateLimiter(client, interval, time.Now, sleepWithContext)
}

func newIntervalRateLimiter(
	client *goredis.Client,
	interval time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*IntervalRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &IntervalRateLimiter{
		client:   client,
		interval: interval,
		now:      nowFn,
		sleep:    sleepFn,
		script:   reserveScript,
	}, nil
}

func (r *IntervalRateLimiter) Allow(ctx context.Context) (bool, error) {
	allowed, _, err := r.reserve(ctx)
	return allowed, err
}

func (r *IntervalRateLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, remaining, err := r.reserve(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

func (r *IntervalRateLimiter) reserve(ctx context.Context) (bool, time.Duration, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, 0, fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	nowMillis := r.now().UTC().UnixMilli()
	intervalMillis := r.interval.Milliseconds()
	if intervalMillis < 1 {
		intervalMillis = 1
	}

	remaining, err := r.script.Run(ctx, r.client, []string{limiterKey}, nowMillis, intervalMillis).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("failed to reserve rate limit slot: %w", err)
	}
	if remaining <= 0 {
		return true, 0, nil
	}

	return false, time.Duration(remaining) * time.Millisecond, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
