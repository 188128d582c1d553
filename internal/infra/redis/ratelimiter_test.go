package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntervalRateLimiter_AllowSpacing(t *testing.T) {
	client := newTestClient(t)

	current := time.UnixMilli(1_700_000_000_000)
	limiter, err := newIntervalRateLimiter(client, time.Second, func() time.Time { return current }, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	allowed, err := limiter.Allow(context.Background())
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("first request should be allowed")
	}

	current = current.Add(300 * time.Millisecond)
	allowed, err = limiter.Allow(context.Background())
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("request inside the interval should be denied")
	}

	current = current.Add(800 * time.Millisecond)
	allowed, err = limiter.Allow(context.Background())
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("request after the interval elapsed should be allowed")
	}
}

func TestIntervalRateLimiter_WaitSleepsRemaining(t *testing.T) {
	client := newTestClient(t)

	current := time.UnixMilli(1_700_000_000_000)
	var slept []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		current = current.Add(d)
		return nil
	}

	limiter, err := newIntervalRateLimiter(client, time.Second, func() time.Time { return current }, sleep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(slept) != 0 {
		t.Fatalf("first Wait should not sleep, slept %v", slept)
	}

	current = current.Add(400 * time.Millisecond)
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(slept) != 1 {
		t.Fatalf("second Wait should sleep once, slept %v", slept)
	}
	if slept[0] != 600*time.Millisecond {
		t.Fatalf("slept %s, want 600ms", slept[0])
	}
}

func TestIntervalRateLimiter_WaitHonorsContext(t *testing.T) {
	client := newTestClient(t)

	current := time.UnixMilli(1_700_000_000_000)
	limiter, err := newIntervalRateLimiter(client, time.Second, func() time.Time { return current }, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestNewIntervalRateLimiter_RequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewIntervalRateLimiter(nil, time.Second); err == nil {
		t.Fatal("expected error for nil client")
	}
}
