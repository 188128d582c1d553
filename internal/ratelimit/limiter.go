package ratelimit

import "context"

// RateLimiter spaces out calls to the upstream BIN API. A single instance is
// shared by every concurrent caller.
type RateLimiter interface {
	// Allow reports whether a request may go out now.
	Allow(ctx context.Context) (bool, error)
	// Wait blocks until a request may go out or the context is done.
	Wait(ctx context.Context) error
}
