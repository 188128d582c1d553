package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCacheTTL = time.Hour

// LookupCache is a lookaside cache for normalized BIN lookup results.
// Misses and Redis failures are indistinguishable to the caller; presence
// short-circuits the network call, absence never blocks it.
type LookupCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewLookupCache(client *goredis.Client, ttl time.Duration, logger *zap.Logger) (*LookupCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LookupCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func cacheKey(bin string) string {
	return "bin_lookup:" + bin
}

func (c *LookupCache) Get(ctx context.Context, bin string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := c.client.Get(ctx, cacheKey(bin)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn("lookup cache read failed", zap.String("bin", bin), zap.Error(err))
		}
		return nil, false
	}

	return payload, true
}

func (c *LookupCache) Set(ctx context.Context, bin string, payload []byte) {
	if c == nil || c.client == nil || len(payload) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.client.Set(ctx, cacheKey(bin), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("lookup cache write failed", zap.String("bin", bin), zap.Error(err))
	}
}
