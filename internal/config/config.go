package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN             string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL             string `env:"RABBITMQ_URL,required=true"`
	RedisURL                string `env:"REDIS_URL,required=true"`
	BinAPIBaseURL           string `env:"BIN_API_BASE_URL,default=https://lookup.binlist.net"`
	BinAPITimeoutSeconds    int    `env:"BIN_API_TIMEOUT_SECONDS,default=30"`
	RateLimitIntervalMillis int    `env:"RATE_LIMIT_INTERVAL_MS,default=1000"`
	LookupCacheTTLSeconds   int    `env:"LOOKUP_CACHE_TTL_SECONDS,default=3600"`
	WorkerConcurrency       int    `env:"WORKER_CONCURRENCY,default=8"`
	APIPort                 int    `env:"API_PORT,default=8080"`
	MetricsPort             int    `env:"METRICS_PORT,default=9090"`
	LogLevel                string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// BinAPITimeout returns the upstream request timeout as a duration.
func (c *Config) BinAPITimeout() time.Duration {
	return time.Duration(c.BinAPITimeoutSeconds) * time.Second
}

// RateLimitInterval returns the minimum spacing between upstream requests.
func (c *Config) RateLimitInterval() time.Duration {
	return time.Duration(c.RateLimitIntervalMillis) * time.Millisecond
}

// LookupCacheTTL returns how long successful lookup results stay cached.
func (c *Config) LookupCacheTTL() time.Duration {
	return time.Duration(c.LookupCacheTTLSeconds) * time.Second
}
