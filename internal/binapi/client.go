package binapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/binlookup-engine/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 60 * time.Second
	maxBackoffJitterMs = 250
	healthCheckTimeout = 5 * time.Second
	userAgent          = "binlookup-engine/1.0"
)

// Cache is a lookaside store for normalized lookup payloads. Absence never
// blocks a lookup, presence short-circuits the network call.
type Cache interface {
	Get(ctx context.Context, bin string) ([]byte, bool)
	Set(ctx context.Context, bin string, payload []byte)
}

// Options configures the BIN API client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Client performs rate-limited, retried lookups against the upstream BIN
// database and normalizes its responses.
type Client struct {
	http        *resty.Client
	baseURL     string
	limiter     ratelimit.RateLimiter
	cache       Cache
	logger      *zap.Logger
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	randIntn    func(n int) int
}

func NewClient(opts Options, limiter ratelimit.RateLimiter, cache Cache, logger *zap.Logger) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := resty.New()
	httpClient.SetTimeout(timeout)
	httpClient.SetRetryCount(0)
	httpClient.SetHeader("Accept", "application/json")
	httpClient.SetHeader("User-Agent", userAgent)

	return NewClientWithHTTP(opts, httpClient, limiter, cache, logger)
}

func NewClientWithHTTP(
	opts Options,
	httpClient *resty.Client,
	limiter ratelimit.RateLimiter,
	cache Cache,
	logger *zap.Logger,
) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("bin api base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid bin api base url: %w", err)
	}
	if httpClient == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	baseBackoff := opts.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = defaultBaseBackoff
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	return &Client{
		http:        httpClient,
		baseURL:     baseURL,
		limiter:     limiter,
		cache:       cache,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		sleep:       sleepWithContext,
		randIntn:    rand.Intn,
	}, nil
}

// Lookup fetches and normalizes the enrichment data for one BIN. Retryable
// upstream failures (429, 5xx, timeouts) are retried inside this invocation
// up to the configured attempt count with exponential backoff.
func (c *Client) Lookup(ctx context.Context, bin string) (*EnrichmentFields, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("bin api client is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if c.cache != nil {
		if payload, ok := c.cache.Get(ctx, bin); ok {
			var fields EnrichmentFields
			if err := json.Unmarshal(payload, &fields); err == nil {
				c.logger.Debug("bin lookup served from cache", zap.String("bin", bin))
				return &fields, nil
			}
			c.logger.Warn("discarding corrupt cache entry", zap.String("bin", bin))
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		fields, err := c.doLookup(ctx, bin)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("bin lookup succeeded after retry",
					zap.String("bin", bin),
					zap.Int("attempt", attempt),
				)
			}
			c.storeInCache(ctx, bin, fields)
			return fields, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoffDelay(attempt, err)
		c.logger.Info("retrying bin lookup",
			zap.String("bin", bin),
			zap.Int("attempt", attempt+1),
			zap.Int("maxAttempts", c.maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (c *Client) doLookup(ctx context.Context, bin string) (*EnrichmentFields, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	response, err := c.http.R().
		SetContext(ctx).
		Get(c.baseURL + "/" + bin)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if response == nil {
		return nil, &APIError{Kind: KindUnavailable, Message: "empty response from bin api"}
	}

	statusCode := response.StatusCode()
	body := response.Body()

	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		var parsed upstreamResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &APIError{
				Kind:       KindClientError,
				StatusCode: statusCode,
				Message:    "invalid JSON response from bin api",
				Cause:      err,
			}
		}
		return normalizeResponse(body, parsed), nil

	case statusCode == http.StatusTooManyRequests:
		return nil, &APIError{
			Kind:       KindRateLimited,
			StatusCode: statusCode,
			Message:    "rate limit exceeded for bin api",
			RetryAfter: parseRetryAfter(response.Header().Get("Retry-After")),
		}

	case statusCode == http.StatusNotFound:
		return nil, &APIError{
			Kind:       KindNotFound,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("bin %s not found", bin),
		}

	case statusCode >= http.StatusInternalServerError:
		return nil, &APIError{
			Kind:       KindUnavailable,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("bin api returned status %d", statusCode),
		}

	default:
		return nil, &APIError{
			Kind:       KindClientError,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("bin api returned status %d", statusCode),
		}
	}
}

// HealthCheck probes upstream reachability. Failures are reported, never
// returned as errors.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if c == nil || c.http == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	response, err := c.http.R().SetContext(probeCtx).Get(c.baseURL)
	if err != nil {
		c.logger.Warn("bin api health check failed", zap.Error(err))
		return false
	}

	return response.StatusCode() == http.StatusOK
}

func (c *Client) storeInCache(ctx context.Context, bin string, fields *EnrichmentFields) {
	if c.cache == nil || fields == nil {
		return
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		c.logger.Warn("failed to marshal lookup result for cache", zap.String("bin", bin), zap.Error(err))
		return
	}
	c.cache.Set(ctx, bin, payload)
}

func (c *Client) backoffDelay(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := c.baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxBackoff {
			delay = c.maxBackoff
			break
		}
	}
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
		delay = apiErr.RetryAfter
		if delay > c.maxBackoff {
			delay = c.maxBackoff
		}
	}

	jitterMillis := 0
	if c.randIntn != nil {
		jitterMillis = c.randIntn(maxBackoffJitterMs + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &APIError{
		Kind:    KindTimeout,
		Message: "bin api request failed",
		Cause:   err,
	}
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
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
