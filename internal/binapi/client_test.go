package binapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type fakeRateLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (f *fakeRateLimiter) Allow(ctx context.Context) (bool, error) { return f.err == nil, f.err }

func (f *fakeRateLimiter) Wait(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return f.err
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (f *fakeCache) Get(ctx context.Context, bin string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	payload, ok := f.entries[bin]
	return payload, ok
}

func (f *fakeCache) Set(ctx context.Context, bin string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[bin] = payload
}

func newTestClient(t *testing.T, serverURL string, limiter *fakeRateLimiter, cache Cache) *Client {
	t.Helper()

	httpClient := resty.New()
	httpClient.SetTimeout(5 * time.Second)

	client, err := NewClientWithHTTP(
		Options{BaseURL: serverURL, MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
		httpClient,
		limiter,
		cache,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewClientWithHTTP() error = %v", err)
	}
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	client.randIntn = func(n int) int { return 0 }
	return client
}

func TestClientLookupNormalizesResponse(t *testing.T) {
	t.Parallel()

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/456789" {
			t.Errorf("path = %s, want /456789", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"scheme": "visa",
			"type": "debit",
			"bank": {"name": "Test Bank", "url": "https://bank.test", "phone": "+1234"},
			"country": {"alpha2": "DE", "name": "Germany"}
		}`))
	}))
	defer server.Close()

	limiter := &fakeRateLimiter{}
	cache := newFakeCache()
	client := newTestClient(t, server.URL, limiter, cache)

	fields, err := client.Lookup(context.Background(), "456789")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	if fields.BankName == nil || *fields.BankName != "Test Bank" {
		t.Fatalf("bank name = %v, want Test Bank", fields.BankName)
	}
	if fields.CardBrand == nil || *fields.CardBrand != "visa" {
		t.Fatalf("card brand = %v, want visa from scheme fallback", fields.CardBrand)
	}
	if fields.CardType == nil || *fields.CardType != "debit" {
		t.Fatalf("card type = %v, want debit", fields.CardType)
	}
	if fields.CountryCode == nil || *fields.CountryCode != "DE" {
		t.Fatalf("country code = %v, want DE", fields.CountryCode)
	}
	if len(fields.RawResponse) == 0 {
		t.Fatal("raw response should be preserved")
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1", requests)
	}
	if limiter.waits != 1 {
		t.Fatalf("limiter waits = %d, want 1", limiter.waits)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cache.sets)
	}
}

func TestClientLookupBrandTakesPrecedenceOverScheme(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"brand": "Visa Classic", "scheme": "visa"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeRateLimiter{}, nil)

	fields, err := client.Lookup(context.Background(), "456789")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if fields.CardBrand == nil || *fields.CardBrand != "Visa Classic" {
		t.Fatalf("card brand = %v, want Visa Classic", fields.CardBrand)
	}
}

func TestClientLookupCacheHitSkipsNetwork(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("network call should not happen on cache hit")
	}))
	defer server.Close()

	limiter := &fakeRateLimiter{}
	cache := newFakeCache()
	cache.entries["456789"] = []byte(`{"bank_name":"Cached Bank"}`)

	client := newTestClient(t, server.URL, limiter, cache)

	fields, err := client.Lookup(context.Background(), "456789")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if fields.BankName == nil || *fields.BankName != "Cached Bank" {
		t.Fatalf("bank name = %v, want Cached Bank", fields.BankName)
	}
	if limiter.waits != 0 {
		t.Fatalf("limiter waits = %d, want 0 on cache hit", limiter.waits)
	}
}

func TestClientLookupNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeRateLimiter{}, nil)

	_, err := client.Lookup(context.Background(), "456789")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Kind != KindNotFound {
		t.Fatalf("kind = %s, want not_found", apiErr.Kind)
	}
	if apiErr.Retryable() {
		t.Fatal("not_found must not be retryable")
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1 (no retry on 404)", requests)
	}
}

func TestClientLookupRateLimitedRetriesThenSurfaces(t *testing.T) {
	t.Parallel()

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	limiter := &fakeRateLimiter{}
	client := newTestClient(t, server.URL, limiter, nil)

	_, err := client.Lookup(context.Background(), "456789")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Kind != KindRateLimited {
		t.Fatalf("kind = %s, want rate_limited", apiErr.Kind)
	}
	if apiErr.RetryAfter != time.Second {
		t.Fatalf("retry after = %s, want 1s", apiErr.RetryAfter)
	}
	if requests != 3 {
		t.Fatalf("requests = %d, want 3 (retries exhausted)", requests)
	}
	if limiter.waits != 3 {
		t.Fatalf("limiter waits = %d, want one per outbound request", limiter.waits)
	}
}

func TestClientLookupServerErrorRetriesThenUnavailable(t *testing.T) {
	t.Parallel()

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeRateLimiter{}, nil)

	_, err := client.Lookup(context.Background(), "456789")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Kind != KindUnavailable {
		t.Fatalf("kind = %s, want unavailable", apiErr.Kind)
	}
	if requests != 3 {
		t.Fatalf("requests = %d, want 3", requests)
	}
}

func TestClientLookupServerErrorRecoversMidway(t *testing.T) {
	t.Parallel()

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"brand": "mastercard"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeRateLimiter{}, nil)

	fields, err := client.Lookup(context.Background(), "456789")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if fields.CardBrand == nil || *fields.CardBrand != "mastercard" {
		t.Fatalf("card brand = %v, want mastercard", fields.CardBrand)
	}
	if requests != 3 {
		t.Fatalf("requests = %d, want 3", requests)
	}
}

func TestClientLookupMalformedJSONIsClientError(t *testing.T) {
	t.Parallel()

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeRateLimiter{}, nil)

	_, err := client.Lookup(context.Background(), "456789")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Kind != KindClientError {
		t.Fatalf("kind = %s, want client_error", apiErr.Kind)
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1 (no retry on malformed body)", requests)
	}
}

func TestClientHealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeRateLimiter{}, nil)
	if !client.HealthCheck(context.Background()) {
		t.Fatal("health check should pass against healthy upstream")
	}

	server.Close()
	if client.HealthCheck(context.Background()) {
		t.Fatal("health check should fail against closed upstream")
	}
}

func TestIsRetryableClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "rate limited", err: &APIError{Kind: KindRateLimited}, retryable: true},
		{name: "timeout", err: &APIError{Kind: KindTimeout}, retryable: true},
		{name: "unavailable", err: &APIError{Kind: KindUnavailable}, retryable: true},
		{name: "not found", err: &APIError{Kind: KindNotFound}, retryable: false},
		{name: "client error", err: &APIError{Kind: KindClientError}, retryable: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, retryable: true},
		{name: "canceled", err: context.Canceled, retryable: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tc.err); got != tc.retryable {
				t.Fatalf("IsRetryable() = %v, want %v", got, tc.retryable)
			}
		})
	}
}
