package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestLookupCache_RoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer client.Close()

	cache, err := NewLookupCache(client, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := cache.Get(context.Background(), "456789"); ok {
		t.Fatal("expected miss for uncached bin")
	}

	payload := []byte(`{"bank_name":"Test Bank"}`)
	cache.Set(context.Background(), "456789", payload)

	got, ok := cache.Get(context.Background(), "456789")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %s, want %s", got, payload)
	}
}

func TestLookupCache_EntriesExpire(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer client.Close()

	cache, err := NewLookupCache(client, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.Set(context.Background(), "123456", []byte(`{}`))
	srv.FastForward(2 * time.Minute)

	if _, ok := cache.Get(context.Background(), "123456"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
}

func TestLookupCache_UnavailableRedisNeverBlocks(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer client.Close()

	cache, err := NewLookupCache(client, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	srv.Close()

	if _, ok := cache.Get(context.Background(), "456789"); ok {
		t.Fatal("expected miss when redis is down")
	}
	// Set must be best-effort and not panic.
	cache.Set(context.Background(), "456789", []byte(`{}`))
}
