package authcore

import (
	"context"
	"testing"
	"time"
)

func TestMemorySessionCacheMissIsNotAnError(t *testing.T) {
	cache := NewMemorySessionCache(&movableClock{current: time.Unix(1700000000, 0).UTC()})

	value, found, err := cache.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || value != "" {
		t.Fatalf("expected a clean miss, got %q found=%v", value, found)
	}
}

func TestMemorySessionCacheExpiresEntries(t *testing.T) {
	clock := &movableClock{current: time.Unix(1700000000, 0).UTC()}
	cache := NewMemorySessionCache(clock)

	if err := cache.Set(context.Background(), "user-1", "record", time.Minute); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if _, found, _ := cache.Get(context.Background(), "user-1"); !found {
		t.Fatalf("expected a hit before expiry")
	}

	clock.Advance(2 * time.Minute)
	if _, found, _ := cache.Get(context.Background(), "user-1"); found {
		t.Fatalf("expected the entry to expire")
	}
}

func TestMemorySessionCacheZeroTTLNeverExpires(t *testing.T) {
	clock := &movableClock{current: time.Unix(1700000000, 0).UTC()}
	cache := NewMemorySessionCache(clock)

	if err := cache.Set(context.Background(), "user-1", "record", 0); err != nil {
		t.Fatalf("set error: %v", err)
	}
	clock.Advance(1000 * time.Hour)
	if _, found, _ := cache.Get(context.Background(), "user-1"); !found {
		t.Fatalf("expected the entry to survive without a ttl")
	}
}

func TestMemorySessionCacheDeleteIsIdempotent(t *testing.T) {
	cache := NewMemorySessionCache(nil)

	if err := cache.Set(context.Background(), "user-1", "record", time.Minute); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := cache.Delete(context.Background(), "user-1"); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if err := cache.Delete(context.Background(), "user-1"); err != nil {
		t.Fatalf("second delete error: %v", err)
	}
	if _, found, _ := cache.Get(context.Background(), "user-1"); found {
		t.Fatalf("expected the entry to be gone")
	}
}
