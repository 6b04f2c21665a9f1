package authcore

import (
	"context"
	"sync"
	"time"
)

// SessionCache is the key-value contract for session records, keyed by user
// id. Get returns ("", false, nil) for a missing or expired key; absence
// means "not logged in", never "token invalid".
type SessionCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemorySessionCache is an in-process SessionCache for tests and local runs.
type MemorySessionCache struct {
	mutex   sync.Mutex
	entries map[string]memoryCacheEntry
	clock   Clock
}

type memoryCacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemorySessionCache constructs an empty in-memory cache.
func NewMemorySessionCache(clock Clock) *MemorySessionCache {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemorySessionCache{entries: make(map[string]memoryCacheEntry), clock: clock}
}

// Get returns the value for key when present and unexpired.
func (cache *MemorySessionCache) Get(ctx context.Context, key string) (string, bool, error) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	entry, ok := cache.entries[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && cache.clock.Now().After(entry.expiresAt) {
		delete(cache.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key; a non-positive ttl stores it without expiry.
func (cache *MemorySessionCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	entry := memoryCacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = cache.clock.Now().Add(ttl)
	}
	cache.entries[key] = entry
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (cache *MemorySessionCache) Delete(ctx context.Context, key string) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	delete(cache.entries, key)
	return nil
}
