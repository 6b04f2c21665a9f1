package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Omianju/LMS/internal/authcore"
)

// RedisCache is the production SessionCache backed by a shared Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ authcore.SessionCache = (*RedisCache)(nil)

// New connects to Redis and verifies the connection with a short ping.
func New(ctx context.Context, addr string, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		return nil, fmt.Errorf("session_cache.connect: %w", pingErr)
	}
	return &RedisCache{client: client, prefix: "session:"}, nil
}

// Get retrieves the value for key; a missing key is not an error.
func (cache *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, getErr := cache.client.Get(ctx, cache.prefix+key).Result()
	if errors.Is(getErr, redis.Nil) {
		return "", false, nil
	}
	if getErr != nil {
		return "", false, fmt.Errorf("session_cache.get: %w", getErr)
	}
	return value, true, nil
}

// Set stores value under key; a non-positive ttl stores it without expiry.
func (cache *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if setErr := cache.client.Set(ctx, cache.prefix+key, value, ttl).Err(); setErr != nil {
		return fmt.Errorf("session_cache.set: %w", setErr)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (cache *RedisCache) Delete(ctx context.Context, key string) error {
	if delErr := cache.client.Del(ctx, cache.prefix+key).Err(); delErr != nil {
		return fmt.Errorf("session_cache.delete: %w", delErr)
	}
	return nil
}

// Close releases the underlying connection pool.
func (cache *RedisCache) Close() error {
	return cache.client.Close()
}
