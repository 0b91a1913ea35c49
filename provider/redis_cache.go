package provider

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenStore implements TokenStore on Redis so token reuse survives
// process restarts and is shared across replicas. Expiry is delegated to
// Redis key TTLs.
type RedisTokenStore struct {
	client *redis.Client

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisTokenStore creates a token store backed by the Redis instance at
// addr
func NewRedisTokenStore(addr, password string, db int) *RedisTokenStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTokenStore{client: rdb}
}

// NewRedisTokenStoreFromClient wraps an existing Redis client
func NewRedisTokenStoreFromClient(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// Ping verifies connectivity to the Redis instance
func (s *RedisTokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get retrieves a live token. Redis handles expiry, so a missing key means
// absent or expired.
func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		s.misses.Add(1)
		return "", false, nil
	}
	if err != nil {
		s.misses.Add(1)
		return "", false, fmt.Errorf("redis GET error: %w", err)
	}

	s.hits.Add(1)
	return value, true, nil
}

// Set stores a token with the given TTL
func (s *RedisTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	if err := s.client.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET error: %w", err)
	}
	return nil
}

// Delete removes a token
func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL error: %w", err)
	}
	return nil
}

// Clear removes all stored tokens. Token keys share the "token:" prefix,
// so only those are scanned and removed.
func (s *RedisTokenStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, "token:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis DEL error: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis SCAN error: %w", err)
	}
	return nil
}

// Stats returns hit/miss counters. Sizing and eviction live inside Redis,
// so those fields stay zero here.
func (s *RedisTokenStore) Stats() CacheStats {
	hits := s.hits.Load()
	misses := s.misses.Load()

	totalRequests := hits + misses
	hitRatio := 0.0
	if totalRequests > 0 {
		hitRatio = float64(hits) / float64(totalRequests)
	}

	return CacheStats{
		Hits:     hits,
		Misses:   misses,
		HitRatio: hitRatio,
	}
}

// Close releases the underlying Redis connection
func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}
