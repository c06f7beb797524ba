package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"slipcheck/internal/receipt/models"
)

const redisScanCount = 200

// RedisStore persists results in Redis with TTL-based eviction, so several service
// replicas share one cache.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// Compile-time check that RedisStore satisfies Store.
var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed result cache.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Get loads a cached result.
//
// Errors: returns ErrNotFound on a miss; wraps Redis or JSON decode errors.
func (s *RedisStore) Get(ctx context.Context, key string) (*models.VerifyResult, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find receipt cache: %w", err)
	}

	var result models.VerifyResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode receipt cache: %w", err)
	}
	return &result, nil
}

// Set writes a successful result with TTL eviction, overwriting any existing entry.
func (s *RedisStore) Set(ctx context.Context, key string, value models.VerifyResult, ttl time.Duration) error {
	if !value.Success {
		return ErrNotCacheable
	}
	if err := value.Validate(); err != nil {
		return fmt.Errorf("cache result: %w", err)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode receipt cache: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save receipt cache: %w", err)
	}
	return nil
}

// Has reports whether key exists; Redis drops expired keys itself.
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check receipt cache: %w", err)
	}
	return n > 0, nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete receipt cache: %w", err)
	}
	return nil
}

// DeletePattern removes matching keys using SCAN so large keyspaces never block Redis.
func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	batch := make([]string, 0, redisScanCount)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanCount {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("delete receipt cache pattern: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan receipt cache: %w", err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("delete receipt cache pattern: %w", err)
	}
	return removed, nil
}

// Sweep is a no-op: Redis evicts expired keys on its own.
func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
