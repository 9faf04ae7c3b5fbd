package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with a fixed-window counter per principal,
// shared across gateway instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Allow implements Store. The window key carries the window start, so a
// new window begins with a fresh counter and the old one expires on its
// own.
func (s *RedisStore) Allow(ctx context.Context, principal string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		return Result{Allowed: false, RetryAfter: window}, nil
	}

	windowStart := time.Now().Truncate(window)
	key := fmt.Sprintf("warden:rl:%s:%d", principal, windowStart.Unix())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("redis rate limit failed: %w", err)
	}

	count := incr.Val()
	if count > int64(limit) {
		return Result{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: time.Until(windowStart.Add(window)),
		}, nil
	}
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int(count),
	}, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }
