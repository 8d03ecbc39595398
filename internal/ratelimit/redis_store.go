package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps windowed counters in Redis so limits hold across server
// instances. A key's expiry is set once, when the window opens, so the window
// is fixed rather than sliding.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Increment bumps the counter and reports the remaining window. INCR and PTTL
// are pipelined; a fresh key (PTTL < 0) gets its window expiry in a follow-up
// PEXPIRE.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis increment %s: %w", key, err)
	}

	count := incr.Val()
	remaining := pttl.Val()
	if remaining < 0 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis expire %s: %w", key, err)
		}
		remaining = window
	}

	return count, remaining, nil
}

// Decrement refunds one unit. A key already at zero or expired is left alone.
func (s *RedisStore) Decrement(ctx context.Context, key string) error {
	const script = `
		local v = redis.call("GET", KEYS[1])
		if v and tonumber(v) > 0 then
			return redis.call("DECR", KEYS[1])
		end
		return 0
	`
	if err := s.client.Eval(ctx, script, []string{key}).Err(); err != nil {
		return fmt.Errorf("redis decrement %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
