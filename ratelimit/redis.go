package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counter is the subset of the Redis client used by the limiter.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Redis is a fixed-window limiter shared by every instance using the same Redis.
// It needs Redis 7 or later for EXPIRE NX. Windows are whole seconds.
type Redis struct {
	client counter
	prefix string
	limit  int
	window time.Duration
}

// NewRedis creates a Redis-backed limiter allowing limit requests per window.
func NewRedis(client counter, limit int, w time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: "ratelimit:",
		limit:  limit,
		window: w,
	}
}

// Allow increments the caller's counter for the current window.
// The TTL is set with NX on every call so a key whose first EXPIRE failed
// still expires.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := r.prefix + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", k, err)
	}
	if err := r.client.ExpireNX(ctx, k, r.window).Err(); err != nil {
		return false, fmt.Errorf("expire %s: %w", k, err)
	}
	return n <= int64(r.limit), nil
}
