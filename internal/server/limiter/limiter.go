// Package limiter throttles password reset requests with a Redis fixed
// window counter per identifier.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("limiter: redis unavailable")

const keyPrefix = "wk:reset:"

// ResetLimiter allows at most limit requests per identifier in each window.
// The window starts with the first request and is not sliding.
type ResetLimiter struct {
	redis  redis.UniversalClient
	limit  int
	window time.Duration
}

func NewResetLimiter(client redis.UniversalClient, limit int, window time.Duration) *ResetLimiter {
	return &ResetLimiter{redis: client, limit: limit, window: window}
}

// Allow counts one request for identifier and reports whether it fits in the
// current window. Redis failures return ErrRedisUnavailable and the caller
// decides whether to fail open.
func (l *ResetLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := keyPrefix + identifier

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count <= int64(l.limit), nil
}

// NewRedisClient opens a client for addr and checks it with PING.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return client, nil
}
