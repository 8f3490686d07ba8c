package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// RateLimiter implements domain.RateLimiter with a fixed window counter.
// Each window is a key "ratelimit:{key}:{windowStart}" that expires on its
// own, so no cleanup pass is needed.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying()}
}

// Allow reports whether another action under key fits in the current
// window. The counter is incremented before the check, so a denied call
// still consumes nothing beyond the bookkeeping slot.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	windowStart := time.Now().UnixNano() / int64(window)
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, windowStart)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}

	return incr.Val() <= int64(limit), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
