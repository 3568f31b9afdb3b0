package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const rateLimitKeyPrefix = "ratelimit:"

// RedisRateLimiter keeps the fixed window counter in Redis so replicas share it.
type RedisRateLimiter struct {
	client *redis.Client
	rate   int
	window time.Duration
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, requestsPerWindow int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		rate:   requestsPerWindow,
		window: window,
		now:    time.Now,
	}
}

func (rl *RedisRateLimiter) Backend() string { return "redis" }

func (rl *RedisRateLimiter) Take(ctx context.Context, key string) (Decision, error) {
	windowStart := rl.now().Truncate(rl.window)
	resetAt := windowStart.Add(rl.window)
	redisKey := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, key, windowStart.Unix())

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireAt(ctx, redisKey, resetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit increment: %w", err)
	}

	count := int(incr.Val())
	d := Decision{
		Allowed: count <= rl.rate,
		Limit:   rl.rate,
		ResetAt: resetAt,
	}
	if d.Allowed {
		d.Remaining = rl.rate - count
	}
	return d, nil
}
