package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const window = time.Minute

// RedisLimiter counts requests per key in fixed one-minute windows shared by all instances
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	now    func() time.Time
}

// NewRedisLimiter allows perMinute+burst requests per key per window
func NewRedisLimiter(client *redis.Client, prefix string, perMinute, burst int) *RedisLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst < 0 {
		burst = 0
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(perMinute + burst),
		now:    time.Now,
	}
}

// Allow increments the key's counter for the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().Unix() / int64(window/time.Second)
	windowKey := fmt.Sprintf("%sratelimit:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit pipeline: %w", err)
	}

	return incr.Val() <= l.limit, nil
}
