package httpx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared by every replica talking to
// the same redis. Each window admits RequestsPerWindow requests. Burst is
// not used.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration

	// Now is the clock used to pick the window. Tests pin it.
	Now func() time.Time
}

// NewRedisLimiter namespaces its keys under "rl:{name}:" so several profiles
// can share one redis database.
func NewRedisLimiter(client *redis.Client, name string, cfg RateLimitConfig) *RedisLimiter {
	window := cfg.Window
	if window < time.Second {
		window = time.Second
	}
	return &RedisLimiter{
		client: client,
		prefix: "rl:" + name + ":",
		limit:  int64(cfg.RequestsPerWindow),
		window: window,
		Now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.Now()
	secs := int64(l.window / time.Second)
	bucket := now.Unix() / secs
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, bucket)

	n, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("httpx: redis incr: %w", err)
	}
	if n == 1 {
		// One second past the window for clock skew between replicas.
		if err := l.client.Expire(ctx, redisKey, l.window+time.Second).Err(); err != nil {
			return false, 0, fmt.Errorf("httpx: redis expire: %w", err)
		}
	}
	if n > l.limit {
		windowEnd := time.Unix((bucket+1)*secs, 0)
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}
