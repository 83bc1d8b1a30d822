package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPollInterval = 100 * time.Millisecond

// RedisLimiter shares the per-host interval across every worker process
// pointed at the same Redis, so parallel job runners do not multiply the
// request rate a vendor sees.
type RedisLimiter struct {
	client      *redis.Client
	prefix      string
	minInterval time.Duration
}

// NewRedis creates a distributed limiter
func NewRedis(client *redis.Client, prefix string, minInterval time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisLimiter{client: client, prefix: prefix, minInterval: minInterval}
}

// Allow claims the host slot if no other process holds it. Redis errors fail
// open.
func (l *RedisLimiter) Allow(host string) bool {
	if l.minInterval <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := l.client.SetNX(ctx, l.prefix+host, 1, l.minInterval).Result()
	if err != nil {
		return true
	}
	return ok
}

// WaitContext polls until the host slot can be claimed
func (l *RedisLimiter) WaitContext(ctx context.Context, host string) error {
	for {
		if l.Allow(host) {
			return nil
		}
		timer := time.NewTimer(redisPollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

var _ RateLimiter = (*RedisLimiter)(nil)
