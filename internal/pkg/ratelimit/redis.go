package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed-window counters across instances. Redis failures
// let the request through.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	rule   Rule
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, prefix string, rule Rule) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		rule:   rule,
		now:    time.Now,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := r.now()
	start := windowStart(now, r.rule.Window)
	reset := start.Add(r.rule.Window)
	redisKey := fmt.Sprintf("%s:%s:%d", r.prefix, key, start.Unix())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, r.rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[RateLimit] redis unavailable for %s, allowing: %v", r.prefix, err)
		return Result{Allowed: true, Limit: r.rule.Limit, Remaining: r.rule.Limit, ResetAt: reset}, nil
	}
	return buildResult(r.rule, int(incr.Val()), reset), nil
}
