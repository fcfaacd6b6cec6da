// Package cache owns the shared Redis connection. The job queue, the rate
// limiters, the usage counters and the plan cache below all use it.
package cache

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

var client *redis.Client

// PlanTTL bounds how long a plan change made outside the billing webhook
// (manual SQL, another instance) can go unnoticed.
const PlanTTL = 5 * time.Minute

func planKey(userID string) string {
	return "profile:plan:" + userID
}

// Options reads CACHE_HOST, CACHE_PORT and CACHE_PASSWORD.
func Options() *redis.Options {
	return &redis.Options{
		Addr:     net.JoinHostPort(env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
	}
}

// SetupCache connects the shared client. An unreachable server is logged, not
// fatal: go-redis reconnects on the next command.
func SetupCache() {
	client = redis.NewClient(Options())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("[Cache] redis at %s unreachable: %v", client.Options().Addr, err)
		return
	}
	log.Infof("[Cache] connected to redis at %s", client.Options().Addr)
}

// SetClient swaps the shared client, used by tests with miniredis.
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the shared client, connecting on first use.
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Current returns the shared client without connecting; nil when Redis was
// never set up.
func Current() *redis.Client {
	return client
}

// CachedPlan returns the cached plan of a user, "" on a miss or without Redis.
func CachedPlan(ctx context.Context, userID string) string {
	if client == nil {
		return ""
	}
	plan, err := client.Get(ctx, planKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Debugf("[Cache] plan lookup for %s: %v", userID, err)
	}
	return plan
}

// CachePlan remembers the effective plan of a user for PlanTTL.
func CachePlan(ctx context.Context, userID, plan string) {
	if client == nil {
		return
	}
	if err := client.Set(ctx, planKey(userID), plan, PlanTTL).Err(); err != nil {
		log.Debugf("[Cache] caching plan for %s: %v", userID, err)
	}
}

// InvalidatePlan drops the cached plan after a billing change.
func InvalidatePlan(ctx context.Context, userID string) {
	if client == nil {
		return
	}
	if err := client.Del(ctx, planKey(userID)).Err(); err != nil {
		log.Debugf("[Cache] invalidating plan for %s: %v", userID, err)
	}
}
