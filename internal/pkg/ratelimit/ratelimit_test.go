package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Limit: 2, Window: time.Minute})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	r, err := l.Allow(ctx, "ip:1")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, 1, r.Remaining)

	r, _ = l.Allow(ctx, "ip:1")
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)

	r, _ = l.Allow(ctx, "ip:1")
	assert.False(t, r.Allowed)
	assert.Equal(t, time.Minute, r.RetryAfter(now))

	// another key has its own budget
	r, _ = l.Allow(ctx, "ip:2")
	assert.True(t, r.Allowed)

	now = now.Add(time.Minute)
	r, _ = l.Allow(ctx, "ip:1")
	assert.True(t, r.Allowed)
}

func TestMemoryLimiterSweep(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Limit: 5, Window: time.Minute})
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	_, _ = l.Allow(context.Background(), "b")
	assert.Equal(t, 0, l.Sweep())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, l.Sweep())
	assert.Equal(t, 0, l.Len())
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	now := time.Date(2025, 3, 1, 10, 0, 30, 0, time.UTC)
	l := NewRedisLimiter(client, "rl:test", Rule{Limit: 3, Window: time.Hour})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, r.Allowed)
		assert.Equal(t, 2-i, r.Remaining)
	}
	r, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC), r.ResetAt)

	key := "rl:test:user-1:" + "1740823200"
	assert.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.True(t, ttl > 0 && ttl <= time.Hour)
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	l := NewRedisLimiter(client, "rl:test", Rule{Limit: 1, Window: time.Minute})

	mr.Close()
	r, err := l.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}
