package ratelimit

import (
	"context"
	"time"
)

// Rule is a fixed-window limit: at most Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the time left until the window resets.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func buildResult(rule Rule, count int, reset time.Time) Result {
	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= rule.Limit,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetAt:   reset,
	}
}
