package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	start time.Time
	count int
}

// MemoryLimiter keeps fixed-window counters in process memory. Expired buckets
// are dropped by Sweep.
type MemoryLimiter struct {
	rule    Rule
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryLimiter(rule Rule) *MemoryLimiter {
	return &MemoryLimiter{
		rule:    rule,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := m.now()
	start := windowStart(now, m.rule.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || !b.start.Equal(start) {
		b = &bucket{start: start}
		m.buckets[key] = b
	}
	b.count++
	return buildResult(m.rule, b.count, start.Add(m.rule.Window)), nil
}

// Sweep removes buckets whose window has ended and returns how many were removed.
func (m *MemoryLimiter) Sweep() int {
	current := windowStart(m.now(), m.rule.Window)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, b := range m.buckets {
		if b.start.Before(current) {
			delete(m.buckets, k)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on every tick until ctx is done.
func (m *MemoryLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Len returns the number of live buckets.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
