package counter

import (
	"context"
	"strconv"
	"time"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/cache"
)

// Usage kinds tracked per day in Redis hashes for the admin dashboard.
const (
	KindSimulations = "simulations"
	KindAssistant   = "assistant"
	KindTouches     = "touches"
	KindSignups     = "signups"
)

const dayLayout = "2006-01-02"

func key(kind string) string {
	return "usage:counters:" + kind
}

// Add increments today's counter of a usage kind. Without Redis it is a no-op.
func Add(ctx context.Context, kind string) error {
	rdb := cache.Current()
	if rdb == nil {
		return nil
	}
	return rdb.HIncrBy(ctx, key(kind), time.Now().UTC().Format(dayLayout), 1).Err()
}

// DailyPoint is the count of one day.
type DailyPoint struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// Daily returns the counts of the last n days ending at until, oldest first.
// Missing days are reported as zero.
func Daily(ctx context.Context, kind string, until time.Time, n int) ([]DailyPoint, error) {
	out := make([]DailyPoint, 0, n)
	fields := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		fields = append(fields, until.UTC().AddDate(0, 0, -i).Format(dayLayout))
	}
	rdb := cache.Current()
	if rdb == nil {
		for _, f := range fields {
			out = append(out, DailyPoint{Day: f})
		}
		return out, nil
	}
	vals, err := rdb.HMGet(ctx, key(kind), fields...).Result()
	if err != nil {
		return nil, err
	}
	for i, f := range fields {
		p := DailyPoint{Day: f}
		if s, ok := vals[i].(string); ok {
			p.Count, _ = strconv.ParseInt(s, 10, 64)
		}
		out = append(out, p)
	}
	return out, nil
}

// Total sums the counts of the points.
func Total(points []DailyPoint) int64 {
	var sum int64
	for _, p := range points {
		sum += p.Count
	}
	return sum
}
