package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/ratelimit"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/usercontext"
)

// RateLimit applies a limiter keyed by the user id, or the client IP for
// anonymous callers. name labels the rejection metric.
func RateLimit(limiter ratelimit.Limiter, name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		if uid := usercontext.GetUserID(c); uid != "" {
			key = "user:" + uid
		}
		res, err := limiter.Allow(c.UserContext(), key)
		if err != nil {
			log.Warnf("[RateLimit] %s limiter failed, allowing: %v", name, err)
			return c.Next()
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			metrics.RateLimited.WithLabelValues(name).Inc()
			retry := int(res.RetryAfter(time.Now()).Seconds()) + 1
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate_limited",
				"message":     "Too many requests, please retry later",
				"retry_after": retry,
			})
		}
		return c.Next()
	}
}
