package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/aarontmr/comptalyze-sub003/internal/api/v1"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/middleware"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/ratelimit"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/usercontext"
)

// DefaultTrackRule bounds anonymous tracking calls per client.
var DefaultTrackRule = ratelimit.Rule{Limit: 60, Window: time.Minute}

type ApiRouter struct {
	cfg Config
}

func (h ApiRouter) limiterConfig() limiter.Config {
	maxPerMinute := h.cfg.APIMaxPerMinute
	if maxPerMinute <= 0 {
		maxPerMinute = 120
	}
	return limiter.Config{
		Max:        maxPerMinute,
		Expiration: time.Minute,
		Storage:    h.cfg.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if uid := usercontext.GetUserID(c); uid != "" {
				return "user:" + uid
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			metrics.RateLimited.WithLabelValues("api").Inc()
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", middleware.Authenticate(h.cfg.Auth), limiter.New(h.limiterConfig()))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")

	v1.Use("/track", middleware.RateLimit(h.trackLimiter(app), "track"))

	apiServer := apiv1.NewAPIServer(h.cfg.Controllers)
	apiv1.RegisterHandlersWithOptions(v1, apiServer, apiv1.FiberServerOptions{
		RequireUser:  middleware.RequireAuth,
		RequireAdmin: middleware.RequireAdmin,
	})
}

// trackLimiter returns the configured limiter, or an in-memory one whose
// expired buckets are swept until the app shuts down.
func (h ApiRouter) trackLimiter(app *fiber.App) ratelimit.Limiter {
	if h.cfg.TrackLimiter != nil {
		return h.cfg.TrackLimiter
	}
	mem := ratelimit.NewMemoryLimiter(DefaultTrackRule)
	ctx, cancel := context.WithCancel(context.Background())
	mem.StartSweeper(ctx, DefaultTrackRule.Window)
	app.Hooks().OnShutdown(func() error {
		cancel()
		return nil
	})
	return mem
}

func NewApiRouter(cfg Config) *ApiRouter {
	return &ApiRouter{cfg: cfg}
}
