package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aarontmr/comptalyze-sub003/app/controllers"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/middleware"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/ratelimit"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Config carries what the routers need besides the controllers. Nil limiters
// and storage fall back to in-memory variants.
type Config struct {
	Controllers     *controllers.Controllers
	Auth            middleware.AuthConfig
	TrackLimiter    ratelimit.Limiter
	LimiterStorage  fiber.Storage
	APIMaxPerMinute int
	MetricsUser     string
	MetricsPassword string
}

func InstallRouter(app *fiber.App, cfg Config) {
	// HttpRouter first: webhooks and public invoice links must not pass
	// through the API limiter.
	setup(app, NewHttpRouter(cfg), NewApiRouter(cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
