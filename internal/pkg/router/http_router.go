package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/constants"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
)

type HttpRouter struct {
	cfg Config
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, h.handleHealth)

	// Stripe posts without credentials; the signature is the authentication.
	app.Post(constants.StripeWebhookRoute, h.cfg.Controllers.Webhook.HandleStripeWebhook)

	// Link mailed to invoiced clients
	app.Get(constants.InvoiceViewRoute, h.cfg.Controllers.Invoices.HandlePublicView)

	if h.cfg.MetricsUser != "" && h.cfg.MetricsPassword != "" {
		auth := basicauth.New(basicauth.Config{
			Users: map[string]string{h.cfg.MetricsUser: h.cfg.MetricsPassword},
		})
		app.Get(constants.MetricsRoute, auth, adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
		app.Get(constants.MonitorRoute, auth, monitor.New(monitor.Config{Title: "Comptalyze"}))
	}
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down", "database": "not configured"})
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.UserContext())
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down", "database": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func NewHttpRouter(cfg Config) *HttpRouter {
	return &HttpRouter{cfg: cfg}
}
