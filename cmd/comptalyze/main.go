package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/aarontmr/comptalyze-sub003/app/controllers"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/assistant"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/attribution"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/billing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/cache"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/invoicing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/jobqueue"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/mail"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/middleware"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/ratelimit"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/records"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/router"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/s3backup"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/scheduler"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/security"
	"github.com/aarontmr/comptalyze-sub003/views"
)

func main() {
	app, background := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("[Main] Shutting down")
		background.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("[Main] Shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

// Background holds the workers started next to the HTTP server.
type Background struct {
	jobs      *jobqueue.Manager
	scheduler *scheduler.Scheduler
}

func (b *Background) Stop() {
	if b.scheduler != nil {
		b.scheduler.Stop()
	}
	if b.jobs != nil {
		b.jobs.Stop()
	}
}

func NewApplication() (*fiber.App, *Background) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/comptalyze to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	ctx := context.Background()
	publicURL := env.GetEnv("PUBLIC_URL", "http://localhost:4000")
	db := database.GetDB()
	repos := repository.Shared()
	engine := html.NewFileSystem(http.FS(views.FS), ".html")

	cipher, err := security.NewFieldCipherFromEnv()
	if err != nil {
		log.Warnf("[Main] IBAN encryption disabled: %v", err)
	}

	// background jobs
	manager := jobqueue.GetManager()
	queue := manager.GetQueue()
	if mailer, err := mail.NewMailerFromEnv(); err != nil {
		log.Warnf("[Main] Email delivery disabled: %v", err)
	} else {
		queue.RegisterMailHandler(mailer)
	}

	// services
	recs := records.NewService(repos.Record, repos.Profile)
	attr := attribution.NewService(repos.Attribution, repos.Profile)

	linkSecret, err := security.LinkSecretFromEnv()
	if err != nil {
		log.Warnf("[Main] Invoice links disabled: %v", err)
	}
	invoiceOpts := []invoicing.Option{
		invoicing.WithViews(engine),
		invoicing.WithJobs(queue),
		invoicing.WithRevenueRecorder(recs),
		invoicing.WithLinks(invoicing.LinkConfig{
			PublicURL: publicURL,
			Secret:    linkSecret,
			TTL:       env.GetEnvDuration("INVOICE_LINK_TTL", 60*24*time.Hour),
		}),
	}
	if cipher != nil {
		invoiceOpts = append(invoiceOpts, invoicing.WithCipher(cipher))
	}
	archive, err := s3backup.NewClientFromEnv(ctx)
	switch {
	case err != nil:
		log.Warnf("[Main] Invoice archive disabled: %v", err)
	case archive != nil:
		invoiceOpts = append(invoiceOpts, invoicing.WithArchive(archive, archive.Config().InvoiceObjectKey))
	}
	invoices := invoicing.NewService(repos.Invoice, repos.Profile, invoiceOpts...)
	if archive != nil {
		queue.RegisterArchiveHandler(invoices)
	}

	billingOpts := []billing.Option{
		billing.WithCatalog(billing.NewCatalogFromEnv()),
		billing.WithPlanChangeHook(func(userID, plan string) {
			cache.InvalidatePlan(context.Background(), userID)
			log.Infof("[Billing] Plan of %s is now %s", userID, plan)
		}),
	}
	if gateway := billing.NewStripeGatewayFromEnv(); gateway != nil {
		billingOpts = append(billingOpts, billing.WithGateway(gateway))
	} else {
		log.Warn("[Main] STRIPE_SECRET_KEY not set, checkout disabled")
	}
	bill := billing.NewServiceFromDB(db, billingOpts...)

	var webhooks *billing.WebhookProcessor
	if secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", ""); secret != "" {
		webhooks = billing.NewWebhookProcessor(bill, secret, jobqueue.NewBillingNotifier(queue, publicURL), attr)
	} else {
		log.Warn("[Main] STRIPE_WEBHOOK_SECRET not set, webhooks disabled")
	}

	var ask *assistant.Service
	if completer := assistant.NewOpenAICompleterFromEnv(); completer != nil {
		limiter := ratelimit.NewRedisLimiter(cache.GetClient(), "assistant", assistant.DailyRule())
		ask = assistant.NewService(completer, limiter)
	}

	manager.Start()
	sched := scheduler.New(bill, invoices, scheduler.NewReminders(repos.Profile, repos.Record, queue, publicURL))
	if err := sched.Register(scheduler.DefaultSchedules()); err != nil {
		panic(fmt.Errorf("register schedules: %w", err))
	}
	sched.Start()

	ctrl := controllers.New(controllers.Dependencies{
		Repos:         repos,
		Billing:       bill,
		Webhooks:      webhooks,
		Invoices:      invoices,
		Records:       recs,
		Attribution:   attr,
		Assistant:     ask,
		Cipher:        cipher,
		Queue:         queue,
		PublicURL:     publicURL,
		SecureCookies: !env.IsDev(),
	})

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:        engine,
		BodyLimit:    1 << 20,
		ErrorHandler: errorHandler,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	limiterStorage, err := cache.NewFiberStorage(cache.LimiterDatabase)
	if err != nil {
		log.Warnf("[Main] API limiter falls back to memory: %v", err)
	}
	router.InstallRouter(app, router.Config{
		Controllers:     ctrl,
		Auth:            middleware.NewAuthConfigFromEnv(repos.Profile),
		TrackLimiter:    ratelimit.NewRedisLimiter(cache.GetClient(), "track", router.DefaultTrackRule),
		LimiterStorage:  limiterStorage,
		APIMaxPerMinute: env.GetEnvInt("API_MAX_PER_MINUTE", 120),
		MetricsUser:     env.GetEnv("METRICS_USER", ""),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
	})

	return app, &Background{jobs: manager, scheduler: sched}
}

// errorHandler keeps the JSON error shape of the API for errors raised by
// Fiber itself, such as unknown routes or bad path parameters.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Unexpected error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_"),
		"message": message,
	})
}
