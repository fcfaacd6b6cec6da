package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// GetDB returns the shared connection, nil before SetupDatabase ran.
func GetDB() *gorm.DB {
	return DB
}

// SetDB replaces the shared connection (tests, CLI).
func SetDB(db *gorm.DB) {
	DB = db
}

// Driver returns the configured SQL dialect: "postgres" (Supabase) or "mysql".
func Driver() string {
	d := strings.ToLower(strings.TrimSpace(env.GetEnv("DB_DRIVER", "postgres")))
	if d != "mysql" {
		return "postgres"
	}
	return d
}

// DSN builds the connection string for the configured driver. DATABASE_URL wins
// for postgres since Supabase hands out a full connection URI.
func DSN() string {
	if Driver() == "mysql" {
		// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)
	}
	if url := strings.TrimSpace(env.GetEnv("DATABASE_URL", "")); url != "" {
		return url
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_USER", "postgres"),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_NAME", "postgres"),
		env.GetEnv("DB_PORT", "5432"),
		env.GetEnv("DB_SSLMODE", "require"),
	)
}

func open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{}
	if !env.IsDev() {
		cfg.Logger = logger.Default.LogMode(logger.Warn)
	}
	if Driver() == "mysql" {
		return gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		}), cfg)
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN: dsn,
		// Supabase's pooler runs in transaction mode.
		PreferSimpleProtocol: true,
	}), cfg)
}

func SetupDatabase() {
	var err error
	dsn := DSN()

	for i := 0; i < maxRetries; i++ {
		DB, err = open(dsn)
		if err == nil {
			if env.IsDev() || env.GetEnvBool("DB_AUTO_MIGRATE", false) {
				if mErr := AutoMigrate(DB); mErr != nil {
					log.Errorf("[Database] auto-migrate failed: %v", mErr)
				}
			}
			if sqlDB, sErr := DB.DB(); sErr == nil {
				sqlDB.SetMaxOpenConns(env.GetEnvInt("DB_MAX_OPEN_CONNS", 20))
				sqlDB.SetMaxIdleConns(env.GetEnvInt("DB_MAX_IDLE_CONNS", 5))
				sqlDB.SetConnMaxLifetime(30 * time.Minute)
			}
			log.Infof("[Database] connected (%s)", Driver())
			return
		}

		log.Errorf("[Database] failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Profile{},
		&models.BillingCustomer{},
		&models.BillingPlanMapping{},
		&models.BillingSubscription{},
		&models.BillingWebhookEvent{},
		&models.Invoice{},
		&models.InvoiceLine{},
		&models.InvoiceSequence{},
		&models.RevenueRecord{},
		&models.RecordUsage{},
		&models.AttributionTouch{},
		&models.Conversion{},
	)
}
