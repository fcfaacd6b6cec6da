package repository

import (
	"time"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"gorm.io/gorm"
)

// ProfileRepository defines the interface for profile-related database operations
type ProfileRepository interface {
	GetByUserID(userID string) (*models.Profile, error)
	GetOrCreate(userID, email string) (*models.Profile, error)
	// Update writes the user-editable settings only.
	Update(profile *models.Profile) error
	UpdatePlan(userID, plan string) error
	MarkTrialUsed(userID string, at time.Time) error
	SetFirstTouch(userID string, touch *models.AttributionTouch) (bool, error)
	SetLastReminderPeriod(userID, label string) error
	ListReminderCandidates(plans []string) ([]models.Profile, error)
	CountByPlan() (map[string]int64, error)
}

// InvoiceRepository defines the interface for invoice-related database operations
type InvoiceRepository interface {
	CreateNumbered(invoice *models.Invoice, format func(year, seq int) string) error
	GetByID(userID string, id uint) (*models.Invoice, error)
	GetByIDUnscoped(id uint) (*models.Invoice, error)
	ListByUser(userID string, filter InvoiceFilter) ([]models.Invoice, error)
	ReplaceDraft(invoice *models.Invoice) error
	UpdateStatus(invoice *models.Invoice, fields map[string]any) error
	SetArchiveKey(id uint, key string) error
	MarkOverdue(today time.Time) (int64, error)
}

// InvoiceFilter narrows invoice listings; zero values are ignored.
type InvoiceFilter struct {
	Year   int
	Status string
}

// RevenueRecordRepository defines the interface for revenue declarations
type RevenueRecordRepository interface {
	GetByKey(userID, period, activity string) (*models.RevenueRecord, error)
	GetByID(userID string, id uint) (*models.RevenueRecord, error)
	Save(record *models.RevenueRecord) error
	Create(record *models.RevenueRecord) error
	ListByYear(userID string, year int) ([]models.RevenueRecord, error)
	CreateWithinQuota(record *models.RevenueRecord, month string, limit int) error
	CreatedInMonth(userID, month string) (int64, error)
	Delete(userID string, id uint) error
}

// AttributionRepository defines the interface for marketing attribution data
type AttributionRepository interface {
	CreateTouch(touch *models.AttributionTouch) error
	LinkVisitor(visitorID, userID string) (int64, error)
	FirstTouch(visitorID string) (*models.AttributionTouch, error)
	FirstTouchForUser(userID string) (*models.AttributionTouch, error)
	CreateConversion(conversion *models.Conversion) (bool, error)
	HasConversion(userID string) (bool, error)
	ConversionReport(since time.Time) ([]SourceReport, error)
	TouchReport(since time.Time) ([]SourceReport, error)
}

// SourceReport aggregates attribution data per marketing source.
type SourceReport struct {
	Source       string `json:"source"`
	Visitors     int64  `json:"visitors,omitempty"`
	Conversions  int64  `json:"conversions,omitempty"`
	RevenueCents int64  `json:"revenue_cents,omitempty"`
}

// Repositories struct holds all repository instances
type Repositories struct {
	Profile     ProfileRepository
	Invoice     InvoiceRepository
	Record      RevenueRecordRepository
	Attribution AttributionRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Profile:     NewProfileRepository(db),
		Invoice:     NewInvoiceRepository(db),
		Record:      NewRevenueRecordRepository(db),
		Attribution: NewAttributionRepository(db),
	}
}
