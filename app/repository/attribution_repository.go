package repository

import (
	"errors"
	"time"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// attributionRepository implements the AttributionRepository interface
type attributionRepository struct {
	db *gorm.DB
}

// NewAttributionRepository creates a new attribution repository instance
func NewAttributionRepository(db *gorm.DB) AttributionRepository {
	return &attributionRepository{db: db}
}

func (r *attributionRepository) CreateTouch(touch *models.AttributionTouch) error {
	return r.db.Create(touch).Error
}

// LinkVisitor assigns anonymous touches of a visitor to a user
func (r *attributionRepository) LinkVisitor(visitorID, userID string) (int64, error) {
	res := r.db.Model(&models.AttributionTouch{}).
		Where("visitor_id = ? AND (user_id = '' OR user_id IS NULL)", visitorID).
		Update("user_id", userID)
	return res.RowsAffected, res.Error
}

// FirstTouch returns the earliest touch of a visitor that carries a source
func (r *attributionRepository) FirstTouch(visitorID string) (*models.AttributionTouch, error) {
	return r.first(r.db.Where("visitor_id = ?", visitorID))
}

// FirstTouchForUser returns the earliest sourced touch linked to a user
func (r *attributionRepository) FirstTouchForUser(userID string) (*models.AttributionTouch, error) {
	return r.first(r.db.Where("user_id = ?", userID))
}

func (r *attributionRepository) first(q *gorm.DB) (*models.AttributionTouch, error) {
	var t models.AttributionTouch
	err := q.Where("source <> ''").Order("created_at ASC, id ASC").First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateConversion inserts the conversion once per provider event
func (r *attributionRepository) CreateConversion(conversion *models.Conversion) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(conversion)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *attributionRepository) HasConversion(userID string) (bool, error) {
	var c models.Conversion
	err := r.db.Where("user_id = ?", userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ConversionReport sums conversions and revenue per source since a date
func (r *attributionRepository) ConversionReport(since time.Time) ([]SourceReport, error) {
	var out []SourceReport
	err := r.db.Model(&models.Conversion{}).
		Select("source, COUNT(*) AS conversions, COALESCE(SUM(amount_cents), 0) AS revenue_cents").
		Where("created_at >= ?", since).
		Group("source").
		Order("revenue_cents DESC").
		Scan(&out).Error
	return out, err
}

// TouchReport counts distinct visitors per source since a date
func (r *attributionRepository) TouchReport(since time.Time) ([]SourceReport, error) {
	var out []SourceReport
	err := r.db.Model(&models.AttributionTouch{}).
		Select("source, COUNT(DISTINCT visitor_id) AS visitors").
		Where("created_at >= ?", since).
		Group("source").
		Order("visitors DESC").
		Scan(&out).Error
	return out, err
}
