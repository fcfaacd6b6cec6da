package repository

import (
	"errors"
	"fmt"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaReached is returned when the month's record allowance is used up.
var ErrQuotaReached = errors.New("record quota reached")

// revenueRecordRepository implements the RevenueRecordRepository interface
type revenueRecordRepository struct {
	db *gorm.DB
}

// NewRevenueRecordRepository creates a new revenue record repository instance
func NewRevenueRecordRepository(db *gorm.DB) RevenueRecordRepository {
	return &revenueRecordRepository{db: db}
}

func (r *revenueRecordRepository) GetByKey(userID, period, activity string) (*models.RevenueRecord, error) {
	var rec models.RevenueRecord
	err := r.db.Where("user_id = ? AND period = ? AND activity = ?", userID, period, activity).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *revenueRecordRepository) GetByID(userID string, id uint) (*models.RevenueRecord, error) {
	var rec models.RevenueRecord
	if err := r.db.Where("user_id = ?", userID).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *revenueRecordRepository) Save(record *models.RevenueRecord) error {
	return r.db.Save(record).Error
}

func (r *revenueRecordRepository) Create(record *models.RevenueRecord) error {
	return r.db.Create(record).Error
}

// ListByYear returns the records whose period falls in year, oldest first
func (r *revenueRecordRepository) ListByYear(userID string, year int) ([]models.RevenueRecord, error) {
	var out []models.RevenueRecord
	err := r.db.Where("user_id = ? AND period LIKE ?", userID, fmt.Sprintf("%04d-%%", year)).
		Order("period ASC, activity ASC").
		Find(&out).Error
	return out, err
}

// CreateWithinQuota inserts the record and counts it against the user's
// allowance for month in one transaction. A negative limit means no limit.
func (r *revenueRecordRepository) CreateWithinQuota(record *models.RevenueRecord, month string, limit int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		usage := models.RecordUsage{UserID: record.UserID, Month: month}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&usage).Error; err != nil {
			return err
		}
		q := tx.Model(&models.RecordUsage{}).Where("user_id = ? AND month = ?", record.UserID, month)
		if limit >= 0 {
			q = q.Where("created < ?", limit)
		}
		res := q.Update("created", gorm.Expr("created + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQuotaReached
		}
		return tx.Create(record).Error
	})
}

// CreatedInMonth returns how many records the user created in month,
// deleted ones included
func (r *revenueRecordRepository) CreatedInMonth(userID, month string) (int64, error) {
	var usage models.RecordUsage
	err := r.db.Where("user_id = ? AND month = ?", userID, month).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return usage.Created, err
}

func (r *revenueRecordRepository) Delete(userID string, id uint) error {
	res := r.db.Where("user_id = ?", userID).Delete(&models.RevenueRecord{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
