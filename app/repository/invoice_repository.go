package repository

import (
	"time"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// CreateNumbered allocates the next number of the issue year and inserts the
// invoice with its lines in the same transaction. The sequence row is locked so
// concurrent creations never share a number.
func (r *invoiceRepository) CreateNumbered(invoice *models.Invoice, format func(year, seq int) string) error {
	year := invoice.IssueDate.Year()
	return r.db.Transaction(func(tx *gorm.DB) error {
		seed := models.InvoiceSequence{UserID: invoice.UserID, Year: year}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		var seq models.InvoiceSequence
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND year = ?", invoice.UserID, year).
			First(&seq).Error; err != nil {
			return err
		}
		next := seq.LastNumber + 1
		if err := tx.Model(&models.InvoiceSequence{}).Where("id = ?", seq.ID).Update("last_number", next).Error; err != nil {
			return err
		}
		invoice.Number = format(year, next)
		return tx.Create(invoice).Error
	})
}

// GetByID retrieves an invoice owned by the user, lines included
func (r *invoiceRepository) GetByID(userID string, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).
		First(&inv, id).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetByIDUnscoped retrieves an invoice regardless of owner, for jobs and signed links
func (r *invoiceRepository) GetByIDUnscoped(id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&inv, id).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListByUser lists a user's invoices, newest first
func (r *invoiceRepository) ListByUser(userID string, filter InvoiceFilter) ([]models.Invoice, error) {
	q := r.db.Where("user_id = ?", userID)
	if filter.Year > 0 {
		from := time.Date(filter.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		q = q.Where("issue_date >= ? AND issue_date < ?", from, from.AddDate(1, 0, 0))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var out []models.Invoice
	err := q.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("issue_date DESC, id DESC").
		Find(&out).Error
	return out, err
}

// ReplaceDraft overwrites a draft invoice and its lines
func (r *invoiceRepository) ReplaceDraft(invoice *models.Invoice) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceLine{}).Error; err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(invoice).Error; err != nil {
			return err
		}
		if len(invoice.Lines) == 0 {
			return nil
		}
		for i := range invoice.Lines {
			invoice.Lines[i].ID = 0
			invoice.Lines[i].InvoiceID = invoice.ID
		}
		return tx.Create(&invoice.Lines).Error
	})
}

// UpdateStatus applies a partial update to the invoice row
func (r *invoiceRepository) UpdateStatus(invoice *models.Invoice, fields map[string]any) error {
	return r.db.Model(invoice).Omit(clause.Associations).Updates(fields).Error
}

// SetArchiveKey records where the rendered invoice was archived
func (r *invoiceRepository) SetArchiveKey(id uint, key string) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).Update("archive_key", key).Error
}

// MarkOverdue flags sent invoices whose due date is before today
func (r *invoiceRepository) MarkOverdue(today time.Time) (int64, error) {
	res := r.db.Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", models.InvoiceStatusSent, today).
		Update("status", models.InvoiceStatusOverdue)
	return res.RowsAffected, res.Error
}
