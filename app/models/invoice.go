package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Invoice is a customer invoice issued by a user. Amounts are stored in cents.
type Invoice struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        string          `gorm:"type:varchar(64);not null;index:idx_invoices_user_status,priority:1;index:ux_invoices_user_number,unique,priority:1" json:"user_id"`
	Number        string          `gorm:"type:varchar(20);not null;index:ux_invoices_user_number,unique,priority:2" json:"number"`
	Status        string          `gorm:"type:varchar(16);not null;default:'draft';index:idx_invoices_user_status,priority:2" json:"status"`
	ClientName    string          `gorm:"type:varchar(200);not null" json:"client_name"`
	ClientEmail   string          `gorm:"type:varchar(200);default:''" json:"client_email"`
	ClientAddress string          `gorm:"type:text" json:"client_address"`
	IssueDate     time.Time       `gorm:"type:date;not null;index" json:"issue_date"`
	DueDate       time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	Currency      string          `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Activity      string          `gorm:"type:varchar(20);default:'services_bic'" json:"activity"`
	Lines         []InvoiceLine   `gorm:"constraint:OnDelete:CASCADE" json:"lines"`
	SubtotalCents int64           `gorm:"not null;default:0" json:"subtotal_cents"`
	VATRate       decimal.Decimal `gorm:"column:vat_rate;type:numeric(5,2);not null;default:0" json:"vat_rate"`
	VATCents      int64           `gorm:"column:vat_cents;not null;default:0" json:"vat_cents"`
	TotalCents    int64           `gorm:"not null;default:0" json:"total_cents"`
	VATMention    string          `gorm:"column:vat_mention;type:varchar(100);default:''" json:"vat_mention"`
	Notes         string          `gorm:"type:text" json:"notes"`
	SentAt        *time.Time      `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	PaidAt        *time.Time      `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	RecordedAt    *time.Time      `gorm:"column:revenue_recorded_at;type:timestamp;default:null" json:"revenue_recorded_at,omitempty"`
	ArchiveKey    string          `gorm:"type:varchar(255);default:''" json:"archive_key"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// InvoiceLine is one billed item of an invoice.
type InvoiceLine struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	InvoiceID      uint            `gorm:"not null;index" json:"invoice_id"`
	Position       int             `gorm:"not null;default:0" json:"position"`
	Description    string          `gorm:"type:varchar(500);not null" json:"description"`
	Quantity       decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	UnitPriceCents int64           `gorm:"not null" json:"unit_price_cents"`
	TotalCents     int64           `gorm:"not null" json:"total_cents"`
}

// InvoiceSequence keeps the last allocated invoice number per user and year.
type InvoiceSequence struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"type:varchar(64);not null;index:ux_invoice_sequences_user_year,unique,priority:1" json:"user_id"`
	Year       int       `gorm:"not null;index:ux_invoice_sequences_user_year,unique,priority:2" json:"year"`
	LastNumber int       `gorm:"not null;default:0" json:"last_number"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEditable reports whether the invoice can still be modified.
func (i *Invoice) IsEditable() bool {
	return i.Status == InvoiceStatusDraft
}

// IsOpen reports whether the invoice is awaiting payment.
func (i *Invoice) IsOpen() bool {
	return i.Status == InvoiceStatusSent || i.Status == InvoiceStatusOverdue
}
