package models

import "time"

// RevenueRecord is the revenue declared by a user for one period and activity,
// together with the contributions computed for it.
type RevenueRecord struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             string    `gorm:"type:varchar(64);not null;index:ux_revenue_records_user_period_activity,unique,priority:1" json:"user_id"`
	Period             string    `gorm:"type:varchar(7);not null;index:ux_revenue_records_user_period_activity,unique,priority:2" json:"period"`
	Activity           string    `gorm:"type:varchar(20);not null;index:ux_revenue_records_user_period_activity,unique,priority:3" json:"activity"`
	RevenueCents       int64     `gorm:"not null;default:0" json:"revenue_cents"`
	ContributionsCents int64     `gorm:"not null;default:0" json:"contributions_cents"`
	CFPCents           int64     `gorm:"column:cfp_cents;not null;default:0" json:"cfp_cents"`
	IncomeTaxCents     int64     `gorm:"not null;default:0" json:"income_tax_cents"`
	InvoiceID          *uint     `gorm:"index" json:"invoice_id,omitempty"`
	Note               string    `gorm:"type:varchar(255);default:''" json:"note"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NetCents is the revenue left after contributions, CFP and income-tax prepayment.
func (r *RevenueRecord) NetCents() int64 {
	return r.RevenueCents - r.ContributionsCents - r.CFPCents - r.IncomeTaxCents
}

// RecordUsage counts the revenue records a user created in a calendar month.
// Deleting a record does not give the slot back.
type RecordUsage struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_record_usages_user_month,priority:1"`
	Month     string    `gorm:"type:varchar(7);not null;uniqueIndex:ux_record_usages_user_month,priority:2"`
	Created   int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
