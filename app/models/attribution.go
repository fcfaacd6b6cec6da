package models

import "time"

const (
	TouchEventPageView = "page_view"
	TouchEventSignup   = "signup"
	TouchEventCheckout = "checkout"
)

// AttributionTouch is one tracked marketing visit.
type AttributionTouch struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	VisitorID   string    `gorm:"type:varchar(64);not null;index" json:"visitor_id"`
	UserID      string    `gorm:"type:varchar(64);default:'';index" json:"user_id,omitempty"`
	Source      string    `gorm:"type:varchar(100);default:'';index" json:"source"`
	Medium      string    `gorm:"type:varchar(100);default:''" json:"medium"`
	Campaign    string    `gorm:"type:varchar(150);default:''" json:"campaign"`
	Term        string    `gorm:"type:varchar(150);default:''" json:"term"`
	Content     string    `gorm:"type:varchar(150);default:''" json:"content"`
	Referrer    string    `gorm:"type:varchar(500);default:''" json:"referrer"`
	LandingPath string    `gorm:"type:varchar(500);default:''" json:"landing_path"`
	Event       string    `gorm:"type:varchar(32);not null;default:'page_view'" json:"event"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// Conversion is a paid subscription attributed to a marketing source.
type Conversion struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Plan            string    `gorm:"type:varchar(50);not null" json:"plan"`
	AmountCents     int64     `gorm:"not null;default:0" json:"amount_cents"`
	Currency        string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Source          string    `gorm:"type:varchar(100);default:'';index" json:"source"`
	Medium          string    `gorm:"type:varchar(100);default:''" json:"medium"`
	Campaign        string    `gorm:"type:varchar(150);default:''" json:"campaign"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_event_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
