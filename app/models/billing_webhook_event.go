package models

import "time"

// BillingWebhookEvent is one received Stripe delivery. (Provider,
// ProviderEventID) is unique so a redelivered event is stored once.
type BillingWebhookEvent struct {
	ID              uint   `gorm:"primaryKey"`
	Provider        string `gorm:"size:20;not null;uniqueIndex:ux_billing_webhook_events_provider_event,priority:1"`
	ProviderEventID string `gorm:"size:191;not null;default:'';uniqueIndex:ux_billing_webhook_events_provider_event,priority:2"`
	EventType       string `gorm:"size:100;not null;index"`
	PayloadJSON     string `gorm:"type:text;not null"`
	SignatureValid  bool   `gorm:"not null;default:false"`
	ProcessedAt     *time.Time
	ProcessingError string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
}

// Settled reports whether the event was applied without error. Failed events
// are applied again when Stripe redelivers them.
func (e *BillingWebhookEvent) Settled() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
