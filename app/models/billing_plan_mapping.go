package models

import "time"

// BillingPlanMapping says which plan a Stripe price grants. Mappings stored
// with the unknown interval match any billing interval.
type BillingPlanMapping struct {
	ID              uint   `gorm:"primaryKey"`
	Provider        string `gorm:"size:20;not null;uniqueIndex:ux_billing_plan_mappings_ref,priority:1"`
	ProviderPlanRef string `gorm:"size:191;not null;uniqueIndex:ux_billing_plan_mappings_ref,priority:2"`
	BillingInterval string `gorm:"size:16;not null;default:'unknown';uniqueIndex:ux_billing_plan_mappings_ref,priority:3"`
	InternalPlan    string `gorm:"size:50;not null;default:'free';index"`
	IsActive        bool   `gorm:"not null;default:true;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
