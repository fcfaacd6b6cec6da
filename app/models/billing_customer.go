package models

import "time"

// BillingProviderStripe is the only payment provider wired today. The column
// stays so that stored rows remain unambiguous.
const BillingProviderStripe = "stripe"

// BillingCustomer links a Supabase user to their Stripe customer. Each side of
// the link is unique.
type BillingCustomer struct {
	ID                 uint   `gorm:"primaryKey"`
	UserID             string `gorm:"size:64;not null;uniqueIndex:ux_billing_customers_user_provider,priority:1"`
	Provider           string `gorm:"size:20;not null;uniqueIndex:ux_billing_customers_user_provider,priority:2;uniqueIndex:ux_billing_customers_provider_customer,priority:1"`
	ProviderCustomerID string `gorm:"size:191;not null;uniqueIndex:ux_billing_customers_provider_customer,priority:2"`
	Email              string `gorm:"size:200;not null;default:''"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
