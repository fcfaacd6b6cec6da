package models

import (
	"strings"
	"time"
)

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

const (
	BillingStatusActive     = "active"
	BillingStatusTrialing   = "trialing"
	BillingStatusPastDue    = "past_due"
	BillingStatusCanceled   = "canceled"
	BillingStatusUnpaid     = "unpaid"
	BillingStatusIncomplete = "incomplete"
	BillingStatusExpired    = "expired"
	BillingStatusPaused     = "paused"
)

// BillingSubscription is the local copy of a Stripe subscription together
// with the plan its price maps to. Every delivery overwrites the mutable
// columns, so the row always reflects the last event applied.
type BillingSubscription struct {
	ID                     uint   `gorm:"primaryKey"`
	UserID                 string `gorm:"size:64;not null;index"`
	Provider               string `gorm:"size:20;not null;uniqueIndex:ux_billing_subscriptions_provider_subid,priority:1;index:idx_billing_subscriptions_provider_status,priority:1"`
	ProviderSubscriptionID string `gorm:"size:191;not null;uniqueIndex:ux_billing_subscriptions_provider_subid,priority:2"`
	ProviderCustomerID     string `gorm:"size:191;not null;default:''"`
	ProviderPlanRef        string `gorm:"size:191;not null"`
	InternalPlan           string `gorm:"size:50;not null;default:'free'"`
	BillingInterval        string `gorm:"size:16;not null;default:'unknown'"`
	Status                 string `gorm:"size:32;not null;default:'active';index:idx_billing_subscriptions_provider_status,priority:2"`
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	TrialEnd               *time.Time `gorm:"index"`
	CancelAtPeriodEnd      bool       `gorm:"not null;default:false"`
	RawPayloadJSON         string     `gorm:"type:text" json:"-"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// EntitlingStatus reports whether a subscription in status keeps its plan.
// past_due keeps it while Stripe retries the payment.
func EntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case BillingStatusActive, BillingStatusTrialing, BillingStatusPastDue:
		return true
	default:
		return false
	}
}

// Entitles reports whether the subscription grants its plan at now. A trial
// stops granting once TrialEnd has passed, even before the provider sends the
// follow-up event.
func (s BillingSubscription) Entitles(now time.Time) bool {
	if !EntitlingStatus(s.Status) {
		return false
	}
	trialing := strings.EqualFold(s.Status, BillingStatusTrialing)
	return !(trialing && s.TrialEnd != nil && !s.TrialEnd.After(now))
}
