package billing

import "time"

// NormalizedSubscription is the provider-agnostic shape used by the billing
// service when syncing external subscription state into local tables.
type NormalizedSubscription struct {
	UserID                 string
	Provider               string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderPlanRef        string
	BillingInterval        string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	TrialEnd               *time.Time
	CancelAtPeriodEnd      bool
	RawPayloadJSON         string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// CheckoutRequest describes a subscription purchase started by a user.
// Attribution carries UTM values forwarded to Stripe metadata.
type CheckoutRequest struct {
	UserID      string
	Email       string
	Plan        string
	Interval    string
	SuccessURL  string
	CancelURL   string
	Attribution map[string]string
}

// CheckoutResult is returned to the client, which redirects to URL.
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	TrialDays int    `json:"trial_days"`
}

// SubscriptionView is the subscription summary exposed to the owner.
type SubscriptionView struct {
	Plan              string     `json:"plan"`
	Status            string     `json:"status"`
	Interval          string     `json:"interval"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	TrialAvailable    bool       `json:"trial_available"`
}
