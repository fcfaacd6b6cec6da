package billing

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/aarontmr/comptalyze-sub003/app/models"
)

// Stripe event types handled by the webhook processor.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventTrialWillEnd         = "customer.subscription.trial_will_end"
	EventInvoicePaid          = "invoice.payment_succeeded"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

// subscriptionPrice returns the price ID and interval of the first item.
func subscriptionPrice(sub *stripe.Subscription) (string, string) {
	if sub == nil || sub.Items == nil {
		return "", models.BillingIntervalUnknown
	}
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		interval := models.BillingIntervalUnknown
		if item.Price.Recurring != nil {
			interval = normalizeInterval(string(item.Price.Recurring.Interval))
		}
		return item.Price.ID, interval
	}
	return "", models.BillingIntervalUnknown
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// NormalizeStripeSubscription converts a Stripe subscription into the shape
// accepted by SyncSubscription. UserID is left for the caller to resolve.
func NormalizeStripeSubscription(sub *stripe.Subscription, raw []byte) NormalizedSubscription {
	price, interval := subscriptionPrice(sub)
	return NormalizedSubscription{
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     customerID(sub.Customer),
		ProviderPlanRef:        price,
		BillingInterval:        interval,
		Status:                 MapStripeStatus(string(sub.Status)),
		CurrentPeriodStart:     unixPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixPtr(sub.CurrentPeriodEnd),
		TrialEnd:               unixPtr(sub.TrialEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		RawPayloadJSON:         string(raw),
	}
}

func metadataUserID(md map[string]string) string {
	if md == nil {
		return ""
	}
	return strings.TrimSpace(md["user_id"])
}
