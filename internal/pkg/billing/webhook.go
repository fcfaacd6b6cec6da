package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
)

// Notifier sends billing emails. Implementations usually enqueue jobs.
type Notifier interface {
	TrialEnding(ctx context.Context, userID, email string, trialEnd time.Time) error
	PaymentFailed(ctx context.Context, userID, email string, amountCents int64, currency, invoiceURL string) error
}

// ConversionRecorder attributes a paid invoice to the user's marketing source.
type ConversionRecorder interface {
	RecordConversion(ctx context.Context, userID, plan string, amountCents int64, currency, providerEventID string) error
}

// WebhookOutcome tells the HTTP layer what happened to an event.
type WebhookOutcome struct {
	EventID   string
	EventType string
	Duplicate bool
	Ignored   bool
	UserID    string
	Plan      string
}

// WebhookProcessor verifies, persists and applies Stripe webhook events.
type WebhookProcessor struct {
	svc         *Service
	secret      string
	notifier    Notifier
	conversions ConversionRecorder
}

func NewWebhookProcessor(svc *Service, secret string, notifier Notifier, conversions ConversionRecorder) *WebhookProcessor {
	return &WebhookProcessor{svc: svc, secret: secret, notifier: notifier, conversions: conversions}
}

// Handle processes one delivery. ErrInvalidSignature means the payload was not
// signed with the endpoint secret; any other error should be answered with a
// 5xx so that Stripe retries.
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warnf("[Billing] stripe webhook signature rejected: %v", err)
		if _, _, recErr := p.svc.RecordWebhookEvent(ctx, WebhookEventInput{
			Provider:       models.BillingProviderStripe,
			EventType:      "invalid_signature",
			PayloadJSON:    string(payload),
			SignatureValid: false,
		}); recErr != nil {
			log.Errorf("[Billing] failed to store rejected webhook: %v", recErr)
		}
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		return nil, ErrInvalidSignature
	}

	out := &WebhookOutcome{EventID: event.ID, EventType: string(event.Type)}
	created, stored, err := p.svc.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	// a stored event that failed earlier is processed again on redelivery
	if !created && stored.Settled() {
		out.Duplicate = true
		metrics.WebhookEvents.WithLabelValues(out.EventType, "duplicate").Inc()
		return out, nil
	}

	procErr := p.dispatch(ctx, &event, out)
	if markErr := p.svc.FinishWebhookEvent(ctx, stored.ID, procErr); markErr != nil {
		log.Errorf("[Billing] failed to mark webhook %s processed: %v", event.ID, markErr)
	}
	switch {
	case procErr != nil:
		metrics.WebhookEvents.WithLabelValues(out.EventType, "error").Inc()
		log.Errorf("[Billing] webhook %s (%s) failed: %v", event.ID, event.Type, procErr)
		return out, procErr
	case out.Ignored:
		metrics.WebhookEvents.WithLabelValues(out.EventType, "ignored").Inc()
	default:
		metrics.WebhookEvents.WithLabelValues(out.EventType, "processed").Inc()
	}
	return out, nil
}

func (p *WebhookProcessor) dispatch(ctx context.Context, event *stripe.Event, out *WebhookOutcome) error {
	switch string(event.Type) {
	case EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, event, out)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return p.handleSubscriptionChange(ctx, event, out)
	case EventTrialWillEnd:
		return p.handleTrialWillEnd(ctx, event, out)
	case EventInvoicePaid:
		return p.handleInvoicePaid(ctx, event, out)
	case EventInvoicePaymentFailed:
		return p.handleInvoiceFailed(ctx, event, out)
	default:
		out.Ignored = true
		return nil
	}
}

func (p *WebhookProcessor) handleCheckoutCompleted(ctx context.Context, event *stripe.Event, out *WebhookOutcome) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	userID := cs.ClientReferenceID
	if userID == "" {
		userID = metadataUserID(cs.Metadata)
	}
	if userID == "" {
		out.Ignored = true
		return nil
	}
	out.UserID = userID

	email := cs.CustomerEmail
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		email = cs.CustomerDetails.Email
	}
	if cid := customerID(cs.Customer); cid != "" {
		if _, err := p.svc.LinkCustomer(ctx, userID, models.BillingProviderStripe, cid, email); err != nil {
			return err
		}
	}
	if cs.Subscription == nil || cs.Subscription.ID == "" {
		out.Ignored = true
		return nil
	}

	sub := cs.Subscription
	raw := []byte(nil)
	if p.svc.gateway != nil {
		fetched, err := p.svc.gateway.GetSubscription(ctx, cs.Subscription.ID)
		if err != nil {
			return fmt.Errorf("fetch subscription %s: %w", cs.Subscription.ID, err)
		}
		sub = fetched
		raw, _ = json.Marshal(fetched)
	}
	if sub.Customer == nil && cs.Customer != nil {
		sub.Customer = cs.Customer
	}
	return p.syncStripeSubscription(ctx, userID, sub, raw, false, out)
}

func (p *WebhookProcessor) handleSubscriptionChange(ctx context.Context, event *stripe.Event, out *WebhookOutcome) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	userID, err := p.resolveUser(ctx, customerID(sub.Customer), sub.Metadata)
	if err != nil {
		return err
	}
	if userID == "" {
		out.Ignored = true
		return nil
	}
	out.UserID = userID
	return p.syncStripeSubscription(ctx, userID, &sub, event.Data.Raw, string(event.Type) == EventSubscriptionDeleted, out)
}

func (p *WebhookProcessor) syncStripeSubscription(ctx context.Context, userID string, sub *stripe.Subscription, raw []byte, deleted bool, out *WebhookOutcome) error {
	norm := NormalizeStripeSubscription(sub, raw)
	norm.UserID = userID
	if deleted {
		norm.Status = models.BillingStatusCanceled
	}
	if norm.Status == models.BillingStatusTrialing || norm.TrialEnd != nil {
		if err := p.svc.repo.MarkTrialUsed(ctx, userID, p.svc.now()); err != nil {
			return fmt.Errorf("mark trial used: %w", err)
		}
	}
	_, plan, err := p.svc.SyncSubscription(ctx, norm)
	if err != nil {
		return err
	}
	out.Plan = plan
	return nil
}

func (p *WebhookProcessor) handleTrialWillEnd(ctx context.Context, event *stripe.Event, out *WebhookOutcome) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	userID, err := p.resolveUser(ctx, customerID(sub.Customer), sub.Metadata)
	if err != nil {
		return err
	}
	if userID == "" || p.notifier == nil {
		out.Ignored = true
		return nil
	}
	out.UserID = userID
	profile, err := p.svc.repo.Profile(ctx, userID)
	if err != nil {
		return err
	}
	trialEnd := p.svc.now()
	if t := unixPtr(sub.TrialEnd); t != nil {
		trialEnd = *t
	}
	return p.notifier.TrialEnding(ctx, userID, profile.Email, trialEnd)
}

func (p *WebhookProcessor) handleInvoicePaid(ctx context.Context, event *stripe.Event, out *WebhookOutcome) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	userID, err := p.resolveUser(ctx, customerID(inv.Customer), invoiceMetadata(&inv))
	if err != nil {
		return err
	}
	if userID == "" || inv.AmountPaid <= 0 || p.conversions == nil {
		out.Ignored = true
		return nil
	}
	out.UserID = userID

	plan := ""
	if price, interval := invoicePrice(&inv); price != "" {
		plan, _ = p.svc.ResolveMappedPlan(ctx, models.BillingProviderStripe, price, interval)
	}
	if plan == "" {
		profile, err := p.svc.repo.Profile(ctx, userID)
		if err != nil {
			return err
		}
		plan = profile.Plan
	}
	out.Plan = plan
	return p.conversions.RecordConversion(ctx, userID, plan, inv.AmountPaid, string(inv.Currency), event.ID)
}

func (p *WebhookProcessor) handleInvoiceFailed(ctx context.Context, event *stripe.Event, out *WebhookOutcome) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	userID, err := p.resolveUser(ctx, customerID(inv.Customer), invoiceMetadata(&inv))
	if err != nil {
		return err
	}
	if userID == "" || p.notifier == nil {
		out.Ignored = true
		return nil
	}
	out.UserID = userID
	email := inv.CustomerEmail
	if email == "" {
		profile, err := p.svc.repo.Profile(ctx, userID)
		if err != nil {
			return err
		}
		email = profile.Email
	}
	return p.notifier.PaymentFailed(ctx, userID, email, inv.AmountDue, string(inv.Currency), inv.HostedInvoiceURL)
}

// resolveUser finds the local user of a Stripe object: the customer link
// first, then a user_id metadata entry. An empty result is not an error.
func (p *WebhookProcessor) resolveUser(ctx context.Context, stripeCustomerID string, metadata map[string]string) (string, error) {
	if stripeCustomerID != "" {
		c, err := p.svc.repo.CustomerByProviderID(ctx, models.BillingProviderStripe, stripeCustomerID)
		if err == nil {
			return c.UserID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}
	return metadataUserID(metadata), nil
}

func invoiceMetadata(inv *stripe.Invoice) map[string]string {
	if inv.Subscription != nil && len(inv.Subscription.Metadata) > 0 {
		return inv.Subscription.Metadata
	}
	return inv.Metadata
}

func invoicePrice(inv *stripe.Invoice) (string, string) {
	if inv.Lines == nil {
		return "", models.BillingIntervalUnknown
	}
	for _, line := range inv.Lines.Data {
		if line == nil || line.Price == nil {
			continue
		}
		interval := models.BillingIntervalUnknown
		if line.Price.Recurring != nil {
			interval = normalizeInterval(string(line.Price.Recurring.Interval))
		}
		return line.Price.ID, interval
	}
	return "", models.BillingIntervalUnknown
}
