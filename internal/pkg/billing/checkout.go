package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
)

// StartCheckout creates a Stripe Checkout session for a paid plan. The trial
// is offered only to users who never started one.
func (s *Service) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if s.gateway == nil {
		return nil, ErrNoGateway
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrMissingUser
	}
	priceID, err := s.catalog.PriceID(req.Plan, req.Interval)
	if err != nil {
		return nil, err
	}

	profile, err := s.repo.Profile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	trialDays := 0
	if profile.TrialAvailable() {
		trialDays = entitlements.TrialDays
	}

	customerID, err := s.ensureCustomer(ctx, req.UserID, req.Email)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{"plan": normalizePlan(req.Plan)}
	for k, v := range req.Attribution {
		if v = strings.TrimSpace(v); v != "" {
			metadata[k] = v
		}
	}

	id, url, err := s.gateway.CreateCheckoutSession(ctx, CheckoutSessionParams{
		CustomerID: customerID,
		Email:      req.Email,
		UserID:     req.UserID,
		PriceID:    priceID,
		TrialDays:  trialDays,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	log.Infof("[Billing] checkout %s started for %s (%s, trial %dd)", id, req.UserID, priceID, trialDays)
	return &CheckoutResult{SessionID: id, URL: url, TrialDays: trialDays}, nil
}

func (s *Service) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	existing, err := s.CustomerOf(ctx, models.BillingProviderStripe, userID)
	if err == nil {
		return existing.ProviderCustomerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	id, err := s.gateway.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if _, err := s.LinkCustomer(ctx, userID, models.BillingProviderStripe, id, email); err != nil {
		return "", err
	}
	return id, nil
}

// OpenPortal returns a Stripe billing portal URL for the user.
func (s *Service) OpenPortal(ctx context.Context, userID, returnURL string) (string, error) {
	if s.gateway == nil {
		return "", ErrNoGateway
	}
	customer, err := s.CustomerOf(ctx, models.BillingProviderStripe, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoCustomer
		}
		return "", err
	}
	return s.gateway.CreatePortalSession(ctx, customer.ProviderCustomerID, returnURL)
}

// SetCancelAtPeriodEnd toggles cancellation of the user's current subscription
// and syncs the provider's answer immediately.
func (s *Service) SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) (*SubscriptionView, error) {
	if s.gateway == nil {
		return nil, ErrNoGateway
	}
	subs, err := s.repo.UserSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := pickCurrent(subs, s.now())
	if current == nil || !current.Entitles(s.now()) {
		return nil, ErrNoSubscription
	}
	updated, err := s.gateway.SetCancelAtPeriodEnd(ctx, current.ProviderSubscriptionID, cancel)
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	norm := NormalizeStripeSubscription(updated, nil)
	norm.UserID = userID
	norm.RawPayloadJSON = current.RawPayloadJSON
	if _, _, err := s.SyncSubscription(ctx, norm); err != nil {
		return nil, err
	}
	return s.Subscription(ctx, userID)
}
