package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
)

// PlanChangeFunc is called after a user's effective plan was rewritten.
type PlanChangeFunc func(userID, plan string)

// Service keeps the local subscription mirror and profile plans in line with
// Stripe. It also drives checkout and the billing portal through a Gateway.
type Service struct {
	repo         Repository
	gateway      Gateway
	catalog      *Catalog
	onPlanChange PlanChangeFunc
	now          func() time.Time
}

type Option func(*Service)

func WithGateway(g Gateway) Option {
	return func(s *Service) { s.gateway = g }
}

func WithCatalog(c *Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithPlanChangeHook(fn PlanChangeFunc) Option {
	return func(s *Service) { s.onPlanChange = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, catalog: NewCatalog(nil), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB wires the GORM repository.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

func provider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// required returns an error naming the first empty field. Fields come in
// name, value pairs.
func required(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return fmt.Errorf("%s is required", fields[i])
		}
	}
	return nil
}

// LinkCustomer records that a provider customer belongs to userID.
func (s *Service) LinkCustomer(ctx context.Context, userID, prov, customerID, email string) (*models.BillingCustomer, error) {
	if err := required("user_id", userID, "provider", prov, "provider_customer_id", customerID); err != nil {
		return nil, err
	}
	c := &models.BillingCustomer{
		UserID:             strings.TrimSpace(userID),
		Provider:           provider(prov),
		ProviderCustomerID: strings.TrimSpace(customerID),
		Email:              strings.TrimSpace(email),
	}
	if err := s.repo.SaveCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("save customer: %w", err)
	}
	return c, nil
}

// CustomerOf returns the user's customer link for a provider.
func (s *Service) CustomerOf(ctx context.Context, prov, userID string) (*models.BillingCustomer, error) {
	return s.repo.CustomerByUser(ctx, provider(prov), userID)
}

// ResolveMappedPlan maps a provider price to an internal plan. A mapping for
// the exact interval wins over one stored with the unknown interval. When
// nothing matches the free plan is returned with gorm.ErrRecordNotFound.
func (s *Service) ResolveMappedPlan(ctx context.Context, prov, priceRef, interval string) (string, error) {
	free := string(entitlements.PlanFree)
	if err := required("provider", prov, "price", priceRef); err != nil {
		return free, err
	}
	for _, i := range []string{normalizeInterval(interval), models.BillingIntervalUnknown} {
		m, err := s.repo.PlanMapping(ctx, provider(prov), strings.TrimSpace(priceRef), i)
		switch {
		case err == nil:
			return normalizePlan(m.InternalPlan), nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return "", err
		}
	}
	return free, gorm.ErrRecordNotFound
}

// SeedPlanMappings stores mappings and reports how many were written. Rows
// without provider or price are skipped. Seeding twice changes nothing.
func (s *Service) SeedPlanMappings(ctx context.Context, mappings []models.BillingPlanMapping) (int, error) {
	written := 0
	for _, m := range mappings {
		m.Provider = provider(m.Provider)
		m.ProviderPlanRef = strings.TrimSpace(m.ProviderPlanRef)
		if m.Provider == "" || m.ProviderPlanRef == "" {
			continue
		}
		m.InternalPlan = normalizePlan(m.InternalPlan)
		m.BillingInterval = normalizeInterval(m.BillingInterval)
		if err := s.repo.SavePlanMapping(ctx, &m); err != nil {
			return written, fmt.Errorf("save mapping %s: %w", m.ProviderPlanRef, err)
		}
		written++
	}
	return written, nil
}

// SyncSubscription mirrors one provider subscription and then recomputes the
// owner's plan, which it returns.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) (*models.BillingSubscription, string, error) {
	if err := required("user_id", in.UserID, "provider", in.Provider, "provider_subscription_id", in.ProviderSubscriptionID); err != nil {
		return nil, "", err
	}
	prov := provider(in.Provider)
	interval := normalizeInterval(in.BillingInterval)
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		status = models.BillingStatusActive
	}
	price := strings.TrimSpace(in.ProviderPlanRef)

	plan := string(entitlements.PlanFree)
	if price != "" {
		mapped, err := s.ResolveMappedPlan(ctx, prov, price, interval)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Warnf("[Billing] no plan mapping for %s price %s (%s)", prov, price, interval)
		case err != nil:
			return nil, "", err
		default:
			plan = mapped
		}
	}

	sub := &models.BillingSubscription{
		UserID:                 in.UserID,
		Provider:               prov,
		ProviderSubscriptionID: strings.TrimSpace(in.ProviderSubscriptionID),
		ProviderCustomerID:     strings.TrimSpace(in.ProviderCustomerID),
		ProviderPlanRef:        price,
		InternalPlan:           plan,
		BillingInterval:        interval,
		Status:                 status,
		CurrentPeriodStart:     in.CurrentPeriodStart,
		CurrentPeriodEnd:       in.CurrentPeriodEnd,
		TrialEnd:               in.TrialEnd,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		RawPayloadJSON:         in.RawPayloadJSON,
	}
	if err := s.repo.SaveSubscription(ctx, sub); err != nil {
		return nil, "", fmt.Errorf("save subscription: %w", err)
	}

	effective, err := s.ReconcileUserPlan(ctx, in.UserID)
	if err != nil {
		return sub, "", err
	}
	return sub, effective, nil
}

// ReconcileUserPlan writes the highest plan granted by any entitling
// subscription into the profile, free when none entitles.
func (s *Service) ReconcileUserPlan(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingUser
	}
	subs, err := s.repo.UserSubscriptions(ctx, userID)
	if err != nil {
		return "", err
	}
	best := string(entitlements.PlanFree)
	if sub := bestEntitling(subs, s.now()); sub != nil {
		best = normalizePlan(sub.InternalPlan)
	}

	profile, err := s.repo.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.Plan == best {
		return best, nil
	}
	if err := s.repo.SetProfilePlan(ctx, userID, best); err != nil {
		return "", err
	}
	log.Infof("[Billing] plan of %s changed %s -> %s", userID, profile.Plan, best)
	metrics.PlanChanges.WithLabelValues(best).Inc()
	if s.onPlanChange != nil {
		s.onPlanChange(userID, best)
	}
	return best, nil
}

// ListExpiredTrials returns users whose trial ended before now while their
// profile still holds a paid plan.
func (s *Service) ListExpiredTrials(ctx context.Context, now time.Time) ([]string, error) {
	return s.repo.UsersWithElapsedTrials(ctx, now)
}

// ReconcileExpiredTrials downgrades users whose trial elapsed without a
// follow-up event from Stripe. Failures are logged and skipped.
func (s *Service) ReconcileExpiredTrials(ctx context.Context) (int, error) {
	ids, err := s.ListExpiredTrials(ctx, s.now())
	if err != nil {
		return 0, err
	}
	done := 0
	for _, id := range ids {
		if _, err := s.ReconcileUserPlan(ctx, id); err != nil {
			log.Errorf("[Billing] reconcile expired trial for %s failed: %v", id, err)
			continue
		}
		done++
	}
	return done, nil
}

// ReconcileAll recomputes the plan of every user that ever subscribed and
// stops at the first failure.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.repo.SubscribedUsers(ctx)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if _, err := s.ReconcileUserPlan(ctx, id); err != nil {
			return i, fmt.Errorf("reconcile %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// RecordWebhookEvent stores a delivery once per provider event id. Deliveries
// without an id are keyed by the hash of their payload.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	if err := required("provider", in.Provider); err != nil {
		return false, nil, err
	}
	id := strings.TrimSpace(in.ProviderEventID)
	if id == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		id = "hash:" + hex.EncodeToString(sum[:])
	}
	return s.repo.InsertWebhookEvent(ctx, &models.BillingWebhookEvent{
		Provider:        provider(in.Provider),
		ProviderEventID: id,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	})
}

// FinishWebhookEvent stamps the event as processed, keeping procErr if any.
func (s *Service) FinishWebhookEvent(ctx context.Context, eventID uint, procErr error) error {
	if eventID == 0 {
		return errors.New("webhook event id is required")
	}
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	return s.repo.FinishWebhookEvent(ctx, eventID, msg)
}

// Subscription summarizes the subscription that currently matters to the user.
func (s *Service) Subscription(ctx context.Context, userID string) (*SubscriptionView, error) {
	profile, err := s.repo.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	subs, err := s.repo.UserSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &SubscriptionView{
		Plan:           normalizePlan(profile.Plan),
		Status:         "none",
		TrialAvailable: profile.TrialAvailable(),
	}
	if sub := pickCurrent(subs, s.now()); sub != nil {
		view.Status = sub.Status
		view.Interval = sub.BillingInterval
		view.TrialEnd = sub.TrialEnd
		view.CurrentPeriodEnd = sub.CurrentPeriodEnd
		view.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	}
	return view, nil
}

func bestEntitling(subs []models.BillingSubscription, now time.Time) *models.BillingSubscription {
	var best *models.BillingSubscription
	for i := range subs {
		if !subs[i].Entitles(now) {
			continue
		}
		if best == nil || planRank(subs[i].InternalPlan) > planRank(best.InternalPlan) {
			best = &subs[i]
		}
	}
	return best
}

// pickCurrent prefers the best entitling subscription, then the most recent.
func pickCurrent(subs []models.BillingSubscription, now time.Time) *models.BillingSubscription {
	if best := bestEntitling(subs, now); best != nil {
		return best
	}
	if len(subs) > 0 {
		return &subs[0]
	}
	return nil
}
