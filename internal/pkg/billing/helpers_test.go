package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database/dbtest"
)

const testWebhookSecret = "whsec_test"

type fakeGateway struct {
	mu            sync.Mutex
	customerCount int
	sessions      []CheckoutSessionParams
	subs          map[string]*stripe.Subscription
	getErr        error
	cancelCalls   []bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{subs: map[string]*stripe.Subscription{}}
}

func (g *fakeGateway) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customerCount++
	return fmt.Sprintf("cus_%s_%d", userID, g.customerCount), nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p CheckoutSessionParams) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append(g.sessions, p)
	id := fmt.Sprintf("cs_test_%d", len(g.sessions))
	return id, "https://checkout.stripe.test/" + id, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://billing.stripe.test/" + customerID, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	sub, ok := g.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

func (g *fakeGateway) SetCancelAtPeriodEnd(_ context.Context, id string, cancel bool) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls = append(g.cancelCalls, cancel)
	sub, ok := g.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	sub.CancelAtPeriodEnd = cancel
	return sub, nil
}

func testCatalog() *Catalog {
	return NewCatalog(map[string]string{
		"pro:month":     "price_pro_m",
		"pro:year":      "price_pro_y",
		"premium:month": "price_premium_m",
	})
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db      *gorm.DB
	svc     *Service
	gateway *fakeGateway
	clock   *clock
	changes map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.Open(t)
	env := &testEnv{
		db:      db,
		gateway: newFakeGateway(),
		clock:   &clock{now: time.Now().UTC().Truncate(time.Second)},
		changes: map[string]string{},
	}
	env.svc = NewServiceFromDB(db,
		WithGateway(env.gateway),
		WithCatalog(testCatalog()),
		WithClock(env.clock.Now),
		WithPlanChangeHook(func(userID, plan string) { env.changes[userID] = plan }),
	)
	_, err := env.svc.SeedPlanMappings(context.Background(), testCatalog().Mappings())
	require.NoError(t, err)
	return env
}

func (e *testEnv) profile(t *testing.T, userID string) *models.Profile {
	t.Helper()
	var p models.Profile
	require.NoError(t, e.db.Where("user_id = ?", userID).First(&p).Error)
	return &p
}

func stripeSub(id, customer, price, status string, trialEnd int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Customer: &stripe.Customer{ID: customer},
		Status:   stripe.SubscriptionStatus(status),
		TrialEnd: trialEnd,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			ID:    "si_" + id,
			Price: &stripe.Price{ID: price, Recurring: &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth}},
		}}},
	}
}

func subscriptionObject(id, customer, price, status string, trialEnd int64, metadata map[string]string) map[string]any {
	now := time.Now().Unix()
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"customer":             customer,
		"status":               status,
		"current_period_start": now,
		"current_period_end":   now + 30*24*3600,
		"trial_end":            trialEnd,
		"cancel_at_period_end": false,
		"metadata":             metadata,
		"items": map[string]any{
			"object": "list",
			"data": []any{map[string]any{
				"id":     "si_" + id,
				"object": "subscription_item",
				"price": map[string]any{
					"id":        price,
					"object":    "price",
					"recurring": map[string]any{"interval": "month"},
				},
			}},
		},
	}
}

func eventPayload(t *testing.T, id, typ string, obj map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": obj},
	})
	require.NoError(t, err)
	return b
}

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeNotifier struct {
	trialEnding   []string
	paymentFailed []string
	amounts       []int64
}

func (n *fakeNotifier) TrialEnding(_ context.Context, userID, email string, _ time.Time) error {
	n.trialEnding = append(n.trialEnding, userID+"|"+email)
	return nil
}

func (n *fakeNotifier) PaymentFailed(_ context.Context, userID, email string, amountCents int64, _, _ string) error {
	n.paymentFailed = append(n.paymentFailed, userID+"|"+email)
	n.amounts = append(n.amounts, amountCents)
	return nil
}

type fakeConversions struct {
	recorded []string
}

func (c *fakeConversions) RecordConversion(_ context.Context, userID, plan string, amountCents int64, currency, eventID string) error {
	c.recorded = append(c.recorded, fmt.Sprintf("%s|%s|%d|%s|%s", userID, plan, amountCents, currency, eventID))
	return nil
}
