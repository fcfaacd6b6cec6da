package billing

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aarontmr/comptalyze-sub003/app/models"
)

// Repository is the persistence the billing service depends on. Lookups
// return gorm.ErrRecordNotFound when nothing matches.
type Repository interface {
	PlanMapping(ctx context.Context, provider, priceRef, interval string) (*models.BillingPlanMapping, error)
	SavePlanMapping(ctx context.Context, m *models.BillingPlanMapping) error

	SaveCustomer(ctx context.Context, c *models.BillingCustomer) error
	CustomerByProviderID(ctx context.Context, provider, customerID string) (*models.BillingCustomer, error)
	CustomerByUser(ctx context.Context, provider, userID string) (*models.BillingCustomer, error)

	SaveSubscription(ctx context.Context, sub *models.BillingSubscription) error
	SubscriptionByProviderID(ctx context.Context, provider, subscriptionID string) (*models.BillingSubscription, error)
	UserSubscriptions(ctx context.Context, userID string) ([]models.BillingSubscription, error)
	UsersWithElapsedTrials(ctx context.Context, now time.Time) ([]string, error)
	SubscribedUsers(ctx context.Context) ([]string, error)

	Profile(ctx context.Context, userID string) (*models.Profile, error)
	SetProfilePlan(ctx context.Context, userID, plan string) error
	MarkTrialUsed(ctx context.Context, userID string, at time.Time) error

	InsertWebhookEvent(ctx context.Context, e *models.BillingWebhookEvent) (created bool, stored *models.BillingWebhookEvent, err error)
	FinishWebhookEvent(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns the GORM implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) with(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func first[T any](db *gorm.DB, query string, args ...any) (*T, error) {
	var out T
	if err := db.Where(query, args...).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// onConflict builds the clause for an upsert on the unique key. With no
// columns to refresh the insert is skipped on conflict.
func onConflict(key []string, refresh ...string) clause.OnConflict {
	oc := clause.OnConflict{}
	for _, k := range key {
		oc.Columns = append(oc.Columns, clause.Column{Name: k})
	}
	if len(refresh) == 0 {
		oc.DoNothing = true
		return oc
	}
	oc.DoUpdates = clause.AssignmentColumns(append(refresh, "updated_at"))
	return oc
}

func (r *gormRepository) PlanMapping(ctx context.Context, provider, priceRef, interval string) (*models.BillingPlanMapping, error) {
	return first[models.BillingPlanMapping](r.with(ctx),
		"provider = ? AND provider_plan_ref = ? AND billing_interval = ? AND is_active = ?",
		provider, priceRef, interval, true)
}

func (r *gormRepository) SavePlanMapping(ctx context.Context, m *models.BillingPlanMapping) error {
	key := []string{"provider", "provider_plan_ref", "billing_interval"}
	return r.with(ctx).Clauses(onConflict(key, "internal_plan", "is_active")).Create(m).Error
}

// SaveCustomer upserts on (provider, provider_customer_id) and reloads the
// row so c carries the stored ID.
func (r *gormRepository) SaveCustomer(ctx context.Context, c *models.BillingCustomer) error {
	db := r.with(ctx)
	key := []string{"provider", "provider_customer_id"}
	if err := db.Clauses(onConflict(key, "user_id", "email")).Create(c).Error; err != nil {
		return err
	}
	stored, err := r.CustomerByProviderID(ctx, c.Provider, c.ProviderCustomerID)
	if err != nil {
		return err
	}
	*c = *stored
	return nil
}

func (r *gormRepository) CustomerByProviderID(ctx context.Context, provider, customerID string) (*models.BillingCustomer, error) {
	return first[models.BillingCustomer](r.with(ctx), "provider = ? AND provider_customer_id = ?", provider, customerID)
}

func (r *gormRepository) CustomerByUser(ctx context.Context, provider, userID string) (*models.BillingCustomer, error) {
	return first[models.BillingCustomer](r.with(ctx), "provider = ? AND user_id = ?", provider, userID)
}

var subscriptionRefresh = []string{
	"user_id", "provider_customer_id", "provider_plan_ref", "internal_plan",
	"billing_interval", "status", "current_period_start", "current_period_end",
	"trial_end", "cancel_at_period_end", "raw_payload_json",
}

// SaveSubscription upserts on (provider, provider_subscription_id). Every
// Stripe delivery carries the full object, so all mutable columns are
// overwritten.
func (r *gormRepository) SaveSubscription(ctx context.Context, sub *models.BillingSubscription) error {
	db := r.with(ctx)
	key := []string{"provider", "provider_subscription_id"}
	if err := db.Clauses(onConflict(key, subscriptionRefresh...)).Create(sub).Error; err != nil {
		return err
	}
	stored, err := r.SubscriptionByProviderID(ctx, sub.Provider, sub.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	*sub = *stored
	return nil
}

func (r *gormRepository) SubscriptionByProviderID(ctx context.Context, provider, subscriptionID string) (*models.BillingSubscription, error) {
	return first[models.BillingSubscription](r.with(ctx), "provider = ? AND provider_subscription_id = ?", provider, subscriptionID)
}

// UserSubscriptions lists the user's subscriptions, most recently updated first.
func (r *gormRepository) UserSubscriptions(ctx context.Context, userID string) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.with(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Order("id DESC").Find(&subs).Error
	return subs, err
}

// UsersWithElapsedTrials finds users on a trialing subscription whose trial
// ended at or before now while the profile still shows a paid plan.
func (r *gormRepository) UsersWithElapsedTrials(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.with(ctx).
		Table("billing_subscriptions AS s").
		Joins("JOIN profiles AS p ON p.user_id = s.user_id AND p.deleted_at IS NULL").
		Where("s.status = ?", models.BillingStatusTrialing).
		Where("s.trial_end IS NOT NULL AND s.trial_end <= ?", now).
		Where("p.plan <> ?", models.PlanFree).
		Distinct().
		Pluck("s.user_id", &ids).Error
	return ids, err
}

func (r *gormRepository) SubscribedUsers(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.with(ctx).Model(&models.BillingSubscription{}).Distinct().Pluck("user_id", &ids).Error
	return ids, err
}

func (r *gormRepository) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	return models.GetOrCreateProfile(r.with(ctx), userID, "")
}

func (r *gormRepository) SetProfilePlan(ctx context.Context, userID, plan string) error {
	return r.with(ctx).Model(&models.Profile{}).Where("user_id = ?", userID).Update("plan", plan).Error
}

// MarkTrialUsed only stamps the first trial.
func (r *gormRepository) MarkTrialUsed(ctx context.Context, userID string, at time.Time) error {
	return r.with(ctx).Model(&models.Profile{}).
		Where("user_id = ? AND trial_used_at IS NULL", userID).
		Update("trial_used_at", at).Error
}

// InsertWebhookEvent stores e unless (provider, provider_event_id) is already
// known, and returns the stored row either way.
func (r *gormRepository) InsertWebhookEvent(ctx context.Context, e *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.with(ctx)
	res := db.Clauses(onConflict([]string{"provider", "provider_event_id"})).Create(e)
	if res.Error != nil {
		return false, nil, res.Error
	}
	stored, err := first[models.BillingWebhookEvent](db, "provider = ? AND provider_event_id = ?", e.Provider, e.ProviderEventID)
	if err != nil {
		return false, nil, err
	}
	return res.RowsAffected > 0, stored, nil
}

func (r *gormRepository) FinishWebhookEvent(ctx context.Context, id uint, processingError string) error {
	return r.with(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).
		Updates(map[string]any{
			"processed_at":     time.Now(),
			"processing_error": processingError,
		}).Error
}
