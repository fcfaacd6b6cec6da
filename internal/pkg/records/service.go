// Package records stores the monthly revenue a user declares to URSSAF and
// derives the contributions owed on it.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

var (
	ErrQuotaExceeded = errors.New("monthly record quota reached")
	ErrNotFound      = errors.New("record not found")
	ErrNotPaid       = errors.New("invoice is not paid")
)

// Input is one revenue declaration as submitted by the user.
type Input struct {
	Period       string `json:"period" validate:"required,datetime=2006-01"`
	Activity     string `json:"activity" validate:"omitempty,oneof=vente services_bic liberal_bnc liberal_cipav"`
	RevenueCents int64  `json:"revenue_cents" validate:"gte=0"`
	Note         string `json:"note" validate:"max=255"`
}

type Service struct {
	records  repository.RevenueRecordRepository
	profiles repository.ProfileRepository
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(records repository.RevenueRecordRepository, profiles repository.ProfileRepository, opts ...Option) *Service {
	s := &Service{
		records:  records,
		profiles: profiles,
		validate: validation.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// compute fills the contribution columns from the revenue using the profile's
// URSSAF options and the rates of the period's year.
func compute(rec *models.RevenueRecord, profile *models.Profile) error {
	period, err := urssaf.ParsePeriod(rec.Period)
	if err != nil {
		return err
	}
	activity, err := urssaf.ParseActivity(rec.Activity)
	if err != nil {
		return err
	}
	sim, err := urssaf.Simulate(urssaf.SimulationInput{
		Revenue:              urssaf.FromCents(rec.RevenueCents),
		Activity:             activity,
		Year:                 period.Year,
		ACRE:                 profile.ACRE,
		VersementLiberatoire: profile.VersementLiberatoire,
		Artisan:              profile.Artisan,
	})
	if err != nil {
		return err
	}
	rec.Activity = string(activity)
	rec.ContributionsCents = urssaf.ToCents(sim.Contributions)
	rec.CFPCents = urssaf.ToCents(sim.CFP)
	rec.IncomeTaxCents = urssaf.ToCents(sim.IncomeTaxPrepayment)
	return nil
}

func defaultActivity(activity string, profile *models.Profile) string {
	if activity != "" {
		return activity
	}
	if profile.Activity != "" {
		return profile.Activity
	}
	return string(urssaf.ActivityServicesBIC)
}

// Upsert creates or replaces the record of a period and activity. Only new
// records count against the free plan's monthly quota. The boolean reports
// whether a record was created.
func (s *Service) Upsert(ctx context.Context, userID, plan string, in Input) (*models.RevenueRecord, bool, error) {
	_ = ctx
	if err := s.validate.Struct(in); err != nil {
		return nil, false, err
	}
	profile, err := s.profiles.GetOrCreate(userID, "")
	if err != nil {
		return nil, false, fmt.Errorf("load profile: %w", err)
	}
	activity := defaultActivity(in.Activity, profile)

	existing, err := s.records.GetByKey(userID, in.Period, activity)
	switch {
	case err == nil:
		existing.RevenueCents = in.RevenueCents
		existing.Note = strings.TrimSpace(in.Note)
		if err := compute(existing, profile); err != nil {
			return nil, false, err
		}
		if err := s.records.Save(existing); err != nil {
			return nil, false, fmt.Errorf("save record: %w", err)
		}
		return existing, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	rec := &models.RevenueRecord{
		UserID:       userID,
		Period:       in.Period,
		Activity:     activity,
		RevenueCents: in.RevenueCents,
		Note:         strings.TrimSpace(in.Note),
	}
	if err := compute(rec, profile); err != nil {
		return nil, false, err
	}
	tier := entitlements.NormalizePlan(plan)
	quota := entitlements.MonthlyRecordQuota(tier)
	err = s.records.CreateWithinQuota(rec, urssaf.PeriodOf(s.now().UTC()).String(), quota)
	switch {
	case errors.Is(err, repository.ErrQuotaReached):
		return nil, false, fmt.Errorf("%w: %d records per month on the %s plan", ErrQuotaExceeded, quota, tier)
	case err != nil:
		return nil, false, fmt.Errorf("create record: %w", err)
	}
	return rec, true, nil
}

// RecordInvoice adds a paid invoice's pre-tax amount to the revenue of its
// payment month. Recording the same invoice twice is a no-op.
func (s *Service) RecordInvoice(ctx context.Context, inv *models.Invoice) (*models.RevenueRecord, error) {
	_ = ctx
	if inv.PaidAt == nil {
		return nil, ErrNotPaid
	}
	profile, err := s.profiles.GetOrCreate(inv.UserID, "")
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	period := urssaf.PeriodOf(inv.PaidAt.UTC()).String()
	activity := defaultActivity(inv.Activity, profile)
	invoiceID := inv.ID

	rec, err := s.records.GetByKey(inv.UserID, period, activity)
	switch {
	case err == nil:
		if rec.InvoiceID != nil && *rec.InvoiceID == invoiceID {
			return rec, nil
		}
		rec.RevenueCents += inv.SubtotalCents
		rec.InvoiceID = &invoiceID
		if err := compute(rec, profile); err != nil {
			return nil, err
		}
		if err := s.records.Save(rec); err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = &models.RevenueRecord{
			UserID:       inv.UserID,
			Period:       period,
			Activity:     activity,
			RevenueCents: inv.SubtotalCents,
			InvoiceID:    &invoiceID,
			Note:         "Facture " + inv.Number,
		}
		if err := compute(rec, profile); err != nil {
			return nil, err
		}
		if err := s.records.Create(rec); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	log.Infof("[Records] Recorded invoice %s into %s/%s for user %s", inv.Number, period, activity, inv.UserID)
	return rec, nil
}

// List returns the records of a year, oldest period first.
func (s *Service) List(ctx context.Context, userID string, year int) ([]models.RevenueRecord, error) {
	_ = ctx
	return s.records.ListByYear(userID, year)
}

func (s *Service) Delete(ctx context.Context, userID string, id uint) error {
	_ = ctx
	err := s.records.Delete(userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// RecomputeYear refreshes the contributions of every record in a year, used
// after the user changed URSSAF options on the profile.
func (s *Service) RecomputeYear(ctx context.Context, userID string, year int) (int, error) {
	_ = ctx
	profile, err := s.profiles.GetOrCreate(userID, "")
	if err != nil {
		return 0, err
	}
	recs, err := s.records.ListByYear(userID, year)
	if err != nil {
		return 0, err
	}
	for i := range recs {
		if err := compute(&recs[i], profile); err != nil {
			return i, err
		}
		if err := s.records.Save(&recs[i]); err != nil {
			return i, err
		}
	}
	return len(recs), nil
}
