// Package attribution records marketing touches of anonymous visitors and
// attributes paid conversions to the source that first brought the user.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics/counter"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

// SourceDirect is used when a visit carries neither a utm source nor a referrer.
const SourceDirect = "direct"

var ErrMissingVisitor = errors.New("visitor_id is required")

// TouchInput is what the tracking snippet posts for each visit.
type TouchInput struct {
	VisitorID   string `json:"visitor_id" validate:"omitempty,max=64"`
	Source      string `json:"utm_source" validate:"max=100"`
	Medium      string `json:"utm_medium" validate:"max=100"`
	Campaign    string `json:"utm_campaign" validate:"max=150"`
	Term        string `json:"utm_term" validate:"max=150"`
	Content     string `json:"utm_content" validate:"max=150"`
	Referrer    string `json:"referrer" validate:"max=500"`
	LandingPath string `json:"landing_path" validate:"max=500"`
	Event       string `json:"event" validate:"omitempty,oneof=page_view signup checkout"`
}

// Report is the admin view of the marketing funnel.
type Report struct {
	Since       time.Time                 `json:"since"`
	Visitors    []repository.SourceReport `json:"visitors"`
	Conversions []repository.SourceReport `json:"conversions"`
}

type Service struct {
	repo     repository.AttributionRepository
	profiles repository.ProfileRepository
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo repository.AttributionRepository, profiles repository.ProfileRepository) *Service {
	return &Service{repo: repo, profiles: profiles, validate: validation.New(), now: time.Now}
}

// sourceFromReferrer returns the referrer host without its www prefix.
func sourceFromReferrer(ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Track stores one touch. A visitor id is generated when the caller has none;
// userID may be empty for anonymous visits.
func (s *Service) Track(ctx context.Context, userID string, in TouchInput) (*models.AttributionTouch, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	visitor := strings.TrimSpace(in.VisitorID)
	if visitor == "" {
		visitor = uuid.NewString()
	}
	source := strings.ToLower(strings.TrimSpace(in.Source))
	if source == "" {
		source = sourceFromReferrer(in.Referrer)
	}
	if source == "" {
		source = SourceDirect
	}
	event := in.Event
	if event == "" {
		event = models.TouchEventPageView
	}
	touch := &models.AttributionTouch{
		VisitorID:   visitor,
		UserID:      userID,
		Source:      source,
		Medium:      strings.ToLower(strings.TrimSpace(in.Medium)),
		Campaign:    strings.TrimSpace(in.Campaign),
		Term:        strings.TrimSpace(in.Term),
		Content:     strings.TrimSpace(in.Content),
		Referrer:    strings.TrimSpace(in.Referrer),
		LandingPath: strings.TrimSpace(in.LandingPath),
		Event:       event,
	}
	if err := s.repo.CreateTouch(touch); err != nil {
		return nil, fmt.Errorf("store touch: %w", err)
	}
	if err := counter.Add(ctx, counter.KindTouches); err != nil {
		log.Warnf("[Attribution] Failed to count touch: %v", err)
	}
	return touch, nil
}

// Identify links a visitor's anonymous touches to the user and stores the
// first touch on the profile unless one is already recorded.
func (s *Service) Identify(ctx context.Context, userID, visitorID string) (linked int64, firstTouch bool, err error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return 0, false, ErrMissingVisitor
	}
	if _, err := s.profiles.GetOrCreate(userID, ""); err != nil {
		return 0, false, err
	}
	linked, err = s.repo.LinkVisitor(visitorID, userID)
	if err != nil {
		return 0, false, err
	}
	touch, err := s.repo.FirstTouch(visitorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return linked, false, nil
	}
	if err != nil {
		return linked, false, err
	}
	firstTouch, err = s.profiles.SetFirstTouch(userID, touch)
	if err != nil {
		return linked, false, err
	}
	if firstTouch {
		log.Infof("[Attribution] User %s attributed to %s/%s", userID, touch.Source, touch.Medium)
		if err := counter.Add(ctx, counter.KindSignups); err != nil {
			log.Warnf("[Attribution] Failed to count signup: %v", err)
		}
	}
	return linked, firstTouch, nil
}

// RecordConversion stores the user's first paid invoice with their first-touch
// source. Later payments and redelivered events are ignored.
func (s *Service) RecordConversion(ctx context.Context, userID, plan string, amountCents int64, currency, providerEventID string) error {
	_ = ctx
	if userID == "" || providerEventID == "" {
		return errors.New("user id and provider event id are required")
	}
	has, err := s.repo.HasConversion(userID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	conv := &models.Conversion{
		UserID:          userID,
		Plan:            plan,
		AmountCents:     amountCents,
		Currency:        strings.ToUpper(currency),
		Source:          SourceDirect,
		ProviderEventID: providerEventID,
	}
	if p, err := s.profiles.GetByUserID(userID); err == nil && p.HasFirstTouch() {
		conv.Source = p.FirstTouchSource
		conv.Medium = p.FirstTouchMedium
		conv.Campaign = p.FirstTouchCampaign
	} else if t, err := s.repo.FirstTouchForUser(userID); err == nil {
		conv.Source = t.Source
		conv.Medium = t.Medium
		conv.Campaign = t.Campaign
	}

	created, err := s.repo.CreateConversion(conv)
	if err != nil {
		return fmt.Errorf("store conversion: %w", err)
	}
	if created {
		log.Infof("[Attribution] Conversion of %s to %s attributed to %s", userID, plan, conv.Source)
	}
	return nil
}

// Report aggregates visitors and conversions per source over the last days.
func (s *Service) Report(ctx context.Context, days int) (*Report, error) {
	_ = ctx
	if days <= 0 {
		days = 30
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	visitors, err := s.repo.TouchReport(since)
	if err != nil {
		return nil, err
	}
	conversions, err := s.repo.ConversionReport(since)
	if err != nil {
		return nil, err
	}
	return &Report{Since: since, Visitors: visitors, Conversions: conversions}, nil
}
