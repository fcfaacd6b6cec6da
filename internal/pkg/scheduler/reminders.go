package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/mail"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
)

// DefaultLeadDays is how many days before a deadline reminders go out.
const DefaultLeadDays = 7

// MailQueue enqueues transactional emails.
type MailQueue interface {
	EnqueueEmail(ctx context.Context, msg mail.Message) error
}

// Reminders emails paid users ahead of their next URSSAF declaration. Each
// declaration is reminded at most once per user.
type Reminders struct {
	profiles  repository.ProfileRepository
	records   repository.RevenueRecordRepository
	mailer    MailQueue
	publicURL string
	leadDays  int
	now       func() time.Time
}

func NewReminders(profiles repository.ProfileRepository, records repository.RevenueRecordRepository, mailer MailQueue, publicURL string) *Reminders {
	return &Reminders{
		profiles:  profiles,
		records:   records,
		mailer:    mailer,
		publicURL: strings.TrimRight(publicURL, "/"),
		leadDays:  DefaultLeadDays,
		now:       time.Now,
	}
}

func remindablePlans() []string {
	var plans []string
	for _, p := range []entitlements.Plan{entitlements.PlanFree, entitlements.PlanPro, entitlements.PlanPremium} {
		if entitlements.Allows(p, entitlements.FeatureReminders) {
			plans = append(plans, string(p))
		}
	}
	return plans
}

// Run sends the reminders due today and returns how many were queued.
func (r *Reminders) Run(ctx context.Context) (int, error) {
	candidates, err := r.profiles.ListReminderCandidates(remindablePlans())
	if err != nil {
		return 0, fmt.Errorf("list reminder candidates: %w", err)
	}
	now := r.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	sent := 0
	for i := range candidates {
		p := &candidates[i]
		decl := urssaf.NextDeclaration(now, urssaf.Frequency(p.DeclarationFrequency))
		if decl.Label == p.LastReminderPeriod {
			continue
		}
		if decl.Deadline.Sub(today) > time.Duration(r.leadDays)*24*time.Hour {
			continue
		}
		if err := r.remind(ctx, p, decl); err != nil {
			log.Errorf("[Reminders] Failed to remind user %s for %s: %v", p.UserID, decl.Label, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		log.Infof("[Reminders] Queued %d declaration reminders", sent)
	}
	return sent, nil
}

func (r *Reminders) remind(ctx context.Context, p *models.Profile, decl urssaf.Declaration) error {
	revenue, err := r.declaredRevenue(p.UserID, decl)
	if err != nil {
		return err
	}
	msg := mail.Message{
		To:       p.Email,
		Template: mail.TemplateDeclarationReminder,
		Data: map[string]string{
			"period":        decl.Label,
			"deadline":      urssaf.FormatDate(decl.Deadline),
			"revenue":       urssaf.FormatEuros(revenue),
			"dashboard_url": r.publicURL + "/dashboard",
		},
	}
	if err := r.mailer.EnqueueEmail(ctx, msg); err != nil {
		return err
	}
	return r.profiles.SetLastReminderPeriod(p.UserID, decl.Label)
}

func (r *Reminders) declaredRevenue(userID string, decl urssaf.Declaration) (int64, error) {
	var total int64
	for year := decl.From.Year; year <= decl.To.Year; year++ {
		recs, err := r.records.ListByYear(userID, year)
		if err != nil {
			return 0, err
		}
		for _, rec := range recs {
			p, err := urssaf.ParsePeriod(rec.Period)
			if err == nil && decl.Covers(p) {
				total += rec.RevenueCents
			}
		}
	}
	return total, nil
}
