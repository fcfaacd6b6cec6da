package records

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
)

// MonthTotal aggregates every activity of one period.
type MonthTotal struct {
	Period             string `json:"period"`
	RevenueCents       int64  `json:"revenue_cents"`
	ContributionsCents int64  `json:"contributions_cents"`
	NetCents           int64  `json:"net_cents"`
}

// DeclarationStatus describes the next URSSAF declaration to file.
type DeclarationStatus struct {
	Label        string    `json:"label"`
	Deadline     time.Time `json:"deadline"`
	DaysLeft     int       `json:"days_left"`
	RevenueCents int64     `json:"revenue_cents"`
	Recorded     bool      `json:"recorded"`
}

// Summary is the dashboard view of a year.
type Summary struct {
	Year                 int               `json:"year"`
	Activity             string            `json:"activity"`
	RevenueCents         int64             `json:"revenue_cents"`
	ContributionsCents   int64             `json:"contributions_cents"`
	CFPCents             int64             `json:"cfp_cents"`
	IncomeTaxCents       int64             `json:"income_tax_cents"`
	NetCents             int64             `json:"net_cents"`
	CeilingCents         int64             `json:"ceiling_cents"`
	VATThresholdCents    int64             `json:"vat_threshold_cents"`
	CeilingProgress      decimal.Decimal   `json:"ceiling_progress"`
	VATThresholdProgress decimal.Decimal   `json:"vat_threshold_progress"`
	Months               []MonthTotal      `json:"months"`
	NextDeclaration      DeclarationStatus `json:"next_declaration"`
	RecordsThisMonth     int64             `json:"records_this_month"`
	MonthlyQuota         int               `json:"monthly_quota"`
}

// Summary totals a year of records against the thresholds of the profile's
// activity and reports the next declaration. Year 0 means the current year.
func (s *Service) Summary(ctx context.Context, userID, plan string, year int) (*Summary, error) {
	_ = ctx
	now := s.now().UTC()
	if year <= 0 {
		year = now.Year()
	}
	profile, err := s.profiles.GetOrCreate(userID, "")
	if err != nil {
		return nil, err
	}
	recs, err := s.records.ListByYear(userID, year)
	if err != nil {
		return nil, err
	}

	activity, err := urssaf.ParseActivity(defaultActivity("", profile))
	if err != nil {
		activity = urssaf.ActivityServicesBIC
	}
	sum := &Summary{Year: year, Activity: string(activity), MonthlyQuota: entitlements.MonthlyRecordQuota(entitlements.NormalizePlan(plan))}

	byPeriod := map[string]int{}
	for i := range recs {
		r := &recs[i]
		sum.RevenueCents += r.RevenueCents
		sum.ContributionsCents += r.ContributionsCents
		sum.CFPCents += r.CFPCents
		sum.IncomeTaxCents += r.IncomeTaxCents
		sum.NetCents += r.NetCents()

		idx, ok := byPeriod[r.Period]
		if !ok {
			sum.Months = append(sum.Months, MonthTotal{Period: r.Period})
			idx = len(sum.Months) - 1
			byPeriod[r.Period] = idx
		}
		m := &sum.Months[idx]
		m.RevenueCents += r.RevenueCents
		m.ContributionsCents += r.ContributionsCents
		m.NetCents += r.NetCents()
	}

	ceiling, vat, err := urssaf.Thresholds(year, activity)
	if err != nil {
		return nil, err
	}
	revenue := urssaf.FromCents(sum.RevenueCents)
	sum.CeilingCents = urssaf.ToCents(ceiling)
	sum.VATThresholdCents = urssaf.ToCents(vat)
	sum.CeilingProgress = urssaf.Progress(revenue, ceiling)
	sum.VATThresholdProgress = urssaf.Progress(revenue, vat)

	decl, err := s.nextDeclaration(userID, profile, now, recs, year)
	if err != nil {
		return nil, err
	}
	sum.NextDeclaration = decl

	sum.RecordsThisMonth, err = s.records.CreatedInMonth(userID, urssaf.PeriodOf(now).String())
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *Service) nextDeclaration(userID string, profile *models.Profile, now time.Time, loaded []models.RevenueRecord, loadedYear int) (DeclarationStatus, error) {
	decl := urssaf.NextDeclaration(now, urssaf.Frequency(profile.DeclarationFrequency))
	recs := loaded
	if decl.From.Year != loadedYear {
		var err error
		recs, err = s.records.ListByYear(userID, decl.From.Year)
		if err != nil {
			return DeclarationStatus{}, err
		}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	out := DeclarationStatus{
		Label:    decl.Label,
		Deadline: decl.Deadline,
		DaysLeft: int(decl.Deadline.Sub(today).Hours() / 24),
	}
	for _, r := range recs {
		p, err := urssaf.ParsePeriod(r.Period)
		if err != nil || !decl.Covers(p) {
			continue
		}
		out.RevenueCents += r.RevenueCents
		out.Recorded = true
	}
	return out, nil
}
