package urssaf

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	WarningVATThresholdExceeded = "vat_threshold_exceeded"
	WarningMicroCeilingExceeded = "micro_ceiling_exceeded"
	WarningRatesYearFallback    = "rates_year_fallback"
)

var (
	ErrNegativeRevenue = errors.New("revenue must not be negative")
	ErrInvalidParts    = errors.New("parts must be at least 1 and a multiple of 0.5")
)

var hundred = decimal.NewFromInt(100)

// SimulationInput describes the revenue to simulate. Year 0 means the current year.
type SimulationInput struct {
	Revenue              decimal.Decimal
	Activity             Activity
	Year                 int
	ACRE                 bool
	VersementLiberatoire bool
	Artisan              bool
}

// Simulation is the breakdown of what a micro-entrepreneur owes on a revenue.
// Progress values are percentages and may exceed 100.
type Simulation struct {
	Year                 int             `json:"year"`
	Activity             Activity        `json:"activity"`
	Revenue              decimal.Decimal `json:"revenue"`
	ContributionRate     decimal.Decimal `json:"contribution_rate"`
	Contributions        decimal.Decimal `json:"contributions"`
	CFP                  decimal.Decimal `json:"cfp"`
	IncomeTaxPrepayment  decimal.Decimal `json:"income_tax_prepayment"`
	Total                decimal.Decimal `json:"total"`
	NetIncome            decimal.Decimal `json:"net_income"`
	EffectiveRate        decimal.Decimal `json:"effective_rate"`
	CeilingProgress      decimal.Decimal `json:"ceiling_progress"`
	VATThresholdProgress decimal.Decimal `json:"vat_threshold_progress"`
	Warnings             []string        `json:"warnings"`
}

// RoundCents rounds half away from zero to two decimals.
func RoundCents(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// ToCents converts euros to integer cents.
func ToCents(v decimal.Decimal) int64 {
	return RoundCents(v).Mul(hundred).IntPart()
}

// FromCents converts integer cents to euros.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func resolveYear(year int) int {
	if year <= 0 {
		return time.Now().Year()
	}
	return year
}

// Simulate computes contributions, CFP and the optional income-tax prepayment.
func Simulate(in SimulationInput) (*Simulation, error) {
	if in.Revenue.IsNegative() {
		return nil, ErrNegativeRevenue
	}
	year := resolveYear(in.Year)
	table, exact := LookupRates(year)
	rates, err := table.ForActivity(in.Activity)
	if err != nil {
		return nil, fmt.Errorf("simulate %q: %w", in.Activity, err)
	}

	rate := rates.Contribution
	if in.ACRE {
		rate = rate.Mul(table.ACREFactor)
	}
	revenue := RoundCents(in.Revenue)

	s := &Simulation{
		Year:             year,
		Activity:         in.Activity,
		Revenue:          revenue,
		ContributionRate: rate,
		Contributions:    RoundCents(revenue.Mul(rate)),
		CFP:              RoundCents(revenue.Mul(table.CFPRate(in.Activity, in.Artisan))),
		Warnings:         []string{},
	}
	if in.VersementLiberatoire {
		s.IncomeTaxPrepayment = RoundCents(revenue.Mul(rates.VersementLiberatoire))
	}
	s.Total = s.Contributions.Add(s.CFP).Add(s.IncomeTaxPrepayment)
	s.NetIncome = revenue.Sub(s.Total)
	if revenue.IsPositive() {
		s.EffectiveRate = s.Total.Div(revenue).Mul(hundred).Round(2)
	}
	s.CeilingProgress = progress(revenue, rates.MicroCeiling)
	s.VATThresholdProgress = progress(revenue, rates.VATThreshold)

	if !exact {
		s.Warnings = append(s.Warnings, WarningRatesYearFallback)
	}
	if revenue.GreaterThan(rates.VATThreshold) {
		s.Warnings = append(s.Warnings, WarningVATThresholdExceeded)
	}
	if revenue.GreaterThan(rates.MicroCeiling) {
		s.Warnings = append(s.Warnings, WarningMicroCeilingExceeded)
	}
	return s, nil
}

// Thresholds returns the micro ceiling and VAT franchise threshold for a year and activity.
func Thresholds(year int, a Activity) (ceiling, vat decimal.Decimal, err error) {
	table, _ := LookupRates(resolveYear(year))
	rates, err := table.ForActivity(a)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return rates.MicroCeiling, rates.VATThreshold, nil
}

// Progress returns revenue as a percentage of limit, rounded to two decimals.
func Progress(revenue, limit decimal.Decimal) decimal.Decimal {
	return progress(revenue, limit)
}

func progress(revenue, limit decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() {
		return decimal.Zero
	}
	return revenue.Div(limit).Mul(hundred).Round(2)
}
