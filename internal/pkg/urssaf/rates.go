package urssaf

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ActivityRates groups the rates and thresholds that depend on the activity.
type ActivityRates struct {
	Contribution         decimal.Decimal
	VersementLiberatoire decimal.Decimal
	Allowance            decimal.Decimal
	MicroCeiling         decimal.Decimal
	VATThreshold         decimal.Decimal
}

// Bracket is one slice of the progressive income-tax scale. A zero UpTo means
// the slice has no upper bound.
type Bracket struct {
	UpTo decimal.Decimal
	Rate decimal.Decimal
}

// RateTable holds every figure needed for one calendar year.
type RateTable struct {
	Year          int
	Activities    map[Activity]ActivityRates
	CFPCommercant decimal.Decimal
	CFPArtisan    decimal.Decimal
	CFPLiberal    decimal.Decimal
	ACREFactor    decimal.Decimal
	MinAllowance  decimal.Decimal
	Brackets      []Bracket
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var rateTables = map[int]*RateTable{
	2025: {
		Year: 2025,
		Activities: map[Activity]ActivityRates{
			ActivityVente:        {Contribution: d("0.123"), VersementLiberatoire: d("0.01"), Allowance: d("0.71"), MicroCeiling: d("188700"), VATThreshold: d("85000")},
			ActivityServicesBIC:  {Contribution: d("0.212"), VersementLiberatoire: d("0.017"), Allowance: d("0.50"), MicroCeiling: d("77700"), VATThreshold: d("37500")},
			ActivityLiberalBNC:   {Contribution: d("0.246"), VersementLiberatoire: d("0.022"), Allowance: d("0.34"), MicroCeiling: d("77700"), VATThreshold: d("37500")},
			ActivityLiberalCIPAV: {Contribution: d("0.232"), VersementLiberatoire: d("0.022"), Allowance: d("0.34"), MicroCeiling: d("77700"), VATThreshold: d("37500")},
		},
		CFPCommercant: d("0.001"),
		CFPArtisan:    d("0.003"),
		CFPLiberal:    d("0.002"),
		ACREFactor:    d("0.5"),
		MinAllowance:  d("305"),
		Brackets: []Bracket{
			{UpTo: d("11497"), Rate: d("0")},
			{UpTo: d("29315"), Rate: d("0.11")},
			{UpTo: d("83823"), Rate: d("0.30")},
			{UpTo: d("180294"), Rate: d("0.41")},
			{UpTo: decimal.Zero, Rate: d("0.45")},
		},
	},
	2026: {
		Year: 2026,
		Activities: map[Activity]ActivityRates{
			ActivityVente:        {Contribution: d("0.123"), VersementLiberatoire: d("0.01"), Allowance: d("0.71"), MicroCeiling: d("203100"), VATThreshold: d("85000")},
			ActivityServicesBIC:  {Contribution: d("0.212"), VersementLiberatoire: d("0.017"), Allowance: d("0.50"), MicroCeiling: d("83600"), VATThreshold: d("37500")},
			ActivityLiberalBNC:   {Contribution: d("0.261"), VersementLiberatoire: d("0.022"), Allowance: d("0.34"), MicroCeiling: d("83600"), VATThreshold: d("37500")},
			ActivityLiberalCIPAV: {Contribution: d("0.232"), VersementLiberatoire: d("0.022"), Allowance: d("0.34"), MicroCeiling: d("83600"), VATThreshold: d("37500")},
		},
		CFPCommercant: d("0.001"),
		CFPArtisan:    d("0.003"),
		CFPLiberal:    d("0.002"),
		ACREFactor:    d("0.5"),
		MinAllowance:  d("305"),
		Brackets: []Bracket{
			{UpTo: d("11600"), Rate: d("0")},
			{UpTo: d("29579"), Rate: d("0.11")},
			{UpTo: d("84577"), Rate: d("0.30")},
			{UpTo: d("181917"), Rate: d("0.41")},
			{UpTo: decimal.Zero, Rate: d("0.45")},
		},
	},
}

// Years returns the tabulated years in ascending order.
func Years() []int {
	years := make([]int, 0, len(rateTables))
	for y := range rateTables {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// LookupRates returns the table for year. When the year is not tabulated the
// latest table is returned and exact is false.
func LookupRates(year int) (table *RateTable, exact bool) {
	if t, ok := rateTables[year]; ok {
		return t, true
	}
	years := Years()
	return rateTables[years[len(years)-1]], false
}

// ForActivity returns the activity rates, or ErrUnknownActivity.
func (t *RateTable) ForActivity(a Activity) (ActivityRates, error) {
	r, ok := t.Activities[a]
	if !ok {
		return ActivityRates{}, ErrUnknownActivity
	}
	return r, nil
}

// CFPRate returns the training contribution rate for the activity.
func (t *RateTable) CFPRate(a Activity, artisan bool) decimal.Decimal {
	switch {
	case a.IsLiberal():
		return t.CFPLiberal
	case artisan:
		return t.CFPArtisan
	default:
		return t.CFPCommercant
	}
}
