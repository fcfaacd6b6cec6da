package urssaf

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// IncomeTaxInput describes a household for the classic (non-prepaid) income tax.
// Parts defaults to 1 when zero.
type IncomeTaxInput struct {
	Revenue     decimal.Decimal
	Activity    Activity
	Year        int
	Parts       decimal.Decimal
	OtherIncome decimal.Decimal
}

// BracketShare is the tax due in one slice of the scale for the whole household.
type BracketShare struct {
	From    decimal.Decimal `json:"from"`
	To      decimal.Decimal `json:"to"`
	Rate    decimal.Decimal `json:"rate"`
	Taxable decimal.Decimal `json:"taxable"`
	Tax     decimal.Decimal `json:"tax"`
}

// IncomeTaxEstimate compares the progressive tax with the versement libératoire.
type IncomeTaxEstimate struct {
	Year                 int             `json:"year"`
	Parts                decimal.Decimal `json:"parts"`
	Allowance            decimal.Decimal `json:"allowance"`
	TaxableIncome        decimal.Decimal `json:"taxable_income"`
	Tax                  decimal.Decimal `json:"tax"`
	MarginalRate         decimal.Decimal `json:"marginal_rate"`
	Brackets             []BracketShare  `json:"brackets"`
	VersementLiberatoire decimal.Decimal `json:"versement_liberatoire"`
}

// EstimateIncomeTax applies the micro allowance then the progressive scale per
// part (quotient familial).
func EstimateIncomeTax(in IncomeTaxInput) (*IncomeTaxEstimate, error) {
	if in.Revenue.IsNegative() || in.OtherIncome.IsNegative() {
		return nil, ErrNegativeRevenue
	}
	parts := in.Parts
	if parts.IsZero() {
		parts = decimal.NewFromInt(1)
	}
	if err := validateParts(parts); err != nil {
		return nil, err
	}
	year := resolveYear(in.Year)
	table, _ := LookupRates(year)
	rates, err := table.ForActivity(in.Activity)
	if err != nil {
		return nil, fmt.Errorf("income tax %q: %w", in.Activity, err)
	}

	revenue := RoundCents(in.Revenue)
	allowance := decimal.Max(revenue.Mul(rates.Allowance), table.MinAllowance)
	allowance = RoundCents(decimal.Min(allowance, revenue))

	taxable := revenue.Sub(allowance).Add(RoundCents(in.OtherIncome))
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}

	est := &IncomeTaxEstimate{
		Year:                 year,
		Parts:                parts,
		Allowance:            allowance,
		TaxableIncome:        taxable,
		MarginalRate:         decimal.Zero,
		Brackets:             []BracketShare{},
		VersementLiberatoire: RoundCents(revenue.Mul(rates.VersementLiberatoire)),
	}

	quotient := taxable.Div(parts)
	lower := decimal.Zero
	total := decimal.Zero
	for _, b := range table.Brackets {
		upper := b.UpTo
		unbounded := upper.IsZero()
		slice := quotient.Sub(lower)
		if !unbounded {
			slice = decimal.Min(slice, upper.Sub(lower))
		}
		if slice.IsPositive() {
			tax := slice.Mul(b.Rate).Mul(parts)
			est.Brackets = append(est.Brackets, BracketShare{
				From:    lower,
				To:      upper,
				Rate:    b.Rate,
				Taxable: RoundCents(slice.Mul(parts)),
				Tax:     RoundCents(tax),
			})
			total = total.Add(tax)
			est.MarginalRate = b.Rate
		}
		if unbounded || quotient.LessThanOrEqual(upper) {
			break
		}
		lower = upper
	}
	est.Tax = RoundCents(total)
	return est, nil
}

func validateParts(parts decimal.Decimal) error {
	if parts.LessThan(decimal.NewFromInt(1)) {
		return ErrInvalidParts
	}
	doubled := parts.Mul(decimal.NewFromInt(2))
	if !doubled.Equal(doubled.Truncate(0)) {
		return ErrInvalidParts
	}
	return nil
}
