package invoicing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aarontmr/comptalyze-sub003/app/models"
)

// VATFranchiseMention is printed instead of the VAT line for users under the
// franchise en base.
const VATFranchiseMention = "TVA non applicable, art. 293 B du CGI"

var (
	ErrNoLines         = errors.New("an invoice needs at least one line")
	ErrInvalidQuantity = errors.New("line quantity must be positive")
	ErrInvalidPrice    = errors.New("line unit price must not be negative")
	ErrInvalidVATRate  = errors.New("vat rate must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// LineInput is one billed item as submitted by the user.
type LineInput struct {
	Description    string          `json:"description" validate:"required,max=500"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPriceCents int64           `json:"unit_price_cents"`
}

// Totals are the computed amounts of an invoice, in cents.
type Totals struct {
	SubtotalCents int64
	VATCents      int64
	TotalCents    int64
	VATRate       decimal.Decimal
	VATMention    string
}

// FormatNumber renders an invoice number, e.g. F2025-0007.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("F%d-%04d", year, seq)
}

// BuildLines validates the submitted lines and computes each line total,
// rounded half away from zero to the cent.
func BuildLines(in []LineInput) ([]models.InvoiceLine, error) {
	if len(in) == 0 {
		return nil, ErrNoLines
	}
	lines := make([]models.InvoiceLine, 0, len(in))
	for i, l := range in {
		desc := strings.TrimSpace(l.Description)
		if desc == "" {
			return nil, fmt.Errorf("line %d: description is required", i+1)
		}
		if !l.Quantity.IsPositive() {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
		if l.UnitPriceCents < 0 {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrInvalidPrice)
		}
		total := l.Quantity.Mul(decimal.NewFromInt(l.UnitPriceCents)).Round(0).IntPart()
		lines = append(lines, models.InvoiceLine{
			Position:       i + 1,
			Description:    desc,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			TotalCents:     total,
		})
	}
	return lines, nil
}

// ComputeTotals sums the lines and applies VAT. Under the franchise the rate
// is forced to zero and the legal mention is returned instead.
func ComputeTotals(lines []models.InvoiceLine, vatRate decimal.Decimal, franchise bool) (Totals, error) {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.TotalCents
	}
	if franchise {
		return Totals{
			SubtotalCents: subtotal,
			TotalCents:    subtotal,
			VATRate:       decimal.Zero,
			VATMention:    VATFranchiseMention,
		}, nil
	}
	if vatRate.IsNegative() || vatRate.GreaterThan(hundred) {
		return Totals{}, ErrInvalidVATRate
	}
	vat := decimal.NewFromInt(subtotal).Mul(vatRate).Div(hundred).Round(0).IntPart()
	return Totals{
		SubtotalCents: subtotal,
		VATCents:      vat,
		TotalCents:    subtotal + vat,
		VATRate:       vatRate,
	}, nil
}
