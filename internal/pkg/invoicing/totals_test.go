package invoicing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "F2025-0007", FormatNumber(2025, 7))
	assert.Equal(t, "F2026-12345", FormatNumber(2026, 12345))
}

func TestBuildLines(t *testing.T) {
	lines, err := BuildLines([]LineInput{
		{Description: " Développement ", Quantity: decimal.RequireFromString("1.5"), UnitPriceCents: 3333},
		{Description: "Hébergement", Quantity: decimal.NewFromInt(2), UnitPriceCents: 1000},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Développement", lines[0].Description)
	assert.Equal(t, 1, lines[0].Position)
	assert.Equal(t, int64(5000), lines[0].TotalCents)
	assert.Equal(t, int64(2000), lines[1].TotalCents)
}

func TestBuildLinesRejects(t *testing.T) {
	tests := []struct {
		name string
		in   []LineInput
		err  error
	}{
		{"no lines", nil, ErrNoLines},
		{"zero quantity", []LineInput{{Description: "x", Quantity: decimal.Zero, UnitPriceCents: 1}}, ErrInvalidQuantity},
		{"negative price", []LineInput{{Description: "x", Quantity: decimal.NewFromInt(1), UnitPriceCents: -1}}, ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildLines(tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := BuildLines([]LineInput{{Description: "  ", Quantity: decimal.NewFromInt(1)}})
	assert.Error(t, err)
}

func TestComputeTotals(t *testing.T) {
	lines, err := BuildLines([]LineInput{
		{Description: "a", Quantity: decimal.NewFromInt(1), UnitPriceCents: 12345},
		{Description: "b", Quantity: decimal.NewFromInt(3), UnitPriceCents: 1000},
	})
	require.NoError(t, err)

	tests := []struct {
		name      string
		rate      string
		franchise bool
		vat       int64
		total     int64
		mention   string
	}{
		{"franchise", "20", true, 0, 42345, VATFranchiseMention},
		{"standard rate", "20", false, 8469, 50814, ""},
		{"reduced rate", "5.5", false, 2329, 44674, ""},
		{"zero rate", "0", false, 0, 42345, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := ComputeTotals(lines, decimal.RequireFromString(tt.rate), tt.franchise)
			require.NoError(t, err)
			assert.Equal(t, int64(42345), totals.SubtotalCents)
			assert.Equal(t, tt.vat, totals.VATCents)
			assert.Equal(t, tt.total, totals.TotalCents)
			assert.Equal(t, tt.mention, totals.VATMention)
		})
	}

	_, err = ComputeTotals(lines, decimal.NewFromInt(120), false)
	assert.ErrorIs(t, err, ErrInvalidVATRate)
}
