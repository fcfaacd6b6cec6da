package records

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
)

var csvHeader = []string{"period", "activity", "revenue", "contributions", "cfp", "income_tax", "net", "invoice_id", "note"}

func euros(cents int64) string {
	return urssaf.FromCents(cents).StringFixed(2)
}

// ExportCSV writes a year of records as CSV. Amounts are in euros with a dot
// decimal separator.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, userID, plan string, year int) error {
	if err := entitlements.Require(plan, entitlements.FeatureExport); err != nil {
		return err
	}
	recs, err := s.List(ctx, userID, year)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range recs {
		invoice := ""
		if r.InvoiceID != nil {
			invoice = strconv.FormatUint(uint64(*r.InvoiceID), 10)
		}
		row := []string{
			r.Period,
			r.Activity,
			euros(r.RevenueCents),
			euros(r.ContributionsCents),
			euros(r.CFPCents),
			euros(r.IncomeTaxCents),
			euros(r.NetCents()),
			invoice,
			r.Note,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
