package records

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database/dbtest"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
)

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *repository.Repositories) {
	t.Helper()
	repos := repository.NewRepositories(dbtest.Open(t))
	_, err := repos.Profile.GetOrCreate("user-1", "me@example.com")
	require.NoError(t, err)
	svc := NewService(repos.Record, repos.Profile, WithClock(func() time.Time { return testNow }))
	return svc, repos
}

func TestUpsertComputesContributions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, created, err := svc.Upsert(ctx, "user-1", "free", Input{Period: "2025-01", RevenueCents: 100000})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "services_bic", rec.Activity)
	assert.Equal(t, int64(21200), rec.ContributionsCents)
	assert.Equal(t, int64(100), rec.CFPCents)
	assert.Equal(t, int64(0), rec.IncomeTaxCents)
	assert.Equal(t, int64(78700), rec.NetCents())

	updated, created, err := svc.Upsert(ctx, "user-1", "free", Input{Period: "2025-01", RevenueCents: 50000, Note: "corrigé"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, int64(10600), updated.ContributionsCents)
	assert.Equal(t, "corrigé", updated.Note)
}

func TestUpsertUsesProfileOptions(t *testing.T) {
	svc, repos := newTestService(t)
	p, err := repos.Profile.GetByUserID("user-1")
	require.NoError(t, err)
	p.ACRE = true
	p.VersementLiberatoire = true
	require.NoError(t, repos.Profile.Update(p))

	rec, _, err := svc.Upsert(context.Background(), "user-1", "pro", Input{Period: "2025-02", Activity: "vente", RevenueCents: 1000000})
	require.NoError(t, err)
	// 12.3% halved by ACRE, 1% versement libératoire, 0.1% CFP
	assert.Equal(t, int64(61500), rec.ContributionsCents)
	assert.Equal(t, int64(10000), rec.IncomeTaxCents)
	assert.Equal(t, int64(1000), rec.CFPCents)
}

func TestUpsertValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   Input
	}{
		{"missing period", Input{RevenueCents: 1}},
		{"bad period", Input{Period: "2025/01", RevenueCents: 1}},
		{"negative revenue", Input{Period: "2025-01", RevenueCents: -1}},
		{"unknown activity", Input{Period: "2025-01", Activity: "farming", RevenueCents: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Upsert(ctx, "user-1", "free", tt.in)
			assert.Error(t, err)
		})
	}
}

func TestFreeQuota(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, period := range []string{"2025-01", "2025-02", "2025-03"} {
		_, _, err := svc.Upsert(ctx, "user-1", "free", Input{Period: period, RevenueCents: 1000})
		require.NoError(t, err)
	}

	_, _, err := svc.Upsert(ctx, "user-1", "free", Input{Period: "2024-12", RevenueCents: 1000})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// updating an existing record is not a new record
	_, created, err := svc.Upsert(ctx, "user-1", "free", Input{Period: "2025-01", RevenueCents: 2000})
	require.NoError(t, err)
	assert.False(t, created)

	_, created, err = svc.Upsert(ctx, "user-1", "pro", Input{Period: "2024-12", RevenueCents: 1000})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestFreeQuotaIgnoresDeletes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var last *models.RevenueRecord
	for _, period := range []string{"2025-01", "2025-02", "2025-03"} {
		rec, _, err := svc.Upsert(ctx, "user-1", "free", Input{Period: period, RevenueCents: 1000})
		require.NoError(t, err)
		last = rec
	}
	require.NoError(t, svc.Delete(ctx, "user-1", last.ID))

	_, _, err := svc.Upsert(ctx, "user-1", "free", Input{Period: "2024-12", RevenueCents: 1000})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	list, err := svc.List(ctx, "user-1", 2024)
	require.NoError(t, err)
	assert.Empty(t, list, "a refused record leaves nothing behind")

	sum, err := svc.Summary(ctx, "user-1", "free", 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.RecordsThisMonth)
}

func TestRecordInvoice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	paidAt := time.Date(2025, time.February, 14, 10, 0, 0, 0, time.UTC)
	inv := &models.Invoice{ID: 7, UserID: "user-1", Number: "F2025-0007", SubtotalCents: 50000, TotalCents: 60000, Activity: "services_bic", PaidAt: &paidAt}

	rec, err := svc.RecordInvoice(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, "2025-02", rec.Period)
	assert.Equal(t, int64(50000), rec.RevenueCents)
	require.NotNil(t, rec.InvoiceID)
	assert.Equal(t, uint(7), *rec.InvoiceID)
	assert.Equal(t, "Facture F2025-0007", rec.Note)

	again, err := svc.RecordInvoice(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), again.RevenueCents)

	other := &models.Invoice{ID: 8, UserID: "user-1", Number: "F2025-0008", SubtotalCents: 25000, Activity: "services_bic", PaidAt: &paidAt}
	rec, err = svc.RecordInvoice(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int64(75000), rec.RevenueCents)
	assert.Equal(t, int64(15900), rec.ContributionsCents)

	_, err = svc.RecordInvoice(ctx, &models.Invoice{ID: 9, UserID: "user-1"})
	assert.ErrorIs(t, err, ErrNotPaid)
}

func TestListAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, _, err := svc.Upsert(ctx, "user-1", "pro", Input{Period: "2025-01", RevenueCents: 1000})
	require.NoError(t, err)
	_, _, err = svc.Upsert(ctx, "user-1", "pro", Input{Period: "2024-11", RevenueCents: 1000})
	require.NoError(t, err)

	list, err := svc.List(ctx, "user-1", 2025)
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.ErrorIs(t, svc.Delete(ctx, "someone-else", rec.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "user-1", rec.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "user-1", rec.ID), ErrNotFound)
}

func TestRecomputeYear(t *testing.T) {
	svc, repos := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Upsert(ctx, "user-1", "pro", Input{Period: "2025-01", RevenueCents: 100000})
	require.NoError(t, err)

	p, err := repos.Profile.GetByUserID("user-1")
	require.NoError(t, err)
	p.ACRE = true
	require.NoError(t, repos.Profile.Update(p))

	n, err := svc.RecomputeYear(ctx, "user-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	list, err := svc.List(ctx, "user-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(10600), list[0].ContributionsCents)
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Upsert(ctx, "user-1", "pro", Input{Period: "2025-01", RevenueCents: 100000})
	require.NoError(t, err)
	_, _, err = svc.Upsert(ctx, "user-1", "pro", Input{Period: "2025-02", RevenueCents: 200000})
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, "user-1", "pro", 0)
	require.NoError(t, err)
	assert.Equal(t, 2025, sum.Year)
	assert.Equal(t, int64(300000), sum.RevenueCents)
	assert.Equal(t, int64(63600), sum.ContributionsCents)
	assert.Equal(t, int64(300), sum.CFPCents)
	assert.Equal(t, int64(236100), sum.NetCents)
	assert.Equal(t, int64(7770000), sum.CeilingCents)
	assert.True(t, sum.CeilingProgress.Equal(decimal.RequireFromString("3.86")), sum.CeilingProgress.String())
	assert.True(t, sum.VATThresholdProgress.Equal(decimal.NewFromInt(8)), sum.VATThresholdProgress.String())
	require.Len(t, sum.Months, 2)
	assert.Equal(t, "2025-02", sum.Months[1].Period)

	assert.Equal(t, "2025-02", sum.NextDeclaration.Label)
	assert.Equal(t, "2025-03-31", sum.NextDeclaration.Deadline.Format("2006-01-02"))
	assert.Equal(t, 21, sum.NextDeclaration.DaysLeft)
	assert.Equal(t, int64(200000), sum.NextDeclaration.RevenueCents)
	assert.True(t, sum.NextDeclaration.Recorded)
	assert.Equal(t, entitlements.Unlimited, sum.MonthlyQuota)
}

func TestExportCSV(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Upsert(ctx, "user-1", "pro", Input{Period: "2025-01", RevenueCents: 100000, Note: "janvier"})
	require.NoError(t, err)

	var buf bytes.Buffer
	assert.ErrorIs(t, svc.ExportCSV(ctx, &buf, "user-1", "free", 2025), entitlements.ErrPlanRequired)

	buf.Reset()
	require.NoError(t, svc.ExportCSV(ctx, &buf, "user-1", "pro", 2025))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"2025-01", "services_bic", "1000.00", "212.00", "1.00", "0.00", "787.00", "", "janvier"}, rows[1])
}
