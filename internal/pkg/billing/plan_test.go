package billing

import (
	"testing"
	"time"

	"github.com/aarontmr/comptalyze-sub003/app/models"
)

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "free", want: "free"},
		{in: "pro", want: "pro"},
		{in: "premium", want: "premium"},
		{in: "PREMIUM", want: "premium"},
		{in: "invalid", want: "free"},
	}

	for _, tt := range tests {
		if got := normalizePlan(tt.in); got != tt.want {
			t.Fatalf("normalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanRank(t *testing.T) {
	if planRank("free") >= planRank("pro") {
		t.Fatalf("expected pro to outrank free")
	}
	if planRank("pro") >= planRank("premium") {
		t.Fatalf("expected premium to outrank pro")
	}
}

func TestNormalizeInterval(t *testing.T) {
	tests := map[string]string{
		"month":   "month",
		"YEAR":    "year",
		"monthly": "month",
		"annual":  "year",
		"week":    "unknown",
		"":        "unknown",
	}
	for in, want := range tests {
		if got := normalizeInterval(in); got != want {
			t.Fatalf("normalizeInterval(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	for _, status := range []string{"active", "trialing", "past_due"} {
		if !models.EntitlingStatus(status) {
			t.Fatalf("expected status %q to be entitling", status)
		}
	}
	for _, status := range []string{"canceled", "unpaid", "incomplete", "expired", "paused"} {
		if models.EntitlingStatus(status) {
			t.Fatalf("expected status %q to be non-entitling", status)
		}
	}
}

func TestIsEntitlingTrialEnd(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	running := models.BillingSubscription{Status: "trialing", TrialEnd: &future}
	elapsed := models.BillingSubscription{Status: "trialing", TrialEnd: &past}
	converted := models.BillingSubscription{Status: "active", TrialEnd: &past}

	if !running.Entitles(now) {
		t.Fatalf("expected running trial to entitle")
	}
	if elapsed.Entitles(now) {
		t.Fatalf("expected elapsed trial not to entitle")
	}
	if !converted.Entitles(now) {
		t.Fatalf("expected active subscription with old trial to entitle")
	}
}

func TestMapStripeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "active", want: models.BillingStatusActive},
		{in: "trialing", want: models.BillingStatusTrialing},
		{in: "past_due", want: models.BillingStatusPastDue},
		{in: "unpaid", want: models.BillingStatusUnpaid},
		{in: "paused", want: models.BillingStatusPaused},
		{in: "incomplete_expired", want: models.BillingStatusExpired},
		{in: "canceled", want: models.BillingStatusCanceled},
		{in: "weird", want: models.BillingStatusIncomplete},
	}
	for _, tt := range tests {
		if got := MapStripeStatus(tt.in); got != tt.want {
			t.Fatalf("MapStripeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
