package billing

import (
	"strings"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
)

func normalizePlan(plan string) string {
	return string(entitlements.NormalizePlan(plan))
}

func planRank(plan string) int {
	return entitlements.Rank(entitlements.NormalizePlan(plan))
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	case "monthly":
		return models.BillingIntervalMonth
	case "yearly", "annual":
		return models.BillingIntervalYear
	default:
		return models.BillingIntervalUnknown
	}
}

// MapStripeStatus converts a Stripe subscription status into the local status set.
func MapStripeStatus(status string) string {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case models.BillingStatusActive,
		models.BillingStatusTrialing,
		models.BillingStatusPastDue,
		models.BillingStatusCanceled,
		models.BillingStatusUnpaid,
		models.BillingStatusIncomplete,
		models.BillingStatusPaused:
		return s
	case "incomplete_expired":
		return models.BillingStatusExpired
	case "cancelled":
		return models.BillingStatusCanceled
	default:
		return models.BillingStatusIncomplete
	}
}
