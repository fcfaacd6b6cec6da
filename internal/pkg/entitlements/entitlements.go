package entitlements

import (
	"errors"
	"fmt"
	"strings"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

type Feature string

const (
	FeatureRecords   Feature = "records"
	FeatureInvoices  Feature = "invoices"
	FeatureExport    Feature = "export"
	FeatureReminders Feature = "reminders"
	FeatureIncomeTax Feature = "income_tax"
	FeatureAssistant Feature = "assistant"
)

// TrialDays is the length of the trial granted on the first checkout.
const TrialDays = 3

// FreeMonthlyRecords is the number of revenue records a free user may add per calendar month.
const FreeMonthlyRecords = 3

// Unlimited marks a quota without an upper bound.
const Unlimited = -1

// ErrPlanRequired is returned when the caller's plan lacks a feature.
var ErrPlanRequired = errors.New("plan upgrade required")

// minimum plan required for each gated feature
var featurePlans = map[Feature]Plan{
	FeatureRecords:   PlanFree,
	FeatureInvoices:  PlanPro,
	FeatureExport:    PlanPro,
	FeatureReminders: PlanPro,
	FeatureIncomeTax: PlanPremium,
	FeatureAssistant: PlanPremium,
}

// NormalizePlan maps arbitrary input to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanPro:
		return PlanPro
	case PlanPremium:
		return PlanPremium
	default:
		return PlanFree
	}
}

// IsPaid reports whether the raw plan string names a paid plan.
func IsPaid(plan string) bool {
	return NormalizePlan(plan) != PlanFree
}

// Rank orders plans so that a higher rank grants a superset of features.
func Rank(plan Plan) int {
	switch NormalizePlan(string(plan)) {
	case PlanPremium:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// RequiredPlan returns the cheapest plan granting the feature.
func RequiredPlan(feature Feature) Plan {
	if p, ok := featurePlans[feature]; ok {
		return p
	}
	return PlanPremium
}

// Allows reports whether the plan grants the feature. Unknown features are denied
// to everyone but premium.
func Allows(plan Plan, feature Feature) bool {
	return Rank(plan) >= Rank(RequiredPlan(feature))
}

// MonthlyRecordQuota returns how many records the plan may create per month.
func MonthlyRecordQuota(plan Plan) int {
	if NormalizePlan(string(plan)) == PlanFree {
		return FreeMonthlyRecords
	}
	return Unlimited
}

// Features lists the features granted by a plan, in a stable order.
func Features(plan Plan) []Feature {
	all := []Feature{FeatureRecords, FeatureInvoices, FeatureExport, FeatureReminders, FeatureIncomeTax, FeatureAssistant}
	out := make([]Feature, 0, len(all))
	for _, f := range all {
		if Allows(plan, f) {
			out = append(out, f)
		}
	}
	return out
}

// Require returns an error wrapping ErrPlanRequired when plan does not grant feature.
func Require(plan string, feature Feature) error {
	if Allows(NormalizePlan(plan), feature) {
		return nil
	}
	return fmt.Errorf("%w: %s needs the %s plan", ErrPlanRequired, feature, RequiredPlan(feature))
}
