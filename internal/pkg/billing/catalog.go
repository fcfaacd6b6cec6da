package billing

import (
	"fmt"
	"strings"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

// Catalog maps sellable (plan, interval) pairs to Stripe price IDs.
type Catalog struct {
	prices map[string]string
}

func catalogKey(plan, interval string) string {
	return normalizePlan(plan) + ":" + normalizeInterval(interval)
}

// NewCatalog builds a catalog from "plan:interval" → price ID entries.
func NewCatalog(prices map[string]string) *Catalog {
	c := &Catalog{prices: make(map[string]string, len(prices))}
	for k, v := range prices {
		parts := strings.SplitN(k, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(v) == "" {
			continue
		}
		c.prices[catalogKey(parts[0], parts[1])] = strings.TrimSpace(v)
	}
	return c
}

// NewCatalogFromEnv reads STRIPE_PRICE_{PRO,PREMIUM}_{MONTHLY,YEARLY}.
func NewCatalogFromEnv() *Catalog {
	return NewCatalog(map[string]string{
		"pro:month":     env.GetEnv("STRIPE_PRICE_PRO_MONTHLY", ""),
		"pro:year":      env.GetEnv("STRIPE_PRICE_PRO_YEARLY", ""),
		"premium:month": env.GetEnv("STRIPE_PRICE_PREMIUM_MONTHLY", ""),
		"premium:year":  env.GetEnv("STRIPE_PRICE_PREMIUM_YEARLY", ""),
	})
}

// PriceID returns the price to charge for a paid plan and interval.
func (c *Catalog) PriceID(plan, interval string) (string, error) {
	p := entitlements.NormalizePlan(plan)
	if p == entitlements.PlanFree {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	id, ok := c.prices[catalogKey(plan, interval)]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrPriceNotConfigured, p, normalizeInterval(interval))
	}
	return id, nil
}

// Mappings returns the plan mappings implied by the catalog, ready for SeedPlanMappings.
func (c *Catalog) Mappings() []models.BillingPlanMapping {
	out := make([]models.BillingPlanMapping, 0, len(c.prices))
	for k, price := range c.prices {
		parts := strings.SplitN(k, ":", 2)
		out = append(out, models.BillingPlanMapping{
			Provider:        models.BillingProviderStripe,
			ProviderPlanRef: price,
			InternalPlan:    parts[0],
			BillingInterval: parts[1],
			IsActive:        true,
		})
	}
	return out
}
