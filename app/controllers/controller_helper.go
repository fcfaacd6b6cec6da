package controllers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/assistant"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/attribution"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/billing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/invoicing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/records"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/security"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/usercontext"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

var errInvalidBody = errors.New("invalid request body")

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// respondError maps domain errors to their HTTP answer. Unknown errors are
// logged and hidden behind a 500.
func respondError(c *fiber.Ctx, err error) error {
	if fields, ok := validation.Fields(err); ok {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request",
			"fields":  fields,
		})
	}

	switch {
	case errors.Is(err, errInvalidBody):
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	case errors.Is(err, entitlements.ErrPlanRequired):
		return jsonError(c, fiber.StatusPaymentRequired, "plan_required", "Your plan does not include this feature")
	case errors.Is(err, records.ErrQuotaExceeded):
		return jsonError(c, fiber.StatusPaymentRequired, "quota_exceeded", err.Error())
	case errors.Is(err, assistant.ErrDailyLimit):
		return jsonError(c, fiber.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, invoicing.ErrNotFound),
		errors.Is(err, records.ErrNotFound),
		errors.Is(err, invoicing.ErrNotArchived),
		errors.Is(err, billing.ErrNoSubscription),
		errors.Is(err, billing.ErrNoCustomer),
		errors.Is(err, gorm.ErrRecordNotFound),
		isLinkError(err):
		return jsonError(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, invoicing.ErrNotEditable),
		errors.Is(err, invoicing.ErrInvalidTransition):
		return jsonError(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, urssaf.ErrNegativeRevenue),
		errors.Is(err, urssaf.ErrInvalidParts),
		errors.Is(err, urssaf.ErrUnknownActivity),
		errors.Is(err, urssaf.ErrInvalidPeriod),
		errors.Is(err, invoicing.ErrNoLines),
		errors.Is(err, invoicing.ErrInvalidQuantity),
		errors.Is(err, invoicing.ErrInvalidPrice),
		errors.Is(err, invoicing.ErrInvalidVATRate),
		errors.Is(err, invoicing.ErrInvalidDates),
		errors.Is(err, billing.ErrUnknownPlan),
		errors.Is(err, attribution.ErrMissingVisitor):
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, billing.ErrNoGateway),
		errors.Is(err, billing.ErrPriceNotConfigured),
		errors.Is(err, invoicing.ErrNoArchive),
		errors.Is(err, assistant.ErrNotConfigured):
		return jsonError(c, fiber.StatusServiceUnavailable, "unavailable", err.Error())
	}

	log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Unexpected error")
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func parseID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// queryYear reads ?year, defaulting to the current year.
func queryYear(c *fiber.Ctx, now time.Time) (int, bool) {
	raw := c.Query("year")
	if raw == "" {
		return now.Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 2100 {
		return 0, false
	}
	return year, true
}

func currentUser(c *fiber.Ctx) usercontext.UserContext {
	return usercontext.GetUserContext(c)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func isLinkError(err error) bool {
	return errors.Is(err, security.ErrTokenMalformed) ||
		errors.Is(err, security.ErrTokenSignature) ||
		errors.Is(err, security.ErrTokenExpired)
}
