package controllers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics/counter"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

// SimulationRequest is the body of POST /api/v1/simulate.
type SimulationRequest struct {
	Revenue              decimal.Decimal `json:"revenue"`
	Activity             string          `json:"activity" validate:"required"`
	Year                 int             `json:"year" validate:"omitempty,min=2020,max=2100"`
	ACRE                 bool            `json:"acre"`
	VersementLiberatoire bool            `json:"versement_liberatoire"`
	Artisan              bool            `json:"artisan"`
}

// IncomeTaxRequest is the body of POST /api/v1/simulate/income-tax.
type IncomeTaxRequest struct {
	Revenue     decimal.Decimal `json:"revenue"`
	Activity    string          `json:"activity" validate:"required"`
	Year        int             `json:"year" validate:"omitempty,min=2020,max=2100"`
	Parts       decimal.Decimal `json:"parts"`
	OtherIncome decimal.Decimal `json:"other_income"`
}

// SimulationController exposes the URSSAF calculator. Simulation is public,
// the income-tax estimate is premium.
type SimulationController struct {
	validate *validator.Validate
}

func NewSimulationController() *SimulationController {
	return &SimulationController{validate: validation.New()}
}

func (sc *SimulationController) HandleSimulate(c *fiber.Ctx) error {
	var req SimulationRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := sc.validate.Struct(req); err != nil {
		return respondError(c, err)
	}
	activity, err := urssaf.ParseActivity(req.Activity)
	if err != nil {
		return respondError(c, err)
	}
	sim, err := urssaf.Simulate(urssaf.SimulationInput{
		Revenue:              req.Revenue,
		Activity:             activity,
		Year:                 req.Year,
		ACRE:                 req.ACRE,
		VersementLiberatoire: req.VersementLiberatoire,
		Artisan:              req.Artisan,
	})
	if err != nil {
		return respondError(c, err)
	}
	metrics.Simulations.WithLabelValues(string(activity)).Inc()
	if err := counter.Add(c.UserContext(), counter.KindSimulations); err != nil {
		log.Warnf("[Simulation] Failed to count usage: %v", err)
	}
	return c.JSON(sim)
}

func (sc *SimulationController) HandleIncomeTax(c *fiber.Ctx) error {
	if err := entitlements.Require(currentUser(c).Plan, entitlements.FeatureIncomeTax); err != nil {
		return respondError(c, err)
	}
	var req IncomeTaxRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := sc.validate.Struct(req); err != nil {
		return respondError(c, err)
	}
	activity, err := urssaf.ParseActivity(req.Activity)
	if err != nil {
		return respondError(c, err)
	}
	est, err := urssaf.EstimateIncomeTax(urssaf.IncomeTaxInput{
		Revenue:     req.Revenue,
		Activity:    activity,
		Year:        req.Year,
		Parts:       req.Parts,
		OtherIncome: req.OtherIncome,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(est)
}

// HandleRates lists the supported activities with their current thresholds.
func (sc *SimulationController) HandleRates(c *fiber.Ctx) error {
	year := c.QueryInt("year", 0)
	out := make([]fiber.Map, 0, len(urssaf.Activities()))
	for _, a := range urssaf.Activities() {
		ceiling, vat, err := urssaf.Thresholds(year, a)
		if err != nil {
			return respondError(c, err)
		}
		out = append(out, fiber.Map{
			"activity":      a,
			"label":         a.Label(),
			"micro_ceiling": ceiling,
			"vat_threshold": vat,
		})
	}
	return c.JSON(fiber.Map{"years": urssaf.Years(), "activities": out})
}
