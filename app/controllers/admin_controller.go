package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/attribution"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/billing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/jobqueue"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics/counter"
)

const statsDays = 7

// AdminController serves the operator dashboard data.
type AdminController struct {
	repos       *repository.Repositories
	attribution *attribution.Service
	billing     *billing.Service
	queue       *jobqueue.Queue
}

// NewAdminController creates a new admin controller. billing and queue may be
// nil when those backends are not configured.
func NewAdminController(repos *repository.Repositories, attr *attribution.Service, bill *billing.Service, queue *jobqueue.Queue) *AdminController {
	return &AdminController{repos: repos, attribution: attr, billing: bill, queue: queue}
}

// HandleStats returns plan counts, daily usage counters and queue health.
func (ac *AdminController) HandleStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	plans, err := ac.repos.Profile.CountByPlan()
	if err != nil {
		return respondError(c, err)
	}

	usage := fiber.Map{}
	for _, kind := range []string{counter.KindSimulations, counter.KindAssistant, counter.KindTouches, counter.KindSignups} {
		points, err := counter.Daily(ctx, kind, time.Now(), statsDays)
		if err != nil {
			log.Warnf("[Admin] Failed to read %s counters: %v", kind, err)
			continue
		}
		usage[kind] = fiber.Map{"total": counter.Total(points), "days": points}
	}

	resp := fiber.Map{"plans": plans, "usage": usage}
	if ac.queue != nil {
		resp["queue"] = ac.queueStats(c)
	}
	return c.JSON(resp)
}

func (ac *AdminController) queueStats(c *fiber.Ctx) fiber.Map {
	ctx := c.UserContext()
	out := fiber.Map{}
	if stats, err := ac.queue.GetJobStats(ctx); err == nil {
		out["jobs"] = stats
	} else {
		log.Warnf("[Admin] Failed to read job stats: %v", err)
	}
	if depth, err := ac.queue.Depth(ctx); err == nil {
		out["depth"] = depth
	} else {
		log.Warnf("[Admin] Failed to read queue depth: %v", err)
	}
	return out
}

// HandleAttribution returns visitors and conversions per source over ?days (default 30).
func (ac *AdminController) HandleAttribution(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	if days <= 0 || days > 366 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "days must be between 1 and 366")
	}
	report, err := ac.attribution.Report(c.UserContext(), days)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// HandleJob looks up one background job by id.
func (ac *AdminController) HandleJob(c *fiber.Ctx) error {
	if ac.queue == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "unavailable", "Job queue is not configured")
	}
	job, err := ac.queue.GetJob(c.UserContext(), c.Params("id"))
	if err != nil || job == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
	}
	return c.JSON(job)
}

// HandleReconcile recomputes the plan of a user from their subscriptions.
func (ac *AdminController) HandleReconcile(c *fiber.Ctx) error {
	if ac.billing == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "unavailable", "Billing is not configured")
	}
	userID := c.Params("user")
	plan, err := ac.billing.ReconcileUserPlan(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	log.Infof("[Admin] %s reconciled plan of %s to %s", currentUser(c).Email, userID, plan)
	return c.JSON(fiber.Map{"user_id": userID, "plan": plan})
}
