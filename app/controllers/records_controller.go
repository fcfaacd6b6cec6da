package controllers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/records"
)

// RecordsController serves revenue declarations and the dashboard.
type RecordsController struct {
	svc *records.Service
	now func() time.Time
}

func NewRecordsController(svc *records.Service) *RecordsController {
	return &RecordsController{svc: svc, now: time.Now}
}

func (rc *RecordsController) HandleList(c *fiber.Ctx) error {
	year, ok := queryYear(c, rc.now())
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid year")
	}
	list, err := rc.svc.List(c.UserContext(), currentUser(c).UserID, year)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"year": year, "records": list})
}

// HandleUpsert answers 201 when a record was created and 200 when an existing
// period was replaced.
func (rc *RecordsController) HandleUpsert(c *fiber.Ctx) error {
	user := currentUser(c)
	var in records.Input
	if err := parseBody(c, &in); err != nil {
		return respondError(c, err)
	}
	rec, created, err := rc.svc.Upsert(c.UserContext(), user.UserID, user.Plan, in)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(rec)
}

func (rc *RecordsController) HandleDelete(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid record id")
	}
	if err := rc.svc.Delete(c.UserContext(), currentUser(c).UserID, id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (rc *RecordsController) HandleSummary(c *fiber.Ctx) error {
	user := currentUser(c)
	year, ok := queryYear(c, rc.now())
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid year")
	}
	sum, err := rc.svc.Summary(c.UserContext(), user.UserID, user.Plan, year)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sum)
}

func (rc *RecordsController) HandleExport(c *fiber.Ctx) error {
	user := currentUser(c)
	year, ok := queryYear(c, rc.now())
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid year")
	}
	var buf bytes.Buffer
	if err := rc.svc.ExportCSV(c.UserContext(), &buf, user.UserID, user.Plan, year); err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="comptalyze-%d.csv"`, year))
	return c.Send(buf.Bytes())
}
