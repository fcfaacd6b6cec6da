package controllers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/invoicing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

type markPaidBody struct {
	PaidAt string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	Record *bool  `json:"record"`
}

// InvoiceController manages the invoices of the logged-in user and serves the
// signed public view.
type InvoiceController struct {
	svc      *invoicing.Service
	validate *validator.Validate
}

func NewInvoiceController(svc *invoicing.Service) *InvoiceController {
	return &InvoiceController{svc: svc, validate: validation.New()}
}

func (ic *InvoiceController) HandleList(c *fiber.Ctx) error {
	filter := repository.InvoiceFilter{Year: c.QueryInt("year", 0), Status: strings.TrimSpace(c.Query("status"))}
	switch filter.Status {
	case "", models.InvoiceStatusDraft, models.InvoiceStatusSent, models.InvoiceStatusPaid,
		models.InvoiceStatusOverdue, models.InvoiceStatusCancelled:
	default:
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown status filter")
	}
	list, err := ic.svc.List(c.UserContext(), currentUser(c).UserID, filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoices": list})
}

func (ic *InvoiceController) HandleCreate(c *fiber.Ctx) error {
	user := currentUser(c)
	var in invoicing.Input
	if err := parseBody(c, &in); err != nil {
		return respondError(c, err)
	}
	inv, err := ic.svc.Create(c.UserContext(), user.UserID, user.Plan, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

func (ic *InvoiceController) HandleGet(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid invoice id")
	}
	inv, err := ic.svc.Get(c.UserContext(), currentUser(c).UserID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

func (ic *InvoiceController) HandleUpdate(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid invoice id")
	}
	var in invoicing.Input
	if err := parseBody(c, &in); err != nil {
		return respondError(c, err)
	}
	inv, err := ic.svc.Update(c.UserContext(), currentUser(c).UserID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

func (ic *InvoiceController) HandleSend(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid invoice id")
	}
	inv, err := ic.svc.Send(c.UserContext(), currentUser(c).UserID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// HandleMarkPaid records the revenue of the invoice unless {"record": false}.
// Calling it again on a paid invoice retries a recording that failed.
func (ic *InvoiceController) HandleMarkPaid(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid invoice id")
	}
	var body markPaidBody
	if len(c.Body()) > 0 {
		if err := parseBody(c, &body); err != nil {
			return respondError(c, err)
		}
	}
	if err := ic.validate.Struct(body); err != nil {
		return respondError(c, err)
	}
	var paidAt *time.Time
	if body.PaidAt != "" {
		t, err := time.Parse("2006-01-02", body.PaidAt)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid paid_at")
		}
		paidAt = &t
	}
	record := body.Record == nil || *body.Record
	inv, err := ic.svc.MarkPaid(c.UserContext(), currentUser(c).UserID, id, paidAt, record)
	if err != nil {
		// the invoice is paid even when its revenue could not be recorded
		if inv != nil {
			return c.JSON(fiber.Map{"invoice": inv, "warning": "revenue_not_recorded"})
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoice": inv})
}

func (ic *InvoiceController) HandleCancel(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid invoice id")
	}
	inv, err := ic.svc.Cancel(c.UserContext(), currentUser(c).UserID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// HandleLink returns the signed client link of a sent invoice.
func (ic *InvoiceController) HandleLink(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid invoice id")
	}
	inv, err := ic.svc.Get(c.UserContext(), currentUser(c).UserID, id)
	if err != nil {
		return respondError(c, err)
	}
	if inv.Status == models.InvoiceStatusDraft {
		return respondError(c, invoicing.ErrInvalidTransition)
	}
	link, err := ic.svc.Link(inv)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": link})
}

// HandleHTML renders the printable invoice for its owner, drafts included.
func (ic *InvoiceController) HandleHTML(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid invoice id")
	}
	inv, err := ic.svc.Get(c.UserContext(), currentUser(c).UserID, id)
	if err != nil {
		return respondError(c, err)
	}
	return ic.render(c, inv)
}

// HandleArchive downloads the copy archived when the invoice was sent.
func (ic *InvoiceController) HandleArchive(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid invoice id")
	}
	body, err := ic.svc.ArchivedCopy(c.UserContext(), currentUser(c).UserID, id)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="facture-%d.html"`, id))
	return c.Send(body)
}

// HandlePublicView serves GET /invoices/view/:token to the invoiced client.
func (ic *InvoiceController) HandlePublicView(c *fiber.Ctx) error {
	inv, err := ic.svc.ResolveLink(c.UserContext(), c.Params("token"))
	if err != nil {
		if errors.Is(err, invoicing.ErrNotFound) || isLinkError(err) {
			return c.Status(fiber.StatusNotFound).SendString("Facture introuvable ou lien expiré.")
		}
		return respondError(c, err)
	}
	return ic.render(c, inv)
}

func (ic *InvoiceController) render(c *fiber.Ctx, inv *models.Invoice) error {
	vm, err := ic.svc.View(c.UserContext(), inv)
	if err != nil {
		return respondError(c, err)
	}
	c.Set("X-Robots-Tag", "noindex")
	return c.Render(invoicing.ShowTemplate, vm)
}
