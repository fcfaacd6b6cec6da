package apiv1

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ServerInterface lists the operations of public/docs/v1/openapi.yml.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	GetRates(c *fiber.Ctx) error
	PostSimulate(c *fiber.Ctx) error
	PostIncomeTax(c *fiber.Ctx) error

	GetProfile(c *fiber.Ctx) error
	PutProfile(c *fiber.Ctx) error

	GetSubscription(c *fiber.Ctx) error
	PostCheckout(c *fiber.Ctx) error
	PostPortal(c *fiber.Ctx) error
	PostCancelSubscription(c *fiber.Ctx) error

	GetDashboard(c *fiber.Ctx) error
	ListRecords(c *fiber.Ctx) error
	PostRecord(c *fiber.Ctx) error
	ExportRecords(c *fiber.Ctx) error
	DeleteRecord(c *fiber.Ctx, id uint) error

	ListInvoices(c *fiber.Ctx) error
	PostInvoice(c *fiber.Ctx) error
	GetInvoice(c *fiber.Ctx, id uint) error
	PutInvoice(c *fiber.Ctx, id uint) error
	PostInvoiceSend(c *fiber.Ctx, id uint) error
	PostInvoicePay(c *fiber.Ctx, id uint) error
	PostInvoiceCancel(c *fiber.Ctx, id uint) error
	GetInvoiceLink(c *fiber.Ctx, id uint) error
	GetInvoiceHTML(c *fiber.Ctx, id uint) error
	GetInvoiceArchive(c *fiber.Ctx, id uint) error

	PostTrack(c *fiber.Ctx) error
	PostIdentify(c *fiber.Ctx) error

	PostAssistant(c *fiber.Ctx) error

	GetAdminStats(c *fiber.Ctx) error
	GetAdminAttribution(c *fiber.Ctx) error
	GetAdminJob(c *fiber.Ctx, id string) error
	PostAdminReconcile(c *fiber.Ctx, user string) error
}

// FiberServerOptions configures RegisterHandlersWithOptions. RequireUser and
// RequireAdmin guard the operations secured by bearerAuth and adminAuth.
type FiberServerOptions struct {
	BaseURL      string
	Middlewares  []fiber.Handler
	RequireUser  fiber.Handler
	RequireAdmin fiber.Handler
}

// ServerInterfaceWrapper converts path parameters before calling the server.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func idParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid format for parameter id: %q", c.Params("id")))
	}
	return uint(id), nil
}

func (w *ServerInterfaceWrapper) withID(call func(*fiber.Ctx, uint) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		return call(c, id)
	}
}

func (w *ServerInterfaceWrapper) withString(name string, call func(*fiber.Ctx, string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v := c.Params(name)
		if v == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Missing parameter "+name)
		}
		return call(c, v)
	}
}

// RegisterHandlers creates http.Handler with routing matching the OpenAPI document.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, FiberServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router fiber.Router, si ServerInterface, options FiberServerOptions) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	for _, m := range options.Middlewares {
		router.Use(m)
	}

	chain := func(guard fiber.Handler, h fiber.Handler) []fiber.Handler {
		if guard == nil {
			return []fiber.Handler{h}
		}
		return []fiber.Handler{guard, h}
	}
	user := func(h fiber.Handler) []fiber.Handler { return chain(options.RequireUser, h) }
	admin := func(h fiber.Handler) []fiber.Handler { return chain(options.RequireAdmin, h) }
	base := options.BaseURL

	router.Get(base+"/ping", si.GetPing)
	router.Get(base+"/rates", si.GetRates)
	router.Post(base+"/simulate", si.PostSimulate)
	router.Post(base+"/simulate/income-tax", user(si.PostIncomeTax)...)

	router.Get(base+"/me", user(si.GetProfile)...)
	router.Put(base+"/me", user(si.PutProfile)...)

	router.Get(base+"/billing/subscription", user(si.GetSubscription)...)
	router.Post(base+"/billing/checkout", user(si.PostCheckout)...)
	router.Post(base+"/billing/portal", user(si.PostPortal)...)
	router.Post(base+"/billing/cancel", user(si.PostCancelSubscription)...)

	router.Get(base+"/dashboard", user(si.GetDashboard)...)
	router.Get(base+"/records", user(si.ListRecords)...)
	router.Post(base+"/records", user(si.PostRecord)...)
	router.Get(base+"/records/export", user(si.ExportRecords)...)
	router.Delete(base+"/records/:id", user(wrapper.withID(si.DeleteRecord))...)

	router.Get(base+"/invoices", user(si.ListInvoices)...)
	router.Post(base+"/invoices", user(si.PostInvoice)...)
	router.Get(base+"/invoices/:id", user(wrapper.withID(si.GetInvoice))...)
	router.Put(base+"/invoices/:id", user(wrapper.withID(si.PutInvoice))...)
	router.Post(base+"/invoices/:id/send", user(wrapper.withID(si.PostInvoiceSend))...)
	router.Post(base+"/invoices/:id/pay", user(wrapper.withID(si.PostInvoicePay))...)
	router.Post(base+"/invoices/:id/cancel", user(wrapper.withID(si.PostInvoiceCancel))...)
	router.Get(base+"/invoices/:id/link", user(wrapper.withID(si.GetInvoiceLink))...)
	router.Get(base+"/invoices/:id/html", user(wrapper.withID(si.GetInvoiceHTML))...)
	router.Get(base+"/invoices/:id/archive", user(wrapper.withID(si.GetInvoiceArchive))...)

	router.Post(base+"/track", si.PostTrack)
	router.Post(base+"/track/identify", user(si.PostIdentify)...)

	router.Post(base+"/assistant", user(si.PostAssistant)...)

	router.Get(base+"/admin/stats", admin(si.GetAdminStats)...)
	router.Get(base+"/admin/attribution", admin(si.GetAdminAttribution)...)
	router.Get(base+"/admin/jobs/:id", admin(wrapper.withString("id", si.GetAdminJob))...)
	router.Post(base+"/admin/billing/reconcile/:user", admin(wrapper.withString("user", si.PostAdminReconcile))...)
}
