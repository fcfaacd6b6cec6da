package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/aarontmr/comptalyze-sub003/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	ctrl *controllers.Controllers
}

// NewAPIServer creates a new API server instance
func NewAPIServer(ctrl *controllers.Controllers) *APIServer {
	return &APIServer{ctrl: ctrl}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (s *APIServer) GetRates(c *fiber.Ctx) error {
	return s.ctrl.Simulation.HandleRates(c)
}

// PostSimulate is public so the landing page calculator works without an account.
func (s *APIServer) PostSimulate(c *fiber.Ctx) error {
	return s.ctrl.Simulation.HandleSimulate(c)
}

func (s *APIServer) PostIncomeTax(c *fiber.Ctx) error {
	return s.ctrl.Simulation.HandleIncomeTax(c)
}

func (s *APIServer) GetProfile(c *fiber.Ctx) error {
	return s.ctrl.Profile.HandleGet(c)
}

func (s *APIServer) PutProfile(c *fiber.Ctx) error {
	return s.ctrl.Profile.HandleUpdate(c)
}

func (s *APIServer) GetSubscription(c *fiber.Ctx) error {
	return s.ctrl.Billing.HandleSubscription(c)
}

func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	return s.ctrl.Billing.HandleCheckout(c)
}

func (s *APIServer) PostPortal(c *fiber.Ctx) error {
	return s.ctrl.Billing.HandlePortal(c)
}

func (s *APIServer) PostCancelSubscription(c *fiber.Ctx) error {
	return s.ctrl.Billing.HandleCancel(c)
}

func (s *APIServer) GetDashboard(c *fiber.Ctx) error {
	return s.ctrl.Records.HandleSummary(c)
}

func (s *APIServer) ListRecords(c *fiber.Ctx) error {
	return s.ctrl.Records.HandleList(c)
}

func (s *APIServer) PostRecord(c *fiber.Ctx) error {
	return s.ctrl.Records.HandleUpsert(c)
}

func (s *APIServer) ExportRecords(c *fiber.Ctx) error {
	return s.ctrl.Records.HandleExport(c)
}

// DeleteRecord and the invoice operations read the id again from the route;
// the wrapper already rejected malformed ids.
func (s *APIServer) DeleteRecord(c *fiber.Ctx, id uint) error {
	return s.ctrl.Records.HandleDelete(c)
}

func (s *APIServer) ListInvoices(c *fiber.Ctx) error {
	return s.ctrl.Invoices.HandleList(c)
}

func (s *APIServer) PostInvoice(c *fiber.Ctx) error {
	return s.ctrl.Invoices.HandleCreate(c)
}

func (s *APIServer) GetInvoice(c *fiber.Ctx, id uint) error {
	return s.ctrl.Invoices.HandleGet(c)
}

func (s *APIServer) PutInvoice(c *fiber.Ctx, id uint) error {
	return s.ctrl.Invoices.HandleUpdate(c)
}

func (s *APIServer) PostInvoiceSend(c *fiber.Ctx, id uint) error {
	return s.ctrl.Invoices.HandleSend(c)
}

func (s *APIServer) PostInvoicePay(c *fiber.Ctx, id uint) error {
	return s.ctrl.Invoices.HandleMarkPaid(c)
}

func (s *APIServer) PostInvoiceCancel(c *fiber.Ctx, id uint) error {
	return s.ctrl.Invoices.HandleCancel(c)
}

func (s *APIServer) GetInvoiceLink(c *fiber.Ctx, id uint) error {
	return s.ctrl.Invoices.HandleLink(c)
}

func (s *APIServer) GetInvoiceHTML(c *fiber.Ctx, id uint) error {
	return s.ctrl.Invoices.HandleHTML(c)
}

func (s *APIServer) GetInvoiceArchive(c *fiber.Ctx, id uint) error {
	return s.ctrl.Invoices.HandleArchive(c)
}

func (s *APIServer) PostTrack(c *fiber.Ctx) error {
	return s.ctrl.Tracking.HandleTrack(c)
}

func (s *APIServer) PostIdentify(c *fiber.Ctx) error {
	return s.ctrl.Tracking.HandleIdentify(c)
}

func (s *APIServer) PostAssistant(c *fiber.Ctx) error {
	return s.ctrl.Assistant.HandleAsk(c)
}

func (s *APIServer) GetAdminStats(c *fiber.Ctx) error {
	return s.ctrl.Admin.HandleStats(c)
}

func (s *APIServer) GetAdminAttribution(c *fiber.Ctx) error {
	return s.ctrl.Admin.HandleAttribution(c)
}

func (s *APIServer) GetAdminJob(c *fiber.Ctx, id string) error {
	return s.ctrl.Admin.HandleJob(c)
}

func (s *APIServer) PostAdminReconcile(c *fiber.Ctx, user string) error {
	return s.ctrl.Admin.HandleReconcile(c)
}
