package controllers

import (
	"errors"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/billing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

// CheckoutRequestBody is the body of POST /api/v1/billing/checkout.
type CheckoutRequestBody struct {
	Plan        string `json:"plan" validate:"required,oneof=pro premium"`
	Interval    string `json:"interval" validate:"omitempty,oneof=month year monthly yearly"`
	UTMSource   string `json:"utm_source" validate:"max=100"`
	UTMMedium   string `json:"utm_medium" validate:"max=100"`
	UTMCampaign string `json:"utm_campaign" validate:"max=150"`
}

type cancelRequestBody struct {
	Cancel *bool `json:"cancel" validate:"required"`
}

// BillingController drives Stripe Checkout, the customer portal and
// cancellation for the logged-in user.
type BillingController struct {
	svc       *billing.Service
	profiles  repository.ProfileRepository
	publicURL string
	validate  *validator.Validate
}

func NewBillingController(svc *billing.Service, profiles repository.ProfileRepository, publicURL string) *BillingController {
	return &BillingController{
		svc:       svc,
		profiles:  profiles,
		publicURL: strings.TrimRight(publicURL, "/"),
		validate:  validation.New(),
	}
}

// attribution forwards the posted UTM values, falling back to the profile's
// first touch.
func (bc *BillingController) attribution(userID string, req CheckoutRequestBody) map[string]string {
	out := map[string]string{
		"utm_source":   req.UTMSource,
		"utm_medium":   req.UTMMedium,
		"utm_campaign": req.UTMCampaign,
	}
	if req.UTMSource != "" || bc.profiles == nil {
		return out
	}
	if p, err := bc.profiles.GetByUserID(userID); err == nil && p.HasFirstTouch() {
		out["utm_source"] = p.FirstTouchSource
		out["utm_medium"] = p.FirstTouchMedium
		out["utm_campaign"] = p.FirstTouchCampaign
	}
	return out
}

func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	if bc.svc == nil {
		return respondError(c, billing.ErrNoGateway)
	}
	user := currentUser(c)
	var req CheckoutRequestBody
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := bc.validate.Struct(req); err != nil {
		return respondError(c, err)
	}
	res, err := bc.svc.StartCheckout(c.UserContext(), billing.CheckoutRequest{
		UserID:      user.UserID,
		Email:       user.Email,
		Plan:        req.Plan,
		Interval:    req.Interval,
		SuccessURL:  bc.publicURL + "/dashboard?checkout=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   bc.publicURL + "/pricing?checkout=cancelled",
		Attribution: bc.attribution(user.UserID, req),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	if bc.svc == nil {
		return respondError(c, billing.ErrNoGateway)
	}
	url, err := bc.svc.OpenPortal(c.UserContext(), currentUser(c).UserID, bc.publicURL+"/account")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

func (bc *BillingController) HandleSubscription(c *fiber.Ctx) error {
	if bc.svc == nil {
		return respondError(c, billing.ErrNoGateway)
	}
	view, err := bc.svc.Subscription(c.UserContext(), currentUser(c).UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// HandleCancel toggles cancel_at_period_end. {"cancel": false} resumes.
func (bc *BillingController) HandleCancel(c *fiber.Ctx) error {
	if bc.svc == nil {
		return respondError(c, billing.ErrNoGateway)
	}
	var req cancelRequestBody
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := bc.validate.Struct(req); err != nil {
		return respondError(c, err)
	}
	view, err := bc.svc.SetCancelAtPeriodEnd(c.UserContext(), currentUser(c).UserID, *req.Cancel)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// WebhookController receives Stripe deliveries on POST /webhooks/stripe.
type WebhookController struct {
	processor *billing.WebhookProcessor
}

func NewWebhookController(processor *billing.WebhookProcessor) *WebhookController {
	return &WebhookController{processor: processor}
}

// HandleStripeWebhook answers 400 on a bad signature and 500 on processing
// errors so that Stripe retries the delivery.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	if wc.processor == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "unavailable", "Webhooks are not configured")
	}
	payload := append([]byte(nil), c.Body()...)
	if len(payload) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", io.ErrUnexpectedEOF.Error())
	}
	out, err := wc.processor.Handle(c.UserContext(), payload, c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
		}
		log.Errorf("[Webhook] Stripe delivery failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "processing_failed", "Webhook processing failed")
	}
	resp := fiber.Map{"received": true, "event_id": out.EventID, "type": out.EventType}
	if out.Duplicate {
		resp["duplicate"] = true
	}
	if out.Ignored {
		resp["ignored"] = true
	}
	return c.JSON(resp)
}
