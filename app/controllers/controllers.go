package controllers

import (
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/assistant"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/attribution"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/billing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/invoicing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/jobqueue"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/records"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/security"
)

// Dependencies are the services the HTTP layer delegates to. Billing,
// Webhooks, Assistant, Cipher and Queue may be nil when not configured.
type Dependencies struct {
	Repos         *repository.Repositories
	Billing       *billing.Service
	Webhooks      *billing.WebhookProcessor
	Invoices      *invoicing.Service
	Records       *records.Service
	Attribution   *attribution.Service
	Assistant     *assistant.Service
	Cipher        *security.FieldCipher
	Queue         *jobqueue.Queue
	PublicURL     string
	SecureCookies bool
}

// Controllers bundles every controller of the application.
type Controllers struct {
	Simulation *SimulationController
	Billing    *BillingController
	Webhook    *WebhookController
	Records    *RecordsController
	Invoices   *InvoiceController
	Tracking   *TrackingController
	Assistant  *AssistantController
	Profile    *ProfileController
	Admin      *AdminController
}

// New wires the controllers to their services.
func New(deps Dependencies) *Controllers {
	profiles := deps.Repos.Profile
	return &Controllers{
		Simulation: NewSimulationController(),
		Billing:    NewBillingController(deps.Billing, profiles, deps.PublicURL),
		Webhook:    NewWebhookController(deps.Webhooks),
		Records:    NewRecordsController(deps.Records),
		Invoices:   NewInvoiceController(deps.Invoices),
		Tracking:   NewTrackingController(deps.Attribution, deps.SecureCookies),
		Assistant:  NewAssistantController(deps.Assistant, profiles),
		Profile:    NewProfileController(profiles, deps.Cipher, deps.Records),
		Admin:      NewAdminController(deps.Repos, deps.Attribution, deps.Billing, deps.Queue),
	}
}
