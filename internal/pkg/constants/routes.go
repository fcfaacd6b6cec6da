package constants

// Routes served outside the /api group
const (
	HealthRoute        = "/healthz"
	StripeWebhookRoute = "/webhooks/stripe"
	MetricsRoute       = "/metrics"
	MonitorRoute       = "/monitor"
	// Public invoice page; the token is appended to InvoiceViewPath.
	InvoiceViewRoute = InvoiceViewPath + ":token"
	InvoiceViewPath  = "/invoices/view/"
)
