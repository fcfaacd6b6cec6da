package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/assistant"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/attribution"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/billing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database/dbtest"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/invoicing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/mail"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/records"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/security"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/usercontext"
	"github.com/aarontmr/comptalyze-sub003/views"
)

const webhookSecret = "whsec_controllers"

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type fakeJobs struct {
	mu       sync.Mutex
	emails   []mail.Message
	archives []uint
}

func (f *fakeJobs) EnqueueEmail(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, msg)
	return nil
}

func (f *fakeJobs) EnqueueInvoiceArchive(_ context.Context, invoiceID uint, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives = append(f.archives, invoiceID)
	return nil
}

type fakeCompleter struct {
	questions []string
}

func (f *fakeCompleter) Complete(_ context.Context, _, question string) (string, error) {
	f.questions = append(f.questions, question)
	return "Vous déclarez votre chiffre d'affaires chaque mois.", nil
}

type apiEnv struct {
	app   *fiber.App
	repos *repository.Repositories
	jobs  *fakeJobs
}

// newAPIEnv mounts the controllers on a bare app. The caller is taken from
// the X-Test-User, X-Test-Plan and X-Test-Admin headers.
func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	jobs := &fakeJobs{}

	cipher, err := security.NewFieldCipher([]byte(strings.Repeat("c", 32)))
	require.NoError(t, err)

	recs := records.NewService(repos.Record, repos.Profile, records.WithClock(func() time.Time { return testNow }))
	invoices := invoicing.NewService(repos.Invoice, repos.Profile,
		invoicing.WithViews(html.NewFileSystem(http.FS(views.FS), ".html")),
		invoicing.WithJobs(jobs),
		invoicing.WithRevenueRecorder(recs),
		invoicing.WithCipher(cipher),
		invoicing.WithLinks(invoicing.LinkConfig{PublicURL: "https://app.test", Secret: "link-secret", TTL: time.Hour}),
		invoicing.WithClock(func() time.Time { return testNow }),
	)
	bill := billing.NewServiceFromDB(db)

	ctrl := New(Dependencies{
		Repos:       repos,
		Billing:     bill,
		Webhooks:    billing.NewWebhookProcessor(bill, webhookSecret, nil, nil),
		Invoices:    invoices,
		Records:     recs,
		Attribution: attribution.NewService(repos.Attribution, repos.Profile),
		Assistant:   assistant.NewService(&fakeCompleter{}, nil),
		Cipher:      cipher,
		PublicURL:   "https://app.test",
	})
	ctrl.Records.now = func() time.Time { return testNow }

	app := fiber.New(fiber.Config{Views: html.NewFileSystem(http.FS(views.FS), ".html")})
	app.Use(func(c *fiber.Ctx) error {
		uc := usercontext.UserContext{Plan: c.Get("X-Test-Plan", "free")}
		if uid := c.Get("X-Test-User"); uid != "" {
			uc.UserID = uid
			uc.Email = uid + "@example.com"
			uc.IsLoggedIn = true
			uc.IsAdmin = c.Get("X-Test-Admin") == "1"
		}
		usercontext.Set(c, uc)
		return c.Next()
	})

	app.Post("/simulate", ctrl.Simulation.HandleSimulate)
	app.Post("/simulate/income-tax", ctrl.Simulation.HandleIncomeTax)
	app.Get("/rates", ctrl.Simulation.HandleRates)
	app.Get("/me", ctrl.Profile.HandleGet)
	app.Put("/me", ctrl.Profile.HandleUpdate)
	app.Get("/billing/subscription", ctrl.Billing.HandleSubscription)
	app.Post("/billing/checkout", ctrl.Billing.HandleCheckout)
	app.Post("/webhooks/stripe", ctrl.Webhook.HandleStripeWebhook)
	app.Get("/dashboard", ctrl.Records.HandleSummary)
	app.Get("/records", ctrl.Records.HandleList)
	app.Post("/records", ctrl.Records.HandleUpsert)
	app.Get("/records/export", ctrl.Records.HandleExport)
	app.Delete("/records/:id", ctrl.Records.HandleDelete)
	app.Get("/invoices", ctrl.Invoices.HandleList)
	app.Post("/invoices", ctrl.Invoices.HandleCreate)
	app.Get("/invoices/view/:token", ctrl.Invoices.HandlePublicView)
	app.Get("/invoices/:id", ctrl.Invoices.HandleGet)
	app.Put("/invoices/:id", ctrl.Invoices.HandleUpdate)
	app.Post("/invoices/:id/send", ctrl.Invoices.HandleSend)
	app.Post("/invoices/:id/pay", ctrl.Invoices.HandleMarkPaid)
	app.Post("/invoices/:id/cancel", ctrl.Invoices.HandleCancel)
	app.Get("/invoices/:id/link", ctrl.Invoices.HandleLink)
	app.Get("/invoices/:id/html", ctrl.Invoices.HandleHTML)
	app.Get("/invoices/:id/archive", ctrl.Invoices.HandleArchive)
	app.Post("/track", ctrl.Tracking.HandleTrack)
	app.Post("/track/identify", ctrl.Tracking.HandleIdentify)
	app.Post("/assistant", ctrl.Assistant.HandleAsk)
	app.Get("/admin/stats", ctrl.Admin.HandleStats)
	app.Get("/admin/attribution", ctrl.Admin.HandleAttribution)

	return &apiEnv{app: app, repos: repos, jobs: jobs}
}

type call struct {
	method string
	path   string
	body   any
	user   string
	plan   string
	header map[string]string
}

func (e *apiEnv) do(t *testing.T, c call) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	switch b := c.body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set("X-Test-User", c.user)
	}
	if c.plan != "" {
		req.Header.Set("X-Test-Plan", c.plan)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestSimulateIsPublic(t *testing.T) {
	env := newAPIEnv(t)

	resp, raw := env.do(t, call{method: "POST", path: "/simulate", body: map[string]any{
		"revenue": "1000", "activity": "services", "year": 2025,
	}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	body := decode(t, raw)
	assert.Equal(t, "212", body["contributions"])
	assert.Equal(t, "1", body["cfp"])
	assert.Equal(t, "787", body["net_income"])
}

func TestSimulateErrors(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"unknown activity", map[string]any{"revenue": "10", "activity": "farming"}, fiber.StatusBadRequest, "bad_request"},
		{"negative revenue", map[string]any{"revenue": "-1", "activity": "vente"}, fiber.StatusBadRequest, "bad_request"},
		{"missing activity", map[string]any{"revenue": "10"}, fiber.StatusUnprocessableEntity, "validation_failed"},
		{"malformed body", []byte("{"), fiber.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := env.do(t, call{method: "POST", path: "/simulate", body: tt.body})
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode(t, raw)["error"])
		})
	}
}

func TestIncomeTaxNeedsPremium(t *testing.T) {
	env := newAPIEnv(t)
	req := map[string]any{"revenue": "30000", "activity": "liberal_bnc", "year": 2025}

	resp, raw := env.do(t, call{method: "POST", path: "/simulate/income-tax", body: req, user: "u1", plan: "pro"})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "plan_required", decode(t, raw)["error"])

	resp, raw = env.do(t, call{method: "POST", path: "/simulate/income-tax", body: req, user: "u1", plan: "premium"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "10200", decode(t, raw)["allowance"])
}

func TestRatesListsActivities(t *testing.T) {
	env := newAPIEnv(t)
	resp, raw := env.do(t, call{method: "GET", path: "/rates?year=2025"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, raw)
	assert.Len(t, body["activities"], 4)
}

func TestProfileUpdateEncryptsIBAN(t *testing.T) {
	env := newAPIEnv(t)

	resp, raw := env.do(t, call{method: "PUT", path: "/me", user: "u1", body: map[string]any{
		"company_name": "Studio Martin",
		"siret":        "12345678900012",
		"iban":         "fr76 3000 6000 0112 3456 7890 189",
		"acre":         true,
	}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	body := decode(t, raw)
	assert.Equal(t, "FR76*******************0189", body["iban_masked"])
	assert.Equal(t, "Studio Martin", body["profile"].(map[string]any)["company_name"])
	assert.NotContains(t, string(raw), "3000 6000")

	stored, err := env.repos.Profile.GetByUserID("u1")
	require.NoError(t, err)
	assert.True(t, stored.ACRE)
	assert.NotEmpty(t, stored.IBANEnc)
	assert.NotContains(t, stored.IBANEnc, "FR76")

	resp, raw = env.do(t, call{method: "PUT", path: "/me", user: "u1", body: map[string]any{"siret": "123"}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	fields := decode(t, raw)["fields"].([]any)
	assert.Equal(t, "siret", fields[0].(map[string]any)["field"])
}

func TestRecordsQuotaAndSummary(t *testing.T) {
	env := newAPIEnv(t)

	for i, period := range []string{"2025-01", "2025-02", "2025-03"} {
		resp, raw := env.do(t, call{method: "POST", path: "/records", user: "u1", body: map[string]any{
			"period": period, "activity": "services_bic", "revenue_cents": 100000,
		}})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, "record %d: %s", i, raw)
	}

	resp, raw := env.do(t, call{method: "POST", path: "/records", user: "u1", body: map[string]any{
		"period": "2025-04", "activity": "services_bic", "revenue_cents": 100000,
	}})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "quota_exceeded", decode(t, raw)["error"])

	// replacing an existing period is not a new record
	resp, _ = env.do(t, call{method: "POST", path: "/records", user: "u1", body: map[string]any{
		"period": "2025-03", "activity": "services_bic", "revenue_cents": 150000,
	}})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw = env.do(t, call{method: "GET", path: "/dashboard?year=2025", user: "u1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	sum := decode(t, raw)
	assert.EqualValues(t, 350000, sum["revenue_cents"])
	assert.EqualValues(t, 74200, sum["contributions_cents"])

	resp, raw = env.do(t, call{method: "GET", path: "/records?year=2025", user: "u1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	list := decode(t, raw)["records"].([]any)
	require.Len(t, list, 3)

	id := uint(list[0].(map[string]any)["id"].(float64))
	resp, _ = env.do(t, call{method: "DELETE", path: fmt.Sprintf("/records/%d", id), user: "u1"})
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, call{method: "DELETE", path: fmt.Sprintf("/records/%d", id), user: "u1"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, call{method: "GET", path: "/records?year=abc", user: "u1"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRecordsValidation(t *testing.T) {
	env := newAPIEnv(t)
	resp, raw := env.do(t, call{method: "POST", path: "/records", user: "u1", body: map[string]any{
		"period": "2025-13", "revenue_cents": 100,
	}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(raw), `"field":"period"`)
}

func TestExportCSV(t *testing.T) {
	env := newAPIEnv(t)
	resp, _ := env.do(t, call{method: "GET", path: "/records/export?year=2025", user: "u1"})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	resp, raw := env.do(t, call{method: "POST", path: "/records", user: "u1", plan: "pro", body: map[string]any{
		"period": "2025-02", "activity": "vente", "revenue_cents": 500000,
	}})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))

	resp, raw = env.do(t, call{method: "GET", path: "/records/export?year=2025", user: "u1", plan: "pro"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "comptalyze-2025.csv")
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "2025-02,vente,5000.00,615.00"))
}

func TestInvoiceLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	invoice := map[string]any{
		"client_name":  "ACME SAS",
		"client_email": "billing@acme.test",
		"lines": []map[string]any{
			{"description": "Développement", "quantity": "2", "unit_price_cents": 45000},
		},
	}

	resp, _ := env.do(t, call{method: "POST", path: "/invoices", user: "u1", body: invoice})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	resp, raw := env.do(t, call{method: "POST", path: "/invoices", user: "u1", plan: "pro", body: invoice})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	created := decode(t, raw)
	assert.Equal(t, "F2025-0001", created["number"])
	assert.EqualValues(t, 90000, created["total_cents"])
	id := uint(created["id"].(float64))
	base := fmt.Sprintf("/invoices/%d", id)

	resp, _ = env.do(t, call{method: "GET", path: base + "/link", user: "u1", plan: "pro"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, "drafts have no public link")

	invoice["notes"] = "Merci"
	resp, raw = env.do(t, call{method: "PUT", path: base, user: "u1", plan: "pro", body: invoice})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "Merci", decode(t, raw)["notes"])

	resp, raw = env.do(t, call{method: "POST", path: base + "/send", user: "u1", plan: "pro"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "sent", decode(t, raw)["status"])
	require.Len(t, env.jobs.emails, 1)
	assert.Equal(t, []uint{id}, env.jobs.archives)

	// no object storage in this environment
	resp, _ = env.do(t, call{method: "GET", path: base + "/archive", user: "u1", plan: "pro"})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = env.do(t, call{method: "PUT", path: base, user: "u1", plan: "pro", body: invoice})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, raw = env.do(t, call{method: "GET", path: base + "/link", user: "u1", plan: "pro"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	link, err := url.Parse(decode(t, raw)["url"].(string))
	require.NoError(t, err)

	resp, raw = env.do(t, call{method: "GET", path: link.Path})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(raw), "F2025-0001")
	assert.Contains(t, string(raw), "ACME SAS")

	resp, _ = env.do(t, call{method: "GET", path: "/invoices/view/not-a-token"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, raw = env.do(t, call{method: "POST", path: base + "/pay", user: "u1", plan: "pro", body: map[string]any{"paid_at": "2025-03-20"}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	paid := decode(t, raw)
	assert.Equal(t, "paid", paid["invoice"].(map[string]any)["status"])
	assert.Nil(t, paid["warning"])

	recs, err := env.repos.Record.ListByYear("u1", 2025)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2025-03", recs[0].Period)
	assert.EqualValues(t, 90000, recs[0].RevenueCents)

	resp, _ = env.do(t, call{method: "POST", path: base + "/cancel", user: "u1", plan: "pro"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, call{method: "GET", path: base, user: "u2", plan: "pro"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, raw = env.do(t, call{method: "GET", path: "/invoices?status=paid", user: "u1", plan: "pro"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, raw)["invoices"], 1)

	resp, _ = env.do(t, call{method: "GET", path: "/invoices?status=lost", user: "u1", plan: "pro"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestInvoiceValidationFields(t *testing.T) {
	env := newAPIEnv(t)
	resp, raw := env.do(t, call{method: "POST", path: "/invoices", user: "u1", plan: "pro", body: map[string]any{
		"client_name": "ACME",
		"lines":       []map[string]any{{"quantity": "1", "unit_price_cents": 100}},
	}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(raw), `"field":"lines[0].description"`)
}

func TestTrackAndIdentify(t *testing.T) {
	env := newAPIEnv(t)

	resp, raw := env.do(t, call{method: "POST", path: "/track", body: map[string]any{
		"utm_source": "Google", "utm_medium": "cpc", "utm_campaign": "printemps", "landing_path": "/",
	}})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	tracked := decode(t, raw)
	visitor := tracked["visitor_id"].(string)
	assert.NotEmpty(t, visitor)
	assert.Equal(t, "google", tracked["source"])
	assert.Contains(t, resp.Header.Get("Set-Cookie"), VisitorCookie+"="+visitor)

	resp, raw = env.do(t, call{method: "POST", path: "/track", header: map[string]string{"Referer": "https://www.qwant.com/?q=urssaf"}, body: map[string]any{}})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	assert.Equal(t, "qwant.com", decode(t, raw)["source"])

	resp, raw = env.do(t, call{method: "POST", path: "/track/identify", user: "u1", header: map[string]string{"Cookie": VisitorCookie + "=" + visitor}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	identified := decode(t, raw)
	assert.EqualValues(t, 1, identified["linked"])
	assert.Equal(t, true, identified["first_touch"])

	p, err := env.repos.Profile.GetByUserID("u1")
	require.NoError(t, err)
	assert.Equal(t, "google", p.FirstTouchSource)

	resp, _ = env.do(t, call{method: "POST", path: "/track/identify", user: "u2"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAssistantNeedsPremium(t *testing.T) {
	env := newAPIEnv(t)
	question := map[string]any{"question": "Quand dois-je déclarer ?"}

	resp, _ := env.do(t, call{method: "POST", path: "/assistant", user: "u1", plan: "pro", body: question})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	resp, raw := env.do(t, call{method: "POST", path: "/assistant", user: "u1", plan: "premium", body: question})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	body := decode(t, raw)
	assert.Contains(t, body["answer"], "chaque mois")
	assert.EqualValues(t, -1, body["remaining"])

	resp, _ = env.do(t, call{method: "POST", path: "/assistant", user: "u1", plan: "premium", body: map[string]any{"question": "?"}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestBillingWithoutGateway(t *testing.T) {
	env := newAPIEnv(t)

	resp, raw := env.do(t, call{method: "GET", path: "/billing/subscription", user: "u1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	sub := decode(t, raw)
	assert.Equal(t, "free", sub["plan"])
	assert.Equal(t, "none", sub["status"])
	assert.Equal(t, true, sub["trial_available"])

	resp, raw = env.do(t, call{method: "POST", path: "/billing/checkout", user: "u1", body: map[string]any{"plan": "pro", "interval": "month"}})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", decode(t, raw)["error"])

	resp, _ = env.do(t, call{method: "POST", path: "/billing/checkout", user: "u1", body: map[string]any{"plan": "gold"}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func signStripe(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhook(t *testing.T) {
	env := newAPIEnv(t)
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_ctrl_1",
		"object":  "event",
		"type":    "customer.created",
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": map[string]any{"id": "cus_1", "object": "customer"}},
	})
	require.NoError(t, err)

	resp, raw := env.do(t, call{method: "POST", path: "/webhooks/stripe", body: payload, header: map[string]string{"Stripe-Signature": signStripe(payload, "whsec_wrong")}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_signature", decode(t, raw)["error"])

	resp, raw = env.do(t, call{method: "POST", path: "/webhooks/stripe", body: payload, header: map[string]string{"Stripe-Signature": signStripe(payload, webhookSecret)}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	first := decode(t, raw)
	assert.Equal(t, true, first["ignored"])
	assert.Nil(t, first["duplicate"])

	resp, raw = env.do(t, call{method: "POST", path: "/webhooks/stripe", body: payload, header: map[string]string{"Stripe-Signature": signStripe(payload, webhookSecret)}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, raw)["duplicate"])
}

func TestAdminStats(t *testing.T) {
	env := newAPIEnv(t)
	_, err := env.repos.Profile.GetOrCreate("u1", "")
	require.NoError(t, err)
	require.NoError(t, env.repos.Profile.UpdatePlan("u1", "pro"))
	_, err = env.repos.Profile.GetOrCreate("u2", "")
	require.NoError(t, err)

	resp, raw := env.do(t, call{method: "GET", path: "/admin/stats", user: "boss"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	body := decode(t, raw)
	plans := body["plans"].(map[string]any)
	assert.EqualValues(t, 1, plans["pro"])
	assert.Nil(t, body["queue"])
	usage := body["usage"].(map[string]any)
	assert.Contains(t, usage, "simulations")

	resp, _ = env.do(t, call{method: "GET", path: "/admin/attribution?days=0", user: "boss"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, call{method: "GET", path: "/admin/attribution", user: "boss"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
