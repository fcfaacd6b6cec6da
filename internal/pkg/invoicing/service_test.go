package invoicing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/template/html/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database/dbtest"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/mail"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/security"
	"github.com/aarontmr/comptalyze-sub003/views"
)

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

type fakeRecorder struct {
	invoices []uint
	err      error
}

func (f *fakeRecorder) RecordInvoice(_ context.Context, inv *models.Invoice) (*models.RevenueRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.invoices = append(f.invoices, inv.ID)
	return &models.RevenueRecord{UserID: inv.UserID, RevenueCents: inv.TotalCents}, nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key, _ string, body []byte) error {
	m.objects[key] = body
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return body, nil
}

type testEnv struct {
	svc      *Service
	repos    *repository.Repositories
	jobs     *fakeJobs
	recorder *fakeRecorder
	store    *memoryStore
	cipher   *security.FieldCipher
}

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)

	cipher, err := security.NewFieldCipher([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	p, err := repos.Profile.GetOrCreate("user-1", "me@example.com")
	require.NoError(t, err)
	p.CompanyName = "Atelier Dupont"
	p.SIRET = "12345678900012"
	p.IBANEnc, err = cipher.Encrypt("FR7630006000011234567890189")
	require.NoError(t, err)
	require.NoError(t, repos.Profile.Update(p))

	env := &testEnv{
		repos:    repos,
		jobs:     &fakeJobs{},
		recorder: &fakeRecorder{},
		store:    &memoryStore{objects: map[string][]byte{}},
		cipher:   cipher,
	}
	engine := html.NewFileSystem(http.FS(views.FS), ".html")
	env.svc = NewService(repos.Invoice, repos.Profile,
		WithViews(engine),
		WithJobs(env.jobs),
		WithRevenueRecorder(env.recorder),
		WithArchive(env.store, func(userID, number string, issued time.Time) string {
			return "invoices/" + userID + "/" + issued.Format("2006") + "/" + number + ".html"
		}),
		WithCipher(cipher),
		WithLinks(LinkConfig{PublicURL: "https://app.test/", Secret: "link-secret", TTL: time.Hour}),
		WithClock(func() time.Time { return testNow }),
	)
	return env
}

func sampleInput() Input {
	return Input{
		ClientName:  "ACME SAS",
		ClientEmail: "billing@acme.test",
		Lines: []LineInput{
			{Description: "Développement", Quantity: decimal.NewFromInt(2), UnitPriceCents: 45000},
		},
	}
}

func (e *testEnv) create(t *testing.T, in Input) *models.Invoice {
	t.Helper()
	inv, err := e.svc.Create(context.Background(), "user-1", string(entitlements.PlanPro), in)
	require.NoError(t, err)
	return inv
}

func TestCreateRequiresPro(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Create(context.Background(), "user-1", "free", sampleInput())
	assert.ErrorIs(t, err, entitlements.ErrPlanRequired)
}

func TestCreateNumbersAndDefaults(t *testing.T) {
	env := newTestEnv(t)

	first := env.create(t, sampleInput())
	second := env.create(t, sampleInput())

	assert.Equal(t, "F2025-0001", first.Number)
	assert.Equal(t, "F2025-0002", second.Number)
	assert.Equal(t, models.InvoiceStatusDraft, first.Status)
	assert.Equal(t, "2025-03-10", first.IssueDate.Format(dateLayout))
	assert.Equal(t, "2025-04-09", first.DueDate.Format(dateLayout))
	assert.Equal(t, int64(90000), first.TotalCents)
	assert.Equal(t, VATFranchiseMention, first.VATMention)
	assert.Equal(t, "services_bic", first.Activity)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := sampleInput()
	in.ClientName = ""
	_, err := env.svc.Create(ctx, "user-1", "pro", in)
	assert.Error(t, err)

	in = sampleInput()
	in.IssueDate = "2025-03-10"
	in.DueDate = "2025-03-01"
	_, err = env.svc.Create(ctx, "user-1", "pro", in)
	assert.ErrorIs(t, err, ErrInvalidDates)

	in = sampleInput()
	in.Lines = nil
	_, err = env.svc.Create(ctx, "user-1", "pro", in)
	assert.Error(t, err)
}

func TestCreateWithVAT(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.repos.Profile.GetByUserID("user-1")
	require.NoError(t, err)
	p.VATFranchise = false
	require.NoError(t, env.repos.Profile.Update(p))

	in := sampleInput()
	in.VATRate = decimal.NewFromInt(20)
	inv := env.create(t, in)
	assert.Equal(t, int64(18000), inv.VATCents)
	assert.Equal(t, int64(108000), inv.TotalCents)
	assert.Empty(t, inv.VATMention)
}

func TestUpdateDraftOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, sampleInput())

	in := sampleInput()
	in.Lines = append(in.Lines, LineInput{Description: "Recette", Quantity: decimal.NewFromInt(1), UnitPriceCents: 10000})
	updated, err := env.svc.Update(ctx, "user-1", inv.ID, in)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, updated.Number)
	assert.Equal(t, int64(100000), updated.TotalCents)

	reloaded, err := env.svc.Get(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Lines, 2)

	_, err = env.svc.Send(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	_, err = env.svc.Update(ctx, "user-1", inv.ID, in)
	assert.ErrorIs(t, err, ErrNotEditable)

	_, err = env.svc.Update(ctx, "someone-else", inv.ID, in)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendQueuesEmailAndArchive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, sampleInput())

	sent, err := env.svc.Send(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	require.Len(t, env.jobs.emails, 1)
	msg := env.jobs.emails[0]
	assert.Equal(t, "billing@acme.test", msg.To)
	assert.Equal(t, mail.TemplateInvoiceSent, msg.Template)
	assert.Equal(t, "Atelier Dupont", msg.Data["company"])
	assert.Equal(t, "900,00 €", msg.Data["total"])
	assert.Equal(t, "09/04/2025", msg.Data["due_date"])
	assert.True(t, strings.HasPrefix(msg.Data["link"], "https://app.test/invoices/view/"))
	assert.Equal(t, []uint{inv.ID}, env.jobs.archives)

	token := strings.TrimPrefix(msg.Data["link"], "https://app.test/invoices/view/")
	viewed, err := env.svc.ResolveLink(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, viewed.ID)

	// resending mails again and keeps the status
	_, err = env.svc.Send(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.Len(t, env.jobs.emails, 2)
	assert.Equal(t, []uint{inv.ID}, env.jobs.archives, "only the first send archives")
}

func TestResolveLinkHidesDrafts(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, sampleInput())
	link, err := env.svc.Link(inv)
	require.NoError(t, err)

	token := link[strings.LastIndex(link, "/")+1:]
	_, err = env.svc.ResolveLink(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotFound)

	forged, err := security.GenerateInvoiceLinkToken(inv.UserID, inv.ID, time.Hour, "not-the-link-secret")
	require.NoError(t, err)
	_, err = env.svc.ResolveLink(context.Background(), forged)
	assert.ErrorIs(t, err, security.ErrTokenSignature)
}

func TestMarkPaidAndCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, sampleInput())

	_, err := env.svc.MarkPaid(ctx, "user-1", inv.ID, nil, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.svc.Send(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	paidAt := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)
	paid, err := env.svc.MarkPaid(ctx, "user-1", inv.ID, &paidAt, true)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, []uint{inv.ID}, env.recorder.invoices)

	_, err = env.svc.Cancel(ctx, "user-1", inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	draft := env.create(t, sampleInput())
	cancelled, err := env.svc.Cancel(ctx, "user-1", draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusCancelled, cancelled.Status)
	_, err = env.svc.Send(ctx, "user-1", draft.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := sampleInput()
	in.IssueDate = "2025-01-01"
	in.DueDate = "2025-01-31"
	late := env.create(t, in)
	_, err := env.svc.Send(ctx, "user-1", late.ID)
	require.NoError(t, err)

	onTime := env.create(t, sampleInput())
	_, err = env.svc.Send(ctx, "user-1", onTime.ID)
	require.NoError(t, err)

	n, err := env.svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := env.svc.List(ctx, "user-1", repository.InvoiceFilter{Status: models.InvoiceStatusOverdue})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, late.ID, list[0].ID)
}

func TestRenderAndArchive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, sampleInput())

	body, err := env.svc.RenderHTML(ctx, inv)
	require.NoError(t, err)
	page := string(body)
	assert.Contains(t, page, "Facture F2025-0001")
	assert.Contains(t, page, "Atelier Dupont")
	assert.Contains(t, page, "ACME SAS")
	assert.Contains(t, page, VATFranchiseMention)
	assert.Contains(t, page, "900,00 €")
	assert.Contains(t, page, "FR76 3000 6000 0112 3456 7890 189")

	require.NoError(t, env.svc.Archive(ctx, inv.ID))
	key := "invoices/user-1/2025/F2025-0001.html"
	require.Contains(t, env.store.objects, key)
	assert.Contains(t, string(env.store.objects[key]), "Facture F2025-0001")

	reloaded, err := env.svc.Get(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, key, reloaded.ArchiveKey)

	archived, err := env.svc.ArchivedCopy(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, env.store.objects[key], archived)

	_, err = env.svc.ArchivedCopy(ctx, "user-2", inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchivedCopyBeforeArchive(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, sampleInput())
	_, err := env.svc.ArchivedCopy(context.Background(), "user-1", inv.ID)
	assert.ErrorIs(t, err, ErrNotArchived)
}

func TestArchiveWithoutStore(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(env.repos.Invoice, env.repos.Profile)
	assert.ErrorIs(t, svc.Archive(context.Background(), 1), ErrNoArchive)
	_, err := svc.ArchivedCopy(context.Background(), "user-1", 1)
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestArchivedCopyKeepsIssuedVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, sampleInput())

	_, err := env.svc.Send(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.Archive(ctx, inv.ID))
	issued, err := env.svc.ArchivedCopy(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.Contains(t, string(issued), "Atelier Dupont")

	p, err := env.repos.Profile.GetByUserID("user-1")
	require.NoError(t, err)
	p.CompanyName = "Dupont Conseil"
	require.NoError(t, env.repos.Profile.Update(p))

	_, err = env.svc.Send(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.Archive(ctx, inv.ID))

	again, err := env.svc.ArchivedCopy(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, issued, again)
}

func TestArchiveAfterPaymentShowsSentInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, sampleInput())

	_, err := env.svc.Send(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	_, err = env.svc.MarkPaid(ctx, "user-1", inv.ID, nil, false)
	require.NoError(t, err)

	require.NoError(t, env.svc.Archive(ctx, inv.ID))
	archived, err := env.svc.ArchivedCopy(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.Contains(t, string(archived), "Envoyée")
	assert.NotContains(t, string(archived), "Payée")
}

func TestMarkPaidRetriesFailedRecording(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, sampleInput())
	_, err := env.svc.Send(ctx, "user-1", inv.ID)
	require.NoError(t, err)

	env.recorder.err = errors.New("database is locked")
	paid, err := env.svc.MarkPaid(ctx, "user-1", inv.ID, nil, true)
	require.Error(t, err)
	require.NotNil(t, paid)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	assert.Nil(t, paid.RecordedAt)

	env.recorder.err = nil
	paid, err = env.svc.MarkPaid(ctx, "user-1", inv.ID, nil, true)
	require.NoError(t, err)
	require.NotNil(t, paid.RecordedAt)
	assert.Equal(t, []uint{inv.ID}, env.recorder.invoices)

	reloaded, err := env.svc.Get(ctx, "user-1", inv.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.RecordedAt)

	// once recorded, paying again is refused
	_, err = env.svc.MarkPaid(ctx, "user-1", inv.ID, nil, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, env.recorder.invoices, 1)
}
