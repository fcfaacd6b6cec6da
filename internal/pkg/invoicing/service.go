package invoicing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/constants"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/mail"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/security"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

// ShowTemplate is the view used for the printable invoice.
const ShowTemplate = "invoices/show"

const dateLayout = "2006-01-02"

var (
	ErrNotFound          = errors.New("invoice not found")
	ErrNotEditable       = errors.New("only draft invoices can be edited")
	ErrInvalidTransition = errors.New("invoice status does not allow this change")
	ErrInvalidDates      = errors.New("due date must not be before the issue date")
	ErrNoRenderer        = errors.New("invoice renderer not configured")
	ErrNoArchive         = errors.New("invoice archive not configured")
	ErrNotArchived       = errors.New("invoice has not been archived yet")
)

// Jobs enqueues the background work triggered by invoice changes.
type Jobs interface {
	EnqueueEmail(ctx context.Context, msg mail.Message) error
	EnqueueInvoiceArchive(ctx context.Context, invoiceID uint, userID string) error
}

// RevenueRecorder turns a paid invoice into a revenue declaration.
type RevenueRecorder interface {
	RecordInvoice(ctx context.Context, inv *models.Invoice) (*models.RevenueRecord, error)
}

// ArchiveStore persists rendered invoices.
type ArchiveStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// ArchiveKeyFunc names the archived object of an invoice.
type ArchiveKeyFunc func(userID, number string, issued time.Time) string

// LinkConfig controls the signed links sent to invoiced clients.
type LinkConfig struct {
	PublicURL string
	Secret    string
	TTL       time.Duration
}

// Input is the editable content of an invoice. Dates are YYYY-MM-DD; an empty
// issue date means today and an empty due date means 30 days later.
type Input struct {
	ClientName    string          `json:"client_name" validate:"required,max=200"`
	ClientEmail   string          `json:"client_email" validate:"omitempty,email,max=200"`
	ClientAddress string          `json:"client_address" validate:"max=1000"`
	IssueDate     string          `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate       string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Activity      string          `json:"activity" validate:"omitempty,oneof=vente services_bic liberal_bnc liberal_cipav"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	Notes         string          `json:"notes" validate:"max=2000"`
	Lines         []LineInput     `json:"lines" validate:"required,min=1,dive"`
}

// Service manages the invoice lifecycle of a user.
type Service struct {
	invoices   repository.InvoiceRepository
	profiles   repository.ProfileRepository
	validate   *validator.Validate
	views      fiber.Views
	jobs       Jobs
	records    RevenueRecorder
	archive    ArchiveStore
	archiveKey ArchiveKeyFunc
	cipher     *security.FieldCipher
	links      LinkConfig
	now        func() time.Time
}

type Option func(*Service)

func WithViews(v fiber.Views) Option {
	return func(s *Service) { s.views = v }
}

func WithJobs(j Jobs) Option {
	return func(s *Service) { s.jobs = j }
}

func WithRevenueRecorder(r RevenueRecorder) Option {
	return func(s *Service) { s.records = r }
}

func WithArchive(store ArchiveStore, key ArchiveKeyFunc) Option {
	return func(s *Service) {
		s.archive = store
		s.archiveKey = key
	}
}

func WithCipher(c *security.FieldCipher) Option {
	return func(s *Service) { s.cipher = c }
}

func WithLinks(cfg LinkConfig) Option {
	return func(s *Service) { s.links = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(invoices repository.InvoiceRepository, profiles repository.ProfileRepository, opts ...Option) *Service {
	s := &Service{
		invoices: invoices,
		profiles: profiles,
		validate: validation.New(),
		links:    LinkConfig{TTL: 60 * 24 * time.Hour},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	n := s.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// apply validates the input and writes it onto inv, recomputing totals.
func (s *Service) apply(inv *models.Invoice, profile *models.Profile, in Input) error {
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	issue := s.today()
	if in.IssueDate != "" {
		t, err := time.Parse(dateLayout, in.IssueDate)
		if err != nil {
			return err
		}
		issue = t
	}
	due := issue.AddDate(0, 0, 30)
	if in.DueDate != "" {
		t, err := time.Parse(dateLayout, in.DueDate)
		if err != nil {
			return err
		}
		due = t
	}
	if due.Before(issue) {
		return ErrInvalidDates
	}
	lines, err := BuildLines(in.Lines)
	if err != nil {
		return err
	}
	totals, err := ComputeTotals(lines, in.VATRate, profile.VATFranchise)
	if err != nil {
		return err
	}

	activity := in.Activity
	if activity == "" {
		activity = profile.Activity
	}
	if activity == "" {
		activity = string(urssaf.ActivityServicesBIC)
	}

	inv.ClientName = strings.TrimSpace(in.ClientName)
	inv.ClientEmail = strings.TrimSpace(in.ClientEmail)
	inv.ClientAddress = strings.TrimSpace(in.ClientAddress)
	inv.IssueDate = issue
	inv.DueDate = due
	inv.Activity = activity
	inv.Notes = strings.TrimSpace(in.Notes)
	inv.Lines = lines
	inv.SubtotalCents = totals.SubtotalCents
	inv.VATRate = totals.VATRate
	inv.VATCents = totals.VATCents
	inv.TotalCents = totals.TotalCents
	inv.VATMention = totals.VATMention
	return nil
}

// Create stores a new draft invoice with the next number of its issue year.
func (s *Service) Create(ctx context.Context, userID, plan string, in Input) (*models.Invoice, error) {
	_ = ctx
	if err := entitlements.Require(plan, entitlements.FeatureInvoices); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetOrCreate(userID, "")
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	inv := &models.Invoice{UserID: userID, Status: models.InvoiceStatusDraft, Currency: "EUR"}
	if err := s.apply(inv, profile, in); err != nil {
		return nil, err
	}
	if err := s.invoices.CreateNumbered(inv, FormatNumber); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	metrics.InvoicesIssued.Inc()
	log.Infof("[Invoicing] Created invoice %s for user %s", inv.Number, userID)
	return inv, nil
}

// List returns the user's invoices, newest first.
func (s *Service) List(ctx context.Context, userID string, filter repository.InvoiceFilter) ([]models.Invoice, error) {
	_ = ctx
	return s.invoices.ListByUser(userID, filter)
}

// Get loads one of the user's invoices.
func (s *Service) Get(ctx context.Context, userID string, id uint) (*models.Invoice, error) {
	_ = ctx
	inv, err := s.invoices.GetByID(userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return inv, err
}

// Update rewrites a draft invoice. Its number never changes.
func (s *Service) Update(ctx context.Context, userID string, id uint, in Input) (*models.Invoice, error) {
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !inv.IsEditable() {
		return nil, ErrNotEditable
	}
	profile, err := s.profiles.GetOrCreate(userID, "")
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := s.apply(inv, profile, in); err != nil {
		return nil, err
	}
	if err := s.invoices.ReplaceDraft(inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	return inv, nil
}

// Send marks the invoice as sent, mails the client a signed link and queues the
// archive. Sending again re-mails the link without changing the status or the
// archived copy.
func (s *Service) Send(ctx context.Context, userID string, id uint) (*models.Invoice, error) {
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	issued := inv.Status == models.InvoiceStatusDraft
	switch inv.Status {
	case models.InvoiceStatusDraft:
		now := s.now()
		if err := s.invoices.UpdateStatus(inv, map[string]any{
			"status":  models.InvoiceStatusSent,
			"sent_at": now,
		}); err != nil {
			return nil, fmt.Errorf("mark sent: %w", err)
		}
		inv.Status = models.InvoiceStatusSent
		inv.SentAt = &now
	case models.InvoiceStatusSent, models.InvoiceStatusOverdue:
	default:
		return nil, ErrInvalidTransition
	}

	if s.jobs == nil {
		return inv, nil
	}
	if inv.ClientEmail != "" {
		msg, err := s.clientMessage(inv)
		if err != nil {
			return nil, err
		}
		if err := s.jobs.EnqueueEmail(ctx, msg); err != nil {
			return nil, fmt.Errorf("enqueue invoice email: %w", err)
		}
	}
	if !issued {
		return inv, nil
	}
	if err := s.jobs.EnqueueInvoiceArchive(ctx, inv.ID, inv.UserID); err != nil {
		log.Warnf("[Invoicing] Failed to enqueue archive of invoice %d: %v", inv.ID, err)
	}
	return inv, nil
}

func (s *Service) clientMessage(inv *models.Invoice) (mail.Message, error) {
	link, err := s.Link(inv)
	if err != nil {
		return mail.Message{}, err
	}
	company := inv.UserID
	if p, err := s.profiles.GetByUserID(inv.UserID); err == nil && p.CompanyName != "" {
		company = p.CompanyName
	}
	return mail.Message{
		To:       inv.ClientEmail,
		Template: mail.TemplateInvoiceSent,
		Data: map[string]string{
			"number":      inv.Number,
			"company":     company,
			"client_name": inv.ClientName,
			"total":       urssaf.FormatEuros(inv.TotalCents),
			"due_date":    urssaf.FormatDate(inv.DueDate),
			"link":        link,
		},
	}, nil
}

// MarkPaid settles an open invoice. With record set, the matching revenue
// record is created or updated for the payment month. A paid invoice whose
// revenue could not be recorded accepts the call again to retry the recording.
func (s *Service) MarkPaid(ctx context.Context, userID string, id uint, paidAt *time.Time, record bool) (*models.Invoice, error) {
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	record = record && s.records != nil
	switch {
	case inv.IsOpen():
		at := s.now()
		if paidAt != nil {
			at = *paidAt
		}
		if err := s.invoices.UpdateStatus(inv, map[string]any{
			"status":  models.InvoiceStatusPaid,
			"paid_at": at,
		}); err != nil {
			return nil, fmt.Errorf("mark paid: %w", err)
		}
		inv.Status = models.InvoiceStatusPaid
		inv.PaidAt = &at
	case inv.Status == models.InvoiceStatusPaid && record && inv.RecordedAt == nil:
		log.Infof("[Invoicing] Retrying revenue recording of invoice %s", inv.Number)
	default:
		return nil, ErrInvalidTransition
	}

	if !record {
		return inv, nil
	}
	if _, err := s.records.RecordInvoice(ctx, inv); err != nil {
		return inv, fmt.Errorf("record revenue: %w", err)
	}
	now := s.now()
	if err := s.invoices.UpdateStatus(inv, map[string]any{"revenue_recorded_at": now}); err != nil {
		return inv, fmt.Errorf("stamp recorded revenue: %w", err)
	}
	inv.RecordedAt = &now
	return inv, nil
}

// Cancel voids an unpaid invoice. The number stays allocated.
func (s *Service) Cancel(ctx context.Context, userID string, id uint) (*models.Invoice, error) {
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.InvoiceStatusPaid || inv.Status == models.InvoiceStatusCancelled {
		return nil, ErrInvalidTransition
	}
	if err := s.invoices.UpdateStatus(inv, map[string]any{"status": models.InvoiceStatusCancelled}); err != nil {
		return nil, fmt.Errorf("cancel invoice: %w", err)
	}
	inv.Status = models.InvoiceStatusCancelled
	return inv, nil
}

// MarkOverdue flags every sent invoice past its due date.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	_ = ctx
	n, err := s.invoices.MarkOverdue(s.today())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Invoicing] Marked %d invoices overdue", n)
	}
	return n, nil
}

// Link returns the public URL letting the client open the invoice.
func (s *Service) Link(inv *models.Invoice) (string, error) {
	token, err := security.GenerateInvoiceLinkToken(inv.UserID, inv.ID, s.links.TTL, s.links.Secret)
	if err != nil {
		return "", fmt.Errorf("sign invoice link: %w", err)
	}
	return strings.TrimRight(s.links.PublicURL, "/") + constants.InvoiceViewPath + token, nil
}

// ResolveLink loads the invoice a signed link points to. Drafts are never
// exposed.
func (s *Service) ResolveLink(ctx context.Context, token string) (*models.Invoice, error) {
	claims, err := security.VerifyInvoiceLinkToken(token, s.links.Secret)
	if err != nil {
		return nil, err
	}
	inv, err := s.Get(ctx, claims.UserID, claims.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.InvoiceStatusDraft {
		return nil, ErrNotFound
	}
	return inv, nil
}

// Render writes the printable HTML of the invoice.
func (s *Service) Render(ctx context.Context, w io.Writer, inv *models.Invoice) error {
	if s.views == nil {
		return ErrNoRenderer
	}
	vm, err := s.View(ctx, inv)
	if err != nil {
		return err
	}
	return s.views.Render(w, ShowTemplate, vm)
}

// RenderHTML is Render into memory.
func (s *Service) RenderHTML(ctx context.Context, inv *models.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Render(ctx, &buf, inv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Archive renders the invoice as it was sent and uploads it. It is run by the
// job queue. An invoice is archived once; later runs leave the copy untouched.
func (s *Service) Archive(ctx context.Context, invoiceID uint) error {
	if s.archive == nil || s.archiveKey == nil {
		return ErrNoArchive
	}
	inv, err := s.invoices.GetByIDUnscoped(invoiceID)
	if err != nil {
		return fmt.Errorf("load invoice %d: %w", invoiceID, err)
	}
	if inv.ArchiveKey != "" {
		log.Debugf("[Invoicing] Invoice %s already archived to %s", inv.Number, inv.ArchiveKey)
		return nil
	}
	snapshot := *inv
	if snapshot.SentAt != nil {
		snapshot.Status = models.InvoiceStatusSent
		snapshot.PaidAt = nil
	}
	body, err := s.RenderHTML(ctx, &snapshot)
	if err != nil {
		return fmt.Errorf("render invoice %d: %w", invoiceID, err)
	}
	key := s.archiveKey(inv.UserID, inv.Number, inv.IssueDate)
	if err := s.archive.Put(ctx, key, "text/html; charset=utf-8", body); err != nil {
		return fmt.Errorf("upload invoice %d: %w", invoiceID, err)
	}
	if err := s.invoices.SetArchiveKey(inv.ID, key); err != nil {
		return err
	}
	log.Infof("[Invoicing] Archived invoice %s to %s", inv.Number, key)
	return nil
}

// ArchivedCopy returns the HTML uploaded when the invoice was sent, unchanged
// by later profile edits or status changes.
func (s *Service) ArchivedCopy(ctx context.Context, userID string, id uint) ([]byte, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inv.ArchiveKey == "" {
		return nil, ErrNotArchived
	}
	body, err := s.archive.Get(ctx, inv.ArchiveKey)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", inv.ArchiveKey, err)
	}
	return body, nil
}
