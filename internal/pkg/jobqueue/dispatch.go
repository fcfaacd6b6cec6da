package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/mail"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
)

// MailSender delivers rendered emails; *mail.Mailer implements it.
type MailSender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// InvoiceArchiver renders an invoice and stores it in object storage.
type InvoiceArchiver interface {
	Archive(ctx context.Context, invoiceID uint) error
}

// EnqueueEmail queues a templated email.
func (q *Queue) EnqueueEmail(ctx context.Context, msg mail.Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("email recipient is required")
	}
	payload := SendEmailJobPayload{To: msg.To, Template: msg.Template, Data: msg.Data}
	_, err := q.EnqueueJob(ctx, JobTypeSendEmail, payload)
	return err
}

// EnqueueInvoiceArchive queues the upload of a rendered invoice.
func (q *Queue) EnqueueInvoiceArchive(ctx context.Context, invoiceID uint, userID string) error {
	payload := ArchiveInvoiceJobPayload{InvoiceID: invoiceID, UserID: userID}
	_, err := q.EnqueueJob(ctx, JobTypeArchiveInvoice, payload)
	return err
}

// RegisterMailHandler processes send_email jobs with sender.
func (q *Queue) RegisterMailHandler(sender MailSender) {
	q.Handle(JobTypeSendEmail, func(ctx context.Context, job *Job) error {
		var payload SendEmailJobPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return sender.Send(ctx, payload.Message())
	})
}

// RegisterArchiveHandler processes archive_invoice jobs with archiver.
func (q *Queue) RegisterArchiveHandler(archiver InvoiceArchiver) {
	q.Handle(JobTypeArchiveInvoice, func(ctx context.Context, job *Job) error {
		var payload ArchiveInvoiceJobPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		if payload.InvoiceID == 0 {
			return errors.New("archive job without invoice id")
		}
		return archiver.Archive(ctx, payload.InvoiceID)
	})
}

// BillingNotifier turns billing events into queued emails.
type BillingNotifier struct {
	queue     *Queue
	publicURL string
}

func NewBillingNotifier(queue *Queue, publicURL string) *BillingNotifier {
	return &BillingNotifier{queue: queue, publicURL: strings.TrimRight(publicURL, "/")}
}

func (n *BillingNotifier) TrialEnding(ctx context.Context, userID, email string, trialEnd time.Time) error {
	if email == "" {
		log.Warnf("[JobQueue] no email for %s, trial ending notice skipped", userID)
		return nil
	}
	return n.queue.EnqueueEmail(ctx, mail.Message{
		To:       email,
		Template: mail.TemplateTrialEnding,
		Data: map[string]string{
			"trial_end":  urssaf.FormatDate(trialEnd),
			"manage_url": n.publicURL + "/account/billing",
		},
	})
}

func (n *BillingNotifier) PaymentFailed(ctx context.Context, userID, email string, amountCents int64, currency, invoiceURL string) error {
	if email == "" {
		log.Warnf("[JobQueue] no email for %s, payment failure notice skipped", userID)
		return nil
	}
	amount := urssaf.FormatEuros(amountCents)
	if c := strings.ToUpper(currency); c != "" && c != "EUR" {
		amount = fmt.Sprintf("%s %s", urssaf.FromCents(amountCents).StringFixed(2), c)
	}
	return n.queue.EnqueueEmail(ctx, mail.Message{
		To:       email,
		Template: mail.TemplatePaymentFailed,
		Data: map[string]string{
			"amount":      amount,
			"invoice_url": invoiceURL,
		},
	})
}
