package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/mail"
)

type JobType string

const (
	JobTypeSendEmail      JobType = "send_email"
	JobTypeArchiveInvoice JobType = "archive_invoice"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job is the unit stored under JobKeyPrefix+ID. Payload holds the JSON of
// one of the *JobPayload types below.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ErrorMsg    string          `json:"error_msg,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
}

// Decode unmarshals the payload into out.
func (j *Job) Decode(out any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("%s job %s has no payload", j.Type, j.ID)
	}
	if err := json.Unmarshal(j.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// SendEmailJobPayload is a templated email to deliver.
type SendEmailJobPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

func (p SendEmailJobPayload) Message() mail.Message {
	return mail.Message{To: p.To, Template: p.Template, Data: p.Data}
}

// ArchiveInvoiceJobPayload names the invoice to render and upload.
type ArchiveInvoiceJobPayload struct {
	InvoiceID uint   `json:"invoice_id"`
	UserID    string `json:"user_id"`
}

// The lifecycle methods below only touch the in-memory job; the queue
// persists it afterwards.

func (j *Job) start(now time.Time) {
	j.Status = JobStatusProcessing
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

func (j *Job) complete(now time.Time) {
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.ErrorMsg = ""
}

// fail counts the attempt and reports whether another one is allowed. The
// status stays failed until the queue decides between retry and burial.
func (j *Job) fail(now time.Time, err error) bool {
	j.Status = JobStatusFailed
	j.ErrorMsg = err.Error()
	j.RetryCount++
	j.UpdatedAt = now
	return j.RetryCount < j.MaxRetries
}

func (j *Job) delay(now time.Time) {
	j.Status = JobStatusRetrying
	j.UpdatedAt = now
}
