package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/gofiber/fiber/v2/log"
	gomail "github.com/wneessen/go-mail"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

// Template names understood by the mailer.
const (
	TemplateTrialEnding         = "trial_ending"
	TemplatePaymentFailed       = "payment_failed"
	TemplateInvoiceSent         = "invoice_sent"
	TemplateDeclarationReminder = "declaration_reminder"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrUnknownTemplate = errors.New("unknown mail template")

// Message is a queued email. Data is rendered into the named template, which
// defines both a "subject" and a "body" block.
type Message struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// Sender delivers prepared messages. *gomail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// the subject is plain text, the body is escaped HTML
type mailTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Mailer renders templates and hands them to an SMTP sender.
type Mailer struct {
	sender    Sender
	from      string
	templates map[string]mailTemplate
}

// NewMailer parses the embedded templates.
func NewMailer(sender Sender, from string) (*Mailer, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	tpls := make(map[string]mailTemplate, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".html")
		path := "templates/" + e.Name()
		subject, err := texttemplate.ParseFS(templateFS, path)
		if err != nil {
			return nil, fmt.Errorf("parse mail template %s: %w", name, err)
		}
		body, err := htmltemplate.ParseFS(templateFS, path)
		if err != nil {
			return nil, fmt.Errorf("parse mail template %s: %w", name, err)
		}
		tpls[name] = mailTemplate{subject: subject, body: body}
	}
	return &Mailer{sender: sender, from: from, templates: tpls}, nil
}

// NewMailerFromEnv builds an SMTP client from SMTP_* variables.
func NewMailerFromEnv() (*Mailer, error) {
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		return nil, errors.New("SMTP_HOST is not set")
	}
	opts := []gomail.Option{
		gomail.WithPort(env.GetEnvInt("SMTP_PORT", 587)),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(env.GetEnvDuration("SMTP_TIMEOUT", 15*time.Second)),
	}
	if user := env.GetEnv("SMTP_USERNAME", ""); user != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(user),
			gomail.WithPassword(env.GetEnv("SMTP_PASSWORD", "")),
		)
	}
	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	sender := env.GetEnv("SMTP_SENDER", "")
	if sender == "" {
		sender = "Comptalyze <no-reply@comptalyze.com>"
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender: %s", sender)
	}
	return NewMailer(client, sender)
}

// Build renders msg into a go-mail message without sending it.
func (m *Mailer) Build(msg Message) (*gomail.Msg, error) {
	tpl, ok := m.templates[msg.Template]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, msg.Template)
	}
	var subject, body bytes.Buffer
	if err := tpl.subject.ExecuteTemplate(&subject, "subject", msg.Data); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.ExecuteTemplate(&body, "body", msg.Data); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	out := gomail.NewMsg()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	out.Subject(strings.TrimSpace(subject.String()))
	out.SetBodyString(gomail.TypeTextHTML, body.String())
	return out, nil
}

// Send renders and delivers one message.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	out, err := m.Build(msg)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, out); err != nil {
		log.Errorf("[Mail] send %s to %s failed: %v", msg.Template, msg.To, err)
		return err
	}
	log.Infof("[Mail] sent %s to %s", msg.Template, msg.To)
	return nil
}
