// Package mailer delivers transactional e-mails.
package mailer

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/config"
)

// Message is a single plain-text/HTML e-mail.
type Message struct {
	To          []mail.Address
	Subject     string
	TextContent string
	HTMLContent string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the mailer selected by cfg.Provider, falling back to the
// console mailer when SendGrid has no API key.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Provider == "sendgrid" && cfg.SendgridAPIKey != "" {
		return NewSendgrid(cfg.SendgridAPIKey, cfg.FromName, cfg.FromAddress, cfg.SubjectPrefix)
	}
	if cfg.Provider == "sendgrid" {
		logger.Warn("sendgrid selected without api key, using console mailer")
	}
	return NewConsole(cfg.SubjectPrefix, logger)
}

// Console logs messages instead of sending them.
type Console struct {
	subjPrefix string
	logger     *zap.Logger
}

// NewConsole returns a mailer that writes each message to logger.
func NewConsole(subjPrefix string, logger *zap.Logger) *Console {
	return &Console{subjPrefix: subjPrefix, logger: logger}
}

// Send logs msg at info level and never fails.
func (c *Console) Send(_ context.Context, msg Message) error {
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	c.logger.Info("email",
		zap.Strings("to", to),
		zap.String("subject", c.subjPrefix+msg.Subject),
		zap.String("body", msg.TextContent),
	)
	return nil
}

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Sendgrid delivers through the SendGrid v3 API.
type Sendgrid struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

// NewSendgrid returns a mailer that sends from fromName <fromAddress> using key.
func NewSendgrid(key, fromName, fromAddress, subjPrefix string) *Sendgrid {
	return &Sendgrid{
		key:        key,
		host:       sendgridHost,
		from:       sgmail.NewEmail(fromName, fromAddress),
		subjPrefix: subjPrefix,
	}
}

func (s *Sendgrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

// Send posts msg to the SendGrid API. A message without recipients is a no-op.
func (s *Sendgrid) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid returned status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
