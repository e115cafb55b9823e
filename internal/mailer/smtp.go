// Package mailer provides the email transport: outbound SMTP delivery and
// inbound IMAP fetching with HTML body cleanup.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// Configuration errors.
var (
	ErrNoSMTPHost = errors.New("SMTP host not configured")
	ErrNoFrom     = errors.New("sender address not configured")
)

// SMTPOpts holds outbound transport configuration.
type SMTPOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPOption configures SMTPOpts.
type SMTPOption func(*SMTPOpts)

// WithSMTPHost sets the SMTP server hostname.
func WithSMTPHost(host string) SMTPOption {
	return func(o *SMTPOpts) { o.Host = host }
}

// WithSMTPPort sets the SMTP server port.
func WithSMTPPort(port int) SMTPOption {
	return func(o *SMTPOpts) { o.Port = port }
}

// WithSMTPCredentials sets the SMTP authentication credentials.
func WithSMTPCredentials(username, password string) SMTPOption {
	return func(o *SMTPOpts) {
		o.Username = username
		o.Password = password
	}
}

// WithFrom sets the sender address on outbound mail.
func WithFrom(from string) SMTPOption {
	return func(o *SMTPOpts) { o.From = from }
}

// SMTPMailer delivers outbound email over implicit-TLS SMTP.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

// NewSMTPMailer creates a mailer from the given options. The default port is
// 465 with implicit TLS.
func NewSMTPMailer(opts ...SMTPOption) (*SMTPMailer, error) {
	cfg := SMTPOpts{Port: 465}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, ErrNoSMTPHost
	}
	if cfg.From == "" {
		return nil, ErrNoFrom
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	slog.Debug("SMTPMailer created", "host", cfg.Host, "port", cfg.Port, "from", cfg.From)
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send delivers a plain-text email to a single recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		slog.Error("SMTPMailer send failed", "error", err, "to", to)
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	slog.Info("SMTPMailer delivered email", "to", to, "subject", subject)
	return nil
}
