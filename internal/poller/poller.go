// Package poller drives inbound mail into the workflow engine on a fixed
// interval. Progress is tracked per message UID: a UID is marked seen only
// after its workflow starts successfully, so a crash between fetch and start
// redelivers instead of dropping mail.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/inboxpilot/InboxPilot/internal/mailer"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/util"
)

// DefaultInterval is the poll interval when none is configured.
const DefaultInterval = time.Minute

// Fetcher pulls unseen messages from the mailbox.
type Fetcher interface {
	FetchUnseen(ctx context.Context) ([]mailer.InboundMessage, error)
	Mailbox() string
}

// WorkflowStarter ingests one email into the workflow engine.
type WorkflowStarter interface {
	Start(ctx context.Context, email models.Email) error
}

// SeenStore records which UIDs have been handed to the engine.
type SeenStore interface {
	MarkSeenUID(mailbox string, uid uint32) error
	IsSeenUID(mailbox string, uid uint32) (bool, error)
}

// Opts holds poller configuration.
type Opts struct {
	Interval time.Duration
	UserID   string
}

// Option configures Opts.
type Option func(*Opts)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) { o.Interval = d }
}

// WithUserID sets the preference owner attached to ingested email.
func WithUserID(userID string) Option {
	return func(o *Opts) { o.UserID = userID }
}

// Poller periodically fetches unseen mail and starts workflows for it.
type Poller struct {
	fetcher  Fetcher
	starter  WorkflowStarter
	seen     SeenStore
	interval time.Duration
	userID   string
}

// New creates a poller.
func New(fetcher Fetcher, starter WorkflowStarter, seen SeenStore, opts ...Option) *Poller {
	cfg := Opts{Interval: DefaultInterval, UserID: "default"}
	for _, opt := range opts {
		opt(&cfg)
	}
	// time.NewTicker panics on a non-positive interval.
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		starter:  starter,
		seen:     seen,
		interval: cfg.Interval,
		userID:   cfg.UserID,
	}
}

// Run polls until the context is canceled. The first poll happens
// immediately.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("Poller started", "mailbox", p.fetcher.Mailbox(), "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Poller stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches unseen mail and ingests each message. Errors are logged,
// never fatal: the next tick retries.
func (p *Poller) PollOnce(ctx context.Context) {
	mailbox := p.fetcher.Mailbox()
	messages, err := p.fetcher.FetchUnseen(ctx)
	if err != nil {
		slog.Error("Poller fetch failed", "error", err, "mailbox", mailbox)
		return
	}
	for _, msg := range messages {
		p.ingest(ctx, mailbox, msg)
	}
}

func (p *Poller) ingest(ctx context.Context, mailbox string, msg mailer.InboundMessage) {
	seen, err := p.seen.IsSeenUID(mailbox, msg.UID)
	if err != nil {
		slog.Error("Poller seen-UID lookup failed", "error", err, "uid", msg.UID)
		return
	}
	if seen {
		return
	}

	email := models.Email{
		Author:      msg.Author,
		To:          msg.To,
		Subject:     msg.Subject,
		Body:        msg.Body,
		ThreadID:    util.ThreadIDFromMessageID(msg.MessageID),
		RequesterID: p.userID,
	}
	if err := email.Validate(); err != nil {
		// Malformed mail never becomes valid; mark it so it cannot wedge
		// the poll loop.
		slog.Warn("Poller skipping invalid message", "error", err, "uid", msg.UID, "author", msg.Author)
		p.markSeen(mailbox, msg.UID)
		return
	}

	if err := p.starter.Start(ctx, email); err != nil {
		// Left unmarked: the next poll retries, e.g. after a transient
		// classification failure.
		slog.Error("Poller failed to start workflow", "error", err, "uid", msg.UID, "threadID", email.ThreadID)
		return
	}
	slog.Info("Poller ingested message", "uid", msg.UID, "threadID", email.ThreadID, "subject", email.Subject)
	p.markSeen(mailbox, msg.UID)
}

func (p *Poller) markSeen(mailbox string, uid uint32) {
	if err := p.seen.MarkSeenUID(mailbox, uid); err != nil {
		slog.Error("Poller failed to mark UID seen", "error", err, "uid", uid)
	}
}
