// Package api provides the HTTP surface and the service wiring for
// InboxPilot. It exposes endpoints for ingesting email, resolving review
// decisions, and inspecting workflows and preference documents, and it
// supervises the IMAP poller alongside the HTTP server.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inboxpilot/InboxPilot/internal/flow"
	"github.com/inboxpilot/InboxPilot/internal/genai"
	"github.com/inboxpilot/InboxPilot/internal/lockfile"
	"github.com/inboxpilot/InboxPilot/internal/mailer"
	"github.com/inboxpilot/InboxPilot/internal/messaging"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/poller"
	"github.com/inboxpilot/InboxPilot/internal/recovery"
	"github.com/inboxpilot/InboxPilot/internal/store"
)

// Default server configuration.
const (
	DefaultAddr        = ":8080"
	DefaultUser        = "default"
	shutdownGrace      = 10 * time.Second
	readHeaderTimeout  = 5 * time.Second
	defaultPollMinutes = 1
)

// Opts holds API server configuration.
type Opts struct {
	Addr         string
	StateDir     string
	DefaultUser  string
	PollInterval time.Duration
}

// Option configures Opts.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStateDir sets the state directory guarded by the instance lock.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithDefaultUser sets the preference owner for ingested email.
func WithDefaultUser(userID string) Option {
	return func(o *Opts) { o.DefaultUser = userID }
}

// WithPollInterval sets the IMAP poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// workflowEngine is the controller surface the handlers depend on.
type workflowEngine interface {
	Start(ctx context.Context, email models.Email) error
	Resume(ctx context.Context, threadID string, decision models.ReviewDecision) error
}

// preferenceReader is the preference surface the handlers depend on.
type preferenceReader interface {
	Get(ctx context.Context, userID string, ns models.PreferenceNamespace) (string, error)
}

// Server holds the handler dependencies.
type Server struct {
	engine       workflowEngine
	stateManager flow.StateManager
	prefs        preferenceReader
	defaultUser  string
}

// NewServer creates a Server over the given components.
func NewServer(engine workflowEngine, sm flow.StateManager, prefs preferenceReader, defaultUser string) *Server {
	if defaultUser == "" {
		defaultUser = DefaultUser
	}
	return &Server{engine: engine, stateManager: sm, prefs: prefs, defaultUser: defaultUser}
}

// Routes returns the HTTP mux for the API surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/emails", s.emailsHandler)
	mux.HandleFunc("/decisions", s.decisionsHandler)
	mux.HandleFunc("/workflows", s.workflowsHandler)
	mux.HandleFunc("/workflows/", s.workflowHandler)
	mux.HandleFunc("/preferences", s.preferencesHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run wires every component from the given options and serves until SIGINT
// or SIGTERM. The state directory lock is held for the whole lifetime.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, smtpOpts []mailer.SMTPOption, imapOpts []mailer.IMAPOption, reviewOpts []messaging.Option, apiOpts ...Option) error {
	cfg := Opts{Addr: DefaultAddr, DefaultUser: DefaultUser, PollInterval: defaultPollMinutes * time.Minute}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	if cfg.StateDir != "" {
		lock, err := lockfile.AcquireLock(cfg.StateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := openStore(storeOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	sender, err := buildMailSender(smtpOpts)
	if err != nil {
		return err
	}
	reviewer, err := buildReviewer(reviewOpts)
	if err != nil {
		return err
	}

	stateManager := flow.NewStoreBasedStateManager(st)
	prefs := flow.NewPreferenceManager(st, genaiClient)
	triage := flow.NewTriageStage(genaiClient, prefs)
	executor := flow.NewActionExecutor(sender, nil)
	draft := flow.NewDraftStage(genaiClient, prefs, executor)
	controller := flow.NewController(stateManager, triage, draft, reviewer, executor, prefs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recoveryManager := recovery.NewManager()
	recoveryManager.Register(recovery.NewReviewResender(controller.ResendPendingReviews))
	// After the resend pass: stalled drafts present their own review request
	// when they suspend, so they must not be re-presented a second time.
	recoveryManager.Register(recovery.NewDraftResumer(controller.ResumeStalledDrafts))
	if err := recoveryManager.RecoverAll(ctx); err != nil {
		return err
	}

	server := NewServer(controller, stateManager, prefs, cfg.DefaultUser)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("API server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if fetcher := buildFetcher(imapOpts); fetcher != nil {
		mailPoller := poller.New(fetcher, controller, st,
			poller.WithInterval(cfg.PollInterval),
			poller.WithUserID(cfg.DefaultUser),
		)
		group.Go(func() error {
			if err := mailPoller.Run(groupCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		slog.Info("IMAP polling disabled, email arrives via POST /emails only")
	}

	err = group.Wait()
	controller.Flush()
	return err
}

// openStore selects and opens the store backend from its options. No DSN
// means a non-durable in-memory store.
func openStore(storeOpts []store.Option) (store.Store, error) {
	cfg := store.Opts{}
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Warn("No database DSN configured, state will not survive restarts")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(cfg.DSN) == "postgres":
		slog.Info("Opening PostgreSQL store")
		return store.NewPostgresStore(storeOpts...)
	default:
		slog.Info("Opening SQLite store", "path", cfg.DSN)
		return store.NewSQLiteStore(storeOpts...)
	}
}

// buildMailSender returns the SMTP mailer, or a log-only sender when SMTP is
// not configured so the service stays usable in development.
func buildMailSender(smtpOpts []mailer.SMTPOption) (flow.MailSender, error) {
	cfg := mailer.SMTPOpts{}
	for _, opt := range smtpOpts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		slog.Warn("SMTP not configured, outbound email will only be logged")
		return logMailSender{}, nil
	}
	return mailer.NewSMTPMailer(smtpOpts...)
}

// buildReviewer returns the webhook reviewer, or a log-only reviewer when no
// webhook is configured (decisions still arrive via POST /decisions).
func buildReviewer(reviewOpts []messaging.Option) (flow.Reviewer, error) {
	cfg := messaging.Opts{}
	for _, opt := range reviewOpts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		slog.Warn("Review webhook not configured, review requests will only be logged")
		return logReviewer{}, nil
	}
	return messaging.NewWebhookReviewer(reviewOpts...)
}

// buildFetcher returns the IMAP fetcher, or nil when polling is not
// configured.
func buildFetcher(imapOpts []mailer.IMAPOption) poller.Fetcher {
	cfg := mailer.IMAPOpts{}
	for _, opt := range imapOpts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil
	}
	fetcher, err := mailer.NewIMAPFetcher(imapOpts...)
	if err != nil {
		slog.Error("Failed to create IMAP fetcher, polling disabled", "error", err)
		return nil
	}
	return fetcher
}

// logMailSender records outbound mail in the log instead of delivering it.
type logMailSender struct{}

func (logMailSender) Send(ctx context.Context, to, subject, body string) error {
	slog.Info("Outbound email (SMTP disabled)", "to", to, "subject", subject, "bodyLength", len(body))
	return nil
}

// logReviewer records review requests in the log instead of posting them.
type logReviewer struct{}

func (logReviewer) PresentReviewRequest(ctx context.Context, req models.ReviewRequest) error {
	slog.Info("Review request pending (webhook disabled)",
		"threadID", req.ThreadID, "action", req.ActionName, "allowedDecisions", req.AllowedDecisions)
	return nil
}
