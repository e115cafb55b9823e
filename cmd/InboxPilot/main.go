package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/inboxpilot/InboxPilot/internal/api"
	"github.com/inboxpilot/InboxPilot/internal/genai"
	"github.com/inboxpilot/InboxPilot/internal/mailer"
	"github.com/inboxpilot/InboxPilot/internal/messaging"
	"github.com/inboxpilot/InboxPilot/internal/store"
	"github.com/inboxpilot/InboxPilot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for InboxPilot state data
	DefaultStateDir = "/var/lib/inboxpilot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "inboxpilot.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	smtpOpts := buildSMTPOptions(config)
	imapOpts := buildIMAPOptions(config)
	reviewOpts := buildReviewOptions(config)
	apiOpts := buildAPIOptions(flags, config)

	slog.Info("Bootstrapping InboxPilot with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr,
		"imap_enabled", config.IMAPHost != "", "smtp_enabled", config.SMTPHost != "")
	if err := api.Run(storeOpts, genaiOpts, smtpOpts, imapOpts, reviewOpts, apiOpts...); err != nil {
		slog.Error("InboxPilot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("InboxPilot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	APIAddr      string
	DefaultUser  string
	PollInterval int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPMailbox  string

	ReviewWebhookURL   string
	ReviewWebhookToken string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
}

func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     util.GetEnv("INBOXPILOT_STATE_DIR", DefaultStateDir),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		DefaultUser:  util.GetEnv("INBOXPILOT_USER", "default"),
		PollInterval: util.ParseIntEnv("IMAP_POLL_SECONDS", 60),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     util.ParseIntEnv("SMTP_PORT", 465),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		IMAPHost:     os.Getenv("IMAP_HOST"),
		IMAPPort:     util.ParseIntEnv("IMAP_PORT", 993),
		IMAPUsername: os.Getenv("IMAP_USERNAME"),
		IMAPPassword: os.Getenv("IMAP_PASSWORD"),
		IMAPMailbox:  util.GetEnv("IMAP_MAILBOX", "INBOX"),

		ReviewWebhookURL:   os.Getenv("REVIEW_WEBHOOK_URL"),
		ReviewWebhookToken: os.Getenv("REVIEW_WEBHOOK_TOKEN"),
	}
	return config
}

// parseCommandLineFlags parses flags, with environment values as defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for InboxPilot data (overrides $INBOXPILOT_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL); empty uses SQLite in the state directory"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}
	flag.Parse()
	return flags
}

// buildStoreOptions constructs store configuration options. An explicit DSN
// wins; otherwise the store lives as SQLite inside the state directory.
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	switch {
	case *flags.dbDSN != "":
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	case *flags.stateDir != "":
		dbPath := filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No DSN provided, using SQLite in state directory", "db_path", dbPath)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(dbPath))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildSMTPOptions constructs outbound mail options
func buildSMTPOptions(config Config) []mailer.SMTPOption {
	var smtpOpts []mailer.SMTPOption
	if config.SMTPHost == "" {
		return smtpOpts
	}
	smtpOpts = append(smtpOpts,
		mailer.WithSMTPHost(config.SMTPHost),
		mailer.WithSMTPPort(config.SMTPPort),
		mailer.WithSMTPCredentials(config.SMTPUsername, config.SMTPPassword),
		mailer.WithFrom(config.SMTPFrom),
	)
	return smtpOpts
}

// buildIMAPOptions constructs inbound mail options
func buildIMAPOptions(config Config) []mailer.IMAPOption {
	var imapOpts []mailer.IMAPOption
	if config.IMAPHost == "" {
		return imapOpts
	}
	imapOpts = append(imapOpts,
		mailer.WithIMAPHost(config.IMAPHost),
		mailer.WithIMAPPort(config.IMAPPort),
		mailer.WithIMAPCredentials(config.IMAPUsername, config.IMAPPassword),
		mailer.WithMailbox(config.IMAPMailbox),
	)
	return imapOpts
}

// buildReviewOptions constructs review webhook options
func buildReviewOptions(config Config) []messaging.Option {
	var reviewOpts []messaging.Option
	if config.ReviewWebhookURL == "" {
		return reviewOpts
	}
	reviewOpts = append(reviewOpts, messaging.WithWebhookURL(config.ReviewWebhookURL))
	if config.ReviewWebhookToken != "" {
		reviewOpts = append(reviewOpts, messaging.WithToken(config.ReviewWebhookToken))
	}
	return reviewOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	apiOpts := []api.Option{
		api.WithStateDir(*flags.stateDir),
		api.WithDefaultUser(config.DefaultUser),
		api.WithPollInterval(time.Duration(config.PollInterval) * time.Second),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
