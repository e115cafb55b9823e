// Package messaging delivers review requests to the human approval channel
// and parses the decisions that come back.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/inboxpilot/InboxPilot/internal/models"
)

// ErrNoWebhookURL indicates the approval channel is not configured.
var ErrNoWebhookURL = errors.New("review webhook URL not configured")

// Opts holds webhook reviewer configuration.
type Opts struct {
	URL     string
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

// Option configures Opts.
type Option func(*Opts)

// WithWebhookURL sets the endpoint review cards are posted to.
func WithWebhookURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// WithToken sets the bearer token sent with each card.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// reviewCard is the wire format posted to the approval channel: the rendered
// request plus one button per allowed decision.
type reviewCard struct {
	ThreadID    string       `json:"thread_id"`
	RecipientID string       `json:"recipient_id,omitempty"`
	Action      string       `json:"action,omitempty"`
	Body        string       `json:"body"`
	Buttons     []cardButton `json:"buttons"`
}

type cardButton struct {
	Decision models.DecisionType `json:"decision"`
	Label    string              `json:"label"`
}

var buttonLabels = map[models.DecisionType]string{
	models.DecisionAccept:  "Approve",
	models.DecisionEdit:    "Edit",
	models.DecisionRespond: "Reply with feedback",
	models.DecisionIgnore:  "Dismiss",
}

// WebhookReviewer posts review cards to an HTTP endpoint. Decisions arrive
// out of band on the decision API, correlated by thread ID.
type WebhookReviewer struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookReviewer creates a reviewer from the given options.
func NewWebhookReviewer(opts ...Option) (*WebhookReviewer, error) {
	cfg := Opts{Timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		return nil, ErrNoWebhookURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("WebhookReviewer created", "url", cfg.URL)
	return &WebhookReviewer{url: cfg.URL, token: cfg.Token, client: client}, nil
}

// PresentReviewRequest posts the request as a review card. Failures are
// returned to the caller; the persisted checkpoint makes redelivery safe.
func (w *WebhookReviewer) PresentReviewRequest(ctx context.Context, req models.ReviewRequest) error {
	card := reviewCard{
		ThreadID:    req.ThreadID,
		RecipientID: req.RecipientID,
		Action:      string(req.ActionName),
		Body:        req.Description,
	}
	for _, d := range req.AllowedDecisions {
		card.Buttons = append(card.Buttons, cardButton{Decision: d, Label: buttonLabels[d]})
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal review card: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build review card request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		slog.Error("WebhookReviewer post failed", "error", err, "threadID", req.ThreadID)
		return fmt.Errorf("failed to post review card: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("WebhookReviewer got non-2xx response", "status", resp.StatusCode, "threadID", req.ThreadID)
		return fmt.Errorf("review webhook returned status %d", resp.StatusCode)
	}
	slog.Info("WebhookReviewer presented review request", "threadID", req.ThreadID, "buttons", len(card.Buttons))
	return nil
}
