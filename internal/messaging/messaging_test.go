package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inboxpilot/InboxPilot/internal/models"
)

func TestPresentReviewRequestPostsCard(t *testing.T) {
	var got reviewCard
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad card payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reviewer, err := NewWebhookReviewer(WithWebhookURL(srv.URL), WithToken("secret"))
	if err != nil {
		t.Fatalf("NewWebhookReviewer failed: %v", err)
	}
	req := models.ReviewRequest{
		ActionName:       models.ActionSendEmail,
		Description:      "Proposed reply to alice",
		AllowedDecisions: models.AllowedDecisionsFor(models.ActionSendEmail),
		ThreadID:         "thread-9",
		RecipientID:      "user-1",
	}
	if err := reviewer.PresentReviewRequest(context.Background(), req); err != nil {
		t.Fatalf("PresentReviewRequest failed: %v", err)
	}

	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.ThreadID != "thread-9" {
		t.Errorf("ThreadID = %q", got.ThreadID)
	}
	if len(got.Buttons) != 4 {
		t.Fatalf("expected 4 buttons, got %d", len(got.Buttons))
	}
	if got.Buttons[0].Decision != models.DecisionAccept || got.Buttons[0].Label != "Approve" {
		t.Errorf("unexpected first button: %+v", got.Buttons[0])
	}
}

func TestPresentReviewRequestNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	reviewer, err := NewWebhookReviewer(WithWebhookURL(srv.URL))
	if err != nil {
		t.Fatalf("NewWebhookReviewer failed: %v", err)
	}
	err = reviewer.PresentReviewRequest(context.Background(), models.ReviewRequest{ThreadID: "t"})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestNewWebhookReviewerRequiresURL(t *testing.T) {
	if _, err := NewWebhookReviewer(); !errors.Is(err, ErrNoWebhookURL) {
		t.Errorf("expected ErrNoWebhookURL, got %v", err)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    models.DecisionType
		wantErr error
	}{
		{
			name:    "accept",
			payload: `{"thread_id":"t1","decision":"accept"}`,
			want:    models.DecisionAccept,
		},
		{
			name:    "edit with args",
			payload: `{"thread_id":"t1","decision":"edit","new_args":{"to":"a@b.c","subject":"s","content":"c"}}`,
			want:    models.DecisionEdit,
		},
		{
			name:    "respond with feedback",
			payload: `{"thread_id":"t1","decision":"respond","feedback":"shorter please"}`,
			want:    models.DecisionRespond,
		},
		{
			name:    "missing thread",
			payload: `{"decision":"accept"}`,
			wantErr: ErrMissingThreadID,
		},
		{
			name:    "unknown decision",
			payload: `{"thread_id":"t1","decision":"approve-all"}`,
			wantErr: ErrUnknownDecision,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := ParseDecision(strings.NewReader(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecision failed: %v", err)
			}
			if decision.Type != tt.want {
				t.Errorf("Type = %s, want %s", decision.Type, tt.want)
			}
			if decision.ThreadID != "t1" {
				t.Errorf("ThreadID = %q", decision.ThreadID)
			}
		})
	}
}

func TestParseDecisionFeedbackAndArgsSurvive(t *testing.T) {
	payload := `{"thread_id":"t2","decision":"edit","new_args":{"content":"rewritten"},"feedback":"n/a"}`
	decision, err := ParseDecision(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if string(decision.NewArgs) != `{"content":"rewritten"}` {
		t.Errorf("NewArgs = %s", decision.NewArgs)
	}
	if decision.Feedback != "n/a" {
		t.Errorf("Feedback = %q", decision.Feedback)
	}
}
