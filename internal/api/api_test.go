package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inboxpilot/InboxPilot/internal/flow"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/store"
)

// fakeEngine scripts controller outcomes for handler tests.
type fakeEngine struct {
	started   []models.Email
	resumed   []models.ReviewDecision
	startErr  error
	resumeErr error
}

func (f *fakeEngine) Start(ctx context.Context, email models.Email) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, email)
	return nil
}

func (f *fakeEngine) Resume(ctx context.Context, threadID string, decision models.ReviewDecision) error {
	if f.resumeErr != nil {
		return f.resumeErr
	}
	f.resumed = append(f.resumed, decision)
	return nil
}

type fakePrefs struct {
	doc string
	err error
}

func (f *fakePrefs) Get(ctx context.Context, userID string, ns models.PreferenceNamespace) (string, error) {
	return f.doc, f.err
}

func newTestServer(engine *fakeEngine, st store.Store) *Server {
	return NewServer(engine, flow.NewStoreBasedStateManager(st), &fakePrefs{doc: "be concise"}, "user-1")
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestEmailsHandlerAcceptsEmail(t *testing.T) {
	engine := &fakeEngine{}
	server := newTestServer(engine, store.NewInMemoryStore())

	body := `{"author":"alice@example.com","to":"user@example.com","subject":"hi","body":"are you free?"}`
	req := httptest.NewRequest(http.MethodPost, "/emails", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(engine.started) != 1 {
		t.Fatalf("expected 1 started workflow, got %d", len(engine.started))
	}
	started := engine.started[0]
	if started.ThreadID == "" {
		t.Error("thread ID not generated")
	}
	if started.RequesterID != "user-1" {
		t.Errorf("RequesterID = %q, want default user", started.RequesterID)
	}
}

func TestEmailsHandlerRejectsInvalid(t *testing.T) {
	engine := &fakeEngine{}
	server := newTestServer(engine, store.NewInMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing body", `{"author":"a@b.c","to":"u@b.c"}`},
		{"missing author", `{"to":"u@b.c","body":"text"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/emails", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			server.Routes().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if len(engine.started) != 0 {
		t.Errorf("invalid requests started %d workflows", len(engine.started))
	}
}

func TestEmailsHandlerMethodNotAllowed(t *testing.T) {
	server := newTestServer(&fakeEngine{}, store.NewInMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/emails", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestDecisionsHandlerAppliesDecision(t *testing.T) {
	engine := &fakeEngine{}
	server := newTestServer(engine, store.NewInMemoryStore())

	body := `{"thread_id":"t1","decision":"accept"}`
	req := httptest.NewRequest(http.MethodPost, "/decisions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(engine.resumed) != 1 || engine.resumed[0].Type != models.DecisionAccept {
		t.Fatalf("decision not applied: %+v", engine.resumed)
	}
}

func TestDecisionsHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		resumeErr  error
		wantStatus int
	}{
		{"not found", models.ErrWorkflowNotFound, http.StatusNotFound},
		{"not suspended", models.ErrWorkflowNotSuspended, http.StatusConflict},
		{"invalid decision", models.ErrInvalidDecision, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(&fakeEngine{resumeErr: tt.resumeErr}, store.NewInMemoryStore())
			body := `{"thread_id":"t1","decision":"accept"}`
			req := httptest.NewRequest(http.MethodPost, "/decisions", strings.NewReader(body))
			rec := httptest.NewRecorder()
			server.Routes().ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestDecisionsHandlerRejectsUnknownType(t *testing.T) {
	server := newTestServer(&fakeEngine{}, store.NewInMemoryStore())
	body := `{"thread_id":"t1","decision":"yolo"}`
	req := httptest.NewRequest(http.MethodPost, "/decisions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWorkflowHandlers(t *testing.T) {
	st := store.NewInMemoryStore()
	suspended := models.WorkflowState{
		Email:  models.Email{Author: "a@b.c", Body: "x", ThreadID: "t1"},
		Status: models.StatusAwaitingReview,
	}
	if err := st.SaveWorkflowState(suspended); err != nil {
		t.Fatalf("SaveWorkflowState failed: %v", err)
	}
	server := newTestServer(&fakeEngine{}, st)

	// Listing returns the suspended workflow.
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "t1") {
		t.Errorf("suspended workflow missing from listing: %s", rec.Body.String())
	}

	// Fetch by thread ID.
	req = httptest.NewRequest(http.MethodGet, "/workflows/t1", nil)
	rec = httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(models.StatusAwaitingReview)) {
		t.Errorf("workflow status missing: %s", rec.Body.String())
	}

	// Unknown thread is 404.
	req = httptest.NewRequest(http.MethodGet, "/workflows/nope", nil)
	rec = httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing workflow status = %d, want 404", rec.Code)
	}
}

func TestPreferencesHandler(t *testing.T) {
	server := newTestServer(&fakeEngine{}, store.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/preferences?namespace=triage_preferences", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape: %T", resp.Result)
	}
	if result["document"] != "be concise" {
		t.Errorf("document = %v", result["document"])
	}
	if result["user_id"] != "user-1" {
		t.Errorf("user_id = %v, want default user", result["user_id"])
	}

	// Unknown namespace is rejected.
	req = httptest.NewRequest(http.MethodGet, "/preferences?namespace=bogus", nil)
	rec = httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus namespace status = %d, want 400", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	server := newTestServer(&fakeEngine{}, store.NewInMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
