// Package api provides HTTP handlers for InboxPilot endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inboxpilot/InboxPilot/internal/messaging"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/util"
)

// emailsHandler ingests one email and runs its workflow until it terminates
// or suspends at a review gate.
func (s *Server) emailsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var email models.Email
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		slog.Warn("Server.emailsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if email.ThreadID == "" {
		email.ThreadID = util.NewThreadID()
	}
	if email.RequesterID == "" {
		email.RequesterID = s.defaultUser
	}
	if err := email.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.engine.Start(r.Context(), email); err != nil {
		if errors.Is(err, models.ErrClassification) {
			slog.Error("Server.emailsHandler: classification failed", "error", err, "threadID", email.ThreadID)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Classification failed, retry later"))
			return
		}
		slog.Error("Server.emailsHandler: workflow start failed", "error", err, "threadID", email.ThreadID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process email"))
		return
	}
	writeJSONResponse(w, http.StatusAccepted, models.SuccessWithMessage("Email accepted", map[string]string{
		"thread_id": email.ThreadID,
	}))
}

// decisionsHandler applies a human review decision to a suspended workflow.
func (s *Server) decisionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	decision, err := messaging.ParseDecision(r.Body)
	if err != nil {
		slog.Warn("Server.decisionsHandler: invalid decision payload", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.engine.Resume(r.Context(), decision.ThreadID, decision); err != nil {
		switch {
		case errors.Is(err, models.ErrWorkflowNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Workflow not found"))
		case errors.Is(err, models.ErrWorkflowNotSuspended):
			writeJSONResponse(w, http.StatusConflict, models.Error("Workflow is not awaiting review"))
		case errors.Is(err, models.ErrInvalidDecision):
			writeJSONResponse(w, http.StatusUnprocessableEntity, models.Error("Decision not allowed for this review"))
		default:
			slog.Error("Server.decisionsHandler: resume failed", "error", err, "threadID", decision.ThreadID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to apply decision"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Decision applied", nil))
}

// workflowsHandler lists the workflows currently suspended at a review gate.
func (s *Server) workflowsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	states, err := s.stateManager.ListSuspendedWorkflows(r.Context())
	if err != nil {
		slog.Error("Server.workflowsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list workflows"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(states))
}

// workflowHandler returns one workflow checkpoint by thread ID.
func (s *Server) workflowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	threadID := strings.TrimPrefix(r.URL.Path, "/workflows/")
	if threadID == "" || strings.Contains(threadID, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid thread ID"))
		return
	}
	state, err := s.stateManager.GetWorkflowState(r.Context(), threadID)
	if err != nil {
		slog.Error("Server.workflowHandler: get failed", "error", err, "threadID", threadID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get workflow"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Workflow not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

// preferencesHandler returns a user's preference document for one namespace.
func (s *Server) preferencesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = s.defaultUser
	}
	ns := models.PreferenceNamespace(r.URL.Query().Get("namespace"))
	switch ns {
	case models.NamespaceTriage, models.NamespaceResponse, models.NamespaceCalendar:
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown namespace"))
		return
	}

	doc, err := s.prefs.Get(r.Context(), userID, ns)
	if err != nil {
		slog.Error("Server.preferencesHandler: get failed", "error", err, "userID", userID, "namespace", ns)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get preferences"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"user_id":   userID,
		"namespace": string(ns),
		"document":  doc,
	}))
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
