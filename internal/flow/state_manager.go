// Package flow provides concrete implementations of state management.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// GetWorkflowState retrieves the checkpoint for a thread, or nil if absent.
func (sm *StoreBasedStateManager) GetWorkflowState(ctx context.Context, threadID string) (*models.WorkflowState, error) {
	slog.Debug("StateManager GetWorkflowState", "threadID", threadID)
	state, err := sm.store.GetWorkflowState(threadID)
	if err != nil {
		slog.Error("StateManager GetWorkflowState error", "error", err, "threadID", threadID)
		return nil, err
	}
	return state, nil
}

// SaveWorkflowState persists the checkpoint for a thread.
func (sm *StoreBasedStateManager) SaveWorkflowState(ctx context.Context, state *models.WorkflowState) error {
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	slog.Debug("StateManager SaveWorkflowState", "threadID", state.Email.ThreadID, "status", state.Status)
	if err := sm.store.SaveWorkflowState(*state); err != nil {
		slog.Error("StateManager SaveWorkflowState error", "error", err, "threadID", state.Email.ThreadID, "status", state.Status)
		return err
	}
	return nil
}

// DeleteWorkflowState removes the checkpoint for a thread.
func (sm *StoreBasedStateManager) DeleteWorkflowState(ctx context.Context, threadID string) error {
	slog.Debug("StateManager DeleteWorkflowState", "threadID", threadID)
	if err := sm.store.DeleteWorkflowState(threadID); err != nil {
		slog.Error("StateManager DeleteWorkflowState error", "error", err, "threadID", threadID)
		return err
	}
	return nil
}

// ListSuspendedWorkflows returns all checkpoints parked at a review gate.
func (sm *StoreBasedStateManager) ListSuspendedWorkflows(ctx context.Context) ([]models.WorkflowState, error) {
	states, err := sm.store.ListSuspendedWorkflows()
	if err != nil {
		slog.Error("StateManager ListSuspendedWorkflows error", "error", err)
		return nil, err
	}
	slog.Debug("StateManager ListSuspendedWorkflows", "count", len(states))
	return states, nil
}

// ListWorkflowsByStatus returns all checkpoints currently in the given state.
func (sm *StoreBasedStateManager) ListWorkflowsByStatus(ctx context.Context, status models.WorkflowStatus) ([]models.WorkflowState, error) {
	states, err := sm.store.ListWorkflowsByStatus(status)
	if err != nil {
		slog.Error("StateManager ListWorkflowsByStatus error", "error", err, "status", status)
		return nil, err
	}
	slog.Debug("StateManager ListWorkflowsByStatus", "status", status, "count", len(states))
	return states, nil
}
