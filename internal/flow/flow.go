// Package flow implements the email workflow engine: triage classification,
// draft generation, the human review gate, and preference learning. The
// workflow for each email thread runs as an explicit state machine whose
// checkpoints survive process restarts; suspension at a review gate is a
// persisted record plus a correlation ID, never a parked goroutine.
package flow

import (
	"context"
	"sync"

	"github.com/inboxpilot/InboxPilot/internal/models"
)

// StateManager persists workflow checkpoints keyed by email thread ID.
type StateManager interface {
	GetWorkflowState(ctx context.Context, threadID string) (*models.WorkflowState, error)
	SaveWorkflowState(ctx context.Context, state *models.WorkflowState) error
	DeleteWorkflowState(ctx context.Context, threadID string) error
	ListSuspendedWorkflows(ctx context.Context) ([]models.WorkflowState, error)
	ListWorkflowsByStatus(ctx context.Context, status models.WorkflowStatus) ([]models.WorkflowState, error)
}

// Reviewer presents review requests to the human interface. The decision
// arrives later through Controller.Resume, correlated by thread ID.
type Reviewer interface {
	PresentReviewRequest(ctx context.Context, req models.ReviewRequest) error
}

// Executor carries out approved actions and inline lookups. The returned
// string is the tool observation fed back into the conversation history.
type Executor interface {
	Execute(ctx context.Context, email models.Email, action models.ProposedAction) (string, error)
}

// keyedMutex provides one mutex per string key. Used to serialize resumes per
// thread and merges per preference namespace.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
