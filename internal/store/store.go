// Package store provides storage backends for InboxPilot.
//
// It holds preference documents, workflow checkpoints, and seen-mail tracking.
// An in-memory store is provided for tests; SQLite and PostgreSQL backends
// provide durable storage across process restarts.
package store

import (
	"sync"
	"time"

	"github.com/inboxpilot/InboxPilot/internal/models"
)

// Store is the persistence interface shared by all backends.
type Store interface {
	// GetPreference returns the stored document for (userID, ns), or "" if absent.
	GetPreference(userID string, ns models.PreferenceNamespace) (string, error)
	// SeedPreference stores def for (userID, ns) only if no document exists,
	// and returns the document now stored. First-read seeding is atomic.
	SeedPreference(userID string, ns models.PreferenceNamespace, def string) (string, error)
	// SavePreference overwrites the document for (userID, ns).
	SavePreference(userID string, ns models.PreferenceNamespace, doc string) error

	// SaveWorkflowState stores or updates the checkpoint for a thread.
	SaveWorkflowState(state models.WorkflowState) error
	// GetWorkflowState returns the checkpoint for a thread, or nil if absent.
	GetWorkflowState(threadID string) (*models.WorkflowState, error)
	// DeleteWorkflowState removes the checkpoint for a thread.
	DeleteWorkflowState(threadID string) error
	// ListSuspendedWorkflows returns all checkpoints parked at a review gate.
	ListSuspendedWorkflows() ([]models.WorkflowState, error)
	// ListWorkflowsByStatus returns all checkpoints currently in the given state.
	ListWorkflowsByStatus(status models.WorkflowStatus) ([]models.WorkflowState, error)

	// MarkSeenUID records that a mailbox message has been ingested.
	MarkSeenUID(mailbox string, uid uint32) error
	// IsSeenUID reports whether a mailbox message was already ingested.
	IsSeenUID(mailbox string, uid uint32) (bool, error)

	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN string
}

// Option configures store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a non-durable Store used in tests and as a fallback when
// no database DSN is configured.
type InMemoryStore struct {
	mu        sync.RWMutex
	prefs     map[string]string
	workflows map[string]models.WorkflowState
	seenUIDs  map[string]map[uint32]bool
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		prefs:     make(map[string]string),
		workflows: make(map[string]models.WorkflowState),
		seenUIDs:  make(map[string]map[uint32]bool),
	}
}

func prefKey(userID string, ns models.PreferenceNamespace) string {
	return userID + "|" + string(ns)
}

// GetPreference returns the stored document or "" if absent.
func (s *InMemoryStore) GetPreference(userID string, ns models.PreferenceNamespace) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[prefKey(userID, ns)], nil
}

// SeedPreference stores def only if the namespace is empty, returning the
// document now in effect.
func (s *InMemoryStore) SeedPreference(userID string, ns models.PreferenceNamespace, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefKey(userID, ns)
	if doc, ok := s.prefs[key]; ok && doc != "" {
		return doc, nil
	}
	s.prefs[key] = def
	return def, nil
}

// SavePreference overwrites the document for (userID, ns).
func (s *InMemoryStore) SavePreference(userID string, ns models.PreferenceNamespace, doc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefKey(userID, ns)] = doc
	return nil
}

// SaveWorkflowState stores or updates the checkpoint for a thread.
func (s *InMemoryStore) SaveWorkflowState(state models.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = time.Now()
	s.workflows[state.Email.ThreadID] = state
	return nil
}

// GetWorkflowState returns the checkpoint for a thread, or nil if absent.
func (s *InMemoryStore) GetWorkflowState(threadID string) (*models.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.workflows[threadID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// DeleteWorkflowState removes the checkpoint for a thread.
func (s *InMemoryStore) DeleteWorkflowState(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, threadID)
	return nil
}

// ListSuspendedWorkflows returns all checkpoints parked at a review gate.
func (s *InMemoryStore) ListSuspendedWorkflows() ([]models.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var suspended []models.WorkflowState
	for _, state := range s.workflows {
		if state.Status.Suspended() {
			suspended = append(suspended, state)
		}
	}
	return suspended, nil
}

// ListWorkflowsByStatus returns all checkpoints currently in the given state.
func (s *InMemoryStore) ListWorkflowsByStatus(status models.WorkflowStatus) ([]models.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.WorkflowState
	for _, state := range s.workflows {
		if state.Status == status {
			matched = append(matched, state)
		}
	}
	return matched, nil
}

// MarkSeenUID records that a mailbox message has been ingested.
func (s *InMemoryStore) MarkSeenUID(mailbox string, uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenUIDs[mailbox] == nil {
		s.seenUIDs[mailbox] = make(map[uint32]bool)
	}
	s.seenUIDs[mailbox][uid] = true
	return nil
}

// IsSeenUID reports whether a mailbox message was already ingested.
func (s *InMemoryStore) IsSeenUID(mailbox string, uid uint32) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seenUIDs[mailbox][uid], nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
