// Package store provides storage backends for InboxPilot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/inboxpilot/InboxPilot/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists preferences, checkpoints and seen-mail records in
// PostgreSQL for multi-instance deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetPreference returns the stored document for (userID, ns), or "" if absent.
func (s *PostgresStore) GetPreference(userID string, ns models.PreferenceNamespace) (string, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM preferences WHERE user_id = $1 AND namespace = $2`, userID, ns).Scan(&doc)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPreference failed", "error", err, "userID", userID, "namespace", ns)
		return "", fmt.Errorf("failed to query preference %s/%s: %w", userID, ns, err)
	}
	return doc, nil
}

// SeedPreference inserts def only if no document exists, then returns the
// document now stored.
func (s *PostgresStore) SeedPreference(userID string, ns models.PreferenceNamespace, def string) (string, error) {
	_, err := s.db.Exec(`INSERT INTO preferences (user_id, namespace, document, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, namespace) DO NOTHING`, userID, ns, def, time.Now())
	if err != nil {
		slog.Error("PostgresStore SeedPreference insert failed", "error", err, "userID", userID, "namespace", ns)
		return "", fmt.Errorf("failed to seed preference %s/%s: %w", userID, ns, err)
	}
	return s.GetPreference(userID, ns)
}

// SavePreference overwrites the document for (userID, ns).
func (s *PostgresStore) SavePreference(userID string, ns models.PreferenceNamespace, doc string) error {
	_, err := s.db.Exec(`INSERT INTO preferences (user_id, namespace, document, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, namespace) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		userID, ns, doc, time.Now())
	if err != nil {
		slog.Error("PostgresStore SavePreference failed", "error", err, "userID", userID, "namespace", ns)
		return fmt.Errorf("failed to save preference %s/%s: %w", userID, ns, err)
	}
	slog.Debug("PostgresStore SavePreference succeeded", "userID", userID, "namespace", ns, "length", len(doc))
	return nil
}

// SaveWorkflowState stores or updates the checkpoint for a thread.
func (s *PostgresStore) SaveWorkflowState(state models.WorkflowState) error {
	state.UpdatedAt = time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("PostgresStore SaveWorkflowState marshal failed", "error", err, "threadID", state.Email.ThreadID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO workflow_states (thread_id, status, state_json, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id) DO UPDATE SET status = EXCLUDED.status, state_json = EXCLUDED.state_json, updated_at = EXCLUDED.updated_at`,
		state.Email.ThreadID, state.Status, string(stateJSON), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveWorkflowState failed", "error", err, "threadID", state.Email.ThreadID)
		return fmt.Errorf("failed to save workflow state for %s: %w", state.Email.ThreadID, err)
	}
	slog.Debug("PostgresStore SaveWorkflowState succeeded", "threadID", state.Email.ThreadID, "status", state.Status)
	return nil
}

// GetWorkflowState returns the checkpoint for a thread, or nil if absent.
func (s *PostgresStore) GetWorkflowState(threadID string) (*models.WorkflowState, error) {
	var stateJSON string
	err := s.db.QueryRow(`SELECT state_json FROM workflow_states WHERE thread_id = $1`, threadID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetWorkflowState failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to query workflow state for %s: %w", threadID, err)
	}
	var state models.WorkflowState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("PostgresStore GetWorkflowState unmarshal failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to decode workflow state for %s: %w", threadID, err)
	}
	return &state, nil
}

// DeleteWorkflowState removes the checkpoint for a thread.
func (s *PostgresStore) DeleteWorkflowState(threadID string) error {
	_, err := s.db.Exec(`DELETE FROM workflow_states WHERE thread_id = $1`, threadID)
	if err != nil {
		slog.Error("PostgresStore DeleteWorkflowState failed", "error", err, "threadID", threadID)
		return err
	}
	return nil
}

// ListSuspendedWorkflows returns all checkpoints parked at a review gate.
func (s *PostgresStore) ListSuspendedWorkflows() ([]models.WorkflowState, error) {
	rows, err := s.db.Query(`SELECT state_json FROM workflow_states WHERE status IN ($1, $2)`,
		models.StatusAwaitingReview, models.StatusNotifyReview)
	if err != nil {
		slog.Error("PostgresStore ListSuspendedWorkflows query failed", "error", err)
		return nil, fmt.Errorf("failed to query suspended workflows: %w", err)
	}
	defer rows.Close()

	var states []models.WorkflowState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			slog.Error("PostgresStore ListSuspendedWorkflows scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan workflow state row: %w", err)
		}
		var state models.WorkflowState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			slog.Error("PostgresStore ListSuspendedWorkflows unmarshal failed", "error", err)
			continue
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflow state rows: %w", err)
	}
	return states, nil
}

// ListWorkflowsByStatus returns all checkpoints currently in the given state.
func (s *PostgresStore) ListWorkflowsByStatus(status models.WorkflowStatus) ([]models.WorkflowState, error) {
	rows, err := s.db.Query(`SELECT state_json FROM workflow_states WHERE status = $1`, status)
	if err != nil {
		slog.Error("PostgresStore ListWorkflowsByStatus query failed", "error", err, "status", status)
		return nil, fmt.Errorf("failed to query workflows with status %s: %w", status, err)
	}
	defer rows.Close()

	var states []models.WorkflowState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			slog.Error("PostgresStore ListWorkflowsByStatus scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan workflow state row: %w", err)
		}
		var state models.WorkflowState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			slog.Error("PostgresStore ListWorkflowsByStatus unmarshal failed", "error", err)
			continue
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflow state rows: %w", err)
	}
	return states, nil
}

// MarkSeenUID records that a mailbox message has been ingested.
func (s *PostgresStore) MarkSeenUID(mailbox string, uid uint32) error {
	_, err := s.db.Exec(`INSERT INTO seen_uids (mailbox, uid, seen_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		mailbox, int64(uid), time.Now())
	if err != nil {
		slog.Error("PostgresStore MarkSeenUID failed", "error", err, "mailbox", mailbox, "uid", uid)
		return fmt.Errorf("failed to mark seen uid %d: %w", uid, err)
	}
	return nil
}

// IsSeenUID reports whether a mailbox message was already ingested.
func (s *PostgresStore) IsSeenUID(mailbox string, uid uint32) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM seen_uids WHERE mailbox = $1 AND uid = $2`, mailbox, int64(uid)).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore IsSeenUID failed", "error", err, "mailbox", mailbox, "uid", uid)
		return false, fmt.Errorf("failed to query seen uid %d: %w", uid, err)
	}
	return count > 0, nil
}

// Close closes the PostgreSQL connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
