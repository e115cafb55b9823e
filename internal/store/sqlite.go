// Package store provides storage backends for InboxPilot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/inboxpilot/InboxPilot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists preferences, checkpoints and seen-mail records in a
// local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetPreference returns the stored document for (userID, ns), or "" if absent.
func (s *SQLiteStore) GetPreference(userID string, ns models.PreferenceNamespace) (string, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM preferences WHERE user_id = ? AND namespace = ?`, userID, ns).Scan(&doc)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPreference failed", "error", err, "userID", userID, "namespace", ns)
		return "", fmt.Errorf("failed to query preference %s/%s: %w", userID, ns, err)
	}
	return doc, nil
}

// SeedPreference inserts def only if no document exists, then returns the
// document now stored. The insert-or-ignore keeps concurrent first reads from
// racing.
func (s *SQLiteStore) SeedPreference(userID string, ns models.PreferenceNamespace, def string) (string, error) {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO preferences (user_id, namespace, document, updated_at) VALUES (?, ?, ?, ?)`,
		userID, ns, def, time.Now())
	if err != nil {
		slog.Error("SQLiteStore SeedPreference insert failed", "error", err, "userID", userID, "namespace", ns)
		return "", fmt.Errorf("failed to seed preference %s/%s: %w", userID, ns, err)
	}
	return s.GetPreference(userID, ns)
}

// SavePreference overwrites the document for (userID, ns).
func (s *SQLiteStore) SavePreference(userID string, ns models.PreferenceNamespace, doc string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO preferences (user_id, namespace, document, updated_at) VALUES (?, ?, ?, ?)`,
		userID, ns, doc, time.Now())
	if err != nil {
		slog.Error("SQLiteStore SavePreference failed", "error", err, "userID", userID, "namespace", ns)
		return fmt.Errorf("failed to save preference %s/%s: %w", userID, ns, err)
	}
	slog.Debug("SQLiteStore SavePreference succeeded", "userID", userID, "namespace", ns, "length", len(doc))
	return nil
}

// SaveWorkflowState stores or updates the checkpoint for a thread.
func (s *SQLiteStore) SaveWorkflowState(state models.WorkflowState) error {
	state.UpdatedAt = time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("SQLiteStore SaveWorkflowState marshal failed", "error", err, "threadID", state.Email.ThreadID)
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO workflow_states (thread_id, status, state_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		state.Email.ThreadID, state.Status, string(stateJSON), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveWorkflowState failed", "error", err, "threadID", state.Email.ThreadID)
		return fmt.Errorf("failed to save workflow state for %s: %w", state.Email.ThreadID, err)
	}
	slog.Debug("SQLiteStore SaveWorkflowState succeeded", "threadID", state.Email.ThreadID, "status", state.Status)
	return nil
}

// GetWorkflowState returns the checkpoint for a thread, or nil if absent.
func (s *SQLiteStore) GetWorkflowState(threadID string) (*models.WorkflowState, error) {
	var stateJSON string
	err := s.db.QueryRow(`SELECT state_json FROM workflow_states WHERE thread_id = ?`, threadID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetWorkflowState failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to query workflow state for %s: %w", threadID, err)
	}
	var state models.WorkflowState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("SQLiteStore GetWorkflowState unmarshal failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to decode workflow state for %s: %w", threadID, err)
	}
	return &state, nil
}

// DeleteWorkflowState removes the checkpoint for a thread.
func (s *SQLiteStore) DeleteWorkflowState(threadID string) error {
	_, err := s.db.Exec(`DELETE FROM workflow_states WHERE thread_id = ?`, threadID)
	if err != nil {
		slog.Error("SQLiteStore DeleteWorkflowState failed", "error", err, "threadID", threadID)
		return err
	}
	return nil
}

// ListSuspendedWorkflows returns all checkpoints parked at a review gate.
func (s *SQLiteStore) ListSuspendedWorkflows() ([]models.WorkflowState, error) {
	rows, err := s.db.Query(`SELECT state_json FROM workflow_states WHERE status IN (?, ?)`,
		models.StatusAwaitingReview, models.StatusNotifyReview)
	if err != nil {
		slog.Error("SQLiteStore ListSuspendedWorkflows query failed", "error", err)
		return nil, fmt.Errorf("failed to query suspended workflows: %w", err)
	}
	defer rows.Close()

	var states []models.WorkflowState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			slog.Error("SQLiteStore ListSuspendedWorkflows scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan workflow state row: %w", err)
		}
		var state models.WorkflowState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			slog.Error("SQLiteStore ListSuspendedWorkflows unmarshal failed", "error", err)
			continue
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflow state rows: %w", err)
	}
	slog.Debug("SQLiteStore ListSuspendedWorkflows succeeded", "count", len(states))
	return states, nil
}

// ListWorkflowsByStatus returns all checkpoints currently in the given state.
func (s *SQLiteStore) ListWorkflowsByStatus(status models.WorkflowStatus) ([]models.WorkflowState, error) {
	rows, err := s.db.Query(`SELECT state_json FROM workflow_states WHERE status = ?`, status)
	if err != nil {
		slog.Error("SQLiteStore ListWorkflowsByStatus query failed", "error", err, "status", status)
		return nil, fmt.Errorf("failed to query workflows with status %s: %w", status, err)
	}
	defer rows.Close()

	var states []models.WorkflowState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			slog.Error("SQLiteStore ListWorkflowsByStatus scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan workflow state row: %w", err)
		}
		var state models.WorkflowState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			slog.Error("SQLiteStore ListWorkflowsByStatus unmarshal failed", "error", err)
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
func (s *SQLiteStore) MarkSeenUID(mailbox string, uid uint32) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO seen_uids (mailbox, uid, seen_at) VALUES (?, ?, ?)`, mailbox, uid, time.Now())
	if err != nil {
		slog.Error("SQLiteStore MarkSeenUID failed", "error", err, "mailbox", mailbox, "uid", uid)
		return fmt.Errorf("failed to mark seen uid %d: %w", uid, err)
	}
	return nil
}

// IsSeenUID reports whether a mailbox message was already ingested.
func (s *SQLiteStore) IsSeenUID(mailbox string, uid uint32) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM seen_uids WHERE mailbox = ? AND uid = ?`, mailbox, uid).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore IsSeenUID failed", "error", err, "mailbox", mailbox, "uid", uid)
		return false, fmt.Errorf("failed to query seen uid %d: %w", uid, err)
	}
	return count > 0, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
