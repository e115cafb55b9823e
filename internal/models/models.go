// Package models defines the core data structures for InboxPilot.
//
// It includes types for inbound emails, triage classifications, proposed
// actions, and human review requests/decisions, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Classification is the triage category assigned to an inbound email.
type Classification string

const (
	// ClassificationRespond marks emails that need a drafted reply.
	ClassificationRespond Classification = "respond"
	// ClassificationNotify marks emails the user should see but that need no reply.
	ClassificationNotify Classification = "notify"
	// ClassificationIgnore marks emails that need no handling at all.
	ClassificationIgnore Classification = "ignore"
)

// Validation constants for input validation
const (
	// MaxSubjectLength defines the maximum allowed length for an email subject
	MaxSubjectLength = 998
	// MaxBodyLength defines the maximum allowed length for an email body
	MaxBodyLength = 262144
)

// Error variables for better error handling and testability
var (
	ErrEmptyAuthor    = errors.New("email author cannot be empty")
	ErrEmptyThreadID  = errors.New("email thread ID cannot be empty")
	ErrEmptyBody      = errors.New("email body cannot be empty")
	ErrSubjectTooLong = errors.New("email subject exceeds maximum length")
	ErrBodyTooLong    = errors.New("email body exceeds maximum length")

	// ErrClassification indicates the triage model call failed or returned an
	// out-of-domain category. The email stays unprocessed and is safe to retry.
	ErrClassification = errors.New("classification failed")
	// ErrToolChoiceViolation indicates the draft stage produced zero or more
	// than one actionable tool call.
	ErrToolChoiceViolation = errors.New("draft produced zero or multiple actions")
	// ErrInvalidDecision indicates a review decision variant not permitted by
	// the pending request's allowed set. The gate stays suspended.
	ErrInvalidDecision = errors.New("decision not allowed for pending review")
	// ErrMergeFailure indicates a preference rewrite failed or returned empty.
	// The previous document is retained; not fatal to the workflow.
	ErrMergeFailure = errors.New("preference merge failed")
	// ErrExecutionFailure indicates the underlying send/schedule action failed.
	ErrExecutionFailure = errors.New("action execution failed")
	// ErrWorkflowNotSuspended indicates a resume arrived for a thread that has
	// no pending review (already resolved, terminal, or unknown).
	ErrWorkflowNotSuspended = errors.New("workflow is not awaiting review")
	// ErrWorkflowNotFound indicates no checkpoint exists for the thread.
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// IsValidClassification checks if the given classification is supported.
func IsValidClassification(c Classification) bool {
	switch c {
	case ClassificationRespond, ClassificationNotify, ClassificationIgnore:
		return true
	default:
		return false
	}
}

// Email represents one inbound email thread entering the system.
// It is immutable once received; ThreadID is the durable correlation key
// across suspend/resume cycles and RequesterID identifies who receives
// review requests for it.
type Email struct {
	Author      string `json:"author"`
	To          string `json:"to"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body"`
	ThreadID    string `json:"thread_id"`
	RequesterID string `json:"requester_id,omitempty"`
}

// Validate performs validation on an inbound Email.
func (e *Email) Validate() error {
	if e.Author == "" {
		return ErrEmptyAuthor
	}
	if e.ThreadID == "" {
		return ErrEmptyThreadID
	}
	if e.Body == "" {
		return ErrEmptyBody
	}
	if len(e.Subject) > MaxSubjectLength {
		return ErrSubjectTooLong
	}
	if len(e.Body) > MaxBodyLength {
		return ErrBodyTooLong
	}
	return nil
}

// ConversationMessage is a single entry in a workflow's conversation history.
type ConversationMessage struct {
	Role      string    `json:"role"` // "system", "user", "assistant" or "tool"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
