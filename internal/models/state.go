// Package models defines workflow state structures for InboxPilot.
package models

import "time"

// WorkflowStatus is the top-level state of one email workflow.
type WorkflowStatus string

const (
	// StatusReceived is the initial state before classification.
	StatusReceived WorkflowStatus = "RECEIVED"
	// StatusClassified means triage has assigned a classification.
	StatusClassified WorkflowStatus = "CLASSIFIED"
	// StatusNotifyReview means the workflow is suspended at the triage
	// notification gate awaiting acknowledgment.
	StatusNotifyReview WorkflowStatus = "NOTIFY_REVIEW"
	// StatusDrafting means the draft stage is producing a proposed action.
	StatusDrafting WorkflowStatus = "DRAFTING"
	// StatusAwaitingReview means the workflow is suspended at the action
	// review gate with a pending request.
	StatusAwaitingReview WorkflowStatus = "AWAITING_REVIEW"
	// StatusResolved means a decision approved the action and the checkpoint
	// has left the review gate, but the side effect has not completed yet. A
	// failed execution moves back to drafting from here.
	StatusResolved WorkflowStatus = "RESOLVED"
	// StatusExecuted is terminal: the approved action was carried out.
	StatusExecuted WorkflowStatus = "EXECUTED"
	// StatusIgnored is terminal: the email or pending action was dismissed.
	StatusIgnored WorkflowStatus = "IGNORED"
	// StatusDone is terminal: the draft stage finished with nothing to do.
	StatusDone WorkflowStatus = "DONE"
)

// Terminal reports whether the status has no outgoing transitions.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case StatusExecuted, StatusIgnored, StatusDone:
		return true
	default:
		return false
	}
}

// Suspended reports whether the workflow is parked at a review gate.
func (s WorkflowStatus) Suspended() bool {
	return s == StatusAwaitingReview || s == StatusNotifyReview
}

// PreferenceNamespace scopes one learned preference document.
type PreferenceNamespace string

const (
	// NamespaceTriage holds classification preferences.
	NamespaceTriage PreferenceNamespace = "triage_preferences"
	// NamespaceResponse holds reply drafting preferences.
	NamespaceResponse PreferenceNamespace = "response_preferences"
	// NamespaceCalendar holds meeting scheduling preferences.
	NamespaceCalendar PreferenceNamespace = "cal_preferences"
)

// WorkflowState is the full mutable record threaded through the pipeline,
// serialized into the checkpoint store keyed by the email's thread ID. It is
// owned exclusively by the workflow controller; stages receive it and return
// deltas, never holding a long-lived reference.
type WorkflowState struct {
	Email          Email                 `json:"email"`
	Classification Classification       `json:"classification,omitempty"`
	Status         WorkflowStatus        `json:"status"`
	History        []ConversationMessage `json:"history,omitempty"`
	PendingAction  *ProposedAction       `json:"pending_action,omitempty"`
	PendingRequest *ReviewRequest        `json:"pending_request,omitempty"`
	LastDecision   DecisionType          `json:"last_decision,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
