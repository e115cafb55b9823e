// Package models defines the human review request/decision exchange.
package models

import "encoding/json"

// DecisionType identifies one variant of a human review decision.
type DecisionType string

const (
	// DecisionAccept approves the pending action as proposed.
	DecisionAccept DecisionType = "accept"
	// DecisionEdit approves the pending action with substituted arguments.
	DecisionEdit DecisionType = "edit"
	// DecisionRespond rejects the draft and supplies feedback for a revision.
	DecisionRespond DecisionType = "respond"
	// DecisionIgnore cancels the pending action and the workflow.
	DecisionIgnore DecisionType = "ignore"
)

// ReviewRequest is the structured approval request emitted when a workflow
// suspends at the review gate. It is presented to the reviewer identified by
// RecipientID and correlated back by ThreadID.
type ReviewRequest struct {
	ActionName       ActionType      `json:"action_name"`
	ActionArgs       json.RawMessage `json:"action_args,omitempty"`
	Description      string          `json:"description"`
	AllowedDecisions []DecisionType  `json:"allowed_decisions"`
	RecipientID      string          `json:"recipient_id,omitempty"`
	ThreadID         string          `json:"thread_id"`
}

// Allows reports whether the request permits the given decision variant.
func (r *ReviewRequest) Allows(d DecisionType) bool {
	for _, allowed := range r.AllowedDecisions {
		if allowed == d {
			return true
		}
	}
	return false
}

// ReviewDecision is a human decision resolving a suspended review gate.
// NewArgs is set for edit decisions; Feedback for respond decisions.
type ReviewDecision struct {
	Type     DecisionType    `json:"type"`
	ThreadID string          `json:"thread_id"`
	NewArgs  json.RawMessage `json:"new_args,omitempty"`
	Feedback string          `json:"feedback,omitempty"`
}

// AllowedDecisionsFor returns the variant-specific allowed-decision set for a
// sensitive action. Question drafts can only be answered or dismissed; email
// and meeting drafts additionally support direct acceptance and editing.
func AllowedDecisionsFor(t ActionType) []DecisionType {
	switch t {
	case ActionAskQuestion:
		return []DecisionType{DecisionRespond, DecisionIgnore}
	default:
		return []DecisionType{DecisionAccept, DecisionEdit, DecisionRespond, DecisionIgnore}
	}
}

// NotifyAllowedDecisions is the allowed set for the triage notification gate.
// A notification can be acknowledged, answered with feedback, or ignored, but
// there is nothing to edit.
func NotifyAllowedDecisions() []DecisionType {
	return []DecisionType{DecisionAccept, DecisionRespond, DecisionIgnore}
}
