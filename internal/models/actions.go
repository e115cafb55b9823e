// Package models defines the closed set of actions the draft stage may propose.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ActionType identifies one variant of a proposed action.
type ActionType string

const (
	// ActionSendEmail proposes sending a reply email. Sensitive.
	ActionSendEmail ActionType = "send_email"
	// ActionScheduleMeeting proposes creating a meeting invitation. Sensitive.
	ActionScheduleMeeting ActionType = "schedule_meeting"
	// ActionAskQuestion asks the user a clarifying question. Sensitive.
	ActionAskQuestion ActionType = "question"
	// ActionDone terminates the workflow without further output.
	ActionDone ActionType = "done"
	// ActionCheckCalendar looks up calendar availability. Not sensitive;
	// executes inline without review.
	ActionCheckCalendar ActionType = "check_calendar_availability"
)

// Validation errors for action arguments.
var (
	ErrInvalidActionType      = errors.New("invalid action type")
	ErrMissingRecipient       = errors.New("send_email requires a recipient")
	ErrMissingContent         = errors.New("action requires content")
	ErrMissingAttendees       = errors.New("schedule_meeting requires attendees")
	ErrInvalidMeetingDuration = errors.New("schedule_meeting duration must be positive")
)

// SendEmailArgs are the arguments of a proposed send_email action.
type SendEmailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Validate checks send_email arguments.
func (a *SendEmailArgs) Validate() error {
	if a.To == "" {
		return ErrMissingRecipient
	}
	if a.Content == "" {
		return ErrMissingContent
	}
	return nil
}

// ScheduleMeetingArgs are the arguments of a proposed schedule_meeting action.
type ScheduleMeetingArgs struct {
	Attendees       []string `json:"attendees"`
	Subject         string   `json:"subject"`
	DurationMinutes int      `json:"duration_minutes"`
	Day             string   `json:"day"`
	Time            string   `json:"time"`
}

// Validate checks schedule_meeting arguments.
func (a *ScheduleMeetingArgs) Validate() error {
	if len(a.Attendees) == 0 {
		return ErrMissingAttendees
	}
	if a.DurationMinutes <= 0 {
		return ErrInvalidMeetingDuration
	}
	return nil
}

// QuestionArgs are the arguments of a proposed question action.
type QuestionArgs struct {
	Content string `json:"content"`
}

// Validate checks question arguments.
func (a *QuestionArgs) Validate() error {
	if a.Content == "" {
		return ErrMissingContent
	}
	return nil
}

// CheckCalendarArgs are the arguments of a calendar availability lookup.
type CheckCalendarArgs struct {
	Day string `json:"day"`
}

// ProposedAction is the tagged variant produced by the draft stage. Args holds
// the raw JSON arguments for the variant; at most one pending ProposedAction
// exists per workflow at a time.
type ProposedAction struct {
	Type ActionType      `json:"type"`
	Args json.RawMessage `json:"args,omitempty"`
}

// IsValidActionType checks if the given action type is in the closed set.
func IsValidActionType(t ActionType) bool {
	switch t {
	case ActionSendEmail, ActionScheduleMeeting, ActionAskQuestion, ActionDone, ActionCheckCalendar:
		return true
	default:
		return false
	}
}

// Sensitive reports whether the action variant requires human review before
// execution. Done terminates without review; calendar lookups execute inline.
func (a ProposedAction) Sensitive() bool {
	switch a.Type {
	case ActionSendEmail, ActionScheduleMeeting, ActionAskQuestion:
		return true
	default:
		return false
	}
}

// Validate decodes and validates the action arguments for the variant.
func (a ProposedAction) Validate() error {
	switch a.Type {
	case ActionSendEmail:
		var args SendEmailArgs
		if err := json.Unmarshal(a.Args, &args); err != nil {
			return fmt.Errorf("invalid send_email args: %w", err)
		}
		return args.Validate()
	case ActionScheduleMeeting:
		var args ScheduleMeetingArgs
		if err := json.Unmarshal(a.Args, &args); err != nil {
			return fmt.Errorf("invalid schedule_meeting args: %w", err)
		}
		return args.Validate()
	case ActionAskQuestion:
		var args QuestionArgs
		if err := json.Unmarshal(a.Args, &args); err != nil {
			return fmt.Errorf("invalid question args: %w", err)
		}
		return args.Validate()
	case ActionDone, ActionCheckCalendar:
		return nil
	default:
		return ErrInvalidActionType
	}
}

// PreferenceNamespace returns the preference namespace corrections about this
// action variant belong to.
func (a ProposedAction) PreferenceNamespace() PreferenceNamespace {
	switch a.Type {
	case ActionScheduleMeeting, ActionCheckCalendar:
		return NamespaceCalendar
	default:
		return NamespaceResponse
	}
}
