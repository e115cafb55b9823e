package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEmailValidate(t *testing.T) {
	valid := Email{Author: "a@example.com", To: "me@example.com", Subject: "hi", Body: "hello", ThreadID: "t1"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		email Email
		want  error
	}{
		{"missing author", Email{ThreadID: "t", Body: "b"}, ErrEmptyAuthor},
		{"missing thread", Email{Author: "a", Body: "b"}, ErrEmptyThreadID},
		{"missing body", Email{Author: "a", ThreadID: "t"}, ErrEmptyBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.email.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIsValidClassification(t *testing.T) {
	for _, c := range []Classification{ClassificationRespond, ClassificationNotify, ClassificationIgnore} {
		if !IsValidClassification(c) {
			t.Errorf("classification %s should be valid", c)
		}
	}
	if IsValidClassification("urgent") {
		t.Error("out-of-domain classification accepted")
	}
}

func TestProposedActionSensitive(t *testing.T) {
	tests := []struct {
		action    ActionType
		sensitive bool
	}{
		{ActionSendEmail, true},
		{ActionScheduleMeeting, true},
		{ActionAskQuestion, true},
		{ActionDone, false},
		{ActionCheckCalendar, false},
	}
	for _, tt := range tests {
		a := ProposedAction{Type: tt.action}
		if a.Sensitive() != tt.sensitive {
			t.Errorf("%s sensitivity = %v, want %v", tt.action, a.Sensitive(), tt.sensitive)
		}
	}
}

func TestProposedActionValidate(t *testing.T) {
	sendArgs, _ := json.Marshal(SendEmailArgs{To: "x@y.com", Subject: "Re: Meeting", Content: "sounds good"})
	a := ProposedAction{Type: ActionSendEmail, Args: sendArgs}
	if err := a.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	noRecipient, _ := json.Marshal(SendEmailArgs{Content: "body"})
	a = ProposedAction{Type: ActionSendEmail, Args: noRecipient}
	if err := a.Validate(); !errors.Is(err, ErrMissingRecipient) {
		t.Errorf("Validate() = %v, want %v", err, ErrMissingRecipient)
	}

	badMeeting, _ := json.Marshal(ScheduleMeetingArgs{Attendees: []string{"a@b.com"}})
	a = ProposedAction{Type: ActionScheduleMeeting, Args: badMeeting}
	if err := a.Validate(); !errors.Is(err, ErrInvalidMeetingDuration) {
		t.Errorf("Validate() = %v, want %v", err, ErrInvalidMeetingDuration)
	}

	a = ProposedAction{Type: "delete_mailbox"}
	if err := a.Validate(); !errors.Is(err, ErrInvalidActionType) {
		t.Errorf("Validate() = %v, want %v", err, ErrInvalidActionType)
	}
}

func TestAllowedDecisions(t *testing.T) {
	req := ReviewRequest{ActionName: ActionAskQuestion, AllowedDecisions: AllowedDecisionsFor(ActionAskQuestion)}
	if req.Allows(DecisionEdit) {
		t.Error("question review must not allow edit")
	}
	if req.Allows(DecisionAccept) {
		t.Error("question review must not allow accept")
	}
	if !req.Allows(DecisionRespond) || !req.Allows(DecisionIgnore) {
		t.Error("question review must allow respond and ignore")
	}

	notify := ReviewRequest{AllowedDecisions: NotifyAllowedDecisions()}
	if notify.Allows(DecisionEdit) {
		t.Error("notify review must never allow edit")
	}
	for _, d := range []DecisionType{DecisionAccept, DecisionRespond, DecisionIgnore} {
		if !notify.Allows(d) {
			t.Errorf("notify review must allow %s", d)
		}
	}
}

func TestWorkflowStatusTerminal(t *testing.T) {
	terminal := []WorkflowStatus{StatusExecuted, StatusIgnored, StatusDone}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	// RESOLVED is not terminal: a failed execution moves back to drafting.
	for _, s := range []WorkflowStatus{StatusReceived, StatusDrafting, StatusAwaitingReview, StatusNotifyReview, StatusResolved} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if !StatusAwaitingReview.Suspended() || !StatusNotifyReview.Suspended() {
		t.Error("review states should report suspended")
	}
}

func TestActionPreferenceNamespace(t *testing.T) {
	if ns := (ProposedAction{Type: ActionScheduleMeeting}).PreferenceNamespace(); ns != NamespaceCalendar {
		t.Errorf("schedule_meeting namespace = %s, want %s", ns, NamespaceCalendar)
	}
	if ns := (ProposedAction{Type: ActionSendEmail}).PreferenceNamespace(); ns != NamespaceResponse {
		t.Errorf("send_email namespace = %s, want %s", ns, NamespaceResponse)
	}
}
