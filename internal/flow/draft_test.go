package flow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/inboxpilot/InboxPilot/internal/genai"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/store"
)

// recordingExecutor counts inline executions during drafting.
type recordingExecutor struct {
	executed []models.ProposedAction
	result   string
	err      error
}

func (r *recordingExecutor) Execute(ctx context.Context, email models.Email, action models.ProposedAction) (string, error) {
	r.executed = append(r.executed, action)
	return r.result, r.err
}

func newDraftStage(fake *fakeGenAI, exec Executor) *DraftStage {
	prefs := NewPreferenceManager(store.NewInMemoryStore(), fake)
	return NewDraftStage(fake, prefs, exec)
}

func draftState() *models.WorkflowState {
	return &models.WorkflowState{Email: testEmail(), Status: models.StatusDrafting}
}

func TestProposeReturnsSingleAction(t *testing.T) {
	fake := &fakeGenAI{toolQueue: []*genai.ToolCallResponse{
		toolResp("send_email", `{"to":"alice@example.com","subject":"Re: rollout","content":"Thursday works."}`),
	}}
	stage := newDraftStage(fake, &recordingExecutor{})

	action, err := stage.Propose(context.Background(), draftState())
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if action.Type != models.ActionSendEmail {
		t.Errorf("expected send_email, got %s", action.Type)
	}
	var args models.SendEmailArgs
	if err := json.Unmarshal(action.Args, &args); err != nil {
		t.Fatalf("bad args: %v", err)
	}
	if args.To != "alice@example.com" {
		t.Errorf("wrong recipient: %s", args.To)
	}
}

func TestProposeNoToolCallsIsViolation(t *testing.T) {
	fake := &fakeGenAI{toolQueue: []*genai.ToolCallResponse{{Content: "I think we should reply."}}}
	stage := newDraftStage(fake, &recordingExecutor{})

	_, err := stage.Propose(context.Background(), draftState())
	if !errors.Is(err, models.ErrToolChoiceViolation) {
		t.Fatalf("expected ErrToolChoiceViolation, got %v", err)
	}
}

func TestProposeMultipleActionsIsViolation(t *testing.T) {
	fake := &fakeGenAI{toolQueue: []*genai.ToolCallResponse{{
		ToolCalls: []genai.ToolCall{
			{ID: "1", Function: genai.ToolCallFunction{Name: "send_email", Arguments: `{"to":"a@b.c","subject":"s","content":"c"}`}},
			{ID: "2", Function: genai.ToolCallFunction{Name: "question", Arguments: `{"content":"which day?"}`}},
		},
	}}}
	stage := newDraftStage(fake, &recordingExecutor{})

	_, err := stage.Propose(context.Background(), draftState())
	if !errors.Is(err, models.ErrToolChoiceViolation) {
		t.Fatalf("expected ErrToolChoiceViolation, got %v", err)
	}
}

func TestProposeUnknownToolIsViolation(t *testing.T) {
	fake := &fakeGenAI{toolQueue: []*genai.ToolCallResponse{
		toolResp("delete_inbox", `{}`),
	}}
	stage := newDraftStage(fake, &recordingExecutor{})

	_, err := stage.Propose(context.Background(), draftState())
	if !errors.Is(err, models.ErrToolChoiceViolation) {
		t.Fatalf("expected ErrToolChoiceViolation, got %v", err)
	}
}

func TestProposeRunsCalendarLookupInline(t *testing.T) {
	fake := &fakeGenAI{toolQueue: []*genai.ToolCallResponse{
		toolResp("check_calendar_availability", `{"day":"2026-09-03"}`),
		toolResp("schedule_meeting", `{"attendees":["alice@example.com"],"subject":"Rollout sync","duration_minutes":30,"day":"2026-09-03","time":"10:00"}`),
	}}
	exec := &recordingExecutor{result: "Available slots on 2026-09-03: 10:00-12:00"}
	stage := newDraftStage(fake, exec)
	state := draftState()

	action, err := stage.Propose(context.Background(), state)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if action.Type != models.ActionScheduleMeeting {
		t.Fatalf("expected schedule_meeting after lookup, got %s", action.Type)
	}
	if len(exec.executed) != 1 || exec.executed[0].Type != models.ActionCheckCalendar {
		t.Fatalf("calendar lookup not executed inline: %v", exec.executed)
	}
	// The observation lands in the history the next round sees.
	var sawObservation bool
	for _, msg := range state.History {
		if msg.Role == "tool" && strings.Contains(msg.Content, "10:00-12:00") {
			sawObservation = true
		}
	}
	if !sawObservation {
		t.Error("lookup observation missing from history")
	}
}

func TestProposeRepairsMalformedArguments(t *testing.T) {
	fake := &fakeGenAI{toolQueue: []*genai.ToolCallResponse{
		toolResp("question", `{'content': 'Which day works?',}`),
	}}
	stage := newDraftStage(fake, &recordingExecutor{})

	action, err := stage.Propose(context.Background(), draftState())
	if err != nil {
		t.Fatalf("Propose failed on repairable args: %v", err)
	}
	var args models.QuestionArgs
	if err := json.Unmarshal(action.Args, &args); err != nil {
		t.Fatalf("repaired args not valid JSON: %v", err)
	}
	if args.Content != "Which day works?" {
		t.Errorf("repair mangled content: %q", args.Content)
	}
}

func TestProposeGivesUpAfterLookupOnlyRounds(t *testing.T) {
	queue := make([]*genai.ToolCallResponse, 0, maxDraftRounds)
	for i := 0; i < maxDraftRounds; i++ {
		queue = append(queue, toolResp("check_calendar_availability", `{"day":"2026-09-03"}`))
	}
	fake := &fakeGenAI{toolQueue: queue}
	stage := newDraftStage(fake, &recordingExecutor{result: "free all day"})

	_, err := stage.Propose(context.Background(), draftState())
	if !errors.Is(err, models.ErrToolChoiceViolation) {
		t.Fatalf("expected ErrToolChoiceViolation after %d lookup-only rounds, got %v", maxDraftRounds, err)
	}
}
