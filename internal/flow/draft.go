// Package flow provides the draft stage: tool-calling proposal generation.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/inboxpilot/InboxPilot/internal/genai"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// maxDraftRounds bounds inline-lookup loops within one draft invocation.
const maxDraftRounds = 5

// DraftStage produces exactly one proposed action per invocation by calling
// the model with a closed tool set and forced tool choice. Non-sensitive
// lookups (calendar availability) are executed inline and their observations
// appended to the history before re-invoking.
type DraftStage struct {
	genai    genai.ClientInterface
	prefs    *PreferenceManager
	executor Executor
}

// NewDraftStage creates a draft stage.
func NewDraftStage(client genai.ClientInterface, prefs *PreferenceManager, executor Executor) *DraftStage {
	return &DraftStage{genai: client, prefs: prefs, executor: executor}
}

// toolDefinitions returns the closed action set exposed to the model.
func toolDefinitions() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ActionSendEmail),
				Description: openai.String("Write and send a reply email."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"to":      map[string]interface{}{"type": "string", "description": "Recipient address; must be the original email's author"},
						"subject": map[string]interface{}{"type": "string", "description": "Reply subject"},
						"content": map[string]interface{}{"type": "string", "description": "Reply body"},
					},
					"required": []string{"to", "subject", "content"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ActionScheduleMeeting),
				Description: openai.String("Create a meeting invitation for the given attendees."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"attendees":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"subject":          map[string]interface{}{"type": "string"},
						"duration_minutes": map[string]interface{}{"type": "integer"},
						"day":              map[string]interface{}{"type": "string", "description": "Meeting day, e.g. 2026-09-01"},
						"time":             map[string]interface{}{"type": "string", "description": "Meeting start time, e.g. 14:00"},
					},
					"required": []string{"attendees", "subject", "duration_minutes", "day", "time"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ActionCheckCalendar),
				Description: openai.String("Look up the user's calendar availability for a day. Safe to call without review."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"day": map[string]interface{}{"type": "string", "description": "Day to check, e.g. 2026-09-01"},
					},
					"required": []string{"day"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ActionAskQuestion),
				Description: openai.String("Ask the user a clarifying question when information is missing."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"content": map[string]interface{}{"type": "string", "description": "The question for the user"},
					},
					"required": []string{"content"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ActionDone),
				Description: openai.String("Call when every task for this email thread is complete."),
				Parameters: shared.FunctionParameters{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		},
	}
}

// Propose generates the next proposed action for the workflow, appending the
// model's assistant text and any inline tool observations to state.History.
// It returns exactly one sensitive action or done; anything else is a
// ErrToolChoiceViolation.
func (d *DraftStage) Propose(ctx context.Context, state *models.WorkflowState) (models.ProposedAction, error) {
	responsePrefs, err := d.prefs.Get(ctx, state.Email.RequesterID, models.NamespaceResponse)
	if err != nil {
		return models.ProposedAction{}, fmt.Errorf("failed to load response preferences: %w", err)
	}
	calPrefs, err := d.prefs.Get(ctx, state.Email.RequesterID, models.NamespaceCalendar)
	if err != nil {
		return models.ProposedAction{}, fmt.Errorf("failed to load calendar preferences: %w", err)
	}

	systemPrompt := fmt.Sprintf(agentSystemPrompt, defaultBackground, responsePrefs, calPrefs)
	tools := toolDefinitions()

	for round := 1; round <= maxDraftRounds; round++ {
		messages := buildDraftMessages(systemPrompt, state.History)
		resp, err := d.genai.GenerateWithTools(ctx, messages, tools)
		if err != nil {
			return models.ProposedAction{}, fmt.Errorf("draft generation failed: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			slog.Error("DraftStage model returned no tool calls", "threadID", state.Email.ThreadID, "round", round)
			return models.ProposedAction{}, fmt.Errorf("%w: no tool call in round %d", models.ErrToolChoiceViolation, round)
		}

		if resp.Content != "" {
			appendHistory(state, "assistant", resp.Content)
		}

		var actionable []models.ProposedAction
		ranInline := false
		for _, tc := range resp.ToolCalls {
			actionType := models.ActionType(tc.Function.Name)
			if !models.IsValidActionType(actionType) {
				slog.Error("DraftStage model called unknown tool", "tool", tc.Function.Name, "threadID", state.Email.ThreadID)
				return models.ProposedAction{}, fmt.Errorf("%w: unknown tool %q", models.ErrToolChoiceViolation, tc.Function.Name)
			}
			args, err := normalizeArguments(tc.Function.Arguments)
			if err != nil {
				return models.ProposedAction{}, fmt.Errorf("%w: undecodable arguments for %s: %v", models.ErrToolChoiceViolation, actionType, err)
			}
			action := models.ProposedAction{Type: actionType, Args: args}

			if actionType == models.ActionCheckCalendar {
				// Not sensitive: execute inline, no review gate.
				observation, err := d.executor.Execute(ctx, state.Email, action)
				if err != nil {
					observation = fmt.Sprintf("calendar lookup failed: %v", err)
					slog.Warn("DraftStage inline calendar lookup failed", "error", err, "threadID", state.Email.ThreadID)
				}
				appendHistory(state, "tool", observation)
				ranInline = true
				continue
			}
			actionable = append(actionable, action)
		}

		if len(actionable) > 1 {
			slog.Error("DraftStage model proposed multiple actions", "threadID", state.Email.ThreadID, "count", len(actionable))
			return models.ProposedAction{}, fmt.Errorf("%w: %d actions in one round", models.ErrToolChoiceViolation, len(actionable))
		}
		if len(actionable) == 1 {
			action := actionable[0]
			if err := action.Validate(); err != nil {
				return models.ProposedAction{}, fmt.Errorf("%w: %v", models.ErrToolChoiceViolation, err)
			}
			slog.Info("DraftStage proposed action", "threadID", state.Email.ThreadID, "action", action.Type)
			return action, nil
		}
		if !ranInline {
			return models.ProposedAction{}, fmt.Errorf("%w: round %d produced nothing actionable", models.ErrToolChoiceViolation, round)
		}
		// Inline lookups only; loop so the model can act on the observations.
	}

	return models.ProposedAction{}, fmt.Errorf("%w: no actionable proposal after %d rounds", models.ErrToolChoiceViolation, maxDraftRounds)
}

// buildDraftMessages converts the stored history into model messages with the
// system prompt (including current preference documents) leading.
func buildDraftMessages(systemPrompt string, history []models.ConversationMessage) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}
	for _, msg := range history {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case "tool":
			// Simplified history: observations are replayed as user turns.
			messages = append(messages, openai.UserMessage(fmt.Sprintf("[tool result] %s", msg.Content)))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}

// normalizeArguments validates tool-call JSON, running a repair pass on
// malformed payloads before giving up.
func normalizeArguments(raw string) (json.RawMessage, error) {
	if raw == "" {
		return json.RawMessage("{}"), nil
	}
	var decoded map[string]interface{}
	if err := genai.DecodeJSON(raw, &decoded); err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(decoded)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

func appendHistory(state *models.WorkflowState, role, content string) {
	state.History = append(state.History, models.ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}
