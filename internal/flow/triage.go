// Package flow provides the triage classification stage.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inboxpilot/InboxPilot/internal/genai"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/openai/openai-go"
)

var triageSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"reasoning": map[string]interface{}{
			"type":        "string",
			"description": "The reasoning behind the classification",
		},
		"classification": map[string]interface{}{
			"type": "string",
			"enum": []string{"respond", "notify", "ignore"},
			"description": "respond: needs a written reply; notify: important but no reply needed; " +
				"ignore: spam or noise that needs no handling",
		},
	},
	"required":             []string{"reasoning", "classification"},
	"additionalProperties": false,
}

type triageResult struct {
	Reasoning      string `json:"reasoning"`
	Classification string `json:"classification"`
}

// TriageStage classifies inbound email using the model and the user's triage
// preference document.
type TriageStage struct {
	genai genai.ClientInterface
	prefs *PreferenceManager
}

// NewTriageStage creates a triage stage.
func NewTriageStage(client genai.ClientInterface, prefs *PreferenceManager) *TriageStage {
	return &TriageStage{genai: client, prefs: prefs}
}

// Classify assigns one of respond/notify/ignore to the email. The reasoning
// trace is returned for audit logging; it is never shown to the user. Any
// model failure or out-of-domain label yields ErrClassification and the email
// stays unprocessed.
func (t *TriageStage) Classify(ctx context.Context, email models.Email) (models.Classification, string, error) {
	triagePrefs, err := t.prefs.Get(ctx, email.RequesterID, models.NamespaceTriage)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", models.ErrClassification, err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf(triageSystemPrompt, defaultBackground, triagePrefs)),
		openai.UserMessage(fmt.Sprintf(triageUserPrompt, email.Author, email.To, email.Subject, email.Body)),
	}

	var result triageResult
	if err := t.genai.GenerateStructured(ctx, messages, "triage", triageSchema, &result); err != nil {
		slog.Error("TriageStage classification call failed", "error", err, "threadID", email.ThreadID)
		return "", "", fmt.Errorf("%w: %v", models.ErrClassification, err)
	}

	classification := models.Classification(result.Classification)
	if !models.IsValidClassification(classification) {
		slog.Error("TriageStage returned out-of-domain category", "classification", result.Classification, "threadID", email.ThreadID)
		return "", "", fmt.Errorf("%w: out-of-domain category %q", models.ErrClassification, result.Classification)
	}

	slog.Info("TriageStage classified email", "threadID", email.ThreadID,
		"classification", classification, "reasoning", result.Reasoning)
	return classification, result.Reasoning, nil
}
