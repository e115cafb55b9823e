// Package flow provides the durable preference manager.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inboxpilot/InboxPilot/internal/genai"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/store"
	"github.com/openai/openai-go"
)

// preferenceUpdateSchema constrains the rewrite output: reasoning for the
// audit log plus the full updated document, nothing else.
var preferenceUpdateSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"reasoning": map[string]interface{}{
			"type":        "string",
			"description": "Why the preference document does or does not need changes",
		},
		"preferences": map[string]interface{}{
			"type":        "string",
			"description": "The complete updated preference document",
		},
	},
	"required":             []string{"reasoning", "preferences"},
	"additionalProperties": false,
}

type preferenceUpdate struct {
	Reasoning   string `json:"reasoning"`
	Preferences string `json:"preferences"`
}

// PreferenceManager owns per-user, per-namespace preference documents. Reads
// seed missing namespaces with defaults; updates are merge-only rewrites that
// preserve unrelated content, persisted synchronously so a crash cannot lose
// a learned correction.
type PreferenceManager struct {
	store store.Store
	genai genai.ClientInterface
	locks *keyedMutex
}

// NewPreferenceManager creates a preference manager over the given store.
func NewPreferenceManager(st store.Store, client genai.ClientInterface) *PreferenceManager {
	return &PreferenceManager{store: st, genai: client, locks: newKeyedMutex()}
}

// DefaultDocument returns the seed document for a namespace.
func DefaultDocument(ns models.PreferenceNamespace) string {
	switch ns {
	case models.NamespaceTriage:
		return defaultTriageInstructions
	case models.NamespaceResponse:
		return defaultResponsePreferences
	case models.NamespaceCalendar:
		return defaultCalPreferences
	default:
		return ""
	}
}

// Get returns the user's document for the namespace, seeding the default on
// first read.
func (pm *PreferenceManager) Get(ctx context.Context, userID string, ns models.PreferenceNamespace) (string, error) {
	doc, err := pm.store.GetPreference(userID, ns)
	if err != nil {
		return "", fmt.Errorf("failed to read preference %s/%s: %w", userID, ns, err)
	}
	if doc != "" {
		return doc, nil
	}
	doc, err = pm.store.SeedPreference(userID, ns, DefaultDocument(ns))
	if err != nil {
		return "", fmt.Errorf("failed to seed preference %s/%s: %w", userID, ns, err)
	}
	slog.Debug("PreferenceManager seeded namespace with default", "userID", userID, "namespace", ns)
	return doc, nil
}

// Merge folds a human correction into the user's document for the namespace.
// The rewrite re-reads the current document under a per-namespace lock, so
// concurrent merges never overwrite each other from stale snapshots. A failed
// or empty rewrite retains the previous document and returns ErrMergeFailure.
func (pm *PreferenceManager) Merge(ctx context.Context, userID string, ns models.PreferenceNamespace, correctionContext string) error {
	unlock := pm.locks.lock(userID + "|" + string(ns))
	defer unlock()

	current, err := pm.Get(ctx, userID, ns)
	if err != nil {
		return err
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf(memoryUpdatePrompt, current)),
		openai.UserMessage(correctionContext),
	}

	var update preferenceUpdate
	if err := pm.genai.GenerateStructured(ctx, messages, "preference_update", preferenceUpdateSchema, &update); err != nil {
		slog.Warn("PreferenceManager merge rewrite failed, retaining previous document",
			"error", err, "userID", userID, "namespace", ns)
		return fmt.Errorf("%w: %s/%s: %v", models.ErrMergeFailure, userID, ns, err)
	}
	if update.Preferences == "" {
		slog.Warn("PreferenceManager merge returned empty document, retaining previous document",
			"userID", userID, "namespace", ns)
		return fmt.Errorf("%w: %s/%s: empty rewrite", models.ErrMergeFailure, userID, ns)
	}

	if err := pm.store.SavePreference(userID, ns, update.Preferences); err != nil {
		return fmt.Errorf("failed to persist merged preference %s/%s: %w", userID, ns, err)
	}
	slog.Info("PreferenceManager merged correction", "userID", userID, "namespace", ns,
		"previousLength", len(current), "newLength", len(update.Preferences), "reasoning", update.Reasoning)
	return nil
}
