package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/store"
)

func newTriageStage(fake *fakeGenAI) *TriageStage {
	prefs := NewPreferenceManager(store.NewInMemoryStore(), fake)
	return NewTriageStage(fake, prefs)
}

func TestClassifyValidCategories(t *testing.T) {
	for _, category := range []string{"respond", "notify", "ignore"} {
		fake := &fakeGenAI{triageResult: category}
		stage := newTriageStage(fake)

		classification, reasoning, err := stage.Classify(context.Background(), testEmail())
		if err != nil {
			t.Fatalf("Classify(%s) failed: %v", category, err)
		}
		if string(classification) != category {
			t.Errorf("expected %s, got %s", category, classification)
		}
		if reasoning == "" {
			t.Errorf("expected a reasoning trace for %s", category)
		}
	}
}

func TestClassifyOutOfDomainCategory(t *testing.T) {
	fake := &fakeGenAI{triageResult: "escalate"}
	stage := newTriageStage(fake)

	_, _, err := stage.Classify(context.Background(), testEmail())
	if !errors.Is(err, models.ErrClassification) {
		t.Fatalf("expected ErrClassification for out-of-domain category, got %v", err)
	}
}

func TestClassifyModelFailure(t *testing.T) {
	fake := &fakeGenAI{triageErr: errors.New("rate limited")}
	stage := newTriageStage(fake)

	_, _, err := stage.Classify(context.Background(), testEmail())
	if !errors.Is(err, models.ErrClassification) {
		t.Fatalf("expected ErrClassification on model failure, got %v", err)
	}
}
