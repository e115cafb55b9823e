package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/store"
)

func TestPreferenceGetSeedsDefaultOnFirstRead(t *testing.T) {
	st := store.NewInMemoryStore()
	pm := NewPreferenceManager(st, &fakeGenAI{})

	doc, err := pm.Get(context.Background(), "user-1", models.NamespaceTriage)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc != defaultTriageInstructions {
		t.Errorf("first read did not seed the default document")
	}

	// The seed is persisted, not recomputed.
	stored, err := st.GetPreference("user-1", models.NamespaceTriage)
	if err != nil {
		t.Fatalf("GetPreference failed: %v", err)
	}
	if stored != defaultTriageInstructions {
		t.Errorf("seed not persisted, got %q", stored)
	}
}

func TestPreferenceGetDoesNotOverwriteExisting(t *testing.T) {
	st := store.NewInMemoryStore()
	pm := NewPreferenceManager(st, &fakeGenAI{})

	if err := st.SavePreference("user-1", models.NamespaceResponse, "learned: be brief"); err != nil {
		t.Fatalf("SavePreference failed: %v", err)
	}
	doc, err := pm.Get(context.Background(), "user-1", models.NamespaceResponse)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc != "learned: be brief" {
		t.Errorf("existing document replaced by default: %q", doc)
	}
}

func TestPreferenceNamespacesAreIsolated(t *testing.T) {
	st := store.NewInMemoryStore()
	fake := &fakeGenAI{mergeResult: "triage: skip newsletters"}
	pm := NewPreferenceManager(st, fake)
	ctx := context.Background()

	if err := pm.Merge(ctx, "user-1", models.NamespaceTriage, "skip newsletters"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	responseDoc, err := pm.Get(ctx, "user-1", models.NamespaceResponse)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if responseDoc != defaultResponsePreferences {
		t.Errorf("merge into triage leaked into response namespace: %q", responseDoc)
	}

	// Different users never share documents.
	otherDoc, err := pm.Get(ctx, "user-2", models.NamespaceTriage)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if otherDoc != defaultTriageInstructions {
		t.Errorf("merge for user-1 leaked into user-2: %q", otherDoc)
	}
}

func TestPreferenceMergeFailureRetainsDocument(t *testing.T) {
	st := store.NewInMemoryStore()
	fake := &fakeGenAI{mergeErr: errors.New("model unavailable")}
	pm := NewPreferenceManager(st, fake)
	ctx := context.Background()

	if err := st.SavePreference("user-1", models.NamespaceResponse, "keep me"); err != nil {
		t.Fatalf("SavePreference failed: %v", err)
	}
	err := pm.Merge(ctx, "user-1", models.NamespaceResponse, "some correction")
	if !errors.Is(err, models.ErrMergeFailure) {
		t.Fatalf("expected ErrMergeFailure, got %v", err)
	}
	doc, _ := st.GetPreference("user-1", models.NamespaceResponse)
	if doc != "keep me" {
		t.Errorf("failed merge replaced the document: %q", doc)
	}
}

func TestPreferenceMergeRejectsEmptyRewrite(t *testing.T) {
	st := store.NewInMemoryStore()
	fake := &fakeGenAI{mergeResult: ""}
	pm := NewPreferenceManager(st, fake)
	ctx := context.Background()

	if err := st.SavePreference("user-1", models.NamespaceCalendar, "prefer mornings"); err != nil {
		t.Fatalf("SavePreference failed: %v", err)
	}
	err := pm.Merge(ctx, "user-1", models.NamespaceCalendar, "some correction")
	if !errors.Is(err, models.ErrMergeFailure) {
		t.Fatalf("expected ErrMergeFailure for empty rewrite, got %v", err)
	}
	doc, _ := st.GetPreference("user-1", models.NamespaceCalendar)
	if doc != "prefer mornings" {
		t.Errorf("empty rewrite replaced the document: %q", doc)
	}
}

func TestDefaultDocumentPerNamespace(t *testing.T) {
	tests := []struct {
		ns   models.PreferenceNamespace
		want string
	}{
		{models.NamespaceTriage, defaultTriageInstructions},
		{models.NamespaceResponse, defaultResponsePreferences},
		{models.NamespaceCalendar, defaultCalPreferences},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := DefaultDocument(tt.ns); got != tt.want {
			t.Errorf("DefaultDocument(%s) = %q, want %q", tt.ns, got, tt.want)
		}
	}
}
