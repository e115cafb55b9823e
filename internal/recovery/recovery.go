// Package recovery restores component state after a process restart. It is
// deliberately generic: components register themselves and the manager runs
// every registration once during startup, after the store is open but before
// new mail is ingested.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Recoverable is a component with state to restore at startup.
type Recoverable interface {
	// Name identifies the component in logs.
	Name() string
	// RecoverState restores the component's runtime state from the store.
	RecoverState(ctx context.Context) error
}

// Manager runs registered recovery steps in registration order.
type Manager struct {
	recoverables []Recoverable
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a component to the startup recovery pass.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
	slog.Debug("Registered recoverable component", "component", r.Name())
}

// RecoverAll runs every registered recovery step. A failing step aborts
// startup: continuing with partially recovered state silently drops pending
// approvals.
func (m *Manager) RecoverAll(ctx context.Context) error {
	start := time.Now()
	slog.Info("Starting state recovery", "components", len(m.recoverables))
	for _, r := range m.recoverables {
		if err := r.RecoverState(ctx); err != nil {
			slog.Error("State recovery failed", "component", r.Name(), "error", err)
			return fmt.Errorf("recovery of %s failed: %w", r.Name(), err)
		}
		slog.Debug("Recovered component state", "component", r.Name())
	}
	slog.Info("State recovery complete", "components", len(m.recoverables), "elapsed", time.Since(start))
	return nil
}

// ReviewResender re-presents pending review requests after a restart, so
// approvals that were in flight when the process died reach the reviewer
// again.
type ReviewResender struct {
	resend func(ctx context.Context) error
}

// NewReviewResender wraps the workflow controller's resend operation.
func NewReviewResender(resend func(ctx context.Context) error) *ReviewResender {
	return &ReviewResender{resend: resend}
}

// Name implements Recoverable.
func (r *ReviewResender) Name() string { return "review-resender" }

// RecoverState implements Recoverable.
func (r *ReviewResender) RecoverState(ctx context.Context) error {
	return r.resend(ctx)
}

// DraftResumer re-runs the draft stage for workflows that were mid-draft when
// the process died or whose last draft attempt failed, so they reach a review
// gate instead of staying parked.
type DraftResumer struct {
	resume func(ctx context.Context) error
}

// NewDraftResumer wraps the workflow controller's stalled-draft operation.
func NewDraftResumer(resume func(ctx context.Context) error) *DraftResumer {
	return &DraftResumer{resume: resume}
}

// Name implements Recoverable.
func (d *DraftResumer) Name() string { return "draft-resumer" }

// RecoverState implements Recoverable.
func (d *DraftResumer) RecoverState(ctx context.Context) error {
	return d.resume(ctx)
}
