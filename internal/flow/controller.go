package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inboxpilot/InboxPilot/internal/models"
)

// Controller drives one explicit state machine per email thread. Workflows
// suspend at review gates by persisting their checkpoint and returning;
// resumption is a fresh invocation that reloads the checkpoint by thread ID.
// No goroutine ever blocks waiting for a human.
type Controller struct {
	stateManager StateManager
	triage       *TriageStage
	draft        *DraftStage
	reviewer     Reviewer
	executor     Executor
	prefs        *PreferenceManager
	threadLocks  *keyedMutex
	learning     sync.WaitGroup
}

// NewController wires the workflow stages together.
func NewController(sm StateManager, triage *TriageStage, draft *DraftStage, reviewer Reviewer, executor Executor, prefs *PreferenceManager) *Controller {
	return &Controller{
		stateManager: sm,
		triage:       triage,
		draft:        draft,
		reviewer:     reviewer,
		executor:     executor,
		prefs:        prefs,
		threadLocks:  newKeyedMutex(),
	}
}

// Start ingests a new inbound email and runs its workflow until it reaches a
// terminal state or suspends at a review gate. A classification failure leaves
// no checkpoint behind so the email can be retried; a redelivered thread whose
// checkpoint is parked at drafting re-enters the draft loop without
// re-running triage.
func (c *Controller) Start(ctx context.Context, email models.Email) error {
	if err := email.Validate(); err != nil {
		return fmt.Errorf("invalid inbound email: %w", err)
	}

	unlock := c.threadLocks.lock(email.ThreadID)
	defer unlock()

	existing, err := c.stateManager.GetWorkflowState(ctx, email.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to check for existing workflow: %w", err)
	}
	if existing != nil {
		if existing.Status == models.StatusDrafting {
			slog.Info("Controller retrying stalled draft", "threadID", email.ThreadID)
			return c.runDraftLoop(ctx, existing)
		}
		slog.Warn("Controller ignoring duplicate thread", "threadID", email.ThreadID, "status", existing.Status)
		return nil
	}

	state := &models.WorkflowState{Email: email, Status: models.StatusReceived}
	if err := c.stateManager.SaveWorkflowState(ctx, state); err != nil {
		return fmt.Errorf("failed to checkpoint received email: %w", err)
	}

	classification, _, err := c.triage.Classify(ctx, email)
	if err != nil {
		// No partial checkpoint survives a failed classification.
		if delErr := c.stateManager.DeleteWorkflowState(ctx, email.ThreadID); delErr != nil {
			slog.Error("Controller failed to roll back checkpoint", "error", delErr, "threadID", email.ThreadID)
		}
		return err
	}
	state.Classification = classification
	state.Status = models.StatusClassified
	slog.Info("Controller classified email", "threadID", email.ThreadID, "classification", classification)

	switch classification {
	case models.ClassificationIgnore:
		state.Status = models.StatusIgnored
		return c.stateManager.SaveWorkflowState(ctx, state)

	case models.ClassificationNotify:
		appendHistory(state, "user", fmt.Sprintf(notifyHistoryEntry, formatEmailMarkdown(email)))
		req := BuildNotifyReviewRequest(email)
		return c.suspend(ctx, state, models.StatusNotifyReview, req)

	case models.ClassificationRespond:
		appendHistory(state, "user", fmt.Sprintf(draftInstruction, email.Author, formatEmailMarkdown(email)))
		return c.runDraftLoop(ctx, state)

	default:
		return fmt.Errorf("%w: unhandled classification %q", models.ErrClassification, classification)
	}
}

// Resume applies a human decision to a suspended workflow. Duplicate or late
// decisions are rejected without state change, which makes every side effect
// at-most-once.
func (c *Controller) Resume(ctx context.Context, threadID string, decision models.ReviewDecision) error {
	unlock := c.threadLocks.lock(threadID)
	defer unlock()

	state, err := c.stateManager.GetWorkflowState(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}
	if state == nil {
		return fmt.Errorf("%w: %s", models.ErrWorkflowNotFound, threadID)
	}
	if !state.Status.Suspended() || state.PendingRequest == nil {
		return fmt.Errorf("%w: %s is %s", models.ErrWorkflowNotSuspended, threadID, state.Status)
	}
	if !state.PendingRequest.Allows(decision.Type) {
		return fmt.Errorf("%w: %s not allowed at this gate", models.ErrInvalidDecision, decision.Type)
	}

	slog.Info("Controller resuming workflow", "threadID", threadID, "status", state.Status, "decision", decision.Type)
	state.LastDecision = decision.Type

	if state.Status == models.StatusNotifyReview {
		return c.resumeNotifyGate(ctx, state, decision)
	}
	return c.resumeActionGate(ctx, state, decision)
}

// resumeNotifyGate resolves the triage notification gate.
func (c *Controller) resumeNotifyGate(ctx context.Context, state *models.WorkflowState, decision models.ReviewDecision) error {
	subject := state.Email.Subject

	switch decision.Type {
	case models.DecisionAccept:
		return c.finish(ctx, state, models.StatusDone)

	case models.DecisionIgnore:
		c.learnAsync(state.Email.RequesterID, models.NamespaceTriage,
			fmt.Sprintf(learnNotifyIgnoreContext, subject))
		return c.finish(ctx, state, models.StatusIgnored)

	case models.DecisionRespond:
		snap := snapshotGate(state)
		appendHistory(state, "user", fmt.Sprintf(notifyFeedbackEntry, decision.Feedback))
		state.PendingRequest = nil
		if err := c.runDraftLoop(ctx, state); err != nil {
			return c.reopenGate(ctx, state, snap, err)
		}
		c.learnAsync(state.Email.RequesterID, models.NamespaceTriage,
			fmt.Sprintf(learnNotifyFeedbackContext, subject, state.Classification, decision.Feedback))
		return nil

	default:
		return fmt.Errorf("%w: %s at notify gate", models.ErrInvalidDecision, decision.Type)
	}
}

// resumeActionGate resolves the action review gate. Accept and edit use
// resolve-then-execute ordering: the checkpoint leaves the suspended state
// before the side effect runs, so a crash or retry can never execute twice.
func (c *Controller) resumeActionGate(ctx context.Context, state *models.WorkflowState, decision models.ReviewDecision) error {
	pending := state.PendingAction
	if pending == nil {
		return fmt.Errorf("%w: %s has no pending action", models.ErrWorkflowNotSuspended, state.Email.ThreadID)
	}

	switch decision.Type {
	case models.DecisionAccept:
		return c.executeResolved(ctx, state, *pending)

	case models.DecisionEdit:
		edited := models.ProposedAction{Type: pending.Type, Args: decision.NewArgs}
		if err := edited.Validate(); err != nil {
			return fmt.Errorf("%w: edited args rejected: %v", models.ErrInvalidDecision, err)
		}
		c.learnAsync(state.Email.RequesterID, pending.PreferenceNamespace(),
			fmt.Sprintf(learnEditContext, describeAction(*pending), describeAction(edited)))
		return c.executeResolved(ctx, state, edited)

	case models.DecisionRespond:
		snap := snapshotGate(state)
		if pending.Type == models.ActionAskQuestion {
			// Answering a question is routine input, not a correction.
			appendHistory(state, "user", fmt.Sprintf("The user answered the question: %s", decision.Feedback))
		} else {
			appendHistory(state, "user", fmt.Sprintf(reviseFeedbackEntry, decision.Feedback))
		}
		state.PendingAction = nil
		state.PendingRequest = nil
		if err := c.runDraftLoop(ctx, state); err != nil {
			return c.reopenGate(ctx, state, snap, err)
		}
		if pending.Type != models.ActionAskQuestion {
			c.learnAsync(state.Email.RequesterID, pending.PreferenceNamespace(),
				fmt.Sprintf(learnFeedbackContext, pending.Type, decision.Feedback))
		}
		return nil

	case models.DecisionIgnore:
		c.learnAsync(state.Email.RequesterID, models.NamespaceTriage,
			fmt.Sprintf(learnIgnoreContext, state.Email.Subject))
		return c.finish(ctx, state, models.StatusIgnored)

	default:
		return fmt.Errorf("%w: %s at action gate", models.ErrInvalidDecision, decision.Type)
	}
}

// executeResolved commits the approved action: the workflow transitions out of
// the suspended state and the checkpoint is saved BEFORE the side effect runs.
// An execution failure feeds the error back into the history and returns the
// workflow to drafting.
func (c *Controller) executeResolved(ctx context.Context, state *models.WorkflowState, action models.ProposedAction) error {
	state.Status = models.StatusResolved
	state.PendingAction = nil
	state.PendingRequest = nil
	if err := c.stateManager.SaveWorkflowState(ctx, state); err != nil {
		return fmt.Errorf("failed to resolve review gate: %w", err)
	}

	observation, err := c.executor.Execute(ctx, state.Email, action)
	if err != nil {
		slog.Warn("Controller execution failed, returning to drafting", "error", err, "threadID", state.Email.ThreadID)
		appendHistory(state, "tool", fmt.Sprintf("Executing %s failed: %v. Propose a corrected action.", action.Type, err))
		return c.runDraftLoop(ctx, state)
	}
	if observation != "" {
		appendHistory(state, "tool", observation)
	}
	state.Status = models.StatusExecuted
	slog.Info("Controller executed approved action", "threadID", state.Email.ThreadID, "action", action.Type)
	return c.stateManager.SaveWorkflowState(ctx, state)
}

// runDraftLoop runs the draft stage and either terminates the workflow or
// suspends it at the action review gate.
func (c *Controller) runDraftLoop(ctx context.Context, state *models.WorkflowState) error {
	state.Status = models.StatusDrafting
	if err := c.stateManager.SaveWorkflowState(ctx, state); err != nil {
		return fmt.Errorf("failed to checkpoint drafting state: %w", err)
	}

	action, err := c.draft.Propose(ctx, state)
	if err != nil {
		if saveErr := c.stateManager.SaveWorkflowState(ctx, state); saveErr != nil {
			slog.Error("Controller failed to checkpoint after draft error", "error", saveErr, "threadID", state.Email.ThreadID)
		}
		return err
	}

	if action.Type == models.ActionDone {
		return c.finish(ctx, state, models.StatusDone)
	}

	state.PendingAction = &action
	req := BuildActionReviewRequest(state.Email, action)
	return c.suspend(ctx, state, models.StatusAwaitingReview, req)
}

// gateSnapshot captures a suspended review gate so a failed redraft can put
// the workflow back where it was.
type gateSnapshot struct {
	status  models.WorkflowStatus
	request *models.ReviewRequest
	action  *models.ProposedAction
	history int
}

func snapshotGate(state *models.WorkflowState) gateSnapshot {
	return gateSnapshot{
		status:  state.Status,
		request: state.PendingRequest,
		action:  state.PendingAction,
		history: len(state.History),
	}
}

// reopenGate restores the prior suspension after a draft failure during a
// respond decision. The feedback entry appended for the failed draft is
// dropped with it; the reviewer can submit the decision again once the model
// recovers. No learning happens for a decision that never took effect.
func (c *Controller) reopenGate(ctx context.Context, state *models.WorkflowState, snap gateSnapshot, cause error) error {
	state.History = state.History[:snap.history]
	state.Status = snap.status
	state.PendingRequest = snap.request
	state.PendingAction = snap.action
	if err := c.stateManager.SaveWorkflowState(ctx, state); err != nil {
		slog.Error("Controller failed to reopen review gate", "error", err, "threadID", state.Email.ThreadID)
	}
	slog.Warn("Controller reopened review gate after failed draft",
		"threadID", state.Email.ThreadID, "status", snap.status, "error", cause)
	return cause
}

// suspend parks the workflow at a review gate. The checkpoint is saved before
// the request is presented: if presentation fails or the process dies, the
// recovery pass re-presents it from the persisted record.
func (c *Controller) suspend(ctx context.Context, state *models.WorkflowState, status models.WorkflowStatus, req models.ReviewRequest) error {
	state.Status = status
	state.PendingRequest = &req
	if err := c.stateManager.SaveWorkflowState(ctx, state); err != nil {
		return fmt.Errorf("failed to checkpoint suspended workflow: %w", err)
	}
	if err := c.reviewer.PresentReviewRequest(ctx, req); err != nil {
		slog.Error("Controller failed to present review request, will retry on recovery",
			"error", err, "threadID", state.Email.ThreadID)
		return nil
	}
	slog.Info("Controller suspended workflow at review gate", "threadID", state.Email.ThreadID, "status", status)
	return nil
}

// finish moves the workflow into a terminal state and clears pending records.
func (c *Controller) finish(ctx context.Context, state *models.WorkflowState, status models.WorkflowStatus) error {
	state.Status = status
	state.PendingAction = nil
	state.PendingRequest = nil
	slog.Info("Controller finished workflow", "threadID", state.Email.ThreadID, "status", status)
	return c.stateManager.SaveWorkflowState(ctx, state)
}

// ResendPendingReviews re-presents the review request of every suspended
// workflow. Called once on startup so approvals lost to a crash or a dead
// webhook consumer reach the reviewer again.
func (c *Controller) ResendPendingReviews(ctx context.Context) error {
	states, err := c.stateManager.ListSuspendedWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list suspended workflows: %w", err)
	}
	for _, state := range states {
		if state.PendingRequest == nil {
			slog.Warn("Suspended workflow has no pending request", "threadID", state.Email.ThreadID, "status", state.Status)
			continue
		}
		if err := c.reviewer.PresentReviewRequest(ctx, *state.PendingRequest); err != nil {
			slog.Error("Failed to re-present review request", "error", err, "threadID", state.Email.ThreadID)
			continue
		}
		slog.Info("Re-presented pending review request", "threadID", state.Email.ThreadID, "status", state.Status)
	}
	return nil
}

// ResumeStalledDrafts re-runs the draft stage for every workflow parked at
// drafting, which only happens when a draft failed after an execution failure
// or the process died mid-draft. Called once on startup; the poller cannot
// redeliver these threads because their UIDs were marked seen long before.
func (c *Controller) ResumeStalledDrafts(ctx context.Context) error {
	states, err := c.stateManager.ListWorkflowsByStatus(ctx, models.StatusDrafting)
	if err != nil {
		return fmt.Errorf("failed to list drafting workflows: %w", err)
	}
	for i := range states {
		state := states[i]
		unlock := c.threadLocks.lock(state.Email.ThreadID)
		err := c.runDraftLoop(ctx, &state)
		unlock()
		if err != nil {
			slog.Error("Failed to resume stalled draft", "error", err, "threadID", state.Email.ThreadID)
			continue
		}
		slog.Info("Resumed stalled draft", "threadID", state.Email.ThreadID)
	}
	return nil
}

// learnAsync folds a correction into the preference store in the background.
// The merge runs detached from the request context so a canceled HTTP request
// cannot drop a learned correction.
func (c *Controller) learnAsync(userID string, ns models.PreferenceNamespace, correctionContext string) {
	c.learning.Add(1)
	go func() {
		defer c.learning.Done()
		if err := c.prefs.Merge(context.Background(), userID, ns, correctionContext); err != nil {
			slog.Warn("Background preference merge failed", "error", err, "userID", userID, "namespace", ns)
		}
	}()
}

// Flush blocks until every in-flight background preference merge completes.
// Called on shutdown and by tests.
func (c *Controller) Flush() {
	c.learning.Wait()
}

// describeAction renders an action with its raw args for learning context.
func describeAction(a models.ProposedAction) string {
	return fmt.Sprintf("%s(%s)", a.Type, string(a.Args))
}
