package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inboxpilot/InboxPilot/internal/models"
)

// MailSender delivers outbound email. Satisfied by the SMTP mailer in
// production and by in-memory fakes in tests.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// CalendarService answers availability lookups and creates invitations.
type CalendarService interface {
	CheckAvailability(ctx context.Context, day string) (string, error)
	Schedule(ctx context.Context, args models.ScheduleMeetingArgs) (string, error)
}

// StubCalendarService is a calendar backend that reports canned availability
// and acknowledges invitations without contacting any provider. It stands in
// until a real calendar integration is configured.
type StubCalendarService struct{}

// CheckAvailability returns a fixed weekday availability summary.
func (StubCalendarService) CheckAvailability(_ context.Context, day string) (string, error) {
	return fmt.Sprintf("Available slots on %s: 09:00-11:00, 13:00-16:00", day), nil
}

// Schedule acknowledges the invitation without creating a real event.
func (StubCalendarService) Schedule(_ context.Context, args models.ScheduleMeetingArgs) (string, error) {
	return fmt.Sprintf("Meeting %q scheduled on %s at %s for %d minutes with %s",
		args.Subject, args.Day, args.Time, args.DurationMinutes, strings.Join(args.Attendees, ", ")), nil
}

// ActionExecutor carries out approved actions against the mail and calendar
// backends. Execution is only reached after the review gate has resolved, so
// every call here is an authorized side effect.
type ActionExecutor struct {
	mailer   MailSender
	calendar CalendarService
}

// NewActionExecutor creates an executor over the given backends. A nil
// calendar falls back to the stub service.
func NewActionExecutor(mailer MailSender, calendar CalendarService) *ActionExecutor {
	if calendar == nil {
		calendar = StubCalendarService{}
	}
	return &ActionExecutor{mailer: mailer, calendar: calendar}
}

// Execute performs the action and returns the tool observation recorded in
// the conversation history. Failures wrap ErrExecutionFailure so the caller
// can loop the workflow back to drafting.
func (e *ActionExecutor) Execute(ctx context.Context, email models.Email, action models.ProposedAction) (string, error) {
	switch action.Type {
	case models.ActionSendEmail:
		var args models.SendEmailArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return "", fmt.Errorf("%w: invalid send_email args: %v", models.ErrExecutionFailure, err)
		}
		if err := e.mailer.Send(ctx, args.To, args.Subject, args.Content); err != nil {
			slog.Error("ActionExecutor send failed", "error", err, "to", args.To, "threadID", email.ThreadID)
			return "", fmt.Errorf("%w: send_email to %s: %v", models.ErrExecutionFailure, args.To, err)
		}
		slog.Info("ActionExecutor sent email", "to", args.To, "subject", args.Subject, "threadID", email.ThreadID)
		return fmt.Sprintf("Email sent to %s with subject %q", args.To, args.Subject), nil

	case models.ActionScheduleMeeting:
		var args models.ScheduleMeetingArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return "", fmt.Errorf("%w: invalid schedule_meeting args: %v", models.ErrExecutionFailure, err)
		}
		confirmation, err := e.calendar.Schedule(ctx, args)
		if err != nil {
			slog.Error("ActionExecutor schedule failed", "error", err, "threadID", email.ThreadID)
			return "", fmt.Errorf("%w: schedule_meeting: %v", models.ErrExecutionFailure, err)
		}
		slog.Info("ActionExecutor scheduled meeting", "subject", args.Subject, "day", args.Day, "threadID", email.ThreadID)
		return confirmation, nil

	case models.ActionCheckCalendar:
		var args models.CheckCalendarArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return "", fmt.Errorf("%w: invalid check_calendar args: %v", models.ErrExecutionFailure, err)
		}
		availability, err := e.calendar.CheckAvailability(ctx, args.Day)
		if err != nil {
			return "", fmt.Errorf("%w: check_calendar_availability: %v", models.ErrExecutionFailure, err)
		}
		return availability, nil

	case models.ActionAskQuestion, models.ActionDone:
		// Questions resolve through the review gate and done has no side
		// effect, so there is nothing to execute.
		return "", nil

	default:
		return "", fmt.Errorf("%w: %v", models.ErrExecutionFailure, models.ErrInvalidActionType)
	}
}
