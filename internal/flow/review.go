package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/inboxpilot/InboxPilot/internal/models"
)

// BuildActionReviewRequest builds the approval request for a sensitive
// proposed action. The description is the human-readable card body; the raw
// args travel alongside so an edit decision can start from them.
func BuildActionReviewRequest(email models.Email, action models.ProposedAction) models.ReviewRequest {
	return models.ReviewRequest{
		ActionName:       action.Type,
		ActionArgs:       action.Args,
		Description:      formatActionForDisplay(email, action),
		AllowedDecisions: models.AllowedDecisionsFor(action.Type),
		RecipientID:      email.RequesterID,
		ThreadID:         email.ThreadID,
	}
}

// BuildNotifyReviewRequest builds the acknowledgement request for an email
// classified as notify. There is no pending action, so nothing is editable.
func BuildNotifyReviewRequest(email models.Email) models.ReviewRequest {
	return models.ReviewRequest{
		ActionName:       "",
		Description:      fmt.Sprintf("This email needs your attention but no reply was drafted:\n\n%s", formatEmailMarkdown(email)),
		AllowedDecisions: models.NotifyAllowedDecisions(),
		RecipientID:      email.RequesterID,
		ThreadID:         email.ThreadID,
	}
}

// formatEmailMarkdown renders an email for display in a review card.
func formatEmailMarkdown(email models.Email) string {
	return fmt.Sprintf("**Subject**: %s\n**From**: %s\n**To**: %s\n\n%s\n\n---",
		email.Subject, email.Author, email.To, email.Body)
}

// formatActionForDisplay renders a proposed action for the review card,
// decoding the variant's args into readable fields.
func formatActionForDisplay(email models.Email, action models.ProposedAction) string {
	var b strings.Builder
	b.WriteString("Original email:\n\n")
	b.WriteString(formatEmailMarkdown(email))
	b.WriteString("\n\n")

	switch action.Type {
	case models.ActionSendEmail:
		var args models.SendEmailArgs
		if err := json.Unmarshal(action.Args, &args); err == nil {
			fmt.Fprintf(&b, "Proposed reply:\n\n**To**: %s\n**Subject**: %s\n\n%s", args.To, args.Subject, args.Content)
			return b.String()
		}
	case models.ActionScheduleMeeting:
		var args models.ScheduleMeetingArgs
		if err := json.Unmarshal(action.Args, &args); err == nil {
			fmt.Fprintf(&b, "Proposed meeting:\n\n**Subject**: %s\n**Attendees**: %s\n**When**: %s %s\n**Duration**: %d minutes",
				args.Subject, strings.Join(args.Attendees, ", "), args.Day, args.Time, args.DurationMinutes)
			return b.String()
		}
	case models.ActionAskQuestion:
		var args models.QuestionArgs
		if err := json.Unmarshal(action.Args, &args); err == nil {
			fmt.Fprintf(&b, "The assistant needs an answer from you:\n\n%s", args.Content)
			return b.String()
		}
	}

	fmt.Fprintf(&b, "Proposed action %s with arguments:\n%s", action.Type, string(action.Args))
	return b.String()
}
