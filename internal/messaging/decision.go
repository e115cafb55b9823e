package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/inboxpilot/InboxPilot/internal/models"
)

// Decision payload errors.
var (
	ErrMissingThreadID = errors.New("decision missing thread_id")
	ErrUnknownDecision = errors.New("unknown decision type")
)

// decisionPayload is the wire format of an inbound review decision.
type decisionPayload struct {
	ThreadID string          `json:"thread_id"`
	Decision string          `json:"decision"`
	NewArgs  json.RawMessage `json:"new_args,omitempty"`
	Feedback string          `json:"feedback,omitempty"`
}

// ParseDecision decodes an inbound decision payload and validates its shape.
// Gate-level validation (is this decision allowed right now) stays with the
// workflow controller.
func ParseDecision(r io.Reader) (models.ReviewDecision, error) {
	var payload decisionPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return models.ReviewDecision{}, fmt.Errorf("failed to decode decision payload: %w", err)
	}
	if payload.ThreadID == "" {
		return models.ReviewDecision{}, ErrMissingThreadID
	}

	decisionType := models.DecisionType(payload.Decision)
	switch decisionType {
	case models.DecisionAccept, models.DecisionEdit, models.DecisionRespond, models.DecisionIgnore:
	default:
		return models.ReviewDecision{}, fmt.Errorf("%w: %q", ErrUnknownDecision, payload.Decision)
	}

	return models.ReviewDecision{
		Type:     decisionType,
		ThreadID: payload.ThreadID,
		NewArgs:  payload.NewArgs,
		Feedback: payload.Feedback,
	}, nil
}
