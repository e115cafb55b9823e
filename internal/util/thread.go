package util

import (
	"strings"

	"github.com/google/uuid"
)

// ThreadIDFromMessageID derives a stable workflow thread ID from an email
// Message-ID header. The same message always maps to the same thread, which
// is what makes redelivered mail idempotent. Messages without a Message-ID
// get a random thread ID.
func ThreadIDFromMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return NewThreadID()
	}
	return "t_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(messageID)).String()
}

// NewThreadID generates a fresh random thread ID.
func NewThreadID() string {
	return "t_" + uuid.NewString()
}
