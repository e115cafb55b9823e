package poller

import (
	"context"
	"errors"
	"testing"

	"github.com/inboxpilot/InboxPilot/internal/mailer"
	"github.com/inboxpilot/InboxPilot/internal/models"
	"github.com/inboxpilot/InboxPilot/internal/store"
)

type fakeFetcher struct {
	messages []mailer.InboundMessage
	err      error
}

func (f *fakeFetcher) FetchUnseen(ctx context.Context) ([]mailer.InboundMessage, error) {
	return f.messages, f.err
}

func (f *fakeFetcher) Mailbox() string { return "INBOX" }

type fakeStarter struct {
	started []models.Email
	err     error
}

func (f *fakeStarter) Start(ctx context.Context, email models.Email) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, email)
	return nil
}

func message(uid uint32, messageID string) mailer.InboundMessage {
	return mailer.InboundMessage{
		UID:       uid,
		MessageID: messageID,
		Author:    "alice@example.com",
		To:        "user@example.com",
		Subject:   "hello",
		Body:      "are you free Thursday?",
	}
}

func TestNewClampsNonPositiveInterval(t *testing.T) {
	p := New(&fakeFetcher{}, &fakeStarter{}, store.NewInMemoryStore(), WithInterval(0))
	if p.interval != DefaultInterval {
		t.Errorf("zero interval not clamped, got %v", p.interval)
	}
	p = New(&fakeFetcher{}, &fakeStarter{}, store.NewInMemoryStore(), WithInterval(-1))
	if p.interval != DefaultInterval {
		t.Errorf("negative interval not clamped, got %v", p.interval)
	}
}

func TestPollOnceStartsWorkflowAndMarksSeen(t *testing.T) {
	st := store.NewInMemoryStore()
	starter := &fakeStarter{}
	fetcher := &fakeFetcher{messages: []mailer.InboundMessage{message(1, "<m1@x>"), message(2, "<m2@x>")}}
	p := New(fetcher, starter, st, WithUserID("user-1"))

	p.PollOnce(context.Background())

	if len(starter.started) != 2 {
		t.Fatalf("expected 2 workflows, got %d", len(starter.started))
	}
	if starter.started[0].RequesterID != "user-1" {
		t.Errorf("RequesterID = %q", starter.started[0].RequesterID)
	}
	if starter.started[0].ThreadID == starter.started[1].ThreadID {
		t.Error("distinct messages mapped to the same thread")
	}
	for _, uid := range []uint32{1, 2} {
		seen, err := st.IsSeenUID("INBOX", uid)
		if err != nil {
			t.Fatalf("IsSeenUID failed: %v", err)
		}
		if !seen {
			t.Errorf("uid %d not marked seen", uid)
		}
	}
}

func TestPollOnceSkipsAlreadySeen(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.MarkSeenUID("INBOX", 1); err != nil {
		t.Fatalf("MarkSeenUID failed: %v", err)
	}
	starter := &fakeStarter{}
	fetcher := &fakeFetcher{messages: []mailer.InboundMessage{message(1, "<m1@x>")}}
	p := New(fetcher, starter, st)

	p.PollOnce(context.Background())

	if len(starter.started) != 0 {
		t.Errorf("seen message started a workflow")
	}
}

func TestPollOnceLeavesUnmarkedOnStartFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	starter := &fakeStarter{err: errors.New("classification failed")}
	fetcher := &fakeFetcher{messages: []mailer.InboundMessage{message(5, "<m5@x>")}}
	p := New(fetcher, starter, st)

	p.PollOnce(context.Background())

	seen, err := st.IsSeenUID("INBOX", 5)
	if err != nil {
		t.Fatalf("IsSeenUID failed: %v", err)
	}
	if seen {
		t.Error("failed workflow marked seen, message would be lost")
	}
}

func TestPollOnceMarksInvalidMessages(t *testing.T) {
	st := store.NewInMemoryStore()
	starter := &fakeStarter{}
	invalid := message(9, "<m9@x>")
	invalid.Body = ""
	fetcher := &fakeFetcher{messages: []mailer.InboundMessage{invalid}}
	p := New(fetcher, starter, st)

	p.PollOnce(context.Background())

	if len(starter.started) != 0 {
		t.Error("invalid message started a workflow")
	}
	seen, err := st.IsSeenUID("INBOX", 9)
	if err != nil {
		t.Fatalf("IsSeenUID failed: %v", err)
	}
	if !seen {
		t.Error("invalid message not marked seen, would be retried forever")
	}
}
