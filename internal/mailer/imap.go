package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	msgmail "github.com/emersion/go-message/mail"
)

// ErrNoIMAPHost indicates the inbound transport is not configured.
var ErrNoIMAPHost = errors.New("IMAP host not configured")

// IMAPOpts holds inbound transport configuration.
type IMAPOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

// IMAPOption configures IMAPOpts.
type IMAPOption func(*IMAPOpts)

// WithIMAPHost sets the IMAP server hostname.
func WithIMAPHost(host string) IMAPOption {
	return func(o *IMAPOpts) { o.Host = host }
}

// WithIMAPPort sets the IMAP server port.
func WithIMAPPort(port int) IMAPOption {
	return func(o *IMAPOpts) { o.Port = port }
}

// WithIMAPCredentials sets the IMAP authentication credentials.
func WithIMAPCredentials(username, password string) IMAPOption {
	return func(o *IMAPOpts) {
		o.Username = username
		o.Password = password
	}
}

// WithMailbox sets the mailbox to poll. Defaults to INBOX.
func WithMailbox(mailbox string) IMAPOption {
	return func(o *IMAPOpts) { o.Mailbox = mailbox }
}

// InboundMessage is one fetched email with its server-assigned UID. The UID
// is the dedup key recorded once the message is fully processed.
type InboundMessage struct {
	UID       uint32
	MessageID string
	Author    string
	To        string
	Subject   string
	Body      string
}

// IMAPFetcher pulls unseen messages from a mailbox over implicit-TLS IMAP.
// Each fetch opens a fresh session; IMAP connections are cheap relative to
// the poll interval and a persistent session complicates reconnect handling.
type IMAPFetcher struct {
	opts IMAPOpts
}

// NewIMAPFetcher creates a fetcher from the given options. The default port
// is 993 with implicit TLS and the default mailbox is INBOX.
func NewIMAPFetcher(opts ...IMAPOption) (*IMAPFetcher, error) {
	cfg := IMAPOpts{Port: 993, Mailbox: "INBOX"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, ErrNoIMAPHost
	}
	return &IMAPFetcher{opts: cfg}, nil
}

// Mailbox returns the polled mailbox name, used as the seen-UID partition key.
func (f *IMAPFetcher) Mailbox() string {
	return f.opts.Mailbox
}

// FetchUnseen returns every message in the mailbox without the \Seen flag.
// Messages stay unread on the server; the caller marks its own progress in
// the seen-UID store so a crash between fetch and processing redelivers.
func (f *IMAPFetcher) FetchUnseen(ctx context.Context) ([]InboundMessage, error) {
	addr := fmt.Sprintf("%s:%d", f.opts.Host, f.opts.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial IMAP server %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(f.opts.Username, f.opts.Password); err != nil {
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}
	if _, err := c.Select(f.opts.Mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", f.opts.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("IMAP search failed: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	slog.Debug("IMAPFetcher found unseen messages", "mailbox", f.opts.Mailbox, "count", len(uids))

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var out []InboundMessage
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			slog.Warn("IMAPFetcher message has no body section", "uid", msg.Uid)
			continue
		}
		parsed, err := parseMessage(msg.Uid, body)
		if err != nil {
			slog.Warn("IMAPFetcher failed to parse message", "error", err, "uid", msg.Uid)
			continue
		}
		out = append(out, parsed)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("IMAP fetch failed: %w", err)
	}
	return out, nil
}

// parseMessage extracts the headers and the best-effort plain-text body from
// a raw RFC 5322 message. HTML-only messages are converted to text.
func parseMessage(uid uint32, r io.Reader) (InboundMessage, error) {
	mr, err := msgmail.CreateReader(r)
	if err != nil {
		return InboundMessage{}, fmt.Errorf("failed to read message: %w", err)
	}

	msg := InboundMessage{UID: uid}
	header := mr.Header
	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	}
	if id, err := header.MessageID(); err == nil {
		msg.MessageID = id
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Author = from[0].Address
	}
	if to, err := header.AddressList("To"); err == nil && len(to) > 0 {
		addrs := make([]string, 0, len(to))
		for _, a := range to {
			addrs = append(addrs, a.Address)
		}
		msg.To = strings.Join(addrs, ", ")
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return InboundMessage{}, fmt.Errorf("failed to read message part: %w", err)
		}
		inline, ok := part.Header.(*msgmail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := inline.ContentType()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if plain == "" {
				plain = string(data)
			}
		case "text/html":
			if html == "" {
				html = string(data)
			}
		}
	}

	switch {
	case plain != "":
		msg.Body = strings.TrimSpace(plain)
	case html != "":
		msg.Body = HTMLToText(html)
	}
	return msg, nil
}
