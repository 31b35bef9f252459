package watcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// Message is one inbound mailbox item. The transport that produced it
// (IMAP, API, export file) is opaque to the framework.
type Message struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Snippet  string    `json:"snippet"`
	Received time.Time `json:"received"`
}

// FetchFunc retrieves unseen messages from the mailbox transport. Errors
// must be classified via pkg/types: auth and schema problems Permanent,
// network problems Transient.
type FetchFunc func(ctx context.Context) ([]Message, error)

// SetupFunc runs the transport's interactive credential bootstrap.
type SetupFunc func(ctx context.Context) error

// businessKeywords flag a message for human review rather than archive.
var businessKeywords = []string{
	"invoice", "payment", "quote", "pricing", "refund", "budget",
	"contract", "proposal", "hire", "project", "deadline",
	"partnership", "opportunity", "meeting",
	"urgent", "asap", "critical", "legal", "dispute", "complaint",
}

// MailboxSource adapts a mailbox transport to the watcher framework. One
// action note is emitted per message; the message id is the dedup key.
type MailboxSource struct {
	name  string
	fetch FetchFunc
	setup SetupFunc
	now   func() time.Time
}

// NewMailboxSource wraps a fetch function as a Source. setup may be nil
// when the transport needs no interactive bootstrap.
func NewMailboxSource(name string, fetch FetchFunc, setup SetupFunc) *MailboxSource {
	return &MailboxSource{name: name, fetch: fetch, setup: setup, now: time.Now}
}

func (s *MailboxSource) Name() string { return s.name }

func (s *MailboxSource) Setup(ctx context.Context) error {
	if s.setup == nil {
		return nil
	}
	return s.setup(ctx)
}

func (s *MailboxSource) Poll(ctx context.Context) ([]Item, error) {
	messages, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.name, err)
	}

	items := make([]Item, 0, len(messages))
	for _, msg := range messages {
		items = append(items, Item{
			ID:   msg.ID,
			Stem: vault.NewStem(vault.KindEmail, msg.Subject, s.now()),
			Note: s.noteFor(msg),
		})
	}
	return items, nil
}

func (s *MailboxSource) noteFor(msg Message) *vault.Note {
	priority := types.PriorityP2
	action := types.ActionArchive
	if hasBusinessKeyword(msg.Subject + " " + msg.Snippet) {
		priority = types.PriorityP1
		action = types.ActionDraftReply
	}
	return &vault.Note{
		Preamble: vault.Preamble{
			Type:     types.TypeEmail,
			Action:   action,
			Priority: priority,
			Status:   types.StatusPending,
			Created:  s.now(),
			Extra: map[string]string{
				"sender":     msg.From,
				"subject":    msg.Subject,
				"message_id": msg.ID,
				"received":   msg.Received.Format(time.RFC3339),
			},
		},
		Body: fmt.Sprintf("# Email from %s\n\n**Subject:** %s\n\n%s\n", msg.From, msg.Subject, msg.Snippet),
	}
}

func hasBusinessKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range businessKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
