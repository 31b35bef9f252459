package adapter

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// EmailMessage is the payload handed to the email transport.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// SendFunc delivers one email. The transport (SMTP, API) is opaque; it
// classifies its own failures via pkg/types.
type SendFunc func(ctx context.Context, msg EmailMessage) error

// EmailAdapter sends approved EMAIL_ files through an injected transport.
type EmailAdapter struct {
	send   SendFunc
	logger zerolog.Logger
}

// NewEmailAdapter wraps a transport.
func NewEmailAdapter(send SendFunc) *EmailAdapter {
	return &EmailAdapter{send: send, logger: log.WithActor("email-adapter")}
}

func (a *EmailAdapter) Name() string { return "email" }

func (a *EmailAdapter) Channel() types.Channel { return types.ChannelEmail }

func (a *EmailAdapter) Match(filename string, note *vault.Note) bool {
	if hasPrefix(filename, vault.KindEmail+"_") {
		return true
	}
	return note != nil && note.Preamble.Action == types.ActionSendEmail
}

func (a *EmailAdapter) Dispatch(ctx context.Context, req Request) (types.Outcome, error) {
	msg, err := emailFrom(req.Note)
	if err != nil {
		return types.OutcomeRejected, err
	}

	if req.DryRun {
		a.logger.Info().Str("to", msg.To).Str("stem", req.Stem).Msg("[dry run] would send email")
		return types.OutcomeSent, nil
	}
	if err := a.send(ctx, msg); err != nil {
		if types.Retryable(err) {
			return types.OutcomeDeferred, err
		}
		return types.OutcomeRejected, err
	}
	return types.OutcomeSent, nil
}

// emailFrom extracts the message from the note's preamble and body. The
// recipient comes from to/recipient/sender fields in that order (replies
// go back to the sender).
func emailFrom(note *vault.Note) (EmailMessage, error) {
	to := note.Field("to")
	if to == "" {
		to = note.Field("recipient")
	}
	if to == "" {
		to = note.Field("sender")
	}
	if to == "" {
		return EmailMessage{}, types.Integrityf("email note has no recipient field")
	}

	subject := note.Field("subject")
	if subject == "" {
		subject = "(no subject)"
	}

	body := replySection(note.Body)
	if strings.TrimSpace(body) == "" {
		return EmailMessage{}, types.Integrityf("email note has no body text")
	}
	return EmailMessage{To: to, Subject: subject, Body: body}, nil
}

// replySection returns the "## Reply" section of a drafted note when
// present, else the whole body. Drafts keep the original message above the
// reply for reviewer context.
func replySection(body string) string {
	const marker = "## Reply"
	idx := strings.Index(body, marker)
	if idx < 0 {
		return body
	}
	section := body[idx+len(marker):]
	if end := strings.Index(section, "\n## "); end >= 0 {
		section = section[:end]
	}
	return strings.TrimSpace(section)
}
