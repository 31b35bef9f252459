package adapter

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// PostFunc publishes one piece of text on a platform. Session handling and
// browser automation live behind it.
type PostFunc func(ctx context.Context, text string) error

// maxPostLength truncates over-long drafts rather than failing them.
const maxPostLength = 280

// SocialAdapter posts approved content to one platform. Register one
// instance per platform; they share the social_post rate channel.
type SocialAdapter struct {
	platform string
	post     PostFunc
	logger   zerolog.Logger
}

// NewSocialAdapter wraps a platform transport.
func NewSocialAdapter(platform string, post PostFunc) *SocialAdapter {
	platform = strings.ToLower(platform)
	return &SocialAdapter{platform: platform, post: post, logger: log.WithActor("social-" + platform)}
}

func (a *SocialAdapter) Name() string { return "social-" + a.platform }

func (a *SocialAdapter) Channel() types.Channel { return types.ChannelSocialPost }

func (a *SocialAdapter) Match(filename string, note *vault.Note) bool {
	upper := strings.ToUpper(a.platform)
	if hasPrefix(filename, upper+"_") || hasPrefix(filename, vault.KindSocial+"_"+upper) {
		return true
	}
	if hasPrefix(filename, vault.KindApproval+"_"+upper) {
		return true
	}
	if a.platform == "linkedin" && hasPrefix(filename, vault.KindLinkedIn+"_") {
		return true
	}
	return note != nil && note.Preamble.Action == "post_to_"+a.platform
}

func (a *SocialAdapter) Dispatch(ctx context.Context, req Request) (types.Outcome, error) {
	text := postText(req.Note)
	if text == "" {
		return types.OutcomeRejected, types.Integrityf("social note has no post text")
	}

	if req.DryRun {
		a.logger.Info().Str("stem", req.Stem).Int("chars", len(text)).Msg("[dry run] would publish post")
		return types.OutcomeSent, nil
	}
	if err := a.post(ctx, text); err != nil {
		if types.Retryable(err) {
			return types.OutcomeDeferred, err
		}
		return types.OutcomeRejected, err
	}
	return types.OutcomeSent, nil
}

// postText pulls the content from the preamble's content-ish fields, else
// truncates the body.
func postText(note *vault.Note) string {
	for _, key := range []string{"content", "text", "post", "caption", "message"} {
		if v := strings.TrimSpace(note.Field(key)); v != "" {
			return v
		}
	}
	body := strings.TrimSpace(note.Body)
	if len(body) > maxPostLength {
		body = body[:maxPostLength]
	}
	return body
}
