package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// SocialSource adapts one platform's inbound message feed to the watcher
// framework. The feed itself lives behind a FetchFunc; the browser session
// or platform API stays out of this process.
type SocialSource struct {
	platform string
	fetch    FetchFunc
	now      func() time.Time
}

// NewSocialSource wraps a platform feed as a Source.
func NewSocialSource(platform string, fetch FetchFunc) *SocialSource {
	return &SocialSource{platform: strings.ToLower(platform), fetch: fetch, now: time.Now}
}

func (s *SocialSource) Name() string { return s.platform + "-watcher" }

func (s *SocialSource) Setup(ctx context.Context) error { return nil }

func (s *SocialSource) Poll(ctx context.Context) ([]Item, error) {
	messages, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.platform, err)
	}

	items := make([]Item, 0, len(messages))
	for _, msg := range messages {
		items = append(items, Item{
			ID:   msg.ID,
			Stem: vault.NewStem(strings.ToUpper(s.platform), msg.From, s.now()),
			Note: s.noteFor(msg),
		})
	}
	return items, nil
}

func (s *SocialSource) noteFor(msg Message) *vault.Note {
	priority := types.PriorityP2
	action := types.ActionArchive
	if hasBusinessKeyword(msg.Subject + " " + msg.Snippet) {
		priority = types.PriorityP1
		action = types.ActionDraftReply
	}
	return &vault.Note{
		Preamble: vault.Preamble{
			Type:     s.platform + "_message",
			Action:   action,
			Priority: priority,
			Status:   types.StatusPending,
			Created:  s.now(),
			Extra: map[string]string{
				"platform":   s.platform,
				"sender":     msg.From,
				"message_id": msg.ID,
				"received":   msg.Received.Format(time.RFC3339),
			},
		},
		Body: fmt.Sprintf("# Message from %s on %s\n\n%s\n", msg.From, s.platform, msg.Snippet),
	}
}

// NewCommandFetch execs an external feed command and decodes its stdout as
// a JSON array of messages. The session file location travels in the
// environment so credentials never touch the vault.
func NewCommandFetch(command, sessionPath string) FetchFunc {
	return func(ctx context.Context) ([]Message, error) {
		parts := strings.Fields(command)
		if len(parts) == 0 {
			return nil, types.Permanentf("empty watch command")
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		cmd.Env = os.Environ()
		if sessionPath != "" {
			cmd.Env = append(cmd.Env, "BURROW_SESSION_PATH="+sessionPath)
		}
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return nil, types.Permanentf("watch command %q not found", parts[0])
			}
			return nil, types.Transientf("watch command failed: %v: %s", err, strings.TrimSpace(stderr.String()))
		}

		raw := bytes.TrimSpace(stdout.Bytes())
		if len(raw) == 0 {
			return nil, nil
		}
		var out []Message
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, types.Permanentf("malformed watch command output: %v", err)
		}
		return out, nil
	}
}
