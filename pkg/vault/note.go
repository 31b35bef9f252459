package vault

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/burrowhq/burrow/pkg/types"
)

// Preamble is the structured head of an action note. Type-specific fields
// (sender, amount, platform, channel) ride in Extra.
type Preamble struct {
	Type     string            `yaml:"type"`
	Action   string            `yaml:"action,omitempty"`
	Priority types.Priority    `yaml:"priority,omitempty"`
	Status   types.Status      `yaml:"status,omitempty"`
	Created  time.Time         `yaml:"created"`
	Expires  *time.Time        `yaml:"expires,omitempty"`
	Extra    map[string]string `yaml:",inline"`
}

// Note is one unit of pending or completed work: a structured preamble
// plus free-form human-readable body.
type Note struct {
	Preamble Preamble
	Body     string
}

// Field returns an Extra preamble field, empty when absent.
func (n *Note) Field(key string) string {
	return n.Preamble.Extra[key]
}

// Amount parses the preamble's amount field; zero when absent or malformed.
func (n *Note) Amount() float64 {
	raw := strings.TrimSpace(n.Field("amount"))
	if raw == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return amount
}

// Expired reports whether the note carries an expiry in the past.
func (n *Note) Expired(now time.Time) bool {
	return n.Preamble.Expires != nil && n.Preamble.Expires.Before(now)
}

const fence = "---"

// ParseNote decodes a note from its on-disk form: a YAML frontmatter block
// fenced by --- lines, then the body. An unreadable preamble is an
// integrity failure — the caller quarantines the file.
func ParseNote(content []byte) (*Note, error) {
	text := string(content)
	if !strings.HasPrefix(text, fence+"\n") {
		return nil, types.Integrityf("note has no frontmatter fence")
	}
	rest := text[len(fence)+1:]
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return nil, types.Integrityf("note frontmatter is unterminated")
	}
	head := rest[:end]
	body := rest[end+len(fence)+1:]
	// The first newline ends the fence line, the second is the blank
	// separator Render emits; both belong to the framing, not the body.
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	var pre Preamble
	if err := yaml.Unmarshal([]byte(head), &pre); err != nil {
		return nil, types.Integrityf("parse note preamble: %v", err)
	}
	return &Note{Preamble: pre, Body: body}, nil
}

// Render encodes the note to its on-disk form.
func (n *Note) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n.Preamble); err != nil {
		return nil, fmt.Errorf("encode note preamble: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode note preamble: %w", err)
	}
	buf.WriteString(fence + "\n\n")
	buf.WriteString(n.Body)
	if !strings.HasSuffix(n.Body, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// Note filename kinds. The stem <KIND>_<TOPIC>_<YYYYMMDDHHMMSS> is stable
// across stage transitions and is the identity key for dedup and logging.
const (
	KindEmail      = "EMAIL"
	KindFile       = "FILE"
	KindApproval   = "APPROVAL"
	KindPlan       = "PLAN"
	KindUrgent     = "URGENT"
	KindCloudDraft = "CLOUD_DRAFT"
	KindLinkedIn   = "LINKEDIN_POST"
	KindSocial     = "SOCIAL"
)

const stemTimeLayout = "20060102150405"

// NewStem builds a canonical stem from kind, topic and timestamp.
// The topic is sanitized to keep the stem a single path segment.
func NewStem(kind, topic string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s", strings.ToUpper(kind), sanitizeTopic(topic), t.Format(stemTimeLayout))
}

// StemOf strips the single extension off a filename.
func StemOf(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// KindOf returns the leading kind token of a stem, best effort.
func KindOf(stem string) string {
	if i := strings.Index(stem, "_"); i > 0 {
		return stem[:i]
	}
	return stem
}

func sanitizeTopic(topic string) string {
	if topic == "" {
		return "untitled"
	}
	var b strings.Builder
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "untitled"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
