package signals

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/events"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// Dashboard region markers. Only the text between them is ever rewritten;
// everything else in Dashboard.md belongs to the human and the reasoning
// layer.
const (
	beginMarker = "<!-- BEGIN CLOUD STATUS -->"
	endMarker   = "<!-- END CLOUD STATUS -->"
)

// maxStatusLines bounds the merged region so the dashboard stays readable.
const maxStatusLines = 10

// Merger folds Signals/ into the cloud-status region of Dashboard.md.
// Local-peer only; the cloud peer produces signals but never the dashboard.
type Merger struct {
	v      *vault.Vault
	elog   *eventlog.Logger
	broker *events.Broker
	now    func() time.Time
	logger zerolog.Logger
}

// NewMerger builds the merger. broker may be nil.
func NewMerger(v *vault.Vault, elog *eventlog.Logger, broker *events.Broker) *Merger {
	return &Merger{
		v:      v,
		elog:   elog,
		broker: broker,
		now:    time.Now,
		logger: log.WithActor("signal-merge"),
	}
}

// Merge reads every signal file and rewrites the dashboard region
// atomically. Missing markers append a fresh region at the end of the
// dashboard rather than failing.
func (m *Merger) Merge() error {
	lines, err := m.collect()
	if err != nil {
		return err
	}

	path := m.v.Singleton(vault.FileDashboard)
	current, err := os.ReadFile(path)
	if err != nil {
		return types.Fatalf("read dashboard: %v", err)
	}

	region := beginMarker + "\n" + strings.Join(lines, "\n") + "\n" + endMarker
	updated, replaced := spliceRegion(string(current), region)
	if updated == string(current) {
		return nil
	}
	if err := vault.WriteFileAtomic(path, []byte(updated)); err != nil {
		return err
	}

	m.elog.Record(types.LogRecord{
		EventType: "signals_merged",
		File:      vault.FileDashboard,
		Result:    "ok",
		Detail:    map[string]any{"lines": len(lines), "region_replaced": replaced},
	})
	if m.broker != nil {
		m.broker.Publish(&events.Event{Type: events.EventSignalMerged, Stem: vault.FileDashboard})
	}
	m.logger.Info().Int("lines", len(lines)).Msg("dashboard cloud-status region updated")
	return nil
}

// collect summarizes the signal files, newest first, bounded.
func (m *Merger) collect() ([]string, error) {
	names, err := m.v.List(vault.StageSignals)
	if err != nil {
		return nil, err
	}
	// Stems embed their timestamp, so reverse filename order is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	lines := []string{fmt.Sprintf("_Updated %s_", m.now().Format("2006-01-02 15:04"))}
	for _, name := range names {
		if len(lines) >= maxStatusLines {
			break
		}
		note, rerr := m.v.ReadNote(vault.StageSignals, name)
		if rerr != nil {
			continue // non-note signal content is skipped, not fatal
		}
		lines = append(lines, summarize(name, note))
	}
	return lines, nil
}

func summarize(name string, note *vault.Note) string {
	switch note.Preamble.Type {
	case types.TypeSyncStatus:
		return fmt.Sprintf("- Sync: %s (%s)", note.Preamble.Status, note.Preamble.Extra["synced"])
	case types.TypeCloudStatus:
		return fmt.Sprintf("- Cloud: drafted %s task(s) at %s", note.Field("drafted"), note.Preamble.Created.Format("15:04"))
	}
	return fmt.Sprintf("- %s: %s", vault.StemOf(name), note.Preamble.Status)
}

// spliceRegion replaces the marked region in content, or appends one when
// the markers are absent or malformed.
func spliceRegion(content, region string) (string, bool) {
	begin := strings.Index(content, beginMarker)
	end := strings.Index(content, endMarker)
	if begin < 0 || end < 0 || end < begin {
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		return content + "\n" + region + "\n", false
	}
	return content[:begin] + region + content[end+len(endMarker):], true
}
