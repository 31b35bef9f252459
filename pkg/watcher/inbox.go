package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// allowedExtensions lists payload types the inbox watcher hoists; temp and
// hidden files are skipped.
var allowedExtensions = map[string]bool{
	".txt": true, ".md": true, ".pdf": true, ".png": true, ".jpg": true,
	".jpeg": true, ".csv": true, ".xlsx": true, ".docx": true, ".json": true,
	".zip": true,
}

// priorityKeywords maps filename substrings to urgency.
var priorityKeywords = []struct {
	keyword  string
	priority types.Priority
}{
	{"urgent", types.PriorityP0},
	{"asap", types.PriorityP0},
	{"important", types.PriorityP1},
	{"invoice", types.PriorityP1},
	{"payment", types.PriorityP1},
	{"contract", types.PriorityP1},
	{"review", types.PriorityP2},
	{"report", types.PriorityP2},
}

// DetectPriority classifies a dropped filename by keyword.
func DetectPriority(filename string) types.Priority {
	lower := strings.ToLower(filename)
	for _, kw := range priorityKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.priority
		}
	}
	return types.PriorityP3
}

// settleDelay gives the writer time to finish before the payload is read.
const settleDelay = 500 * time.Millisecond

// InboxWatcher hoists files dropped into Inbox/ up to Needs_Action/ under
// a canonical FILE_ stem, with a companion action note. It prefers native
// filesystem notifications and falls back to polling where those are
// unreliable (network mounts, WSL paths).
type InboxWatcher struct {
	v            *vault.Vault
	elog         *eventlog.Logger
	dryRun       bool
	pollInterval time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

// NewInboxWatcher creates the watcher. pollInterval caps the notification
// fallback at 5 s per the protocol; zero uses 2 s.
func NewInboxWatcher(v *vault.Vault, elog *eventlog.Logger, dryRun bool, pollInterval time.Duration) *InboxWatcher {
	if pollInterval <= 0 || pollInterval > 5*time.Second {
		pollInterval = 2 * time.Second
	}
	return &InboxWatcher{
		v:            v,
		elog:         elog,
		dryRun:       dryRun,
		pollInterval: pollInterval,
		now:          time.Now,
		logger:       log.WithActor("inbox-watcher"),
	}
}

// Run watches until the context is cancelled. The periodic rescan also
// covers files present before startup and any notification the platform
// dropped.
func (w *InboxWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err == nil {
		defer fw.Close()
		if err := fw.Add(w.v.Dir(vault.StageInbox)); err != nil {
			w.logger.Warn().Err(err).Msg("inbox notifications unavailable, polling only")
			fw.Close()
			fw = nil
		}
	} else {
		w.logger.Warn().Err(err).Msg("fsnotify unavailable, polling only")
		fw = nil
	}

	// Initial sweep picks up anything already waiting.
	w.scan()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if fw != nil {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					fw = nil
					continue
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
					time.Sleep(settleDelay)
					w.processPath(ev.Name)
				}
			case err, ok := <-fw.Errors:
				if ok && err != nil {
					w.logger.Warn().Err(err).Msg("inbox notification error")
				}
			case <-ticker.C:
				w.scan()
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan()
		}
	}
}

// RunOnce performs a single sweep of Inbox/, used by --once and tests.
func (w *InboxWatcher) RunOnce() {
	w.scan()
}

func (w *InboxWatcher) scan() {
	names, err := w.v.List(vault.StageInbox)
	if err != nil {
		w.logger.Error().Err(err).Msg("inbox scan failed")
		return
	}
	for _, name := range names {
		w.processPath(w.v.Path(vault.StageInbox, name))
	}
}

func (w *InboxWatcher) processPath(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		w.logger.Debug().Str("file", name).Msg("skipping unsupported file type")
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	if w.dryRun {
		w.logger.Info().Str("file", name).Msg("[dry run] would hoist inbox file")
		return
	}
	if err := w.hoist(name, ext, info.Size()); err != nil {
		w.logger.Error().Err(err).Str("file", name).Msg("failed to hoist inbox file")
	}
}

// hoist moves the payload under its canonical stem and emits the action
// note describing it. The payload rename commits the hoist; a crash before
// the note is written is recovered by the orchestrator's generic route.
func (w *InboxWatcher) hoist(name, ext string, size int64) error {
	now := w.now()
	topic := strings.TrimSuffix(name, filepath.Ext(name))
	stem := vault.NewStem(vault.KindFile, topic, now)
	payloadName := stem + ext

	if err := w.v.Rename(vault.StageInbox, name, vault.StageNeedsAction, payloadName); err != nil {
		return err
	}

	note := &vault.Note{
		Preamble: vault.Preamble{
			Type:     types.TypeFileDrop,
			Action:   types.ActionArchive,
			Priority: DetectPriority(name),
			Status:   types.StatusPending,
			Created:  now,
			Extra: map[string]string{
				"original_name": name,
				"payload":       payloadName,
				"size_bytes":    fmt.Sprintf("%d", size),
				"file_type":     detectFileType(ext),
			},
		},
		Body: fmt.Sprintf("# New file dropped: %s\n\nReview the payload `%s` and plan any follow-up.\n", name, payloadName),
	}
	// The note shares the payload's stem; Emit suffixes _N if a previous
	// partial hoist left one behind.
	noteName, err := w.v.Emit(vault.StageNeedsAction, stem+"_note", note)
	if err != nil {
		return err
	}

	metrics.NotesEmitted.WithLabelValues("inbox-watcher").Inc()
	w.elog.Record(types.LogRecord{
		EventType: "file_drop",
		File:      stem,
		Result:    "ok",
		Detail:    map[string]any{"original": name, "note": noteName, "size": size},
	})
	w.logger.Info().Str("payload", payloadName).Str("note", noteName).Msg("inbox file hoisted")
	return nil
}

func detectFileType(ext string) string {
	switch ext {
	case ".pdf", ".docx":
		return "document"
	case ".txt":
		return "text"
	case ".md":
		return "note"
	case ".csv", ".json":
		return "data"
	case ".xlsx":
		return "spreadsheet"
	case ".png", ".jpg", ".jpeg":
		return "image"
	case ".zip":
		return "archive"
	}
	return "file"
}
