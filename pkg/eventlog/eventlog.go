package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
)

const dayLayout = "2006-01-02"

// Logger appends audit records to the vault's daily JSON-lines log,
// Logs/YYYY-MM-DD.jsonl. Writers assemble each record in memory and issue
// a single append followed by fsync, so readers may see a partial final
// line but never an interleaved one.
type Logger struct {
	dir   string
	actor string
	now   func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// New creates a logger writing into dir on behalf of actor.
func New(dir, actor string) *Logger {
	return &Logger{dir: dir, actor: actor, now: time.Now}
}

// WithActor returns a logger sharing the directory but stamping a
// different actor, for sub-components of one process.
func (l *Logger) WithActor(actor string) *Logger {
	return &Logger{dir: l.dir, actor: actor, now: l.now}
}

// Dir returns the log directory, for readers that scan the files directly.
func (l *Logger) Dir() string {
	return l.dir
}

// Record appends one line. It satisfies vault.Recorder. Failures are
// logged and swallowed: the audit log must never take down the transition
// that already committed.
func (l *Logger) Record(rec types.LogRecord) {
	if err := l.Append(rec); err != nil {
		logger := log.WithComponent("eventlog")
		logger.Error().Err(err).Str("event", rec.EventType).Msg("audit append failed")
	}
}

// Append writes one record and syncs it to disk.
func (l *Logger) Append(rec types.LogRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	if rec.Actor == "" {
		rec.Actor = l.actor
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Result == "" {
		rec.Result = "ok"
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fileFor(rec.Timestamp)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append log record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	return nil
}

// fileFor returns the open file for the record's calendar day, rotating
// lazily on first write after local midnight. Callers hold l.mu.
func (l *Logger) fileFor(t time.Time) (*os.File, error) {
	day := t.Local().Format(dayLayout)
	if l.file != nil && day == l.day {
		return l.file, nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, types.Fatalf("create log dir: %v", err)
	}
	path := filepath.Join(l.dir, day+".jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, types.Fatalf("open log file %s: %v", path, err)
	}
	l.file = f
	l.day = day
	return f, nil
}

// Close releases the current log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
