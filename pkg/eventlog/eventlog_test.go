package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrowhq/burrow/pkg/types"
)

func TestAppendFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.Local)
	l := New(dir, "orchestrator")
	l.now = func() time.Time { return at }
	defer l.Close()

	require.NoError(t, l.Append(types.LogRecord{EventType: "task_completed", File: "EMAIL_x_20250601100000"}))

	recs := readAll(t, filepath.Join(dir, at.Local().Format(dayLayout)+".jsonl"))
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "task_completed", rec.EventType)
	assert.Equal(t, "orchestrator", rec.Actor)
	assert.Equal(t, "ok", rec.Result)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestDailyRotation(t *testing.T) {
	dir := t.TempDir()
	current := time.Date(2025, 6, 1, 23, 59, 0, 0, time.Local)
	l := New(dir, "test")
	l.now = func() time.Time { return current }
	defer l.Close()

	require.NoError(t, l.Append(types.LogRecord{EventType: "a"}))
	current = current.Add(2 * time.Minute) // past midnight
	require.NoError(t, l.Append(types.LogRecord{EventType: "b"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWithActorSharesDirectory(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "orchestrator")
	defer l.Close()
	w := l.WithActor("inbox-watcher")
	defer w.Close()

	require.NoError(t, l.Append(types.LogRecord{EventType: "a"}))
	require.NoError(t, w.Append(types.LogRecord{EventType: "b"}))

	day := time.Now().Local().Format(dayLayout)
	recs := readAll(t, filepath.Join(dir, day+".jsonl"))
	require.Len(t, recs, 2)
	assert.Equal(t, "orchestrator", recs[0].Actor)
	assert.Equal(t, "inbox-watcher", recs[1].Actor)
}

func TestScanFiltersAndSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.Local)

	l := New(dir, "test")
	l.now = func() time.Time { return now.AddDate(0, 0, -1) }
	require.NoError(t, l.Append(types.LogRecord{EventType: "old_event", File: "stem_a"}))
	l.now = func() time.Time { return now }
	require.NoError(t, l.Append(types.LogRecord{EventType: "new_event", File: "stem_a"}))
	require.NoError(t, l.Close())

	// A torn trailing line must not break the scan.
	day := now.Local().Format(dayLayout)
	f, err := os.OpenFile(filepath.Join(dir, day+".jsonl"), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"event_type":"torn`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs, err := Scan(dir, 7, now, func(r types.LogRecord) bool { return r.File == "stem_a" })
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// Oldest first.
	assert.Equal(t, "old_event", recs[0].EventType)
	assert.Equal(t, "new_event", recs[1].EventType)
}

func TestScanWindowExcludesOldDays(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.Local)

	l := New(dir, "test")
	l.now = func() time.Time { return now.AddDate(0, 0, -20) }
	require.NoError(t, l.Append(types.LogRecord{EventType: "ancient"}))
	require.NoError(t, l.Close())

	recs, err := Scan(dir, 14, now, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHasPriorApproval(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)
	l := New(dir, "orchestrator")
	l.now = func() time.Time { return now }

	require.NoError(t, l.Append(types.LogRecord{
		EventType: "stage_moved",
		File:      "ODOO_invoice_20250610110000",
		Detail:    map[string]any{"from": "Needs_Action", "to": "Pending_Approval"},
	}))
	require.NoError(t, l.Append(types.LogRecord{
		EventType: "note_emitted",
		File:      "CLOUD_DRAFT_EMAIL_x_20250610110000",
		Detail:    map[string]any{"stage": "Pending_Approval"},
	}))
	require.NoError(t, l.Append(types.LogRecord{
		EventType: "stage_moved",
		File:      "EMAIL_direct_20250610110000",
		Detail:    map[string]any{"from": "Needs_Action", "to": "Done"},
	}))
	require.NoError(t, l.Append(types.LogRecord{
		EventType: "stage_observed",
		File:      "APPROVAL_handwritten_20250610110000",
		Detail:    map[string]any{"stage": "Pending_Approval"},
	}))
	require.NoError(t, l.Close())

	ok, err := HasPriorApproval(dir, "ODOO_invoice_20250610110000", 14, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = HasPriorApproval(dir, "CLOUD_DRAFT_EMAIL_x_20250610110000", 14, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = HasPriorApproval(dir, "EMAIL_direct_20250610110000", 14, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = HasPriorApproval(dir, "EMAIL_absent_20250610110000", 14, now)
	require.NoError(t, err)
	assert.False(t, ok)

	// Files written into Pending_Approval by external tools only enter the
	// log when observed; that record counts as the trail too.
	ok, err = HasPriorApproval(dir, "APPROVAL_handwritten_20250610110000", 14, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnresolvedDispatch(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)
	l := New(dir, "orchestrator")
	l.now = func() time.Time { return now }

	require.NoError(t, l.Append(types.LogRecord{EventType: "dispatch_started", File: "EMAIL_open_20250610110000"}))
	require.NoError(t, l.Append(types.LogRecord{EventType: "dispatch_started", File: "EMAIL_deferred_20250610110000"}))
	require.NoError(t, l.Append(types.LogRecord{EventType: "dispatch_settled", File: "EMAIL_deferred_20250610110000", Result: "deferred"}))
	require.NoError(t, l.Append(types.LogRecord{EventType: "dispatch_started", File: "EMAIL_done_20250610110000"}))
	require.NoError(t, l.Append(types.LogRecord{EventType: "task_completed", File: "EMAIL_done_20250610110000"}))
	require.NoError(t, l.Close())

	open, err := UnresolvedDispatch(dir, "EMAIL_open_20250610110000", 2, now)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = UnresolvedDispatch(dir, "EMAIL_deferred_20250610110000", 2, now)
	require.NoError(t, err)
	assert.False(t, open)

	open, err = UnresolvedDispatch(dir, "EMAIL_done_20250610110000", 2, now)
	require.NoError(t, err)
	assert.False(t, open)

	open, err = UnresolvedDispatch(dir, "EMAIL_never_20250610110000", 2, now)
	require.NoError(t, err)
	assert.False(t, open)
}

func readAll(t *testing.T, path string) []types.LogRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []types.LogRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec types.LogRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}
