package gitsync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

func newTestSyncer(t *testing.T) (*Syncer, *vault.Vault) {
	t.Helper()
	v, err := vault.Init(t.TempDir())
	require.NoError(t, err)
	return New(v, nil, Config{}), v
}

func TestPolicyFor(t *testing.T) {
	tests := []struct {
		path string
		want conflictPolicy
	}{
		{"Needs_Action/EMAIL_x_20250601120000.md", policyTheirs},
		{"Signals/SYNC_STATUS.md", policyTheirs},
		{"Done/EMAIL_x_20250601120000.md", policyOurs},
		{"Rejected/EMAIL_x_20250601120000_error.md", policyOurs},
		{"Logs/2025-06-01.jsonl", policyOurs},
		{"Pending_Approval/CLOUD_DRAFT_EMAIL_x_20250601120000.md", policyLaterStatus},
		{"Approved/EMAIL_x_20250601120000.md", policyLaterStatus},
		{"Handbook.md", policyOurs},
		{"In_Progress_Local/EMAIL_x_20250601120000.md", policyOurs},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, policyFor(tt.path))
		})
	}
}

func TestEnsureIgnoreCreatesEntries(t *testing.T) {
	s, v := newTestSyncer(t)
	require.NoError(t, s.ensureIgnore())

	content, err := os.ReadFile(filepath.Join(v.Root(), ".gitignore"))
	require.NoError(t, err)
	for _, entry := range ignoreEntries {
		assert.True(t, containsLine(content, entry), "missing %s", entry)
	}
}

func TestEnsureIgnorePreservesExistingLines(t *testing.T) {
	s, v := newTestSyncer(t)
	path := filepath.Join(v.Root(), ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("*.tmp\n.env\n"), 0o644))

	require.NoError(t, s.ensureIgnore())
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, containsLine(content, "*.tmp"))
	assert.True(t, containsLine(content, ".burrow/"))
	assert.Equal(t, 1, countOccurrences(string(content), ".env"), ".env must not be duplicated")
}

func TestEnsureIgnoreIsIdempotent(t *testing.T) {
	s, v := newTestSyncer(t)
	require.NoError(t, s.ensureIgnore())
	first, err := os.ReadFile(filepath.Join(v.Root(), ".gitignore"))
	require.NoError(t, err)

	require.NoError(t, s.ensureIgnore())
	second, err := os.ReadFile(filepath.Join(v.Root(), ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteStatusProducesParseableSignal(t *testing.T) {
	s, v := newTestSyncer(t)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.writeStatus(start, "ok", 2, nil)

	note, err := v.ReadNote(vault.StageSignals, "SYNC_STATUS.md")
	require.NoError(t, err)
	assert.Equal(t, types.TypeSyncStatus, note.Preamble.Type)
	assert.Equal(t, types.Status("ok"), note.Preamble.Status)
	assert.Equal(t, start.Format(time.RFC3339), note.Field("synced"))
	assert.Contains(t, note.Body, "Conflicts resolved: 2")
}

func TestWriteStatusOverwritesPrevious(t *testing.T) {
	s, v := newTestSyncer(t)
	s.writeStatus(time.Now(), "error", 0, types.Transientf("remote unreachable"))
	s.writeStatus(time.Now(), "ok", 0, nil)

	note, err := v.ReadNote(vault.StageSignals, "SYNC_STATUS.md")
	require.NoError(t, err)
	assert.Equal(t, types.Status("ok"), note.Preamble.Status)
	assert.NotContains(t, note.Body, "remote unreachable")
}

func TestContainsLine(t *testing.T) {
	content := []byte("a\n  .env  \nb\n")
	assert.True(t, containsLine(content, ".env"))
	assert.True(t, containsLine(content, "a"))
	assert.False(t, containsLine(content, ".en"))
	assert.False(t, containsLine(nil, ".env"))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 0, countLines("  \n "))
	assert.Equal(t, 1, countLines("M file\n"))
	assert.Equal(t, 3, countLines("M a\nM b\nM c\n"))
}

func countOccurrences(content, line string) int {
	n := 0
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			n++
		}
	}
	return n
}
