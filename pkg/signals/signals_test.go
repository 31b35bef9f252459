package signals

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

func newTestMerger(t *testing.T) (*Merger, *vault.Vault) {
	t.Helper()
	v, err := vault.Init(t.TempDir())
	require.NoError(t, err)
	elog := eventlog.New(v.Dir(vault.StageLogs), "test")
	t.Cleanup(func() { elog.Close() })
	m := NewMerger(v, elog, nil)
	m.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return m, v
}

func emitSignal(t *testing.T, v *vault.Vault, stem string, note *vault.Note) {
	t.Helper()
	_, err := v.Emit(vault.StageSignals, stem, note)
	require.NoError(t, err)
}

func TestSpliceRegionReplaces(t *testing.T) {
	content := "# Dashboard\n\nnotes\n\n" + beginMarker + "\nold line\n" + endMarker + "\n\ntrailer\n"
	updated, replaced := spliceRegion(content, beginMarker+"\nnew line\n"+endMarker)
	assert.True(t, replaced)
	assert.Contains(t, updated, "new line")
	assert.NotContains(t, updated, "old line")
	assert.Contains(t, updated, "# Dashboard")
	assert.Contains(t, updated, "trailer")
}

func TestSpliceRegionAppendsWhenMarkersAbsent(t *testing.T) {
	updated, replaced := spliceRegion("# Dashboard\nno markers here", beginMarker+"\nline\n"+endMarker)
	assert.False(t, replaced)
	assert.True(t, strings.HasPrefix(updated, "# Dashboard\n"))
	assert.Contains(t, updated, beginMarker)
	assert.Contains(t, updated, endMarker)
}

func TestSpliceRegionAppendsWhenMarkersInverted(t *testing.T) {
	content := endMarker + "\nmangled\n" + beginMarker + "\n"
	_, replaced := spliceRegion(content, beginMarker+"\nline\n"+endMarker)
	assert.False(t, replaced)
}

func TestMergeWritesCloudAndSyncLines(t *testing.T) {
	m, v := newTestMerger(t)

	emitSignal(t, v, "CLOUD_STATUS_cycle_20250601113000", &vault.Note{
		Preamble: vault.Preamble{
			Type:    types.TypeCloudStatus,
			Status:  types.StatusDone,
			Created: time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC),
			Extra:   map[string]string{"drafted": "3"},
		},
		Body: "b\n",
	})
	require.NoError(t, vault.WriteFileAtomic(v.Path(vault.StageSignals, "SYNC_STATUS.md"),
		[]byte("---\ntype: sync_status\nstatus: ok\nsynced: 2025-06-01T11:45:00Z\n---\n\nbody\n")))

	require.NoError(t, m.Merge())

	content, err := os.ReadFile(v.Singleton(vault.FileDashboard))
	require.NoError(t, err)
	dashboard := string(content)
	assert.Contains(t, dashboard, beginMarker)
	assert.Contains(t, dashboard, "_Updated 2025-06-01 12:00_")
	assert.Contains(t, dashboard, "- Cloud: drafted 3 task(s) at 11:30")
	assert.Contains(t, dashboard, "- Sync: ok (2025-06-01T11:45:00Z)")
}

func TestMergeIsIdempotent(t *testing.T) {
	m, v := newTestMerger(t)
	emitSignal(t, v, "CLOUD_STATUS_cycle_20250601113000", &vault.Note{
		Preamble: vault.Preamble{Type: types.TypeCloudStatus, Created: time.Now(), Extra: map[string]string{"drafted": "1"}},
		Body:     "b\n",
	})

	require.NoError(t, m.Merge())
	first, err := os.ReadFile(v.Singleton(vault.FileDashboard))
	require.NoError(t, err)

	require.NoError(t, m.Merge())
	second, err := os.ReadFile(v.Singleton(vault.FileDashboard))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 1, strings.Count(string(second), beginMarker), "repeated merges must not stack regions")
}

func TestMergeBoundsRegionSize(t *testing.T) {
	m, v := newTestMerger(t)
	for i := 0; i < 20; i++ {
		emitSignal(t, v, vault.NewStem("CLOUD_STATUS", "cycle", time.Date(2025, 6, 1, 0, i, 0, 0, time.UTC)), &vault.Note{
			Preamble: vault.Preamble{Type: types.TypeCloudStatus, Created: time.Now(), Extra: map[string]string{"drafted": "1"}},
			Body:     "b\n",
		})
	}

	require.NoError(t, m.Merge())
	content, err := os.ReadFile(v.Singleton(vault.FileDashboard))
	require.NoError(t, err)

	begin := strings.Index(string(content), beginMarker)
	end := strings.Index(string(content), endMarker)
	require.True(t, begin >= 0 && end > begin)
	region := string(content)[begin:end]
	assert.LessOrEqual(t, strings.Count(region, "\n"), maxStatusLines+1)
}

func TestMergeSkipsUnparseableSignals(t *testing.T) {
	m, v := newTestMerger(t)
	require.NoError(t, os.WriteFile(v.Path(vault.StageSignals, "garbage.md"), []byte("not a note"), 0o644))
	emitSignal(t, v, "CLOUD_STATUS_cycle_20250601113000", &vault.Note{
		Preamble: vault.Preamble{Type: types.TypeCloudStatus, Created: time.Now(), Extra: map[string]string{"drafted": "2"}},
		Body:     "b\n",
	})

	require.NoError(t, m.Merge())
	content, err := os.ReadFile(v.Singleton(vault.FileDashboard))
	require.NoError(t, err)
	assert.Contains(t, string(content), "drafted 2 task(s)")
}
