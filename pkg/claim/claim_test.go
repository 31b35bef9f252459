package claim

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

func newTestVault(t *testing.T) (*vault.Vault, *eventlog.Logger) {
	t.Helper()
	v, err := vault.Init(t.TempDir())
	require.NoError(t, err)
	elog := eventlog.New(v.Dir(vault.StageLogs), "test")
	t.Cleanup(func() { elog.Close() })
	v.SetRecorder(elog)
	return v, elog
}

func emitTask(t *testing.T, v *vault.Vault, stem, action string) string {
	t.Helper()
	name, err := v.Emit(vault.StageNeedsAction, stem, &vault.Note{
		Preamble: vault.Preamble{
			Type:    types.TypeEmail,
			Action:  action,
			Created: time.Now(),
		},
		Body: "task body\n",
	})
	require.NoError(t, err)
	return name
}

func TestInZone(t *testing.T) {
	v, elog := newTestVault(t)
	local := NewClaimer(v, types.PeerLocal, elog)
	cloud := NewClaimer(v, types.PeerCloud, elog)

	tests := []struct {
		filename  string
		wantCloud bool
	}{
		{"EMAIL_client_20250601120000.md", true},
		{"FILE_report_20250601120000_note.md", true},
		{"WHATSAPP_mom_20250601120000.md", false},
		{"whatsapp_mom_20250601120000.md", false},
		{"PAYMENT_rent_20250601120000.md", false},
		{"BANKING_transfer_20250601120000.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.True(t, local.InZone(tt.filename), "local peer works everything")
			assert.Equal(t, tt.wantCloud, cloud.InZone(tt.filename))
		})
	}
}

func TestClaimNextMovesIntoZone(t *testing.T) {
	v, elog := newTestVault(t)
	c := NewClaimer(v, types.PeerLocal, elog)
	name := emitTask(t, v, "EMAIL_client_20250601120000", types.ActionDraftReply)

	got, note, ok, err := c.ClaimNext()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, name, got)
	assert.Equal(t, types.ActionDraftReply, note.Preamble.Action)

	// The file is gone from the queue and sits in the peer's zone.
	queue, err := v.List(vault.StageNeedsAction)
	require.NoError(t, err)
	assert.Empty(t, queue)
	zone, err := v.List(vault.StageInProgress.Peer(types.PeerLocal))
	require.NoError(t, err)
	assert.Equal(t, []string{name}, zone)

	// Nothing left to claim.
	_, _, ok, err = c.ClaimNext()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloudSkipsForbiddenPrefixes(t *testing.T) {
	v, elog := newTestVault(t)
	c := NewClaimer(v, types.PeerCloud, elog)
	emitTask(t, v, "WHATSAPP_mom_20250601120000", types.ActionDraftReply)
	name := emitTask(t, v, "EMAIL_client_20250601120000", types.ActionDraftReply)

	got, _, ok, err := c.ClaimNext()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, name, got)

	// The forbidden file never left the queue.
	queue, err := v.List(vault.StageNeedsAction)
	require.NoError(t, err)
	assert.Equal(t, []string{"WHATSAPP_mom_20250601120000.md"}, queue)
}

func TestCloudReleasesLocalOnlyActions(t *testing.T) {
	v, elog := newTestVault(t)
	c := NewClaimer(v, types.PeerCloud, elog)
	emitTask(t, v, "EMAIL_urgent_20250601120000", types.ActionSendEmail)

	_, _, ok, err := c.ClaimNext()
	require.NoError(t, err)
	assert.False(t, ok, "send_email is local-only")

	// Released back to the queue, not stuck in the cloud zone.
	queue, err := v.List(vault.StageNeedsAction)
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL_urgent_20250601120000.md"}, queue)
	zone, err := v.List(vault.StageInProgress.Peer(types.PeerCloud))
	require.NoError(t, err)
	assert.Empty(t, zone)
}

func TestCompleteMovesToDone(t *testing.T) {
	v, elog := newTestVault(t)
	c := NewClaimer(v, types.PeerLocal, elog)
	name := emitTask(t, v, "EMAIL_client_20250601120000", types.ActionDraftReply)

	_, _, ok, err := c.ClaimNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, c.Complete(name))

	done, err := v.List(vault.StageDone)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, done)
}

func TestSweepStale(t *testing.T) {
	v, elog := newTestVault(t)
	cloud := NewClaimer(v, types.PeerCloud, elog)
	local := NewClaimer(v, types.PeerLocal, elog)

	fresh := emitTask(t, v, "EMAIL_fresh_20250601120000", types.ActionDraftReply)
	stale := emitTask(t, v, "EMAIL_stale_20250601110000", types.ActionDraftReply)
	for i := 0; i < 2; i++ {
		_, _, ok, err := cloud.ClaimNext()
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Age one claim past the TTL.
	old := time.Now().Add(-2 * time.Hour)
	zone := vault.StageInProgress.Peer(types.PeerCloud)
	require.NoError(t, os.Chtimes(v.Path(zone, stale), old, old))

	swept, err := local.SweepStale(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	queue, err := v.List(vault.StageNeedsAction)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, queue)
	inZone, err := v.List(zone)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, inZone)
}

func TestCloudWorkerDraftsIntoPendingApproval(t *testing.T) {
	v, elog := newTestVault(t)
	claimer := NewClaimer(v, types.PeerCloud, elog)
	emitTask(t, v, "EMAIL_client_20250601120000", types.ActionDraftReply)

	drafter := func(_ context.Context, stem string, note *vault.Note) (*vault.Note, error) {
		return &vault.Note{
			Preamble: vault.Preamble{Type: types.TypeEmail, Action: types.ActionSendEmail},
			Body:     "## Reply\n\nDrafted reply.\n",
		}, nil
	}
	w := NewCloudWorker(v, claimer, drafter, elog, CloudConfig{Once: true})
	require.NoError(t, w.Run(context.Background()))

	pending, err := v.List(vault.StagePendingApproval)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "CLOUD_DRAFT_EMAIL_client_20250601120000.md", pending[0])

	draft, err := v.ReadNote(vault.StagePendingApproval, pending[0])
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, draft.Preamble.Status)
	assert.Equal(t, "EMAIL_client_20250601120000", draft.Field("source_task"))
	assert.Equal(t, string(types.PeerCloud), draft.Field("drafted_by"))

	// Source task completed, status signal emitted.
	done, err := v.List(vault.StageDone)
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL_client_20250601120000.md"}, done)
	signals, err := v.List(vault.StageSignals)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Contains(t, signals[0], "CLOUD_STATUS_")
}

func TestCloudWorkerReleasesOnDrafterFailure(t *testing.T) {
	v, elog := newTestVault(t)
	claimer := NewClaimer(v, types.PeerCloud, elog)
	emitTask(t, v, "EMAIL_client_20250601120000", types.ActionDraftReply)

	drafter := func(context.Context, string, *vault.Note) (*vault.Note, error) {
		return nil, types.Transientf("model unavailable")
	}
	w := NewCloudWorker(v, claimer, drafter, elog, CloudConfig{Once: true})
	require.NoError(t, w.Run(context.Background()))

	queue, err := v.List(vault.StageNeedsAction)
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL_client_20250601120000.md"}, queue)
	pending, err := v.List(vault.StagePendingApproval)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCloudWorkerDryRun(t *testing.T) {
	v, elog := newTestVault(t)
	claimer := NewClaimer(v, types.PeerCloud, elog)
	emitTask(t, v, "EMAIL_client_20250601120000", types.ActionDraftReply)

	drafter := func(context.Context, string, *vault.Note) (*vault.Note, error) {
		t.Fatal("drafter must not run in dry-run mode")
		return nil, nil
	}
	w := NewCloudWorker(v, claimer, drafter, elog, CloudConfig{Once: true, DryRun: true})
	require.NoError(t, w.Run(context.Background()))

	queue, err := v.List(vault.StageNeedsAction)
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL_client_20250601120000.md"}, queue)
}
