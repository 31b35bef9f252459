package orchestrator

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrowhq/burrow/pkg/adapter"
	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/retry"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

type fakeAdapter struct {
	name    string
	channel types.Channel
	outcome types.Outcome
	err     error

	mu    sync.Mutex
	calls []adapter.Request
}

func (f *fakeAdapter) Name() string                                 { return f.name }
func (f *fakeAdapter) Channel() types.Channel                       { return f.channel }
func (f *fakeAdapter) Match(filename string, note *vault.Note) bool { return true }

func (f *fakeAdapter) Dispatch(_ context.Context, req adapter.Request) (types.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.outcome, f.err
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestVault(t *testing.T) (*vault.Vault, *eventlog.Logger) {
	t.Helper()
	v, err := vault.Init(t.TempDir())
	require.NoError(t, err)
	elog := eventlog.New(v.Dir(vault.StageLogs), "test")
	t.Cleanup(func() { elog.Close() })
	v.SetRecorder(elog)
	return v, elog
}

func newTestRouter(t *testing.T, v *vault.Vault, elog *eventlog.Logger, fake *fakeAdapter, limiters *retry.Limiters) *Router {
	t.Helper()
	reg := adapter.NewRegistry(fake)
	gate := NewGate(v.Dir(vault.StageLogs), 1000)
	return NewRouter(v, reg, gate, limiters, elog, nil, Config{Once: true})
}

func emitApproved(t *testing.T, v *vault.Vault, stem string, note *vault.Note) string {
	t.Helper()
	if note == nil {
		note = &vault.Note{
			Preamble: vault.Preamble{
				Type:    types.TypeEmail,
				Action:  types.ActionSendEmail,
				Status:  types.StatusApproved,
				Created: time.Now(),
			},
			Body: "body\n",
		}
	}
	name, err := v.Emit(vault.StageApproved, stem, note)
	require.NoError(t, err)
	return name
}

func TestGatePassesPlainNote(t *testing.T) {
	g := NewGate(t.TempDir(), 1000)
	rule, err := g.Check("EMAIL_x_20250601120000", &vault.Note{
		Preamble: vault.Preamble{Created: time.Now()},
	})
	assert.NoError(t, err)
	assert.Empty(t, rule)
}

func TestGateRejectsExpired(t *testing.T) {
	g := NewGate(t.TempDir(), 1000)
	g.now = func() time.Time { return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) }
	expires := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	rule, err := g.Check("EMAIL_x_20250601120000", &vault.Note{
		Preamble: vault.Preamble{Expires: &expires},
	})
	require.Error(t, err)
	assert.Equal(t, "expired", rule)
	assert.Equal(t, types.KindPolicy, types.KindOf(err))
}

func TestGateAmountThreshold(t *testing.T) {
	logs := t.TempDir()
	g := NewGate(logs, 1000)
	note := &vault.Note{
		Preamble: vault.Preamble{Extra: map[string]string{"amount": "2500"}},
	}

	rule, err := g.Check("INVOICE_big_20250601120000", note)
	require.Error(t, err)
	assert.Equal(t, "amount_threshold", rule)
	assert.Equal(t, types.KindPolicy, types.KindOf(err))

	// At or under the threshold no trail is needed.
	rule, err = g.Check("INVOICE_small_20250601120000", &vault.Note{
		Preamble: vault.Preamble{Extra: map[string]string{"amount": "1000"}},
	})
	assert.NoError(t, err)
	assert.Empty(t, rule)
}

func TestGateAcceptsApprovalTrail(t *testing.T) {
	logs := t.TempDir()
	elog := eventlog.New(logs, "test")
	elog.Record(types.LogRecord{
		EventType: "stage_moved",
		File:      "INVOICE_big_20250601120000",
		Result:    "ok",
		Detail:    map[string]any{"to": "Pending_Approval"},
	})
	require.NoError(t, elog.Close())

	g := NewGate(logs, 1000)
	rule, err := g.Check("INVOICE_big_20250601120000", &vault.Note{
		Preamble: vault.Preamble{Extra: map[string]string{"amount": "2500"}},
	})
	assert.NoError(t, err)
	assert.Empty(t, rule)
}

func TestRouterAcceptsExternallyWrittenApproval(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeSent}
	r := newTestRouter(t, v, elog, fake, nil)

	note := &vault.Note{
		Preamble: vault.Preamble{
			Type:    types.TypeOdooAction,
			Action:  types.ActionCreateInvoice,
			Created: time.Now(),
			Extra:   map[string]string{"amount": "2500"},
		},
		Body: "invoice for review\n",
	}
	content, err := note.Render()
	require.NoError(t, err)

	// The reasoning layer writes approval requests with plain file I/O, so
	// no audit record exists until the router sees the file.
	name := "APPROVAL_invoice_20250601120000.md"
	require.NoError(t, os.WriteFile(v.Path(vault.StagePendingApproval, name), content, 0o644))
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 0, fake.callCount())

	// The human approves with a plain rename.
	require.NoError(t, os.Rename(v.Path(vault.StagePendingApproval, name), v.Path(vault.StageApproved, name)))
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, fake.callCount(), "observed pending arrival satisfies the approval trail")
	done, err := v.List(vault.StageDone)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, done)
}

func TestRouterCompletesUnsettledDispatchWithoutResending(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeSent}
	r := newTestRouter(t, v, elog, fake, nil)

	name := emitApproved(t, v, "EMAIL_client_20250601120000", nil)
	// A previous run recorded the dispatch start and died before the move.
	require.NoError(t, elog.Append(types.LogRecord{
		EventType: "dispatch_started",
		File:      "EMAIL_client_20250601120000",
		Detail:    map[string]any{"adapter": "fake"},
	}))

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 0, fake.callCount(), "the side-effect must never run twice for one file")
	done, err := v.List(vault.StageDone)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, done)
}

func TestRouterDeferralSettlesDispatchLedger(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeDeferred, err: types.Transientf("relay down")}
	r := newTestRouter(t, v, elog, fake, nil)

	emitApproved(t, v, "EMAIL_client_20250601120000", nil)
	require.NoError(t, r.Run(context.Background()))

	open, err := eventlog.UnresolvedDispatch(v.Dir(vault.StageLogs), "EMAIL_client_20250601120000", 2, time.Now())
	require.NoError(t, err)
	assert.False(t, open, "a transient failure settles the ledger so the retry can send")
}

func TestRouterCompletesDispatch(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeSent}
	r := newTestRouter(t, v, elog, fake, nil)

	name := emitApproved(t, v, "EMAIL_client_20250601120000", nil)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, fake.callCount())
	approved, err := v.List(vault.StageApproved)
	require.NoError(t, err)
	assert.Empty(t, approved)
	done, err := v.List(vault.StageDone)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, done)

	require.NoError(t, elog.Close())
	recs, err := eventlog.Scan(v.Dir(vault.StageLogs), 2, time.Now(), func(rec types.LogRecord) bool {
		return rec.EventType == "task_completed"
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "EMAIL_client_20250601120000", recs[0].File)
}

func TestRouterRejectsPermanentFailure(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeRejected, err: types.Permanentf("bad credentials")}
	r := newTestRouter(t, v, elog, fake, nil)

	emitApproved(t, v, "EMAIL_client_20250601120000", nil)
	require.NoError(t, r.Run(context.Background()))

	rejected, err := v.List(vault.StageRejected)
	require.NoError(t, err)
	assert.Contains(t, rejected, "EMAIL_client_20250601120000.md")
	assert.Contains(t, rejected, "EMAIL_client_20250601120000_error.md")
}

func TestRouterDefersTransientAndCoolsDown(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeDeferred, err: types.Transientf("relay down")}
	r := newTestRouter(t, v, elog, fake, nil)

	name := emitApproved(t, v, "EMAIL_client_20250601120000", nil)
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, fake.callCount())

	approved, err := v.List(vault.StageApproved)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, approved, "deferred file stays in Approved")

	// Within the cooldown the file is not re-dispatched.
	r.sweep(context.Background())
	assert.Equal(t, 1, fake.callCount())
}

func TestRouterQuarantinesMalformedNote(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeSent}
	r := newTestRouter(t, v, elog, fake, nil)

	require.NoError(t, os.WriteFile(v.Path(vault.StageApproved, "EMAIL_bad_20250601120000.md"), []byte("no preamble"), 0o644))
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 0, fake.callCount())
	rejected, err := v.List(vault.StageRejected)
	require.NoError(t, err)
	assert.Contains(t, rejected, "EMAIL_bad_20250601120000.md")
}

func TestRouterRateLimitDefers(t *testing.T) {
	v, elog := newTestVault(t)
	clock := retry.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiters := retry.NewLimiters(clock, map[types.Channel]retry.RatePolicy{
		types.ChannelEmail: {Events: 1, Per: time.Hour},
	})
	require.True(t, limiters.Allow(types.ChannelEmail)) // drain the only token

	fake := &fakeAdapter{name: "fake", channel: types.ChannelEmail, outcome: types.OutcomeSent}
	r := newTestRouter(t, v, elog, fake, limiters)

	name := emitApproved(t, v, "EMAIL_client_20250601120000", nil)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 0, fake.callCount(), "rate-limited file must not reach the adapter")
	approved, err := v.List(vault.StageApproved)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, approved)

	require.NoError(t, elog.Close())
	recs, err := eventlog.Scan(v.Dir(vault.StageLogs), 2, time.Now(), func(rec types.LogRecord) bool {
		return rec.EventType == "task_deferred" && rec.Result == "rate_limited"
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRouterSkipsPayloadSiblings(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeSent}
	r := newTestRouter(t, v, elog, fake, nil)

	_, err := v.EmitRaw(vault.StageApproved, "FILE_report_20250601120000", ".pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 0, fake.callCount())
	approved, lerr := v.List(vault.StageApproved)
	require.NoError(t, lerr)
	assert.Len(t, approved, 1)
}

func TestRouterDryRunLeavesVaultUntouched(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeSent}
	reg := adapter.NewRegistry(fake)
	gate := NewGate(v.Dir(vault.StageLogs), 1000)
	r := NewRouter(v, reg, gate, nil, elog, nil, Config{Once: true, DryRun: true})

	name := emitApproved(t, v, "EMAIL_client_20250601120000", nil)
	require.NoError(t, r.Run(context.Background()))

	require.Equal(t, 1, fake.callCount())
	assert.True(t, fake.calls[0].DryRun)
	approved, err := v.List(vault.StageApproved)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, approved)
}

func TestSendNowIsIdempotent(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeSent}
	r := newTestRouter(t, v, elog, fake, nil)

	emitApproved(t, v, "EMAIL_client_20250601120000", nil)
	require.NoError(t, r.SendNow(context.Background(), "EMAIL_client_20250601120000"))
	assert.Equal(t, 1, fake.callCount())

	// Already in Done: a repeat invocation is a no-op, not a double-send.
	require.NoError(t, r.SendNow(context.Background(), "EMAIL_client_20250601120000"))
	assert.Equal(t, 1, fake.callCount())
}

func TestSendNowRefusesUnapprovedStages(t *testing.T) {
	v, elog := newTestVault(t)
	fake := &fakeAdapter{name: "fake", outcome: types.OutcomeSent}
	r := newTestRouter(t, v, elog, fake, nil)

	note := &vault.Note{Preamble: vault.Preamble{Type: types.TypeEmail, Created: time.Now()}, Body: "b"}
	_, err := v.Emit(vault.StageNeedsAction, "EMAIL_early_20250601120000", note)
	require.NoError(t, err)

	err = r.SendNow(context.Background(), "EMAIL_early_20250601120000")
	require.Error(t, err)
	assert.Equal(t, types.KindPolicy, types.KindOf(err))

	err = r.SendNow(context.Background(), "EMAIL_absent_20250601120000")
	require.Error(t, err)
	assert.Equal(t, types.KindIntegrity, types.KindOf(err))
}
