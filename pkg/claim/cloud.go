package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// Drafter produces a reviewable draft for a claimed task. The reasoning
// layer sits behind it; tests inject a fixture.
type Drafter func(ctx context.Context, stem string, note *vault.Note) (*vault.Note, error)

// CloudConfig tunes the cloud worker loop.
type CloudConfig struct {
	Interval time.Duration
	ClaimTTL time.Duration
	DryRun   bool
	Once     bool
}

// CloudWorker is the cloud peer's loop: claim drafting work, produce
// CLOUD_DRAFT_ files into Pending_Approval/ and report via Signals/. It
// never performs external side-effects and never touches the dashboard;
// the local peer owns both.
type CloudWorker struct {
	v       *vault.Vault
	claimer *Claimer
	drafter Drafter
	elog    *eventlog.Logger
	cfg     CloudConfig
	now     func() time.Time
	logger  zerolog.Logger
}

// NewCloudWorker assembles the cloud peer.
func NewCloudWorker(v *vault.Vault, claimer *Claimer, drafter Drafter, elog *eventlog.Logger, cfg CloudConfig) *CloudWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Minute
	}
	return &CloudWorker{
		v:       v,
		claimer: claimer,
		drafter: drafter,
		elog:    elog,
		cfg:     cfg,
		now:     time.Now,
		logger:  log.WithActor("cloud-worker"),
	}
}

// Run drives the claim-draft cycle until the context is cancelled.
func (w *CloudWorker) Run(ctx context.Context) error {
	w.logger.Info().Dur("interval", w.cfg.Interval).Msg("cloud worker starting")
	for {
		drafted := w.cycle(ctx)
		if drafted > 0 {
			w.emitStatus(drafted)
		}
		if _, err := w.claimer.SweepStale(w.cfg.ClaimTTL); err != nil {
			w.logger.Warn().Err(err).Msg("stale claim sweep failed")
		}
		if w.cfg.Once {
			return nil
		}
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("cloud worker stopped")
			return nil
		case <-time.After(w.cfg.Interval):
		}
	}
}

// cycle drains the claimable queue, one draft per claimed file. Files
// released back to the queue mid-cycle end the drain instead of being
// re-claimed in a tight loop; the next interval retries them.
func (w *CloudWorker) cycle(ctx context.Context) int {
	drafted := 0
	released := map[string]bool{}
	for {
		if ctx.Err() != nil {
			return drafted
		}
		filename, note, ok, err := w.claimer.ClaimNext()
		if err != nil {
			w.logger.Error().Err(err).Msg("claim pass failed")
			return drafted
		}
		if !ok {
			return drafted
		}
		if released[filename] {
			if rerr := w.claimer.Release(filename); rerr != nil {
				w.logger.Error().Err(rerr).Str("file", filename).Msg("release failed")
			}
			return drafted
		}
		if w.cfg.DryRun {
			w.logger.Info().Str("file", filename).Msg("[dry run] would draft")
			released[filename] = true
			if rerr := w.claimer.Release(filename); rerr != nil {
				w.logger.Error().Err(rerr).Str("file", filename).Msg("release failed")
			}
			continue
		}
		if err := w.draft(ctx, filename, note); err != nil {
			w.logger.Error().Err(err).Str("file", filename).Msg("drafting failed, releasing claim")
			released[filename] = true
			if rerr := w.claimer.Release(filename); rerr != nil {
				w.logger.Error().Err(rerr).Str("file", filename).Msg("release failed")
			}
			continue
		}
		drafted++
	}
}

// draft produces the CLOUD_DRAFT_ file and completes the claimed task.
func (w *CloudWorker) draft(ctx context.Context, filename string, note *vault.Note) error {
	stem := vault.StemOf(filename)
	draft, err := w.drafter(ctx, stem, note)
	if err != nil {
		return err
	}
	draft.Preamble.Status = types.StatusPending
	if draft.Preamble.Created.IsZero() {
		draft.Preamble.Created = w.now()
	}
	if draft.Preamble.Extra == nil {
		draft.Preamble.Extra = map[string]string{}
	}
	draft.Preamble.Extra["source_task"] = stem
	draft.Preamble.Extra["drafted_by"] = string(types.PeerCloud)

	draftName, err := w.v.Emit(vault.StagePendingApproval, vault.KindCloudDraft+"_"+stem, draft)
	if err != nil {
		return err
	}
	if err := w.claimer.Complete(filename); err != nil {
		return err
	}

	w.elog.Record(types.LogRecord{
		EventType: "cloud_drafted",
		File:      stem,
		Action:    note.Preamble.Action,
		Result:    "ok",
		Detail:    map[string]any{"draft": draftName},
	})
	w.logger.Info().Str("draft", draftName).Str("source", filename).Msg("draft ready for review")
	return nil
}

// emitStatus reports cycle progress into Signals/ for the local peer's
// dashboard merge.
func (w *CloudWorker) emitStatus(drafted int) {
	now := w.now()
	note := &vault.Note{
		Preamble: vault.Preamble{
			Type:    types.TypeCloudStatus,
			Status:  types.StatusDone,
			Created: now,
			Extra:   map[string]string{"drafted": fmt.Sprintf("%d", drafted)},
		},
		Body: fmt.Sprintf("# Cloud status\n\nDrafted %d task(s) at %s.\n", drafted, now.Format(time.RFC3339)),
	}
	stem := vault.NewStem("CLOUD_STATUS", "cycle", now)
	if _, err := w.v.Emit(vault.StageSignals, stem, note); err != nil {
		w.logger.Warn().Err(err).Msg("failed to emit cloud status signal")
	}
}
