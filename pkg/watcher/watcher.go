package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/retry"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// Item is one new unit of work observed at an external source.
type Item struct {
	// ID is the source-native identifier used for deduplication.
	ID string
	// Stem names the action note to emit.
	Stem string
	// Note is the action note content.
	Note *vault.Note
	// Stage overrides the emission stage; default Needs_Action.
	Stage vault.Stage
}

// Source observes one external system and translates it into items.
// Poll errors are classified through pkg/types: transient failures are
// retried with backoff, permanent ones stop the watcher.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]Item, error)
	// Setup runs the interactive bootstrap (credential exchange, session
	// creation). Called once, out-of-band, via --setup.
	Setup(ctx context.Context) error
}

// Config tunes a Runner.
type Config struct {
	// Interval between polls.
	Interval time.Duration
	// DryRun logs notes instead of writing them.
	DryRun bool
	// Once runs a single poll cycle and returns.
	Once bool
	// EmitChannel optionally rate-limits emissions.
	EmitChannel types.Channel
	// Backoff applied around each poll.
	Backoff retry.BackoffPolicy
}

// Runner is the common watcher loop: poll at cadence, dedup against the
// seen-set, emit one action note per new item, recover per the error
// taxonomy.
type Runner struct {
	v        *vault.Vault
	src      Source
	seen     *storage.SeenStore
	elog     *eventlog.Logger
	clock    retry.Clock
	breakers *retry.Breakers
	limiters *retry.Limiters
	cfg      Config
	logger   zerolog.Logger
}

// NewRunner assembles a watcher around a source. The seen store may be nil
// for sources that are naturally idempotent (the inbox watcher keeps its
// own).
func NewRunner(v *vault.Vault, src Source, seen *storage.SeenStore, elog *eventlog.Logger, clock retry.Clock, limiters *retry.Limiters, cfg Config) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff = retry.DefaultBackoff
	}
	return &Runner{
		v:        v,
		src:      src,
		seen:     seen,
		elog:     elog,
		clock:    clock,
		breakers: retry.NewBreakers(retry.DefaultBreaker),
		limiters: limiters,
		cfg:      cfg,
		logger:   log.WithActor(src.Name()),
	}
}

// Run executes the watcher loop until the context is cancelled, a single
// cycle completes under Once, or a permanent source failure stops the
// watcher (after emitting an URGENT_ note).
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.cfg.Interval).Bool("dry_run", r.cfg.DryRun).Msg("watcher starting")

	for {
		if err := r.cycle(ctx); err != nil {
			if types.KindOf(err) == types.KindPermanent {
				r.raiseUrgent(err)
				return err
			}
			// Transient exhaustion: log and pick it up next cycle.
			r.logger.Warn().Err(err).Msg("poll cycle failed, will retry next interval")
			metrics.WatcherPollErrors.WithLabelValues(r.src.Name(), types.KindOf(err).String()).Inc()
		}
		if r.cfg.Once {
			return nil
		}
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("watcher stopped")
			return nil
		case <-time.After(r.cfg.Interval):
		}
	}
}

// cycle performs one poll-dedup-emit pass.
func (r *Runner) cycle(ctx context.Context) error {
	var items []Item
	err := retry.Do(ctx, r.clock, r.cfg.Backoff, func() error {
		return r.breakers.Do(r.src.Name(), func() error {
			polled, err := r.src.Poll(ctx)
			if err != nil {
				return err
			}
			items = polled
			return nil
		})
	})
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := r.emit(ctx, item); err != nil {
			r.logger.Error().Err(err).Str("id", item.ID).Msg("failed to emit action note")
		}
	}
	return nil
}

func (r *Runner) emit(ctx context.Context, item Item) error {
	if r.seen != nil {
		seen, err := r.seen.Seen(item.ID)
		if err != nil {
			return fmt.Errorf("seen lookup: %w", err)
		}
		if seen {
			return nil
		}
	}

	if r.cfg.DryRun {
		r.logger.Info().Str("stem", item.Stem).Str("id", item.ID).Msg("[dry run] would emit action note")
		return nil
	}

	if r.cfg.EmitChannel != "" && r.limiters != nil {
		if err := r.limiters.Wait(ctx, r.cfg.EmitChannel); err != nil {
			return err
		}
	}

	stage := item.Stage
	if stage == "" {
		stage = vault.StageNeedsAction
	}
	filename, err := r.v.Emit(stage, item.Stem, item.Note)
	if err != nil {
		return err
	}
	if r.seen != nil {
		if err := r.seen.MarkSeen(item.ID); err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
	}

	metrics.NotesEmitted.WithLabelValues(r.src.Name()).Inc()
	r.elog.Record(types.LogRecord{
		EventType: "action_file_created",
		File:      vault.StemOf(filename),
		Result:    "ok",
		Detail:    map[string]any{"source_id": item.ID, "stage": string(stage)},
	})
	r.logger.Info().Str("file", filename).Msg("action note created")
	return nil
}

// raiseUrgent writes an URGENT_ note so the human sees the watcher died.
func (r *Runner) raiseUrgent(cause error) {
	stem := vault.NewStem(vault.KindUrgent, r.src.Name(), r.clock.Now())
	note := &vault.Note{
		Preamble: vault.Preamble{
			Type:     types.TypeSecurityReview,
			Priority: types.PriorityP0,
			Status:   types.StatusPending,
			Created:  r.clock.Now(),
			Extra:    map[string]string{"watcher": r.src.Name()},
		},
		Body: fmt.Sprintf("# Watcher stopped: %s\n\nPermanent source failure, manual intervention required.\n\n    %v\n", r.src.Name(), cause),
	}
	if r.cfg.DryRun {
		r.logger.Error().Err(cause).Msg("[dry run] would raise URGENT note and stop")
		return
	}
	if _, err := r.v.Emit(vault.StageNeedsAction, stem, note); err != nil {
		r.logger.Error().Err(err).Msg("failed to raise URGENT note")
	}
	r.elog.Record(types.LogRecord{
		EventType: "watcher_stopped",
		Result:    "permanent_error",
		Detail:    map[string]any{"watcher": r.src.Name(), "error": cause.Error()},
	})
}

// Setup forwards to the source's interactive bootstrap.
func (r *Runner) Setup(ctx context.Context) error {
	return r.src.Setup(ctx)
}
