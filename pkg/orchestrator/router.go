package orchestrator

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/adapter"
	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/events"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/retry"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// Config tunes the router loop.
type Config struct {
	// DryRun routes and logs without side-effects or stage moves.
	DryRun bool
	// Once performs a single sweep and returns.
	Once bool
	// PollInterval is the scan fallback cadence, capped at 5 s.
	PollInterval time.Duration
	// AdapterTimeout bounds one dispatch call.
	AdapterTimeout time.Duration
	// ShutdownGrace bounds the wait for in-flight dispatches on stop.
	ShutdownGrace time.Duration
	// DeferBase is the first retry cooldown after a deferral; it doubles
	// per consecutive deferral up to deferCap.
	DeferBase time.Duration
}

const deferCap = time.Hour

// Router consumes Approved/ and routes each file to its adapter. Files are
// dispatched in filename order per adapter, adapters in parallel; the
// terminal stage move happens only after the adapter reports, so the
// side-effect commits before the bookkeeping.
type Router struct {
	v        *vault.Vault
	reg      *adapter.Registry
	gate     *Gate
	limiters *retry.Limiters
	elog     *eventlog.Logger
	broker   *events.Broker
	cfg      Config
	logger   zerolog.Logger

	mu       sync.Mutex
	cooldown map[string]time.Time
	attempts map[string]int
	observed map[string]bool
}

// ledgerWindowDays bounds the dispatch-ledger lookback. Dispatches settle
// within seconds; two days covers a midnight rollover.
const ledgerWindowDays = 2

// NewRouter assembles the dispatch loop. broker may be nil.
func NewRouter(v *vault.Vault, reg *adapter.Registry, gate *Gate, limiters *retry.Limiters, elog *eventlog.Logger, broker *events.Broker, cfg Config) *Router {
	if cfg.PollInterval <= 0 || cfg.PollInterval > 5*time.Second {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.DeferBase <= 0 {
		cfg.DeferBase = 5 * time.Minute
	}
	return &Router{
		v:        v,
		reg:      reg,
		gate:     gate,
		limiters: limiters,
		elog:     elog,
		broker:   broker,
		cfg:      cfg,
		logger:   log.WithActor("orchestrator"),
		cooldown: make(map[string]time.Time),
		attempts: make(map[string]int),
		observed: make(map[string]bool),
	}
}

// Run sweeps Approved/ until the context is cancelled. Approvals arrive via
// filesystem notifications where available; the periodic rescan covers
// deferral cooldowns and dropped notifications.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info().
		Strs("adapters", r.reg.Names()).
		Bool("dry_run", r.cfg.DryRun).
		Msg("orchestrator starting")

	r.sweep(ctx)
	if r.cfg.Once {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err == nil {
		defer fw.Close()
		if werr := fw.Add(r.v.Dir(vault.StageApproved)); werr != nil {
			r.logger.Warn().Err(werr).Msg("approval notifications unavailable, polling only")
			fw.Close()
			fw = nil
		}
	} else {
		r.logger.Warn().Err(err).Msg("fsnotify unavailable, polling only")
		fw = nil
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if fw != nil {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("orchestrator stopped")
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					fw = nil
					continue
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
					r.sweep(ctx)
				}
			case nerr, ok := <-fw.Errors:
				if ok && nerr != nil {
					r.logger.Warn().Err(nerr).Msg("approval notification error")
				}
			case <-ticker.C:
				r.sweep(ctx)
			}
			continue
		}
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("orchestrator stopped")
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep routes everything currently dispatchable. One goroutine per
// adapter keeps slow channels from starving fast ones while preserving
// filename order within each.
func (r *Router) sweep(ctx context.Context) {
	r.observePending()

	names, err := r.v.List(vault.StageApproved)
	if err != nil {
		r.logger.Error().Err(err).Msg("approved scan failed")
		return
	}

	queues := make(map[string][]string)
	adapters := make(map[string]adapter.Adapter)
	for _, name := range names {
		if !strings.EqualFold(filepath.Ext(name), ".md") {
			continue // payload siblings ride along with their note
		}
		if !r.eligible(vault.StemOf(name)) {
			continue
		}
		note, nerr := r.v.ReadNote(vault.StageApproved, name)
		if nerr != nil {
			r.quarantine(name, nerr)
			continue
		}
		a := r.reg.Select(name, note)
		queues[a.Name()] = append(queues[a.Name()], name)
		adapters[a.Name()] = a
	}
	if len(queues) == 0 {
		return
	}

	var wg sync.WaitGroup
	for name, queue := range queues {
		a := adapters[name]
		files := queue
		sort.Strings(files)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, f := range files {
				if ctx.Err() != nil {
					return
				}
				r.dispatchOne(ctx, a, f)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctxDoneThenGrace(ctx, r.cfg.ShutdownGrace):
		r.logger.Warn().Msg("shutdown grace elapsed with dispatches in flight")
	}
}

// observePending journals notes sitting in Pending_Approval/ that have no
// trail yet. The reasoning layer writes approval requests there with plain
// file I/O and the human approves with a plain rename, so the only way
// those files enter the audit log is by being seen; the policy gate later
// reads this trail to accept over-threshold actions.
func (r *Router) observePending() {
	names, err := r.v.List(vault.StagePendingApproval)
	if err != nil {
		r.logger.Warn().Err(err).Msg("pending approval scan failed")
		return
	}
	for _, name := range names {
		if !strings.EqualFold(filepath.Ext(name), ".md") {
			continue
		}
		stem := vault.StemOf(name)
		r.mu.Lock()
		seen := r.observed[stem]
		r.mu.Unlock()
		if seen {
			continue
		}
		known, herr := eventlog.HasPriorApproval(r.elog.Dir(), stem, approvalWindowDays, time.Now())
		if herr != nil {
			r.logger.Warn().Err(herr).Str("file", name).Msg("approval trail scan failed")
			continue
		}
		if !known {
			if aerr := r.elog.Append(types.LogRecord{
				EventType: "stage_observed",
				File:      stem,
				Result:    "ok",
				Detail:    map[string]any{"stage": string(vault.StagePendingApproval)},
			}); aerr != nil {
				r.logger.Warn().Err(aerr).Str("file", name).Msg("journal pending arrival failed")
				continue
			}
		}
		r.mu.Lock()
		r.observed[stem] = true
		r.mu.Unlock()
	}
}

// ctxDoneThenGrace fires grace after the context is cancelled, never before.
func ctxDoneThenGrace(ctx context.Context, grace time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	go func() {
		<-ctx.Done()
		time.Sleep(grace)
		ch <- time.Now()
	}()
	return ch
}

// dispatchOne runs the full gate-limit-dispatch-move sequence for a single
// approved file.
func (r *Router) dispatchOne(ctx context.Context, a adapter.Adapter, filename string) {
	stem := vault.StemOf(filename)
	logger := r.logger.With().Str("file", filename).Str("adapter", a.Name()).Logger()

	// Re-read inside the dispatch path: the sweep snapshot may be stale.
	note, err := r.v.ReadNote(vault.StageApproved, filename)
	if err != nil {
		if types.KindOf(err) == types.KindIntegrity {
			r.quarantine(filename, err)
		}
		return
	}

	if rule, gerr := r.gate.Check(stem, note); gerr != nil {
		if rule == "" {
			// Transient gate failure (log scan): try again next sweep.
			logger.Warn().Err(gerr).Msg("policy gate unavailable, deferring")
			r.defer_(stem)
			return
		}
		metrics.PolicyRejections.WithLabelValues(rule).Inc()
		if rule == "expired" {
			metrics.ApprovalsExpired.Inc()
		}
		logger.Warn().Err(gerr).Str("rule", rule).Msg("policy gate rejected file")
		r.reject(filename, gerr)
		return
	}

	if ch := a.Channel(); ch != "" && r.limiters != nil && !r.limiters.Allow(ch) {
		metrics.RateLimited.WithLabelValues(string(ch)).Inc()
		logger.Info().Str("channel", string(ch)).Msg("rate limit reached, deferring")
		r.defer_(stem)
		r.elog.Record(types.LogRecord{
			EventType: "task_deferred",
			File:      stem,
			Result:    "rate_limited",
			Detail:    map[string]any{"channel": string(ch)},
		})
		return
	}

	if !r.cfg.DryRun {
		open, lerr := eventlog.UnresolvedDispatch(r.elog.Dir(), stem, ledgerWindowDays, time.Now())
		if lerr != nil {
			logger.Warn().Err(lerr).Msg("dispatch ledger unavailable, deferring")
			r.defer_(stem)
			return
		}
		if open {
			// A previous run wrote the started record and never settled it:
			// the side-effect may already have happened, so finish the
			// bookkeeping without performing it again.
			logger.Warn().Msg("unsettled dispatch found, completing without re-sending")
			r.complete(filename, note, a.Name(), types.OutcomeSent)
			return
		}
		if aerr := r.elog.Append(types.LogRecord{
			EventType: "dispatch_started",
			File:      stem,
			Action:    note.Preamble.Action,
			Result:    "ok",
			Detail:    map[string]any{"adapter": a.Name()},
		}); aerr != nil {
			logger.Warn().Err(aerr).Msg("dispatch ledger append failed, deferring")
			r.defer_(stem)
			return
		}
	}

	// Detach from loop cancellation: an in-flight side-effect finishes or
	// times out, it is never torn down halfway.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.AdapterTimeout)
	defer cancel()

	start := time.Now()
	outcome, derr := a.Dispatch(dctx, adapter.Request{
		Stem:     stem,
		Filename: filename,
		Note:     note,
		DryRun:   r.cfg.DryRun,
	})
	metrics.DispatchDuration.WithLabelValues(a.Name()).Observe(time.Since(start).Seconds())
	metrics.Dispatches.WithLabelValues(a.Name(), string(outcome)).Inc()

	switch outcome {
	case types.OutcomeSent, types.OutcomeDrafted:
		r.complete(filename, note, a.Name(), outcome)
	case types.OutcomeDeferred:
		logger.Warn().Err(derr).Msg("dispatch deferred")
		r.settleLedger(stem, "deferred")
		r.defer_(stem)
		r.elog.Record(types.LogRecord{
			EventType: "task_deferred",
			File:      stem,
			Action:    note.Preamble.Action,
			Result:    "transient_error",
			Detail:    map[string]any{"error": errString(derr)},
		})
		r.publish(events.EventNoteDeferred, stem, nil)
	default:
		logger.Warn().Err(derr).Msg("dispatch rejected")
		r.settleLedger(stem, "rejected")
		r.reject(filename, derr)
	}
}

// settleLedger closes the stem's open dispatch-ledger entry. A transient
// or rejected outcome means the side-effect did not take, so the file must
// stay eligible for a future attempt.
func (r *Router) settleLedger(stem, resolution string) {
	if r.cfg.DryRun {
		return
	}
	if err := r.elog.Append(types.LogRecord{
		EventType: "dispatch_settled",
		File:      stem,
		Result:    resolution,
	}); err != nil {
		r.logger.Warn().Err(err).Str("file", stem).Msg("dispatch ledger settle failed")
	}
}

func (r *Router) complete(filename string, note *vault.Note, adapterName string, outcome types.Outcome) {
	stem := vault.StemOf(filename)
	if r.cfg.DryRun {
		r.logger.Info().Str("file", filename).Msg("[dry run] would move to Done")
		return
	}
	if err := r.v.Move(filename, vault.StageApproved, vault.StageDone); err != nil {
		// The side-effect happened; leaving the file visible beats losing it.
		r.logger.Error().Err(err).Str("file", filename).Msg("completed dispatch but move to Done failed")
		return
	}
	r.clear(stem)
	r.elog.Record(types.LogRecord{
		EventType: "task_completed",
		File:      stem,
		Action:    note.Preamble.Action,
		Result:    string(outcome),
		Detail:    map[string]any{"adapter": adapterName},
	})
	r.publish(events.EventNoteDispatched, stem, map[string]string{"adapter": adapterName, "outcome": string(outcome)})
	r.logger.Info().Str("file", filename).Str("outcome", string(outcome)).Msg("task completed")
}

func (r *Router) reject(filename string, cause error) {
	if r.cfg.DryRun {
		r.logger.Info().Str("file", filename).Err(cause).Msg("[dry run] would quarantine")
		return
	}
	r.quarantine(filename, cause)
}

func (r *Router) quarantine(filename string, cause error) {
	stem := vault.StemOf(filename)
	if err := r.v.Quarantine(filename, vault.StageApproved, cause); err != nil {
		r.logger.Error().Err(err).Str("file", filename).Msg("quarantine failed")
		return
	}
	r.clear(stem)
	r.publish(events.EventNoteRejected, stem, map[string]string{"reason": errString(cause)})
}

// eligible reports whether the stem's deferral cooldown has elapsed.
func (r *Router) eligible(stem string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := r.cooldown[stem]
	return !ok || !time.Now().Before(next)
}

// defer_ backs the stem off, doubling the cooldown per consecutive deferral.
func (r *Router) defer_(stem string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[stem]++
	wait := r.cfg.DeferBase << (r.attempts[stem] - 1)
	if wait > deferCap || wait <= 0 {
		wait = deferCap
	}
	r.cooldown[stem] = time.Now().Add(wait)
}

func (r *Router) clear(stem string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cooldown, stem)
	delete(r.attempts, stem)
}

func (r *Router) publish(t events.EventType, stem string, meta map[string]string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{Type: t, Stem: stem, Metadata: meta})
}

// SendNow dispatches one approved stem immediately, bypassing the sweep
// cadence and any deferral cooldown. A stem already in Done/ is a no-op so
// repeated invocations cannot double-send.
func (r *Router) SendNow(ctx context.Context, stem string) error {
	stage, filename, ok := r.v.FindStem(stem)
	if !ok {
		return types.Integrityf("no file with stem %s in any stage", stem)
	}
	switch stage {
	case vault.StageDone:
		r.logger.Info().Str("stem", stem).Msg("already dispatched, nothing to do")
		return nil
	case vault.StageApproved:
	default:
		return types.Policyf("stem %s is in %s, not Approved", stem, stage)
	}

	r.clear(stem)
	note, err := r.v.ReadNote(vault.StageApproved, filename)
	if err != nil {
		return err
	}
	r.dispatchOne(ctx, r.reg.Select(filename, note), filename)
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
