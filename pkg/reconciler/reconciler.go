package reconciler

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/claim"
	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// expirableStages hold notes that can carry an expires field and must not
// outlive it.
var expirableStages = []vault.Stage{vault.StagePendingApproval, vault.StageApproved}

// Config tunes the sweeper.
type Config struct {
	Interval time.Duration
	ClaimTTL time.Duration
	DryRun   bool
}

// Sweeper is the periodic vault reconciliation loop: it rejects notes
// whose approval window has passed and returns abandoned claims to the
// queue. Both peers run one; every sweep action is an ordinary audited
// stage move, so concurrent sweeps are safe.
type Sweeper struct {
	v       *vault.Vault
	claimer *claim.Claimer
	elog    *eventlog.Logger
	cfg     Config
	now     func() time.Time
	logger  zerolog.Logger
}

// New builds a sweeper. claimer may be nil to skip the stale-claim pass.
func New(v *vault.Vault, claimer *claim.Claimer, elog *eventlog.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Minute
	}
	return &Sweeper{
		v:       v,
		claimer: claimer,
		elog:    elog,
		cfg:     cfg,
		now:     time.Now,
		logger:  log.WithActor("sweeper"),
	}
}

// Run sweeps at the configured cadence until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("sweeper starting")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep performs one reconciliation pass.
func (s *Sweeper) Sweep() {
	for _, stage := range expirableStages {
		s.sweepExpired(stage)
	}
	if s.claimer != nil {
		if _, err := s.claimer.SweepStale(s.cfg.ClaimTTL); err != nil {
			s.logger.Warn().Err(err).Msg("stale claim sweep failed")
		}
	}
}

func (s *Sweeper) sweepExpired(stage vault.Stage) {
	names, err := s.v.List(stage)
	if err != nil {
		s.logger.Error().Err(err).Str("stage", string(stage)).Msg("sweep scan failed")
		return
	}
	now := s.now()

	for _, name := range names {
		if !strings.EqualFold(filepath.Ext(name), ".md") {
			continue
		}
		note, rerr := s.v.ReadNote(stage, name)
		if rerr != nil {
			continue // the router quarantines unreadable notes
		}
		if !note.Expired(now) {
			continue
		}
		if s.cfg.DryRun {
			s.logger.Info().Str("file", name).Msg("[dry run] would expire")
			continue
		}

		cause := types.Policyf("approval window expired at %s", note.Preamble.Expires.Format(time.RFC3339))
		if qerr := s.v.Quarantine(name, stage, cause); qerr != nil {
			s.logger.Warn().Err(qerr).Str("file", name).Msg("expiry quarantine failed")
			continue
		}
		metrics.ApprovalsExpired.Inc()
		s.elog.Record(types.LogRecord{
			EventType: "approval_expired",
			File:      vault.StemOf(name),
			Action:    note.Preamble.Action,
			Result:    "rejected",
			Detail:    map[string]any{"stage": string(stage)},
		})
		s.logger.Info().Str("file", name).Str("stage", string(stage)).Msg("expired note rejected")
	}
}
