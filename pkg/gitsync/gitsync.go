package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// ignoreEntries must never leave the machine: credentials, sidecar state,
// session caches and the locally-derived dashboard.
var ignoreEntries = []string{
	".env",
	".burrow/",
	"Dashboard.md",
	"sessions/",
}

// Config tunes the sync bridge.
type Config struct {
	Branch   string
	Interval time.Duration
	Timeout  time.Duration
	Once     bool
	DryRun   bool
}

// Syncer moves the vault through its git remote: pull, resolve conflicts
// by directory policy, commit, push. git itself runs as a subprocess; the
// vault root must already be a clone with a configured remote.
type Syncer struct {
	v      *vault.Vault
	elog   *eventlog.Logger
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// New builds a syncer.
func New(v *vault.Vault, elog *eventlog.Logger, cfg Config) *Syncer {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Syncer{
		v:      v,
		elog:   elog,
		cfg:    cfg,
		now:    time.Now,
		logger: log.WithActor("sync-bridge"),
	}
}

// Run syncs at the configured cadence until the context is cancelled.
// Cycle failures are transient by nature (the remote comes back) and never
// stop the loop.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info().Str("branch", s.cfg.Branch).Dur("interval", s.cfg.Interval).Msg("sync bridge starting")
	for {
		if err := s.Cycle(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("sync cycle failed")
		}
		if s.cfg.Once {
			return nil
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sync bridge stopped")
			return nil
		case <-time.After(s.cfg.Interval):
		}
	}
}

// Cycle performs one pull-resolve-commit-push pass and records the
// outcome in Signals/SYNC_STATUS.md either way.
func (s *Syncer) Cycle(ctx context.Context) error {
	start := s.now()
	conflicts, err := s.sync(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.SyncCycles.WithLabelValues(result).Inc()
	s.writeStatus(start, result, conflicts, err)
	s.elog.Record(types.LogRecord{
		EventType: "vault_synced",
		Result:    result,
		Detail:    map[string]any{"conflicts": conflicts, "duration_ms": s.now().Sub(start).Milliseconds()},
	})
	return err
}

func (s *Syncer) sync(ctx context.Context) (conflicts int, err error) {
	if err := s.ensureIgnore(); err != nil {
		return 0, err
	}
	if s.cfg.DryRun {
		out, derr := s.git(ctx, "status", "--porcelain")
		s.logger.Info().Int("dirty", countLines(out)).Msg("[dry run] would sync vault")
		return 0, derr
	}

	// Stage local state first so the merge sees it.
	if _, err := s.git(ctx, "add", "-A"); err != nil {
		return 0, err
	}
	if dirty, err := s.dirty(ctx); err != nil {
		return 0, err
	} else if dirty {
		if _, err := s.git(ctx, "commit", "-m", fmt.Sprintf("vault sync %s", s.now().Format(time.RFC3339))); err != nil {
			return 0, err
		}
	}

	if _, err := s.git(ctx, "pull", "--no-rebase", "origin", s.cfg.Branch); err != nil {
		n, rerr := s.resolveConflicts(ctx)
		conflicts = n
		if rerr != nil {
			return conflicts, rerr
		}
		if n == 0 {
			// Pull failed for a non-conflict reason (network, auth).
			return 0, err
		}
		if _, err := s.git(ctx, "commit", "--no-edit"); err != nil {
			return conflicts, err
		}
	}

	if _, err := s.git(ctx, "push", "origin", s.cfg.Branch); err != nil {
		return conflicts, err
	}
	return conflicts, nil
}

// dirty reports whether the work tree has staged changes to commit.
func (s *Syncer) dirty(ctx context.Context) (bool, error) {
	out, err := s.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// ensureIgnore keeps the credential and sidecar exclusions present in the
// vault's .gitignore.
func (s *Syncer) ensureIgnore() error {
	path := filepath.Join(s.v.Root(), ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read .gitignore: %w", err)
	}

	var missing []string
	for _, entry := range ignoreEntries {
		if !containsLine(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteByte('\n')
	}
	for _, entry := range missing {
		buf.WriteString(entry + "\n")
	}
	return vault.WriteFileAtomic(path, buf.Bytes())
}

// git runs one git subcommand in the vault root.
func (s *Syncer) git(ctx context.Context, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = s.v.Root()
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), types.Transientf("git %s: %v: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// writeStatus rewrites the rolling Signals/SYNC_STATUS.md signal.
func (s *Syncer) writeStatus(start time.Time, result string, conflicts int, cause error) {
	var b strings.Builder
	fmt.Fprintf(&b, "---\ntype: %s\nstatus: %s\nsynced: %s\n---\n\n", types.TypeSyncStatus, result, start.Format(time.RFC3339))
	fmt.Fprintf(&b, "# Sync status\n\n- Result: %s\n- Conflicts resolved: %d\n", result, conflicts)
	if cause != nil {
		fmt.Fprintf(&b, "- Error: %v\n", cause)
	}
	path := s.v.Path(vault.StageSignals, "SYNC_STATUS.md")
	if err := vault.WriteFileAtomic(path, []byte(b.String())); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write sync status signal")
	}
}

func containsLine(content []byte, line string) bool {
	for _, l := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

func countLines(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
