package gitsync

import (
	"context"
	"strings"

	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// conflictPolicy names a resolution side for one vault directory.
type conflictPolicy string

const (
	// policyTheirs: inbound queues, the remote writer is authoritative.
	policyTheirs conflictPolicy = "theirs"
	// policyOurs: terminal stages and logs, local history is authoritative.
	policyOurs conflictPolicy = "ours"
	// policyLaterStatus: review stages, whichever side carries the later
	// lifecycle status wins.
	policyLaterStatus conflictPolicy = "later_status"
)

// policyFor maps a conflicted path to its resolution policy by top-level
// vault directory. Unmapped paths keep ours: losing a local edit to the
// remote silently is the worse failure.
func policyFor(path string) conflictPolicy {
	top := path
	if i := strings.IndexByte(path, '/'); i >= 0 {
		top = path[:i]
	}
	switch vault.Stage(top) {
	case vault.StageNeedsAction, vault.StageSignals:
		return policyTheirs
	case vault.StageDone, vault.StageRejected, vault.StageLogs:
		return policyOurs
	case vault.StagePendingApproval, vault.StageApproved:
		return policyLaterStatus
	}
	return policyOurs
}

// resolveConflicts resolves every unmerged path left by a failed pull and
// stages the result. Returns how many paths were resolved.
func (s *Syncer) resolveConflicts(ctx context.Context) (int, error) {
	out, err := s.git(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return 0, err
	}
	paths := strings.Fields(strings.TrimSpace(out))
	if len(paths) == 0 {
		return 0, nil
	}

	for _, path := range paths {
		policy := policyFor(path)
		if err := s.resolveOne(ctx, path, policy); err != nil {
			return 0, err
		}
		metrics.SyncConflicts.WithLabelValues(string(policy)).Inc()
		s.logger.Info().Str("path", path).Str("policy", string(policy)).Msg("sync conflict resolved")
	}
	return len(paths), nil
}

func (s *Syncer) resolveOne(ctx context.Context, path string, policy conflictPolicy) error {
	side := "--ours"
	switch policy {
	case policyTheirs:
		side = "--theirs"
	case policyLaterStatus:
		side = s.laterStatusSide(ctx, path)
	}
	if _, err := s.git(ctx, "checkout", side, "--", path); err != nil {
		return err
	}
	_, err := s.git(ctx, "add", "--", path)
	return err
}

// laterStatusSide compares the note status on both sides of the merge and
// picks the side further along the lifecycle. Ties and unparseable sides
// keep ours.
func (s *Syncer) laterStatusSide(ctx context.Context, path string) string {
	ours := s.stageStatus(ctx, ":2:"+path)
	theirs := s.stageStatus(ctx, ":3:"+path)
	if theirs.Later(ours) {
		return "--theirs"
	}
	return "--ours"
}

func (s *Syncer) stageStatus(ctx context.Context, ref string) types.Status {
	out, err := s.git(ctx, "show", ref)
	if err != nil {
		return ""
	}
	note, err := vault.ParseNote([]byte(out))
	if err != nil {
		return ""
	}
	return note.Preamble.Status
}
