package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/burrowhq/burrow/pkg/types"
)

// Stage is a named sub-directory of the vault functioning as a queue.
type Stage string

const (
	StageInbox           Stage = "Inbox"
	StageNeedsAction     Stage = "Needs_Action"
	StageInProgress      Stage = "In_Progress"
	StagePlans           Stage = "Plans"
	StagePendingApproval Stage = "Pending_Approval"
	StageApproved        Stage = "Approved"
	StageRejected        Stage = "Rejected"
	StageDone            Stage = "Done"
	StageLogs            Stage = "Logs"
	StageBriefings       Stage = "Briefings"
	StageAccounting      Stage = "Accounting"
	StageSignals         Stage = "Signals"
)

// Singleton files at the vault root. They are rewritten in place (via
// atomic rename), unlike stage files which only ever move.
const (
	FileDashboard = "Dashboard.md"
	FileHandbook  = "Company_Handbook.md"
	FileGoals     = "Business_Goals.md"
)

// SidecarDir holds per-watcher seen-sets and other state that must never
// be synced with the vault remote.
const SidecarDir = ".burrow"

// Stages lists every queue directory, In_Progress peer zones included.
var Stages = []Stage{
	StageInbox,
	StageNeedsAction,
	StageInProgress,
	StageInProgress.Peer(types.PeerLocal),
	StageInProgress.Peer(types.PeerCloud),
	StagePlans,
	StagePendingApproval,
	StageApproved,
	StageRejected,
	StageDone,
	StageLogs,
	StageBriefings,
	StageAccounting,
	StageSignals,
}

// Terminal reports whether the stage is absorbing: nothing ever leaves it.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageRejected
}

// Peer returns the In_Progress work zone of a peer.
func (s Stage) Peer(peer types.Peer) Stage {
	return Stage(filepath.Join(string(s), string(peer)))
}

// Vault is a rooted directory tree holding all orchestrator state.
type Vault struct {
	root string
	rec  Recorder
}

// Recorder receives one audit record per stage transition. The event log
// implements it; tests substitute an in-memory collector.
type Recorder interface {
	Record(rec types.LogRecord)
}

// nopRecorder is used when no audit log is attached (tests, read-only tools).
type nopRecorder struct{}

func (nopRecorder) Record(types.LogRecord) {}

// Open validates the vault root and creates any missing stage directories.
// A missing root is fatal: creating it silently would hide a mount or sync
// misconfiguration.
func Open(root string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, types.Fatalf("resolve vault path: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, types.Fatalf("vault root missing: %s", abs)
	}
	if !info.IsDir() {
		return nil, types.Fatalf("vault root is not a directory: %s", abs)
	}

	v := &Vault{root: abs, rec: nopRecorder{}}
	for _, stage := range Stages {
		if err := os.MkdirAll(v.Dir(stage), 0o755); err != nil {
			return nil, types.Fatalf("create stage %s: %v", stage, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(abs, SidecarDir), 0o755); err != nil {
		return nil, types.Fatalf("create sidecar dir: %v", err)
	}
	return v, nil
}

// Init creates a fresh vault tree at root, including the singletons.
func Init(root string) (*Vault, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}
	v, err := Open(root)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{FileDashboard, FileHandbook, FileGoals} {
		path := filepath.Join(v.root, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		header := fmt.Sprintf("# %s\n", strings.TrimSuffix(name, ".md"))
		if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
			return nil, fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return v, nil
}

// SetRecorder attaches the audit recorder used for every transition.
func (v *Vault) SetRecorder(rec Recorder) {
	if rec == nil {
		v.rec = nopRecorder{}
		return
	}
	v.rec = rec
}

// Root returns the absolute vault root path.
func (v *Vault) Root() string { return v.root }

// Dir returns the absolute path of a stage directory.
func (v *Vault) Dir(stage Stage) string {
	return filepath.Join(v.root, filepath.FromSlash(string(stage)))
}

// Path returns the absolute path of a file within a stage.
func (v *Vault) Path(stage Stage, filename string) string {
	return filepath.Join(v.Dir(stage), filename)
}

// Singleton returns the absolute path of a vault-root singleton file.
func (v *Vault) Singleton(name string) string {
	return filepath.Join(v.root, name)
}

// List returns the filenames present in a stage, ascending. Hidden files
// and directories are skipped; ordering by filename is the only queue order.
func (v *Vault) List(stage Stage) ([]string, error) {
	entries, err := os.ReadDir(v.Dir(stage))
	if err != nil {
		return nil, types.Integrityf("list stage %s: %v", stage, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// FindStem reports the stage currently holding a file with the given stem,
// searching every queue directory. ok is false when the stem is absent.
func (v *Vault) FindStem(stem string) (Stage, string, bool) {
	for _, stage := range Stages {
		if stage == StageInProgress {
			continue // only the peer zones hold files
		}
		names, err := v.List(stage)
		if err != nil {
			continue
		}
		for _, name := range names {
			if StemOf(name) == stem {
				return stage, name, true
			}
		}
	}
	return "", "", false
}
