package framework

import (
	"time"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// Assertions provides vault-level test assertions.
type Assertions struct {
	t TestingT
	f *Fixture
}

// NewAssertions creates an Assertions instance bound to a fixture.
func NewAssertions(t TestingT, f *Fixture) *Assertions {
	return &Assertions{t: t, f: f}
}

// InStage asserts that a file is present in the given stage.
func (a *Assertions) InStage(stage vault.Stage, filename string) {
	a.t.Helper()
	names, err := a.f.Vault.List(stage)
	if err != nil {
		a.t.Fatalf("list %s: %v", stage, err)
	}
	for _, name := range names {
		if name == filename {
			return
		}
	}
	a.t.Fatalf("%s not found in %s (have %v)", filename, stage, names)
}

// StageEmpty asserts that a stage holds no files.
func (a *Assertions) StageEmpty(stage vault.Stage) {
	a.t.Helper()
	names, err := a.f.Vault.List(stage)
	if err != nil {
		a.t.Fatalf("list %s: %v", stage, err)
	}
	if len(names) != 0 {
		a.t.Fatalf("%s not empty: %v", stage, names)
	}
}

// StageCount asserts the number of files in a stage.
func (a *Assertions) StageCount(stage vault.Stage, want int) {
	a.t.Helper()
	names, err := a.f.Vault.List(stage)
	if err != nil {
		a.t.Fatalf("list %s: %v", stage, err)
	}
	if len(names) != want {
		a.t.Fatalf("%s holds %d files, want %d: %v", stage, len(names), want, names)
	}
}

// AuditRecorded asserts that the event log carries a record of the given
// type for the given file stem.
func (a *Assertions) AuditRecorded(eventType, stem string) {
	a.t.Helper()
	recs, err := eventlog.Scan(a.f.Vault.Dir(vault.StageLogs), 2, time.Now(), func(rec types.LogRecord) bool {
		return rec.EventType == eventType && rec.File == stem
	})
	if err != nil {
		a.t.Fatalf("scan audit log: %v", err)
	}
	if len(recs) == 0 {
		a.t.Fatalf("no %q audit record for %s", eventType, stem)
	}
}
