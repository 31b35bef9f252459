// Package framework provides shared helpers for end-to-end tests: a
// throwaway vault fixture, stage assertions and polling waiters.
package framework

import (
	"os"
	"time"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/vault"
)

// TestingT is the subset of *testing.T the framework needs.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	TempDir() string
	Cleanup(func())
}

// Fixture is one initialized vault with its audit logger wired in.
type Fixture struct {
	Vault *vault.Vault
	Elog  *eventlog.Logger
}

// NewFixture initializes a vault in a temp directory.
func NewFixture(t TestingT) *Fixture {
	t.Helper()
	v, err := vault.Init(t.TempDir())
	if err != nil {
		t.Fatalf("init vault: %v", err)
	}
	elog := eventlog.New(v.Dir(vault.StageLogs), "e2e")
	t.Cleanup(func() { _ = elog.Close() })
	v.SetRecorder(elog)
	return &Fixture{Vault: v, Elog: elog}
}

// EmitTask writes an action note into a stage and returns its filename.
func (f *Fixture) EmitTask(t TestingT, stage vault.Stage, stem string, note *vault.Note) string {
	t.Helper()
	if note.Preamble.Created.IsZero() {
		note.Preamble.Created = time.Now()
	}
	name, err := f.Vault.Emit(stage, stem, note)
	if err != nil {
		t.Fatalf("emit %s into %s: %v", stem, stage, err)
	}
	return name
}

// DropFile places raw content into Inbox/ the way a human drag-and-drop
// would.
func (f *Fixture) DropFile(t TestingT, name string, content []byte) {
	t.Helper()
	if err := os.WriteFile(f.Vault.Path(vault.StageInbox, name), content, 0o644); err != nil {
		t.Fatalf("drop %s: %v", name, err)
	}
}

// Approve simulates the human review step: the move itself is the
// approval, the file content stays untouched.
func (f *Fixture) Approve(t TestingT, filename string) {
	t.Helper()
	if err := f.Vault.Move(filename, vault.StagePendingApproval, vault.StageApproved); err != nil {
		t.Fatalf("approve %s: %v", filename, err)
	}
}
