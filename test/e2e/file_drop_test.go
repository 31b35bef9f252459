package e2e

import (
	"strings"
	"testing"
	"time"

	"github.com/burrowhq/burrow/pkg/vault"
	"github.com/burrowhq/burrow/pkg/watcher"
	"github.com/burrowhq/burrow/test/framework"
)

// TestFileDropPipeline covers the hoist path: a file dropped into Inbox/
// becomes a payload plus action note in Needs_Action/ with an audit trail.
func TestFileDropPipeline(t *testing.T) {
	f := framework.NewFixture(t)
	assert := framework.NewAssertions(t, f)

	w := watcher.NewInboxWatcher(f.Vault, f.Elog, false, 0)
	f.DropFile(t, "urgent_contract.pdf", []byte("%PDF-1.4 fake"))
	f.DropFile(t, ".DS_Store", []byte("junk"))
	w.RunOnce()

	assert.StageCount(vault.StageNeedsAction, 2)
	names, err := f.Vault.List(vault.StageNeedsAction)
	if err != nil {
		t.Fatalf("list Needs_Action: %v", err)
	}

	var noteName, payloadName string
	for _, name := range names {
		if vault.KindOf(name) != vault.KindFile {
			t.Fatalf("unexpected kind for %s", name)
		}
		if strings.HasSuffix(name, "_note.md") {
			noteName = name
		} else {
			payloadName = name
		}
	}
	if noteName == "" || payloadName == "" {
		t.Fatalf("want payload and note, have %v", names)
	}

	note, err := f.Vault.ReadNote(vault.StageNeedsAction, noteName)
	if err != nil {
		t.Fatalf("read note: %v", err)
	}
	if note.Field("original_name") != "urgent_contract.pdf" {
		t.Fatalf("original_name = %q", note.Field("original_name"))
	}
	if note.Preamble.Created.IsZero() {
		t.Fatalf("note has no created timestamp")
	}
	if time.Since(note.Preamble.Created) > time.Minute {
		t.Fatalf("created timestamp not recent: %s", note.Preamble.Created)
	}

	if note.Field("payload") != payloadName {
		t.Fatalf("payload field = %q, want %q", note.Field("payload"), payloadName)
	}
	assert.AuditRecorded("file_drop", vault.StemOf(payloadName))
}
