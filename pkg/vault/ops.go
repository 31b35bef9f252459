package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
)

// Move renames a file between stages, preserving the stem. The rename is
// the commit point. The destination check is best-effort: os.Rename has no
// no-clobber mode, so a writer racing into the window between the stat and
// the rename would be overwritten. Stems embed a creation timestamp, which
// makes a destination collision two copies of the same work item rather
// than two distinct items, so the window loses a duplicate at worst.
// One audit record is appended per successful move.
func (v *Vault) Move(filename string, from, to Stage) error {
	src := v.Path(from, filename)
	dst := v.Path(to, filename)

	if _, err := os.Stat(dst); err == nil {
		return types.Integrityf("move %s: destination already exists in %s", filename, to)
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Integrityf("move %s: not present in %s", filename, from)
		}
		return fmt.Errorf("move %s from %s to %s: %w", filename, from, to, err)
	}

	v.rec.Record(types.LogRecord{
		EventType: "stage_moved",
		File:      StemOf(filename),
		Result:    "ok",
		Detail:    map[string]any{"from": string(from), "to": string(to)},
	})
	return nil
}

// Rename moves a file between stages while giving it a new name, used
// when hoisting raw Inbox payloads under a canonical stem. Same
// no-overwrite discipline as Move.
func (v *Vault) Rename(from Stage, filename string, to Stage, newName string) error {
	src := v.Path(from, filename)
	dst := v.Path(to, newName)

	if _, err := os.Stat(dst); err == nil {
		return types.Integrityf("rename %s: destination %s already exists in %s", filename, newName, to)
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Integrityf("rename %s: not present in %s", filename, from)
		}
		return fmt.Errorf("rename %s to %s/%s: %w", filename, to, newName, err)
	}

	v.rec.Record(types.LogRecord{
		EventType: "stage_moved",
		File:      StemOf(newName),
		Result:    "ok",
		Detail:    map[string]any{"from": string(from), "to": string(to), "was": filename},
	})
	return nil
}

// Claim atomically moves a file from Needs_Action into the peer's
// In_Progress zone. A miss (false, nil) means another peer won the race or
// the destination name is already taken; misses are not retried. The
// single-winner guarantee comes from the rename's atomicity on the source
// (the loser sees ENOENT), not from the advisory destination check; the
// two peers rename into different zone directories, so they can never
// clobber each other's claim.
func (v *Vault) Claim(filename string, peer types.Peer) (bool, error) {
	zone := StageInProgress.Peer(peer)
	src := v.Path(StageNeedsAction, filename)
	dst := v.Path(zone, filename)

	if _, err := os.Stat(dst); err == nil {
		return false, nil
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Another peer got there first.
			return false, nil
		}
		return false, fmt.Errorf("claim %s for %s: %w", filename, peer, err)
	}

	v.rec.Record(types.LogRecord{
		EventType: "task_claimed",
		File:      StemOf(filename),
		Result:    "ok",
		Detail:    map[string]any{"peer": string(peer)},
	})
	return true, nil
}

// Release returns a claimed file to Needs_Action when the owner cannot
// finish it.
func (v *Vault) Release(filename string, peer types.Peer) error {
	zone := StageInProgress.Peer(peer)
	if err := v.Move(filename, zone, StageNeedsAction); err != nil {
		return err
	}
	v.rec.Record(types.LogRecord{
		EventType: "task_released",
		File:      StemOf(filename),
		Result:    "ok",
		Detail:    map[string]any{"peer": string(peer)},
	})
	return nil
}

// Emit creates a new note file in a stage. On stem collision the filename
// gets an increasing _N suffix until unique; creation is O_EXCL so two
// writers can never share a name. The chosen filename is returned.
func (v *Vault) Emit(stage Stage, stem string, note *Note) (string, error) {
	content, err := note.Render()
	if err != nil {
		return "", err
	}
	return v.EmitRaw(stage, stem, ".md", content)
}

// EmitRaw writes arbitrary content under a stem, used for payload copies
// and error siblings alongside notes.
func (v *Vault) EmitRaw(stage Stage, stem, ext string, content []byte) (string, error) {
	for n := 0; ; n++ {
		name := stem
		if n > 0 {
			name = fmt.Sprintf("%s_%d", stem, n)
		}
		filename := name + ext
		f, err := os.OpenFile(v.Path(stage, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("emit %s into %s: %w", filename, stage, err)
		}
		_, werr := f.Write(content)
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("emit %s into %s: %w", filename, stage, werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("emit %s into %s: %w", filename, stage, cerr)
		}

		v.rec.Record(types.LogRecord{
			EventType: "note_emitted",
			File:      name,
			Result:    "ok",
			Detail:    map[string]any{"stage": string(stage)},
		})
		return filename, nil
	}
}

// Quarantine moves a problem file to Rejected/ with a sibling _error.md
// record explaining why. Nothing is ever silently dropped.
func (v *Vault) Quarantine(filename string, from Stage, reason error) error {
	if err := v.Move(filename, from, StageRejected); err != nil {
		return err
	}
	stem := StemOf(filename)
	sibling := &Note{
		Preamble: Preamble{
			Type:    "error",
			Status:  types.StatusRejected,
			Created: time.Now(),
			Extra: map[string]string{
				"source_file": filename,
				"error_kind":  types.KindOf(reason).String(),
			},
		},
		Body: fmt.Sprintf("# Rejected: %s\n\n%v\n", filename, reason),
	}
	if _, err := v.Emit(StageRejected, stem+"_error", sibling); err != nil {
		return err
	}
	v.rec.Record(types.LogRecord{
		EventType: "quarantined",
		File:      stem,
		Result:    types.KindOf(reason).String(),
		Detail:    map[string]any{"from": string(from), "reason": reason.Error()},
	})
	return nil
}

// ReadNote loads and parses a note from a stage.
func (v *Vault) ReadNote(stage Stage, filename string) (*Note, error) {
	content, err := os.ReadFile(v.Path(stage, filename))
	if err != nil {
		return nil, types.Integrityf("read %s from %s: %v", filename, stage, err)
	}
	return ParseNote(content)
}

// WriteFileAtomic rewrites one of the vault singletons via temp-and-rename
// so concurrent readers never observe a partial file. Pending stage files
// are never rewritten in place; this is only for Dashboard-like targets.
func WriteFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	return nil
}
