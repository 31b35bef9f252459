package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
)

// Scan replays the last n calendar days of the audit log, oldest first,
// keeping records accepted by match. Partial trailing lines (a writer
// mid-append) and malformed lines are skipped; the log is append-only so
// everything before the tail is whole.
func Scan(dir string, days int, now time.Time, match func(types.LogRecord) bool) ([]types.LogRecord, error) {
	var out []types.LogRecord
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Local().Format(dayLayout)
		path := filepath.Join(dir, day+".jsonl")
		recs, err := scanFile(path, match)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// HasPriorApproval reports whether the stem was ever seen in
// Pending_Approval within the retention window. The policy gate uses it to
// verify the human-in-the-loop path was taken before an expensive action.
// Three record shapes count: a logged move into the stage, an emit into it,
// and a stage_observed record for files written there by external tools
// (the reasoning layer and the human use plain file operations).
func HasPriorApproval(dir, stem string, days int, now time.Time) (bool, error) {
	recs, err := Scan(dir, days, now, func(rec types.LogRecord) bool {
		if rec.File != stem {
			return false
		}
		switch rec.EventType {
		case "stage_moved":
			to, _ := rec.Detail["to"].(string)
			return to == "Pending_Approval"
		case "note_emitted", "stage_observed":
			stage, _ := rec.Detail["stage"].(string)
			return stage == "Pending_Approval"
		}
		return false
	})
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// UnresolvedDispatch reports whether the stem's newest dispatch-ledger
// record is an unsettled dispatch_started. The router writes the started
// record before the side-effect and settles it afterwards; an open entry
// means a previous run may have performed the side-effect without
// finishing the bookkeeping, so the file must not be dispatched again.
func UnresolvedDispatch(dir, stem string, days int, now time.Time) (bool, error) {
	recs, err := Scan(dir, days, now, func(rec types.LogRecord) bool {
		if rec.File != stem {
			return false
		}
		switch rec.EventType {
		case "dispatch_started", "dispatch_settled", "task_completed", "quarantined":
			return true
		}
		return false
	})
	if err != nil {
		return false, err
	}
	if len(recs) == 0 {
		return false, nil
	}
	return recs[len(recs)-1].EventType == "dispatch_started", nil
}

func scanFile(path string, match func(types.LogRecord) bool) ([]types.LogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []types.LogRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec types.LogRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	return out, sc.Err()
}
