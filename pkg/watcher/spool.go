package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/burrowhq/burrow/pkg/types"
)

// NewSpoolFetch reads message exports from a spool directory: each *.json
// file holds an array of messages dropped there by the mailbox export job.
// Files are left in place; the seen-set dedups across polls. A missing
// spool directory is a permanent misconfiguration.
func NewSpoolFetch(dir string) FetchFunc {
	return func(ctx context.Context) ([]Message, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, types.Permanentf("mailbox spool %s: %v", dir, err)
		}

		var names []string
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		var out []Message
		for _, name := range names {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			content, rerr := os.ReadFile(filepath.Join(dir, name))
			if rerr != nil {
				return nil, types.Transientf("read spool file %s: %v", name, rerr)
			}
			var batch []Message
			if jerr := json.Unmarshal(content, &batch); jerr != nil {
				return nil, types.Permanentf("malformed spool file %s: %v", name, jerr)
			}
			out = append(out, batch...)
		}
		return out, nil
	}
}
