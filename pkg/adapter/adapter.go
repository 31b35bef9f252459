package adapter

import (
	"context"
	"strings"

	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// Request is one approved file offered to an adapter.
type Request struct {
	// Stem is the file's stable identity; adapters key idempotency on it.
	Stem string
	// Filename is the full name within Approved/.
	Filename string
	// Note is the parsed action note.
	Note *vault.Note
	// DryRun asks the adapter to log instead of performing the side-effect.
	DryRun bool
}

// Adapter consumes a single approved file and performs one external
// side-effect. The side-effect is the commit point: the router moves the
// file to its terminal stage only after the adapter reports.
type Adapter interface {
	Name() string
	// Match reports whether this adapter handles the file, judged on the
	// filename kind and the preamble's type/action discriminator.
	Match(filename string, note *vault.Note) bool
	// Channel names the rate-limit bucket consumed per dispatch; empty
	// means unlimited.
	Channel() types.Channel
	// Dispatch performs the side-effect. Errors are classified through
	// pkg/types: transient → the file stays in Approved/ and is retried
	// later; permanent or policy → the file is rejected.
	Dispatch(ctx context.Context, req Request) (types.Outcome, error)
}

// Registry is the adapter-selection table. Selection is first-match in
// registration order, with the generic adapter as the guaranteed fallback.
type Registry struct {
	adapters []Adapter
	fallback Adapter
}

// NewRegistry builds a registry. fallback must not be nil.
func NewRegistry(fallback Adapter, adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters, fallback: fallback}
}

// Select returns the adapter responsible for a file.
func (r *Registry) Select(filename string, note *vault.Note) Adapter {
	// CLOUD_DRAFT_ files route by their embedded kind: the draft wrapper
	// is transparent to adapter selection.
	trimmed := strings.TrimPrefix(filename, vault.KindCloudDraft+"_")
	for _, a := range r.adapters {
		if a.Match(trimmed, note) || a.Match(filename, note) {
			return a
		}
	}
	return r.fallback
}

// Names lists registered adapter names, fallback last.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters)+1)
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return append(names, r.fallback.Name())
}

// hasPrefix is a case-insensitive filename prefix test.
func hasPrefix(filename, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(filename), prefix)
}
