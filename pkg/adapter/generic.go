package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// GenericAdapter is the guaranteed fallback for approved files no
// specialized adapter claims. It cannot perform the side-effect itself, so
// it raises a NEEDS_MANUAL_ACTION notice back into Needs_Action/ and lets
// the file complete; the human closes the loop.
type GenericAdapter struct {
	vault  *vault.Vault
	now    func() time.Time
	logger zerolog.Logger
}

// NewGenericAdapter builds the fallback adapter.
func NewGenericAdapter(v *vault.Vault) *GenericAdapter {
	return &GenericAdapter{vault: v, now: time.Now, logger: log.WithActor("generic")}
}

func (a *GenericAdapter) Name() string { return "generic" }

func (a *GenericAdapter) Channel() types.Channel { return "" }

// Match always succeeds; the registry consults the fallback last.
func (a *GenericAdapter) Match(string, *vault.Note) bool { return true }

func (a *GenericAdapter) Dispatch(ctx context.Context, req Request) (types.Outcome, error) {
	if req.DryRun {
		a.logger.Info().Str("stem", req.Stem).Msg("[dry run] would raise manual-action notice")
		return types.OutcomeDrafted, nil
	}

	notice := &vault.Note{
		Preamble: vault.Preamble{
			Type:     types.TypeManualAction,
			Priority: types.PriorityP1,
			Status:   types.StatusPending,
			Created:  a.now(),
			Extra: map[string]string{
				"source_file":   req.Filename,
				"source_action": req.Note.Preamble.Action,
			},
		},
		Body: fmt.Sprintf("# Manual action required\n\nApproved file `%s` has no automated handler.\nReview the original and perform the action by hand.\n", req.Filename),
	}
	if _, err := a.vault.Emit(vault.StageNeedsAction, "NEEDS_MANUAL_ACTION_"+req.Stem, notice); err != nil {
		return types.OutcomeDeferred, types.Transient(err)
	}
	return types.OutcomeDrafted, nil
}
