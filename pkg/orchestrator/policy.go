package orchestrator

import (
	"time"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// approvalWindowDays bounds how far back the gate looks for the
// human-in-the-loop trail of an expensive action.
const approvalWindowDays = 14

// Gate enforces the handbook rules on approved files immediately before
// dispatch. Approval happens at human speed; the rules are re-checked at
// dispatch time because the world may have moved since.
type Gate struct {
	logsDir   string
	threshold float64
	now       func() time.Time
}

// NewGate builds the policy gate. threshold is the amount above which a
// prior pass through Pending_Approval is required.
func NewGate(logsDir string, threshold float64) *Gate {
	return &Gate{logsDir: logsDir, threshold: threshold, now: time.Now}
}

// Check validates one approved note. The returned rule names the violated
// check for metrics; it is empty when the note passes. Errors are
// classified: policy violations reject the file, transient log-scan
// failures defer it.
func (g *Gate) Check(stem string, note *vault.Note) (rule string, err error) {
	now := g.now()
	if note.Expired(now) {
		return "expired", types.Policyf("approval expired at %s", note.Preamble.Expires.Format(time.RFC3339))
	}

	if amount := note.Amount(); amount > g.threshold {
		approved, err := eventlog.HasPriorApproval(g.logsDir, stem, approvalWindowDays, now)
		if err != nil {
			return "", types.Transient(err)
		}
		if !approved {
			return "amount_threshold", types.Policyf("amount %.2f exceeds threshold %.2f with no approval trail", amount, g.threshold)
		}
	}
	return "", nil
}
