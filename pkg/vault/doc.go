/*
Package vault implements the directory-as-queue state machine at the heart
of Burrow.

A vault is a rooted directory tree whose named sub-directories (stages)
function as queues ordered only by filename. Watchers, the reasoning layer,
the human operator and the orchestrator all communicate exclusively by
creating files and moving them between stages:

	Inbox → Needs_Action → [Plans, Pending_Approval] → Approved → Done
	            │                                         │
	            └─→ In_Progress/<peer> (claim) ───────────┘
	Pending_Approval/Approved ──(expired)──→ Rejected

# Primitives

All state transitions are filesystem renames or small exclusive writes:

  - Move: rename between stages, stem-preserving, never overwrites
  - Claim/Release: atomic Needs_Action ↔ In_Progress/<peer>
  - Emit: create a note, suffixing _N on stem collision
  - Quarantine: park a problem file in Rejected/ with an error sibling
  - List: filename-ascending stage contents

The rename is the commit point. Any step after a successful rename that
fails (audit record, metrics) is recovered by a later scan, never by
rolling the rename back.

# Invariants

 1. No deletion: files only move or are created.
 2. Stem uniqueness: a stem exists in at most one stage at a time.
 3. Done/ and Rejected/ are absorbing.
 4. No external side-effect before the file has resided in Approved/.
 5. A file in In_Progress/<peer>/ is owned by exactly that peer.
 6. Every transition appends one audit record via the attached Recorder.

# Notes

An action note is YAML frontmatter fenced by --- lines followed by a
free-form body. The filename stem <KIND>_<TOPIC>_<YYYYMMDDHHMMSS> is
stable across all stage transitions and is the identity used for dedup,
idempotency and logging.
*/
package vault
