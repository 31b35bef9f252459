package claim

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// cloudForbiddenPrefixes name task files the cloud peer must never claim,
// whatever their preamble says. Prefix screening happens before the claim
// so a forbidden file is never even briefly held by the wrong peer.
var cloudForbiddenPrefixes = []string{"WHATSAPP_", "PAYMENT_", "BANKING_"}

// localOnlyActions are external side-effects reserved for the local peer;
// the cloud peer drafts and plans but never sends.
var localOnlyActions = map[string]bool{
	types.ActionSendEmail:       true,
	types.ActionSendWhatsApp:    true,
	types.ActionPostToTwitter:   true,
	types.ActionPostToLinkedIn:  true,
	types.ActionPostToFacebook:  true,
	types.ActionPostToInstagram: true,
	types.ActionCreateInvoice:   true,
	types.ActionCreateQuotation: true,
	types.ActionProcessPayment:  true,
}

// Claimer implements one peer's side of the claim-by-move protocol over
// Needs_Action/.
type Claimer struct {
	v      *vault.Vault
	peer   types.Peer
	elog   *eventlog.Logger
	now    func() time.Time
	logger zerolog.Logger
}

// NewClaimer builds a claimer for a peer identity.
func NewClaimer(v *vault.Vault, peer types.Peer, elog *eventlog.Logger) *Claimer {
	return &Claimer{
		v:      v,
		peer:   peer,
		elog:   elog,
		now:    time.Now,
		logger: log.WithActor(string(peer) + "-claimer"),
	}
}

// Peer returns the claimer's identity.
func (c *Claimer) Peer() types.Peer { return c.peer }

// InZone reports whether this peer may work the file at all, judged on the
// filename alone. The preamble check happens post-claim in ClaimNext.
func (c *Claimer) InZone(filename string) bool {
	if c.peer == types.PeerLocal {
		return true
	}
	upper := strings.ToUpper(filename)
	for _, prefix := range cloudForbiddenPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return false
		}
	}
	return true
}

// ClaimNext claims the first workable file in Needs_Action/, filename
// order. A file whose preamble turns out to be outside the peer's zone is
// released immediately. ok is false when nothing claimable remains.
func (c *Claimer) ClaimNext() (filename string, note *vault.Note, ok bool, err error) {
	names, err := c.v.List(vault.StageNeedsAction)
	if err != nil {
		return "", nil, false, err
	}
	zone := vault.StageInProgress.Peer(c.peer)

	for _, name := range names {
		if !strings.EqualFold(filepath.Ext(name), ".md") {
			continue // payloads are claimed implicitly with their note
		}
		if !c.InZone(name) {
			continue
		}

		won, cerr := c.v.Claim(name, c.peer)
		if cerr != nil {
			return "", nil, false, cerr
		}
		if !won {
			metrics.ClaimsMissed.WithLabelValues(string(c.peer)).Inc()
			continue
		}
		metrics.ClaimsWon.WithLabelValues(string(c.peer)).Inc()

		n, rerr := c.v.ReadNote(zone, name)
		if rerr != nil {
			// Unreadable after claim: quarantine rather than bounce it
			// between peers forever.
			if qerr := c.v.Quarantine(name, zone, rerr); qerr != nil {
				c.logger.Error().Err(qerr).Str("file", name).Msg("quarantine of unreadable claim failed")
			}
			continue
		}
		if c.peer == types.PeerCloud && localOnlyActions[n.Preamble.Action] {
			// Out of zone by action: give it back untouched.
			if rerr := c.v.Release(name, c.peer); rerr != nil {
				return "", nil, false, rerr
			}
			c.logger.Debug().Str("file", name).Str("action", n.Preamble.Action).Msg("released out-of-zone claim")
			continue
		}
		return name, n, true, nil
	}
	return "", nil, false, nil
}

// Release returns a claimed file to Needs_Action/.
func (c *Claimer) Release(filename string) error {
	return c.v.Release(filename, c.peer)
}

// Complete moves a finished claimed file to Done/.
func (c *Claimer) Complete(filename string) error {
	return c.v.Move(filename, vault.StageInProgress.Peer(c.peer), vault.StageDone)
}

// SweepStale returns abandoned entries in the opposite peer's work zone to
// Needs_Action/. Staleness is judged on file mtime: a live peer touches
// nothing, so an old mtime means the claim died with its owner.
func (c *Claimer) SweepStale(ttl time.Duration) (int, error) {
	other := c.peer.Other()
	zone := vault.StageInProgress.Peer(other)
	names, err := c.v.List(zone)
	if err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-ttl)
	swept := 0
	for _, name := range names {
		info, serr := os.Stat(c.v.Path(zone, name))
		if serr != nil {
			continue // raced with the owner finishing it
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if merr := c.v.Move(name, zone, vault.StageNeedsAction); merr != nil {
			c.logger.Warn().Err(merr).Str("file", name).Msg("stale claim sweep move failed")
			continue
		}
		swept++
		metrics.StaleClaimsSwept.Inc()
		c.elog.Record(types.LogRecord{
			EventType: "stale_claim_swept",
			File:      vault.StemOf(name),
			Result:    "ok",
			Detail:    map[string]any{"owner": string(other), "age": c.now().Sub(info.ModTime()).String()},
		})
		c.logger.Info().Str("file", name).Str("owner", string(other)).Msg("stale claim returned to queue")
	}
	return swept, nil
}
