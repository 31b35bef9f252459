package types

import (
	"errors"
	"fmt"
	"time"
)

// Priority is the urgency class carried in an action note's preamble.
// P0 means immediate, P1 within 2 hours, P2 within 24 hours, P3 within 72 hours.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// Valid reports whether p is one of the four declared priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	}
	return false
}

// Status is the lifecycle state recorded in a note's preamble.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusApproved   Status = "approved"
	StatusDone       Status = "done"
	StatusRejected   Status = "rejected"
)

// rank orders statuses so sync conflict resolution can pick the later one.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusInProgress:
		return 2
	case StatusApproved:
		return 3
	case StatusDone, StatusRejected:
		return 4
	}
	return 0
}

// Later reports whether s is further along the lifecycle than other.
func (s Status) Later(other Status) bool {
	return s.rank() > other.rank()
}

// Peer identifies one of the two orchestrators sharing a vault.
type Peer string

const (
	PeerLocal Peer = "local"
	PeerCloud Peer = "cloud"
)

// Other returns the opposite peer.
func (p Peer) Other() Peer {
	if p == PeerCloud {
		return PeerLocal
	}
	return PeerCloud
}

// Outcome is an adapter's report for a single dispatched file.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeDrafted  Outcome = "drafted"
	OutcomeRejected Outcome = "rejected"
	OutcomeDeferred Outcome = "deferred"
)

// Channel names a rate-limited resource class.
type Channel string

const (
	ChannelEmail      Channel = "email"
	ChannelSocialPost Channel = "social_post"
	ChannelPayment    Channel = "payment"
)

// Well-known note types and actions. Type-specific fields (sender, amount,
// platform, channel) ride alongside these in the preamble.
const (
	TypeEmail              = "email"
	TypeFileDrop           = "file_drop"
	TypeLinkedInMessage    = "linkedin_message"
	TypeSocialPostApproval = "social_post_approval"
	TypeOdooAction         = "odoo_action"
	TypeSecurityReview     = "security_review"
	TypeManualAction       = "manual_action_required"
	TypeSyncStatus         = "sync_status"
	TypeCloudStatus        = "cloud_status"
)

const (
	ActionSendEmail       = "send_email"
	ActionPostToTwitter   = "post_to_twitter"
	ActionPostToLinkedIn  = "post_to_linkedin"
	ActionPostToFacebook  = "post_to_facebook"
	ActionPostToInstagram = "post_to_instagram"
	ActionSendWhatsApp    = "send_whatsapp"
	ActionCreateInvoice   = "create_invoice"
	ActionCreateQuotation = "create_quotation"
	ActionProcessPayment  = "process_payment"
	ActionDraftReply      = "draft_reply"
	ActionArchive         = "acknowledge_and_archive"
)

// ErrKind classifies a failure for recovery policy.
type ErrKind int

const (
	// KindUnknown is the zero value; unclassified errors are treated as transient.
	KindUnknown ErrKind = iota
	// KindTransient covers network timeouts, 5xx responses and rate limiting.
	// Recovery: backoff and retry, defer on exhaustion.
	KindTransient
	// KindPermanent covers auth failures, schema mismatches and parse errors
	// from an external source. Recovery: URGENT_ note, stop the watcher.
	KindPermanent
	// KindPolicy covers expired approvals, exceeded limits and amount
	// thresholds. Recovery: move to Rejected/ with an error sibling, no retry.
	KindPolicy
	// KindIntegrity covers stem collisions, missing stages and unreadable
	// preambles. Recovery: quarantine to Rejected/, log, continue.
	KindIntegrity
	// KindFatal covers a missing vault root or an unwriteable log file.
	// Recovery: exit non-zero and let the supervisor restart.
	KindFatal
)

func (k ErrKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindPolicy:
		return "policy"
	case KindIntegrity:
		return "integrity"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// kindError attaches an ErrKind to an underlying error.
type kindError struct {
	kind ErrKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Transient wraps err as a retryable failure.
func Transient(err error) error { return wrap(KindTransient, err) }

// Transientf formats a retryable failure.
func Transientf(format string, args ...any) error {
	return wrap(KindTransient, fmt.Errorf(format, args...))
}

// Permanent wraps err as a non-retryable source failure.
func Permanent(err error) error { return wrap(KindPermanent, err) }

// Permanentf formats a non-retryable source failure.
func Permanentf(format string, args ...any) error {
	return wrap(KindPermanent, fmt.Errorf(format, args...))
}

// Policy wraps err as a handbook-rule violation.
func Policy(err error) error { return wrap(KindPolicy, err) }

// Policyf formats a handbook-rule violation.
func Policyf(format string, args ...any) error {
	return wrap(KindPolicy, fmt.Errorf(format, args...))
}

// Integrity wraps err as a vault-consistency failure.
func Integrity(err error) error { return wrap(KindIntegrity, err) }

// Integrityf formats a vault-consistency failure.
func Integrityf(format string, args ...any) error {
	return wrap(KindIntegrity, fmt.Errorf(format, args...))
}

// Fatal wraps err as an unrecoverable process failure.
func Fatal(err error) error { return wrap(KindFatal, err) }

// Fatalf formats an unrecoverable process failure.
func Fatalf(format string, args ...any) error {
	return wrap(KindFatal, fmt.Errorf(format, args...))
}

func wrap(kind ErrKind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the classification of err, walking the wrap chain.
// Unclassified errors report KindUnknown and are retried like transients.
func KindOf(err error) ErrKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// Retryable reports whether err should go through backoff and retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindUnknown:
		return err != nil
	}
	return false
}

// LogRecord is one line of the daily JSON-lines audit log.
// Timestamp, EventType, Actor and Result are required; the rest is optional.
type LogRecord struct {
	ID        string         `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor"`
	File      string         `json:"file,omitempty"`
	Action    string         `json:"action,omitempty"`
	Result    string         `json:"result"`
	Detail    map[string]any `json:"detail,omitempty"`
}
