/*
Package types defines the shared vocabulary of the Burrow vault protocol.

It holds the value types that cross package boundaries — priorities,
lifecycle statuses, peer identities, adapter outcomes, rate-limit channels
— and the error taxonomy that drives recovery policy everywhere else:

	KindTransient  → backoff and retry, defer on exhaustion
	KindPermanent  → URGENT_ note, stop the offending watcher
	KindPolicy     → Rejected/ with error sibling, no retry
	KindIntegrity  → quarantine, log, continue
	KindFatal      → exit non-zero, supervisor restarts

Errors are classified at the point where the failure mode is known
(usually a source or transport boundary) via Transient/Permanent/... and
inspected with KindOf. Anything unclassified is retried like a transient.

The package has no dependencies inside the module so every other package
can import it.
*/
package types
