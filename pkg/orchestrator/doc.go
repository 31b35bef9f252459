/*
Package orchestrator routes approved vault files to their adapters.

The Router watches Approved/ (fsnotify with a polling fallback), selects an
adapter per file through the adapter registry and dispatches in filename
order per adapter. The Gate re-checks handbook policy at dispatch time:
expired approvals and over-threshold amounts without an approval trail are
rejected, not sent.

Transient failures defer the file in place with a doubling cooldown;
permanent failures quarantine it into Rejected/ with an error sibling. The
move to Done/ happens only after the adapter reports success, so a crash
leaves at worst a visible duplicate, never a silent loss.
*/
package orchestrator
