/*
Package watcher implements the observers that translate external sources
into vault action notes.

Every watcher obeys the same contract:

 1. Poll the source at a configured cadence.
 2. Dedup by a source-native id persisted in a seen-set sidecar.
 3. Emit one action note per new item into Needs_Action/ (or Inbox/).
 4. Wrap every source call in backoff and a circuit breaker; rate-limit
    outbound writes.
 5. Treat network/timeout failures as transient and auth/parse failures
    as permanent: a permanent failure raises an URGENT_ note and stops
    the watcher with exit code 3.

Runner is the framework loop; Source is the per-system plug-in point.
MailboxSource adapts any message-fetching transport. InboxWatcher is the
one event-driven watcher: it hoists raw files dropped into Inbox/ up to
Needs_Action/ using fsnotify with a polling fallback.

Watchers also support --setup (interactive credential bootstrap) and
--dry-run (log the note instead of writing it).
*/
package watcher
