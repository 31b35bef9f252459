/*
Package storage holds the BoltDB-backed sidecar state that lives outside
the vault tree: per-watcher seen-sets used for idempotent deduplication.

The vault itself is the durable store for all work state; this package
only remembers source-native ids a watcher has already translated into
action notes, so restarts never emit twice for the same item. The files
live under <vault>/.burrow/ and are excluded from vault sync.
*/
package storage
