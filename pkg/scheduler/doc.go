// Package scheduler runs the recurring job table: inbox processing,
// dashboard refresh, briefings, audits, vault sync and signal merge. Jobs
// are edge-triggered on wall-clock cadences and never overlap themselves.
package scheduler
