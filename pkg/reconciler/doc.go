// Package reconciler keeps the vault's pending stages honest: expired
// approvals are rejected and abandoned peer claims are returned to the
// queue on a fixed cadence.
package reconciler
