// Package usage provides period-scoped usage counter stores backing the
// entitlement gate. Two implementations are provided: an in-process
// sharded map for single-instance deployments and tests, and a
// Redis-backed store for multi-instance deployments.
package usage

import "context"

// Store is the counter storage contract. Counters are keyed by
// (tenantID, unit) within the current accounting period; an absent
// counter is a valid zero state, never an error.
//
// Increment must be atomic per key: concurrent increments for the same
// (tenantID, unit) all take effect. Increments for different keys do not
// serialize behind a single global lock.
type Store interface {
	// Get returns the current count, 0 if no counter exists yet.
	Get(ctx context.Context, tenantID, unit string) (int64, error)

	// Increment atomically adds amount to the counter, creating it at 0
	// first if absent, and returns the new count.
	Increment(ctx context.Context, tenantID, unit string, amount int64) (int64, error)

	// Reset sets the counter to 0. Idempotent: resetting an absent
	// counter is a no-op.
	Reset(ctx context.Context, tenantID, unit string) error

	// ResetAll clears every counter. Intended for development and test
	// use only; must not be reachable from production request paths.
	ResetAll(ctx context.Context) error
}
