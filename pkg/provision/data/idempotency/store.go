package idempotency

import (
	"context"
	"time"
)

type Store interface {
	// Reserve atomically claims a key for a request fingerprint before any
	// external work begins. The returned record's state determines what the
	// caller does next:
	//   - a fresh or re-reserved record in StateReserved means the caller
	//     owns the attempt (a re-reserved record keeps any intent id from
	//     the prior attempt of the same key);
	//   - a record in StateCompleted carries the memoized outcome.
	//
	// Returns ErrFingerprintMismatch if the key exists with a different
	// fingerprint, or ErrAttemptInProgress if another reservation is active.
	// Expired records are treated as absent.
	Reserve(ctx context.Context, key, fingerprint string, expiry time.Time) (*Record, error)

	// Get finds the record for a key.
	//
	// Returns ErrNotFound if no record is found, or if it has expired.
	Get(ctx context.Context, key string) (*Record, error)

	// MarkIntent records the payment intent id driven by this attempt.
	//
	// Returns ErrNotFound, or ErrNotInFlight if the record is completed.
	MarkIntent(ctx context.Context, key, intentId string) error

	// Suspend moves a reserved record to the suspended state so the same
	// key can be retried with an unchanged fingerprint.
	//
	// Returns ErrNotFound, or ErrNotInFlight if the record is completed.
	Suspend(ctx context.Context, key string) error

	// Complete memoizes the terminal outcome for a key. Completing an
	// already completed record is a no-op.
	//
	// Returns ErrNotFound if no record is found.
	Complete(ctx context.Context, key string, outcome *Outcome) error

	// GetStaleInFlight returns up to limit in-flight records created before
	// the provided timestamp.
	//
	// Returns ErrNotFound if no records match.
	GetStaleInFlight(ctx context.Context, createdBefore time.Time, limit uint64) ([]*Record, error)

	// CountInFlight gets a count of in-flight records.
	CountInFlight(ctx context.Context) (uint64, error)
}
