package account

import (
	"context"
)

type Store interface {
	// InsertPending durably creates a new account record in the pending
	// state, bound to its payment intent.
	//
	// Returns ErrExists if the account id is taken or the username is held
	// by a non-rejected record, or ErrIntentAlreadyBound if another record
	// references the same intent.
	InsertPending(ctx context.Context, record *Record) error

	// Promote conditionally moves a pending record to active. The write only
	// succeeds if the record's current version matches expectedVersion.
	//
	// Returns ErrNotFound, ErrVersionMismatch on a conditional write failure,
	// or ErrNotPending if the record is already in a terminal state.
	Promote(ctx context.Context, accountId string, expectedVersion uint64) error

	// Reject moves a record to the rejected state. Rejecting an already
	// rejected record is a no-op.
	//
	// Returns ErrNotFound, or ErrNotPending if the record is active.
	Reject(ctx context.Context, accountId string) error

	// Get finds the record for a given account ID.
	//
	// Returns ErrNotFound if no record is found.
	Get(ctx context.Context, accountId string) (*Record, error)

	// GetByIntent finds the record bound to a given payment intent ID.
	//
	// Returns ErrNotFound if no record is found.
	GetByIntent(ctx context.Context, intentId string) (*Record, error)

	// CountByStatus gets a count of account records in the provided status.
	CountByStatus(ctx context.Context, status Status) (uint64, error)
}
