package provision

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidRequest indicates the request failed validation before any
	// external side effects were performed.
	ErrInvalidRequest = errors.New("invalid provisioning request")

	// ErrIdempotencyConflict indicates the idempotency key was reused with a
	// request fingerprint that doesn't match the original.
	ErrIdempotencyConflict = errors.New("idempotency key reused for a different request")

	// ErrAttemptInProgress indicates another caller currently holds the
	// reservation for this idempotency key.
	ErrAttemptInProgress = errors.New("a provisioning attempt for this key is in progress")

	// ErrAccountExists indicates the requested username is already taken by
	// another account.
	ErrAccountExists = errors.New("username is already taken")

	// ErrNotFound indicates no provisioning attempt exists for the key.
	ErrNotFound = errors.New("no provisioning attempt found")

	// ErrInternal indicates a transient failure. The attempt is suspended and
	// can be safely re-driven with the same idempotency key.
	ErrInternal = errors.New("provisioning temporarily unavailable")
)
