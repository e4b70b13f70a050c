// Package payment defines the client abstraction for the third-party payment
// gateway that authorizes charges for paid account signups.
package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrIntentNotFound indicates the gateway has no intent with the given id.
	ErrIntentNotFound = errors.New("payment intent not found")

	// ErrDeclined indicates the gateway terminally declined the operation.
	// Declines are never retried.
	ErrDeclined = errors.New("payment declined")

	// ErrNotCancelable indicates the intent has already been captured and can
	// no longer be canceled.
	ErrNotCancelable = errors.New("payment intent is not cancelable")

	// ErrInvalidIntentState indicates the operation isn't valid for the
	// intent's current status.
	ErrInvalidIntentState = errors.New("operation invalid for intent state")

	// ErrUnavailable indicates a transient gateway failure (timeout, 5xx).
	// Safe to retry with backoff.
	ErrUnavailable = errors.New("payment gateway unavailable")
)

type IntentStatus uint8

const (
	StatusUnknown IntentStatus = iota
	StatusCreated
	StatusMethodAttached
	StatusConfirmed
	StatusCanceled
	StatusFailed
)

// Intent is the gateway-side object representing a reserved, not-yet-captured
// charge. The gateway owns it; callers hold only the id and the last observed
// status.
type Intent struct {
	Id           string
	ClientSecret string

	Amount   uint64
	Currency string

	Status IntentStatus

	CreatedAt time.Time
}

// Gateway is the narrow client interface to the payment processor. All calls
// are bounded by the provided context.
type Gateway interface {
	// CreateIntent creates a new payment intent for the given amount.
	CreateIntent(ctx context.Context, amount uint64, currency string) (*Intent, error)

	// AttachMethod binds a payment method reference to an intent.
	AttachMethod(ctx context.Context, intentId, methodRef string) error

	// ConfirmIntent requests confirmation of an intent with an attached
	// method. Returns ErrDeclined on a terminal decline.
	ConfirmIntent(ctx context.Context, intentId string) (IntentStatus, error)

	// CancelIntent cancels an unconfirmed intent. Canceling an intent that is
	// already canceled is a no-op.
	CancelIntent(ctx context.Context, intentId string) error

	// GetIntent fetches the current state of an intent.
	GetIntent(ctx context.Context, intentId string) (*Intent, error)
}

func (s IntentStatus) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

func (s IntentStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusMethodAttached:
		return "method_attached"
	case StatusConfirmed:
		return "confirmed"
	case StatusCanceled:
		return "canceled"
	case StatusFailed:
		return "failed"
	}

	return "unknown"
}
