package idempotency

import (
	"errors"
	"time"

	"github.com/cloudfusionadmin/filevaults/pkg/pointer"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
)

var (
	ErrNotFound            = errors.New("no idempotency records could be found")
	ErrFingerprintMismatch = errors.New("idempotency key reused with a different request fingerprint")
	ErrAttemptInProgress   = errors.New("another attempt with this idempotency key is in progress")
	ErrNotInFlight         = errors.New("idempotency record is not in flight")
	ErrInvalidRecord       = errors.New("invalid idempotency record")
)

type State uint8

const (
	StateUnknown State = iota

	// StateReserved indicates an attempt is actively driving external calls
	// for this key. Concurrent reservations are rejected.
	StateReserved

	// StateSuspended indicates the attempt stopped without a terminal
	// outcome (awaiting client-side method attachment, or a transient
	// failure exhausted the retry budget). The key can be re-reserved with
	// an unchanged fingerprint.
	StateSuspended

	// StateCompleted indicates a memoized terminal outcome.
	StateCompleted
)

// Outcome is the memoized result of a completed provisioning attempt.
type Outcome struct {
	AccountId string
	Status    account.Status
}

// Record maps a caller-supplied idempotency key to the progress and outcome
// of a provisioning attempt. The record doubles as the durable attempt
// journal: the payment intent id is recorded as soon as the intent is
// created, which is what lets the cleanup sweeper find intents abandoned
// before any account record was written.
type Record struct {
	Id uint64

	Key         string
	Fingerprint string

	State State

	IntentId *string
	Outcome  *Outcome

	CreatedAt time.Time
	ExpiresAt time.Time
}

// A suspended attempt can be re-reserved; a completed record is immutable.
var allowedTransitions = map[State][]State{
	StateReserved:  {StateSuspended, StateCompleted},
	StateSuspended: {StateReserved, StateCompleted},
}

func CanTransitionTo(from, to State) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (r *Record) IsInFlight() bool {
	return r.State == StateReserved || r.State == StateSuspended
}

func (r *Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(now)
}

func (r *Record) Clone() Record {
	var outcome *Outcome
	if r.Outcome != nil {
		cloned := *r.Outcome
		outcome = &cloned
	}

	return Record{
		Id: r.Id,

		Key:         r.Key,
		Fingerprint: r.Fingerprint,

		State: r.State,

		IntentId: pointer.StringCopy(r.IntentId),
		Outcome:  outcome,

		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Key = r.Key
	dst.Fingerprint = r.Fingerprint

	dst.State = r.State

	dst.IntentId = r.IntentId
	dst.Outcome = r.Outcome

	dst.CreatedAt = r.CreatedAt
	dst.ExpiresAt = r.ExpiresAt
}

func (r *Record) Validate() error {
	if len(r.Key) == 0 {
		return errors.New("idempotency key is required")
	}

	if len(r.Fingerprint) == 0 {
		return errors.New("request fingerprint is required")
	}

	if r.State == StateUnknown {
		return errors.New("state is required")
	}

	if r.State == StateCompleted && r.Outcome == nil {
		return errors.New("completed records must have an outcome")
	}

	return nil
}

func (s State) String() string {
	switch s {
	case StateReserved:
		return "reserved"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	}

	return "unknown"
}
