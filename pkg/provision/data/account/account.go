package account

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("no account records could be found")
	ErrExists             = errors.New("account record already exists")
	ErrIntentAlreadyBound = errors.New("payment intent is already bound to an account")
	ErrVersionMismatch    = errors.New("account record version mismatch")
	ErrNotPending         = errors.New("account record is not in the pending state")
	ErrInvalidRecord      = errors.New("invalid account record")
)

type Status uint8

const (
	StatusUnknown Status = iota
	StatusPending
	StatusActive
	StatusRejected
)

// Record is a durable account record. A record is created in the pending
// state bound to exactly one payment intent, and is promoted to active only
// after that intent is observed confirmed. Records are never deleted, only
// moved to a terminal state.
type Record struct {
	Id uint64

	AccountId string

	Username      string
	Email         string
	Plan          string
	CredentialRef string

	// The payment intent this record is bound to. Unique across all records.
	IntentId string

	Status Status

	// Token for conditional updates. Incremented on every successful write.
	Version uint64

	CreatedAt time.Time
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		AccountId: r.AccountId,

		Username:      r.Username,
		Email:         r.Email,
		Plan:          r.Plan,
		CredentialRef: r.CredentialRef,

		IntentId: r.IntentId,

		Status: r.Status,

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.AccountId = r.AccountId

	dst.Username = r.Username
	dst.Email = r.Email
	dst.Plan = r.Plan
	dst.CredentialRef = r.CredentialRef

	dst.IntentId = r.IntentId

	dst.Status = r.Status

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
}

func (r *Record) Validate() error {
	if len(r.AccountId) == 0 {
		return errors.New("account id is required")
	}

	if len(r.Username) == 0 {
		return errors.New("username is required")
	}

	if len(r.Email) == 0 {
		return errors.New("email is required")
	}

	if len(r.Plan) == 0 {
		return errors.New("plan is required")
	}

	if len(r.IntentId) == 0 {
		return errors.New("intent id is required")
	}

	if r.Status == StatusUnknown {
		return errors.New("status is required")
	}

	return nil
}

// Records are created pending and only ever move to a terminal state.
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusRejected},
}

func CanTransitionTo(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusActive, StatusRejected:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusRejected:
		return "rejected"
	}

	return "unknown"
}
