package provision

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// Supported subscription plans
const (
	PlanBasic    = "basic"
	PlanStandard = "standard"
	PlanPremium  = "premium"
)

// Request is a caller's intent to provision a paid account.
type Request struct {
	IdempotencyKey string

	Username      string
	Email         string
	Plan          string
	CredentialRef string

	// PaymentMethodRef is optional. When absent, the attempt stops after
	// creating the payment intent and returns the client secret so the caller
	// can attach a method client-side and re-submit with the same key.
	PaymentMethodRef string
}

func (r *Request) Validate() error {
	if len(r.IdempotencyKey) == 0 {
		return errors.New("idempotency key is required")
	}

	if len(r.Username) == 0 {
		return errors.New("username is required")
	}

	if len(r.Email) == 0 || !strings.Contains(r.Email, "@") {
		return errors.New("a valid email is required")
	}

	if len(r.Plan) == 0 {
		return errors.New("plan is required")
	}

	if len(r.CredentialRef) == 0 {
		return errors.New("credential reference is required")
	}

	return nil
}

// Fingerprint normalizes the identity fields of the request into a stable
// hash. The payment method reference is deliberately excluded, so a caller
// can re-submit the same key after attaching a method client-side without
// tripping the reuse check.
func (r *Request) Fingerprint() string {
	normalized := strings.Join(
		[]string{
			strings.ToLower(r.Username),
			strings.ToLower(r.Email),
			r.Plan,
			r.CredentialRef,
		},
		"|",
	)

	hashed := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hashed[:])
}
