package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestFingerprint(t *testing.T) {
	base := newTestRequest("key1", "alice")

	// The payment method isn't part of the request identity
	detached := newTestRequest("key1", "alice")
	detached.PaymentMethodRef = ""
	assert.Equal(t, base.Fingerprint(), detached.Fingerprint())

	// Identity fields are normalized
	shouty := newTestRequest("key1", "alice")
	shouty.Username = "ALICE"
	shouty.Email = "Alice@Example.com"
	assert.Equal(t, base.Fingerprint(), shouty.Fingerprint())

	other := newTestRequest("key1", "alice")
	other.Plan = PlanPremium
	assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())

	otherCred := newTestRequest("key1", "alice")
	otherCred.CredentialRef = "cred_rotated"
	assert.NotEqual(t, base.Fingerprint(), otherCred.Fingerprint())
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, newTestRequest("key1", "alice").Validate())

	missingKey := newTestRequest("", "alice")
	assert.Error(t, missingKey.Validate())

	badEmail := newTestRequest("key1", "alice")
	badEmail.Email = "not-an-email"
	assert.Error(t, badEmail.Validate())

	missingCred := newTestRequest("key1", "alice")
	missingCred.CredentialRef = ""
	assert.Error(t, missingCred.Validate())
}
