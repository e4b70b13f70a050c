package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudfusionadmin/filevaults/pkg/payment"
	payment_memory "github.com/cloudfusionadmin/filevaults/pkg/payment/memory"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
)

type testEnv struct {
	ctx         context.Context
	data        data.Provider
	gateway     *payment_memory.Gateway
	coordinator *Coordinator
}

func setup(t *testing.T) *testEnv {
	gateway := payment_memory.New()
	provider := data.NewTestDataProvider()

	return &testEnv{
		ctx:         context.Background(),
		data:        provider,
		gateway:     gateway,
		coordinator: NewCoordinator(provider, gateway, withManualTestOverrides(&testOverrides{})),
	}
}

func maxTestExpiry() time.Time {
	return time.Now().Add(time.Hour)
}

func newTestRequest(key, username string) *Request {
	return &Request{
		IdempotencyKey:   key,
		Username:         username,
		Email:            username + "@example.com",
		Plan:             PlanStandard,
		CredentialRef:    "cred_" + username,
		PaymentMethodRef: "pm_" + username,
	}
}

func TestProvision_HappyPath(t *testing.T) {
	env := setup(t)

	req := newTestRequest("key1", "alice")

	res, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccountId)
	assert.Equal(t, account.StatusActive, res.Status)

	record, err := env.data.GetAccount(env.ctx, res.AccountId)
	require.NoError(t, err)
	assert.Equal(t, account.StatusActive, record.Status)
	assert.Equal(t, "alice", record.Username)

	intent, ok := env.gateway.GetIntentById(record.IntentId)
	require.True(t, ok)
	assert.Equal(t, payment.StatusConfirmed, intent.Status)
}

func TestProvision_MemoizedReplay(t *testing.T) {
	env := setup(t)

	req := newTestRequest("key1", "alice")

	first, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)

	creates := env.gateway.CallCount("CreateIntent")
	confirms := env.gateway.CallCount("ConfirmIntent")

	replayed, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.AccountId, replayed.AccountId)
	assert.Equal(t, first.Status, replayed.Status)

	// A replay must not touch the gateway
	assert.Equal(t, creates, env.gateway.CallCount("CreateIntent"))
	assert.Equal(t, confirms, env.gateway.CallCount("ConfirmIntent"))
}

func TestProvision_ClientSideAttachFlow(t *testing.T) {
	env := setup(t)

	req := newTestRequest("key1", "alice")
	req.PaymentMethodRef = ""

	res, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, account.StatusPending, res.Status)
	assert.NotEmpty(t, res.ClientSecret)

	// The pending record is durable and bound to the intent before any
	// confirmation happens
	record, err := env.data.GetAccount(env.ctx, res.AccountId)
	require.NoError(t, err)
	assert.Equal(t, account.StatusPending, record.Status)
	assert.EqualValues(t, 0, env.gateway.CallCount("ConfirmIntent"))

	// Attach client-side, then re-submit with the same key
	require.NoError(t, env.gateway.AttachMethod(env.ctx, record.IntentId, "pm_alice"))

	resumed, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, res.AccountId, resumed.AccountId)
	assert.Equal(t, account.StatusActive, resumed.Status)

	// The original intent was reused
	assert.EqualValues(t, 1, env.gateway.CallCount("CreateIntent"))
}

func TestProvision_FingerprintConflict(t *testing.T) {
	env := setup(t)

	_, err := env.coordinator.Provision(env.ctx, newTestRequest("key1", "alice"))
	require.NoError(t, err)

	_, err = env.coordinator.Provision(env.ctx, newTestRequest("key1", "bob"))
	assert.Equal(t, ErrIdempotencyConflict, err)
}

func TestProvision_ConcurrentDuplicate(t *testing.T) {
	env := setup(t)

	req := newTestRequest("key1", "alice")

	// Another caller holds the reservation
	_, err := env.data.ReserveIdempotencyKey(env.ctx, req.IdempotencyKey, req.Fingerprint(), maxTestExpiry())
	require.NoError(t, err)

	_, err = env.coordinator.Provision(env.ctx, req)
	assert.Equal(t, ErrAttemptInProgress, err)
}

func TestProvision_ValidationFailuresHaveNoSideEffects(t *testing.T) {
	env := setup(t)

	for _, invalid := range []*Request{
		{},
		newTestRequest("", "alice"),
		newTestRequest("key1", ""),
		{IdempotencyKey: "key1", Username: "alice", Email: "not-an-email", Plan: PlanBasic, CredentialRef: "cred"},
	} {
		_, err := env.coordinator.Provision(env.ctx, invalid)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}

	req := newTestRequest("key1", "alice")
	req.Plan = "platinum"
	_, err := env.coordinator.Provision(env.ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.EqualValues(t, 0, env.gateway.CallCount("CreateIntent"))

	_, err = env.coordinator.GetStatus(env.ctx, "key1")
	assert.Equal(t, ErrNotFound, err)
}

func TestProvision_Declined(t *testing.T) {
	env := setup(t)

	env.gateway.SimulateConfirmDecline()

	res, err := env.coordinator.Provision(env.ctx, newTestRequest("key1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, account.StatusRejected, res.Status)

	record, err := env.data.GetAccount(env.ctx, res.AccountId)
	require.NoError(t, err)
	assert.Equal(t, account.StatusRejected, record.Status)

	intent, ok := env.gateway.GetIntentById(record.IntentId)
	require.True(t, ok)
	assert.Equal(t, payment.StatusCanceled, intent.Status)

	// The decline is memoized
	creates := env.gateway.CallCount("CreateIntent")
	replayed, err := env.coordinator.Provision(env.ctx, newTestRequest("key1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, account.StatusRejected, replayed.Status)
	assert.Equal(t, creates, env.gateway.CallCount("CreateIntent"))

	// The username is free for a fresh attempt
	res, err = env.coordinator.Provision(env.ctx, newTestRequest("key2", "alice"))
	require.NoError(t, err)
	assert.Equal(t, account.StatusActive, res.Status)
}

func TestProvision_TransientFailureResumesSameIntent(t *testing.T) {
	env := setup(t)

	// Exactly exhaust the retry budget for confirmation
	env.gateway.SimulateUnavailability(defaultMaxGatewayAttempts, "ConfirmIntent")

	req := newTestRequest("key1", "alice")

	_, err := env.coordinator.Provision(env.ctx, req)
	assert.Equal(t, ErrInternal, err)

	// No account went active on an unconfirmed intent
	count, err := env.data.CountAccountsByStatus(env.ctx, account.StatusActive)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// Re-driving with the same key picks up the same intent
	res, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, account.StatusActive, res.Status)
	assert.EqualValues(t, 1, env.gateway.CallCount("CreateIntent"))
}

func TestProvision_DeadIntentReplacedOnResume(t *testing.T) {
	env := setup(t)

	req := newTestRequest("key1", "alice")
	req.PaymentMethodRef = ""

	res, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, account.StatusPending, res.Status)

	// The intent dies before the caller comes back
	record, err := env.data.GetAccount(env.ctx, res.AccountId)
	require.NoError(t, err)
	require.NoError(t, env.gateway.CancelIntent(env.ctx, record.IntentId))

	req.PaymentMethodRef = "pm_alice"
	resumed, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, account.StatusActive, resumed.Status)

	// A fresh intent and a fresh record replaced the dead ones
	assert.NotEqual(t, res.AccountId, resumed.AccountId)
	assert.EqualValues(t, 2, env.gateway.CallCount("CreateIntent"))

	original, err := env.data.GetAccount(env.ctx, res.AccountId)
	require.NoError(t, err)
	assert.Equal(t, account.StatusRejected, original.Status)
}

func TestProvision_UsernameTaken(t *testing.T) {
	env := setup(t)

	_, err := env.coordinator.Provision(env.ctx, newTestRequest("key1", "alice"))
	require.NoError(t, err)

	req := newTestRequest("key2", "alice")
	req.CredentialRef = "cred_other"

	_, err = env.coordinator.Provision(env.ctx, req)
	assert.Equal(t, ErrAccountExists, err)

	// The unusable intent was released
	assert.EqualValues(t, 1, env.gateway.CallCount("CancelIntent"))

	// The outcome is memoized for the key
	res, err := env.coordinator.GetStatus(env.ctx, "key2")
	require.NoError(t, err)
	assert.Equal(t, account.StatusRejected, res.Status)
}

func TestGetStatus(t *testing.T) {
	env := setup(t)

	_, err := env.coordinator.GetStatus(env.ctx, "key1")
	assert.Equal(t, ErrNotFound, err)

	req := newTestRequest("key1", "alice")
	req.PaymentMethodRef = ""

	pending, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)

	res, err := env.coordinator.GetStatus(env.ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, pending.AccountId, res.AccountId)
	assert.Equal(t, account.StatusPending, res.Status)

	req.PaymentMethodRef = "pm_alice"
	completed, err := env.coordinator.Provision(env.ctx, req)
	require.NoError(t, err)

	res, err = env.coordinator.GetStatus(env.ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, completed.AccountId, res.AccountId)
	assert.Equal(t, account.StatusActive, res.Status)
}
