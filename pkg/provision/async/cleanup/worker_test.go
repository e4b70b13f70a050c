package async_cleanup

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
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency"
)

type testEnv struct {
	ctx     context.Context
	data    data.Provider
	gateway *payment_memory.Gateway
	worker  *service
}

func setup(t *testing.T, ttl time.Duration) *testEnv {
	gateway := payment_memory.New()
	provider := data.NewTestDataProvider()

	worker := New(provider, gateway, withManualTestOverrides(&testOverrides{
		attemptTTL: ttl,
	})).(*service)

	return &testEnv{
		ctx:     context.Background(),
		data:    provider,
		gateway: gateway,
		worker:  worker,
	}
}

// seedAbandonedAttempt journals a reserved attempt the way the coordinator
// would, stopping right after the pending record is written.
func (env *testEnv) seedAbandonedAttempt(t *testing.T, key, username string) (*payment.Intent, *account.Record) {
	_, err := env.data.ReserveIdempotencyKey(env.ctx, key, "fingerprint_"+key, time.Now().Add(time.Hour))
	require.NoError(t, err)

	intent, err := env.gateway.CreateIntent(env.ctx, 1500, "usd")
	require.NoError(t, err)
	require.NoError(t, env.data.MarkIdempotencyIntent(env.ctx, key, intent.Id))

	record := &account.Record{
		AccountId:     "account_" + username,
		Username:      username,
		Email:         username + "@example.com",
		Plan:          "standard",
		CredentialRef: "cred_" + username,
		IntentId:      intent.Id,
		Status:        account.StatusPending,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, env.data.InsertPendingAccount(env.ctx, record))

	return intent, record
}

func TestSweep_ReconcilesConfirmedIntent(t *testing.T) {
	env := setup(t, 0)

	intent, record := env.seedAbandonedAttempt(t, "key1", "alice")

	// The intent made it all the way to confirmed before the attempt died
	require.NoError(t, env.gateway.AttachMethod(env.ctx, intent.Id, "pm_alice"))
	_, err := env.gateway.ConfirmIntent(env.ctx, intent.Id)
	require.NoError(t, err)

	require.NoError(t, env.worker.sweep(env.ctx))

	actual, err := env.data.GetAccount(env.ctx, record.AccountId)
	require.NoError(t, err)
	assert.Equal(t, account.StatusActive, actual.Status)

	entry, err := env.data.GetIdempotencyKey(env.ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StateCompleted, entry.State)
	assert.Equal(t, account.StatusActive, entry.Outcome.Status)
	assert.Equal(t, record.AccountId, entry.Outcome.AccountId)
}

func TestSweep_CompensatesUnconfirmedIntent(t *testing.T) {
	env := setup(t, 0)

	intent, record := env.seedAbandonedAttempt(t, "key1", "alice")

	require.NoError(t, env.worker.sweep(env.ctx))

	canceled, ok := env.gateway.GetIntentById(intent.Id)
	require.True(t, ok)
	assert.Equal(t, payment.StatusCanceled, canceled.Status)

	actual, err := env.data.GetAccount(env.ctx, record.AccountId)
	require.NoError(t, err)
	assert.Equal(t, account.StatusRejected, actual.Status)

	entry, err := env.data.GetIdempotencyKey(env.ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StateCompleted, entry.State)
	assert.Equal(t, account.StatusRejected, entry.Outcome.Status)
}

func TestSweep_AttemptWithNoIntent(t *testing.T) {
	env := setup(t, 0)

	_, err := env.data.ReserveIdempotencyKey(env.ctx, "key1", "fingerprint", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, env.worker.sweep(env.ctx))

	entry, err := env.data.GetIdempotencyKey(env.ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StateCompleted, entry.State)
	assert.Equal(t, account.StatusRejected, entry.Outcome.Status)
	assert.Empty(t, entry.Outcome.AccountId)
}

func TestSweep_HonorsTTL(t *testing.T) {
	env := setup(t, time.Hour)

	intent, record := env.seedAbandonedAttempt(t, "key1", "alice")

	// The attempt is younger than the TTL, so nothing is touched
	require.NoError(t, env.worker.sweep(env.ctx))

	current, ok := env.gateway.GetIntentById(intent.Id)
	require.True(t, ok)
	assert.Equal(t, payment.StatusCreated, current.Status)

	actual, err := env.data.GetAccount(env.ctx, record.AccountId)
	require.NoError(t, err)
	assert.Equal(t, account.StatusPending, actual.Status)
}

func TestSweep_RerunIsNoOp(t *testing.T) {
	env := setup(t, 0)

	env.seedAbandonedAttempt(t, "key1", "alice")

	require.NoError(t, env.worker.sweep(env.ctx))
	cancels := env.gateway.CallCount("CancelIntent")

	require.NoError(t, env.worker.sweep(env.ctx))
	assert.Equal(t, cancels, env.gateway.CallCount("CancelIntent"))
}
