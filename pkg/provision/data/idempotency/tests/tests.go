package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency"
)

func RunTests(t *testing.T, s idempotency.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s idempotency.Store){
		testReserveRoundTrip,
		testReserveConflicts,
		testSuspendAndResume,
		testComplete,
		testExpiry,
		testGetStaleInFlight,
	} {
		tf(t, s)
		teardown()
	}
}

func testReserveRoundTrip(t *testing.T, s idempotency.Store) {
	t.Run("testReserveRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "key1")
		require.Error(t, err)
		assert.Equal(t, idempotency.ErrNotFound, err)
		assert.Nil(t, actual)

		expiry := time.Now().Add(time.Hour)
		record, err := s.Reserve(ctx, "key1", "fingerprint1", expiry)
		require.NoError(t, err)
		assert.Equal(t, idempotency.StateReserved, record.State)
		assert.Nil(t, record.IntentId)
		assert.Nil(t, record.Outcome)

		require.NoError(t, s.MarkIntent(ctx, "key1", "intent1"))

		actual, err = s.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, "key1", actual.Key)
		assert.Equal(t, "fingerprint1", actual.Fingerprint)
		assert.Equal(t, idempotency.StateReserved, actual.State)
		require.NotNil(t, actual.IntentId)
		assert.Equal(t, "intent1", *actual.IntentId)
		assert.Equal(t, expiry.Unix(), actual.ExpiresAt.Unix())
	})
}

func testReserveConflicts(t *testing.T, s idempotency.Store) {
	t.Run("testReserveConflicts", func(t *testing.T) {
		ctx := context.Background()
		expiry := time.Now().Add(time.Hour)

		_, err := s.Reserve(ctx, "key1", "fingerprint1", expiry)
		require.NoError(t, err)

		_, err = s.Reserve(ctx, "key1", "fingerprint2", expiry)
		assert.Equal(t, idempotency.ErrFingerprintMismatch, err)

		_, err = s.Reserve(ctx, "key1", "fingerprint1", expiry)
		assert.Equal(t, idempotency.ErrAttemptInProgress, err)
	})
}

func testSuspendAndResume(t *testing.T, s idempotency.Store) {
	t.Run("testSuspendAndResume", func(t *testing.T) {
		ctx := context.Background()
		expiry := time.Now().Add(time.Hour)

		assert.Equal(t, idempotency.ErrNotFound, s.Suspend(ctx, "key1"))

		_, err := s.Reserve(ctx, "key1", "fingerprint1", expiry)
		require.NoError(t, err)
		require.NoError(t, s.MarkIntent(ctx, "key1", "intent1"))
		require.NoError(t, s.Suspend(ctx, "key1"))

		actual, err := s.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, idempotency.StateSuspended, actual.State)

		_, err = s.Reserve(ctx, "key1", "fingerprint2", expiry)
		assert.Equal(t, idempotency.ErrFingerprintMismatch, err)

		// Re-reserving a suspended attempt keeps the recorded intent
		resumed, err := s.Reserve(ctx, "key1", "fingerprint1", expiry)
		require.NoError(t, err)
		assert.Equal(t, idempotency.StateReserved, resumed.State)
		require.NotNil(t, resumed.IntentId)
		assert.Equal(t, "intent1", *resumed.IntentId)
	})
}

func testComplete(t *testing.T, s idempotency.Store) {
	t.Run("testComplete", func(t *testing.T) {
		ctx := context.Background()
		expiry := time.Now().Add(time.Hour)

		outcome := &idempotency.Outcome{
			AccountId: "account1",
			Status:    account.StatusActive,
		}

		assert.Equal(t, idempotency.ErrNotFound, s.Complete(ctx, "key1", outcome))

		_, err := s.Reserve(ctx, "key1", "fingerprint1", expiry)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, "key1", outcome))

		actual, err := s.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, idempotency.StateCompleted, actual.State)
		require.NotNil(t, actual.Outcome)
		assert.Equal(t, "account1", actual.Outcome.AccountId)
		assert.Equal(t, account.StatusActive, actual.Outcome.Status)

		// Completing an already completed record is a no-op
		require.NoError(t, s.Complete(ctx, "key1", &idempotency.Outcome{
			AccountId: "account2",
			Status:    account.StatusRejected,
		}))
		actual, err = s.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, "account1", actual.Outcome.AccountId)

		assert.Equal(t, idempotency.ErrNotInFlight, s.MarkIntent(ctx, "key1", "intent1"))
		assert.Equal(t, idempotency.ErrNotInFlight, s.Suspend(ctx, "key1"))

		// The memoized outcome is returned on reserve
		memoized, err := s.Reserve(ctx, "key1", "fingerprint1", expiry)
		require.NoError(t, err)
		assert.Equal(t, idempotency.StateCompleted, memoized.State)
		require.NotNil(t, memoized.Outcome)
		assert.Equal(t, "account1", memoized.Outcome.AccountId)
	})
}

func testExpiry(t *testing.T, s idempotency.Store) {
	t.Run("testExpiry", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Reserve(ctx, "key1", "fingerprint1", time.Now().Add(-time.Minute))
		require.NoError(t, err)

		_, err = s.Get(ctx, "key1")
		assert.Equal(t, idempotency.ErrNotFound, err)

		// An expired key is reusable as if absent, even with a new fingerprint
		record, err := s.Reserve(ctx, "key1", "fingerprint2", time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, idempotency.StateReserved, record.State)
		assert.Equal(t, "fingerprint2", record.Fingerprint)
	})
}

func testGetStaleInFlight(t *testing.T, s idempotency.Store) {
	t.Run("testGetStaleInFlight", func(t *testing.T) {
		ctx := context.Background()
		expiry := time.Now().Add(time.Hour)

		_, err := s.GetStaleInFlight(ctx, time.Now(), 10)
		assert.Equal(t, idempotency.ErrNotFound, err)

		_, err = s.Reserve(ctx, "key1", "fingerprint1", expiry)
		require.NoError(t, err)
		_, err = s.Reserve(ctx, "key2", "fingerprint2", expiry)
		require.NoError(t, err)
		require.NoError(t, s.Suspend(ctx, "key2"))
		_, err = s.Reserve(ctx, "key3", "fingerprint3", expiry)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, "key3", &idempotency.Outcome{
			AccountId: "account3",
			Status:    account.StatusActive,
		}))

		count, err := s.CountInFlight(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)

		// Nothing is stale yet
		_, err = s.GetStaleInFlight(ctx, time.Now().Add(-time.Minute), 10)
		assert.Equal(t, idempotency.ErrNotFound, err)

		stale, err := s.GetStaleInFlight(ctx, time.Now().Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 2)
		assert.Equal(t, "key1", stale[0].Key)
		assert.Equal(t, "key2", stale[1].Key)

		stale, err = s.GetStaleInFlight(ctx, time.Now().Add(time.Minute), 1)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "key1", stale[0].Key)
	})
}
