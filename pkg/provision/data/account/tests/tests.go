package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
)

func RunTests(t *testing.T, s account.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s account.Store){
		testRoundTrip,
		testInsertConflicts,
		testPromote,
		testReject,
		testCountByStatus,
	} {
		tf(t, s)
		teardown()
	}
}

func newPendingRecord(accountId, username, intentId string) *account.Record {
	return &account.Record{
		AccountId:     accountId,
		Username:      username,
		Email:         username + "@example.com",
		Plan:          "standard",
		CredentialRef: "cred_" + username,
		IntentId:      intentId,
		Status:        account.StatusPending,
		CreatedAt:     time.Now(),
	}
}

func testRoundTrip(t *testing.T, s account.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "test_account_id")
		require.Error(t, err)
		assert.Equal(t, account.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := newPendingRecord("test_account_id", "alice", "test_intent_id")
		cloned := expected.Clone()
		require.NoError(t, s.InsertPending(ctx, expected))

		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err = s.Get(ctx, "test_account_id")
		require.NoError(t, err)
		assert.Equal(t, cloned.AccountId, actual.AccountId)
		assert.Equal(t, cloned.Username, actual.Username)
		assert.Equal(t, cloned.Email, actual.Email)
		assert.Equal(t, cloned.Plan, actual.Plan)
		assert.Equal(t, cloned.CredentialRef, actual.CredentialRef)
		assert.Equal(t, cloned.IntentId, actual.IntentId)
		assert.Equal(t, account.StatusPending, actual.Status)
		assert.EqualValues(t, 1, actual.Version)
		assert.Equal(t, cloned.CreatedAt.Unix(), actual.CreatedAt.Unix())

		byIntent, err := s.GetByIntent(ctx, "test_intent_id")
		require.NoError(t, err)
		assert.Equal(t, actual.AccountId, byIntent.AccountId)

		_, err = s.GetByIntent(ctx, "other_intent_id")
		assert.Equal(t, account.ErrNotFound, err)
	})
}

func testInsertConflicts(t *testing.T, s account.Store) {
	t.Run("testInsertConflicts", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.InsertPending(ctx, newPendingRecord("account1", "alice", "intent1")))

		err := s.InsertPending(ctx, newPendingRecord("account1", "bob", "intent2"))
		assert.Equal(t, account.ErrExists, err)

		err = s.InsertPending(ctx, newPendingRecord("account2", "alice", "intent2"))
		assert.Equal(t, account.ErrExists, err)

		err = s.InsertPending(ctx, newPendingRecord("account2", "bob", "intent1"))
		assert.Equal(t, account.ErrIntentAlreadyBound, err)

		invalid := newPendingRecord("account3", "carol", "intent3")
		invalid.Status = account.StatusActive
		assert.Error(t, s.InsertPending(ctx, invalid))
	})
}

func testPromote(t *testing.T, s account.Store) {
	t.Run("testPromote", func(t *testing.T) {
		ctx := context.Background()

		assert.Equal(t, account.ErrNotFound, s.Promote(ctx, "missing", 1))

		record := newPendingRecord("test_account_id", "alice", "test_intent_id")
		require.NoError(t, s.InsertPending(ctx, record))

		err := s.Promote(ctx, record.AccountId, record.Version+1)
		assert.Equal(t, account.ErrVersionMismatch, err)

		actual, err := s.Get(ctx, record.AccountId)
		require.NoError(t, err)
		assert.Equal(t, account.StatusPending, actual.Status)

		require.NoError(t, s.Promote(ctx, record.AccountId, record.Version))

		actual, err = s.Get(ctx, record.AccountId)
		require.NoError(t, err)
		assert.Equal(t, account.StatusActive, actual.Status)
		assert.Equal(t, record.Version+1, actual.Version)

		err = s.Promote(ctx, record.AccountId, actual.Version)
		assert.Equal(t, account.ErrNotPending, err)
	})
}

func testReject(t *testing.T, s account.Store) {
	t.Run("testReject", func(t *testing.T) {
		ctx := context.Background()

		assert.Equal(t, account.ErrNotFound, s.Reject(ctx, "missing"))

		record := newPendingRecord("account1", "alice", "intent1")
		require.NoError(t, s.InsertPending(ctx, record))
		require.NoError(t, s.Reject(ctx, record.AccountId))

		actual, err := s.Get(ctx, record.AccountId)
		require.NoError(t, err)
		assert.Equal(t, account.StatusRejected, actual.Status)

		// Rejecting an already rejected record is a no-op
		require.NoError(t, s.Reject(ctx, record.AccountId))

		// Rejected records don't reserve the username
		require.NoError(t, s.InsertPending(ctx, newPendingRecord("account3", "alice", "intent3")))

		promoted := newPendingRecord("account2", "bob", "intent2")
		require.NoError(t, s.InsertPending(ctx, promoted))
		require.NoError(t, s.Promote(ctx, promoted.AccountId, promoted.Version))

		err = s.Reject(ctx, promoted.AccountId)
		assert.Equal(t, account.ErrNotPending, err)
	})
}

func testCountByStatus(t *testing.T, s account.Store) {
	t.Run("testCountByStatus", func(t *testing.T) {
		ctx := context.Background()

		count, err := s.CountByStatus(ctx, account.StatusPending)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		require.NoError(t, s.InsertPending(ctx, newPendingRecord("account1", "alice", "intent1")))
		require.NoError(t, s.InsertPending(ctx, newPendingRecord("account2", "bob", "intent2")))

		record := newPendingRecord("account3", "carol", "intent3")
		require.NoError(t, s.InsertPending(ctx, record))
		require.NoError(t, s.Promote(ctx, record.AccountId, record.Version))

		count, err = s.CountByStatus(ctx, account.StatusPending)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)

		count, err = s.CountByStatus(ctx, account.StatusActive)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}
