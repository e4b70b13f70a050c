package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) account.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// InsertPending durably creates a new account record in the pending state.
func (s *store) InsertPending(ctx context.Context, record *account.Record) error {
	if record.Status != account.StatusPending {
		return account.ErrInvalidRecord
	}

	obj, err := toModel(record)
	if err != nil {
		return err
	}

	if err := obj.dbInsertPending(ctx, s.db); err != nil {
		return err
	}

	fromModel(obj).CopyTo(record)

	return nil
}

// Promote conditionally moves a pending record to active.
func (s *store) Promote(ctx context.Context, accountId string, expectedVersion uint64) error {
	return dbPromote(ctx, s.db, accountId, expectedVersion)
}

// Reject moves a record to the rejected state.
func (s *store) Reject(ctx context.Context, accountId string) error {
	return dbReject(ctx, s.db, accountId)
}

// Get finds the record for a given account ID.
func (s *store) Get(ctx context.Context, accountId string) (*account.Record, error) {
	obj, err := dbGetByAccountId(ctx, s.db, accountId)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

// GetByIntent finds the record bound to a given payment intent ID.
func (s *store) GetByIntent(ctx context.Context, intentId string) (*account.Record, error) {
	obj, err := dbGetByIntentId(ctx, s.db, intentId)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

// CountByStatus gets a count of account records in the provided status.
func (s *store) CountByStatus(ctx context.Context, status account.Status) (uint64, error) {
	return dbCountByStatus(ctx, s.db, status)
}
