package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) idempotency.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Reserve atomically claims a key for a request fingerprint.
func (s *store) Reserve(ctx context.Context, key, fingerprint string, expiry time.Time) (*idempotency.Record, error) {
	obj, err := dbReserve(ctx, s.db, key, fingerprint, expiry)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

// Get finds the record for a key.
func (s *store) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	obj, err := dbGet(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

// MarkIntent records the payment intent id driven by this attempt.
func (s *store) MarkIntent(ctx context.Context, key, intentId string) error {
	return dbMarkIntent(ctx, s.db, key, intentId)
}

// Suspend moves a reserved record to the suspended state.
func (s *store) Suspend(ctx context.Context, key string) error {
	return dbSuspend(ctx, s.db, key)
}

// Complete memoizes the terminal outcome for a key.
func (s *store) Complete(ctx context.Context, key string, outcome *idempotency.Outcome) error {
	return dbComplete(ctx, s.db, key, outcome)
}

// GetStaleInFlight returns up to limit in-flight records created before the
// provided timestamp.
func (s *store) GetStaleInFlight(ctx context.Context, createdBefore time.Time, limit uint64) ([]*idempotency.Record, error) {
	objs, err := dbGetStaleInFlight(ctx, s.db, createdBefore, limit)
	if err != nil {
		return nil, err
	}

	res := make([]*idempotency.Record, len(objs))
	for i, obj := range objs {
		res[i] = fromModel(obj)
	}
	return res, nil
}

// CountInFlight gets a count of in-flight records.
func (s *store) CountInFlight(ctx context.Context) (uint64, error) {
	return dbCountInFlight(ctx, s.db)
}
