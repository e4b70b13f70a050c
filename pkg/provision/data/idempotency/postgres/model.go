package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/cloudfusionadmin/filevaults/pkg/database/postgres"
	"github.com/cloudfusionadmin/filevaults/pkg/pointer"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency"
)

const (
	tableName = "filevaults__core_idempotency"

	allFields = "id, idempotency_key, fingerprint, state, intent_id, outcome_account_id, outcome_status, created_at, expires_at"
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Key         string `db:"idempotency_key"`
	Fingerprint string `db:"fingerprint"`

	State uint8 `db:"state"`

	IntentId         sql.NullString `db:"intent_id"`
	OutcomeAccountId sql.NullString `db:"outcome_account_id"`
	OutcomeStatus    sql.NullInt64  `db:"outcome_status"`

	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func fromModel(obj *model) *idempotency.Record {
	var outcome *idempotency.Outcome
	if obj.OutcomeStatus.Valid {
		outcome = &idempotency.Outcome{
			AccountId: obj.OutcomeAccountId.String,
			Status:    account.Status(obj.OutcomeStatus.Int64),
		}
	}

	return &idempotency.Record{
		Id: uint64(obj.Id.Int64),

		Key:         obj.Key,
		Fingerprint: obj.Fingerprint,

		State: idempotency.State(obj.State),

		IntentId: pointer.StringIfValid(obj.IntentId.Valid, obj.IntentId.String),
		Outcome:  outcome,

		CreatedAt: obj.CreatedAt,
		ExpiresAt: obj.ExpiresAt,
	}
}

func dbReserve(ctx context.Context, db *sqlx.DB, key, fingerprint string, expiry time.Time) (*model, error) {
	var res model
	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		now := time.Now()

		var current model
		err := tx.GetContext(ctx, &current, `SELECT `+allFields+` FROM `+tableName+` WHERE idempotency_key = $1 FOR UPDATE`, key)
		if err != nil && !pgutil.IsNoRows(err) {
			return err
		}

		if err == nil && current.ExpiresAt.After(now) {
			if current.Fingerprint != fingerprint {
				return idempotency.ErrFingerprintMismatch
			}

			switch idempotency.State(current.State) {
			case idempotency.StateCompleted:
				res = current
				return nil
			case idempotency.StateReserved:
				return idempotency.ErrAttemptInProgress
			}

			// Re-reserve a suspended attempt, keeping the recorded intent
			return tx.QueryRowxContext(
				ctx,
				`UPDATE `+tableName+` SET state = $2, expires_at = $3 WHERE idempotency_key = $1 RETURNING `+allFields,
				key,
				uint8(idempotency.StateReserved),
				expiry,
			).StructScan(&res)
		}

		if err == nil {
			// Expired records are reusable as if absent
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+tableName+` WHERE idempotency_key = $1`, key); err != nil {
				return err
			}
		}

		return tx.QueryRowxContext(
			ctx,
			`INSERT INTO `+tableName+`
				(idempotency_key, fingerprint, state, created_at, expires_at)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING `+allFields,
			key,
			fingerprint,
			uint8(idempotency.StateReserved),
			now,
			expiry,
		).StructScan(&res)
	})
	if err != nil {
		// Two racing inserts for the same new key surface as a unique
		// violation for the loser.
		return nil, pgutil.CheckUniqueViolation(err, idempotency.ErrAttemptInProgress)
	}
	return &res, nil
}

func dbGet(ctx context.Context, db *sqlx.DB, key string) (*model, error) {
	var res model
	err := db.GetContext(ctx, &res, `SELECT `+allFields+` FROM `+tableName+` WHERE idempotency_key = $1 AND expires_at > $2`, key, time.Now())
	if err != nil {
		return nil, pgutil.CheckNoRows(err, idempotency.ErrNotFound)
	}
	return &res, nil
}

func dbMarkIntent(ctx context.Context, db *sqlx.DB, key, intentId string) error {
	return dbUpdateInFlight(ctx, db, key, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE `+tableName+` SET intent_id = $2 WHERE idempotency_key = $1`, key, intentId)
		return err
	})
}

func dbSuspend(ctx context.Context, db *sqlx.DB, key string) error {
	return dbUpdateInFlight(ctx, db, key, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE `+tableName+` SET state = $2 WHERE idempotency_key = $1`, key, uint8(idempotency.StateSuspended))
		return err
	})
}

func dbUpdateInFlight(ctx context.Context, db *sqlx.DB, key string, fn func(tx *sqlx.Tx) error) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		var current model
		err := tx.GetContext(ctx, &current, `SELECT `+allFields+` FROM `+tableName+` WHERE idempotency_key = $1 FOR UPDATE`, key)
		if err != nil {
			return pgutil.CheckNoRows(err, idempotency.ErrNotFound)
		}

		if idempotency.State(current.State) == idempotency.StateCompleted {
			return idempotency.ErrNotInFlight
		}

		return fn(tx)
	})
}

func dbComplete(ctx context.Context, db *sqlx.DB, key string, outcome *idempotency.Outcome) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		var current model
		err := tx.GetContext(ctx, &current, `SELECT `+allFields+` FROM `+tableName+` WHERE idempotency_key = $1 FOR UPDATE`, key)
		if err != nil {
			return pgutil.CheckNoRows(err, idempotency.ErrNotFound)
		}

		if idempotency.State(current.State) == idempotency.StateCompleted {
			return nil
		}

		_, err = tx.ExecContext(
			ctx,
			`UPDATE `+tableName+` SET state = $2, outcome_account_id = $3, outcome_status = $4 WHERE idempotency_key = $1`,
			key,
			uint8(idempotency.StateCompleted),
			outcome.AccountId,
			uint8(outcome.Status),
		)
		return err
	})
}

func dbGetStaleInFlight(ctx context.Context, db *sqlx.DB, createdBefore time.Time, limit uint64) ([]*model, error) {
	res := []*model{}
	err := db.SelectContext(
		ctx,
		&res,
		`SELECT `+allFields+` FROM `+tableName+`
			WHERE state IN ($1, $2) AND created_at < $3
			ORDER BY created_at ASC
			LIMIT $4`,
		uint8(idempotency.StateReserved),
		uint8(idempotency.StateSuspended),
		createdBefore,
		limit,
	)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, idempotency.ErrNotFound
	}

	return res, nil
}

func dbCountInFlight(ctx context.Context, db *sqlx.DB) (uint64, error) {
	var res uint64
	err := db.GetContext(
		ctx,
		&res,
		`SELECT COUNT(*) FROM `+tableName+` WHERE state IN ($1, $2)`,
		uint8(idempotency.StateReserved),
		uint8(idempotency.StateSuspended),
	)
	if err != nil {
		return 0, err
	}
	return res, nil
}
