package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/cloudfusionadmin/filevaults/pkg/database/postgres"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
)

const (
	tableName = "filevaults__core_account"

	allFields = "id, account_id, username, email, plan, credential_ref, intent_id, status, version, created_at"
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	AccountId string `db:"account_id"`

	Username      string `db:"username"`
	Email         string `db:"email"`
	Plan          string `db:"plan"`
	CredentialRef string `db:"credential_ref"`

	IntentId string `db:"intent_id"`

	Status  uint8  `db:"status"`
	Version uint64 `db:"version"`

	CreatedAt time.Time `db:"created_at"`
}

func toModel(obj *account.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	return &model{
		AccountId: obj.AccountId,

		Username:      obj.Username,
		Email:         obj.Email,
		Plan:          obj.Plan,
		CredentialRef: obj.CredentialRef,

		IntentId: obj.IntentId,

		Status:  uint8(obj.Status),
		Version: obj.Version,

		CreatedAt: obj.CreatedAt,
	}, nil
}

func fromModel(obj *model) *account.Record {
	return &account.Record{
		Id: uint64(obj.Id.Int64),

		AccountId: obj.AccountId,

		Username:      obj.Username,
		Email:         obj.Email,
		Plan:          obj.Plan,
		CredentialRef: obj.CredentialRef,

		IntentId: obj.IntentId,

		Status:  account.Status(obj.Status),
		Version: obj.Version,

		CreatedAt: obj.CreatedAt,
	}
}

func (m *model) dbInsertPending(ctx context.Context, db *sqlx.DB) error {
	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		// An intent binds to at most one record, so check it first to report
		// the more specific conflict.
		var existing int
		err := tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM `+tableName+` WHERE intent_id = $1`, m.IntentId)
		if err != nil {
			return err
		}
		if existing > 0 {
			return account.ErrIntentAlreadyBound
		}

		query := `INSERT INTO ` + tableName + `
			(account_id, username, email, plan, credential_ref, intent_id, status, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
			RETURNING ` + allFields

		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}

		return tx.QueryRowxContext(
			ctx,
			query,
			m.AccountId,
			m.Username,
			m.Email,
			m.Plan,
			m.CredentialRef,
			m.IntentId,
			m.Status,
			m.CreatedAt,
		).StructScan(m)
	})
	return pgutil.CheckUniqueViolation(err, account.ErrExists)
}

func dbPromote(ctx context.Context, db *sqlx.DB, accountId string, expectedVersion uint64) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		var current model
		err := tx.GetContext(ctx, &current, `SELECT `+allFields+` FROM `+tableName+` WHERE account_id = $1 FOR UPDATE`, accountId)
		if err != nil {
			return pgutil.CheckNoRows(err, account.ErrNotFound)
		}

		if account.Status(current.Status) != account.StatusPending {
			return account.ErrNotPending
		}

		if current.Version != expectedVersion {
			return account.ErrVersionMismatch
		}

		_, err = tx.ExecContext(
			ctx,
			`UPDATE `+tableName+` SET status = $2, version = version + 1 WHERE account_id = $1 AND version = $3`,
			accountId,
			uint8(account.StatusActive),
			expectedVersion,
		)
		return err
	})
}

func dbReject(ctx context.Context, db *sqlx.DB, accountId string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		var current model
		err := tx.GetContext(ctx, &current, `SELECT `+allFields+` FROM `+tableName+` WHERE account_id = $1 FOR UPDATE`, accountId)
		if err != nil {
			return pgutil.CheckNoRows(err, account.ErrNotFound)
		}

		switch account.Status(current.Status) {
		case account.StatusRejected:
			return nil
		case account.StatusActive:
			return account.ErrNotPending
		}

		_, err = tx.ExecContext(
			ctx,
			`UPDATE `+tableName+` SET status = $2, version = version + 1 WHERE account_id = $1`,
			accountId,
			uint8(account.StatusRejected),
		)
		return err
	})
}

func dbGetByAccountId(ctx context.Context, db *sqlx.DB, accountId string) (*model, error) {
	var res model
	err := db.GetContext(ctx, &res, `SELECT `+allFields+` FROM `+tableName+` WHERE account_id = $1`, accountId)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return &res, nil
}

func dbGetByIntentId(ctx context.Context, db *sqlx.DB, intentId string) (*model, error) {
	var res model
	err := db.GetContext(ctx, &res, `SELECT `+allFields+` FROM `+tableName+` WHERE intent_id = $1`, intentId)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return &res, nil
}

func dbCountByStatus(ctx context.Context, db *sqlx.DB, status account.Status) (uint64, error) {
	var res uint64
	err := db.GetContext(ctx, &res, `SELECT COUNT(*) FROM `+tableName+` WHERE status = $1`, uint8(status))
	if err != nil {
		return 0, err
	}
	return res, nil
}
