package postgres

import (
	"database/sql"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/sirupsen/logrus"

	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account/tests"

	postgrestest "github.com/cloudfusionadmin/filevaults/pkg/database/postgres/test"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	// Used for testing ONLY, the table and migrations are external to this repository
	tableCreate = `
		CREATE TABLE filevaults__core_account(
			id SERIAL NOT NULL PRIMARY KEY,

			account_id TEXT NOT NULL UNIQUE,

			username TEXT NOT NULL,
			email TEXT NOT NULL,
			plan TEXT NOT NULL,
			credential_ref TEXT NOT NULL,

			intent_id TEXT NOT NULL UNIQUE,

			status INTEGER NOT NULL,
			version BIGINT NOT NULL CHECK (version > 0),

			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		-- Rejected records don't reserve the username
		CREATE UNIQUE INDEX filevaults__core_account_username_idx
			ON filevaults__core_account (username)
			WHERE status <> 3;
	`

	// Used for testing ONLY, the table and migrations are external to this repository
	tableDestroy = `
		DROP TABLE filevaults__core_account;
	`
)

var (
	testStore account.Store
	teardown  func()
)

func TestMain(m *testing.M) {
	log := logrus.StandardLogger()

	testPool, err := dockertest.NewPool("")
	if err != nil {
		log.WithError(err).Error("Error creating docker pool")
		os.Exit(1)
	}

	db, cleanUpFunc, err := postgrestest.StartPostgresDB(testPool)
	if err != nil {
		log.WithError(err).Error("Error starting postgres image")
		os.Exit(1)
	}
	defer db.Close()

	if err := createTestTables(db); err != nil {
		log.WithError(err).Error("Error creating test tables")
		cleanUpFunc()
		os.Exit(1)
	}

	testStore = New(db)
	teardown = func() {
		if pc := recover(); pc != nil {
			cleanUpFunc()
			panic(pc)
		}

		if err := resetTestTables(db); err != nil {
			log.WithError(err).Error("Error resetting test tables")
			cleanUpFunc()
			os.Exit(1)
		}
	}

	code := m.Run()
	cleanUpFunc()
	os.Exit(code)
}

func TestAccountPostgresStore(t *testing.T) {
	tests.RunTests(t, testStore, func() { teardown() })
}

func createTestTables(db *sql.DB) error {
	_, err := db.Exec(tableCreate)
	return err
}

func resetTestTables(db *sql.DB) error {
	if _, err := db.Exec(tableDestroy); err != nil {
		return err
	}

	return createTestTables(db)
}
