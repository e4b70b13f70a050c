package pg

import (
	"database/sql"

	_ "github.com/jackc/pgx/v4/stdlib"
)

// New opens a DB connection pool for the provided DSN using the pgx driver
// and verifies connectivity.
func New(dsn string, maxOpenConnections, maxIdleConnections int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpenConnections)
	db.SetMaxIdleConns(maxIdleConnections)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
