// Package data provides the aggregated data provider for the provisioning
// service, backed by either in-memory or postgres store implementations.
package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency"

	account_memory_client "github.com/cloudfusionadmin/filevaults/pkg/provision/data/account/memory"
	idempotency_memory_client "github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency/memory"

	account_postgres_client "github.com/cloudfusionadmin/filevaults/pkg/provision/data/account/postgres"
	idempotency_postgres_client "github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency/postgres"
)

// Provider is the single data access point for the provisioning coordinator
// and cleanup sweeper.
type Provider interface {
	// Account records

	InsertPendingAccount(ctx context.Context, record *account.Record) error
	PromoteAccount(ctx context.Context, accountId string, expectedVersion uint64) error
	RejectAccount(ctx context.Context, accountId string) error
	GetAccount(ctx context.Context, accountId string) (*account.Record, error)
	GetAccountByIntent(ctx context.Context, intentId string) (*account.Record, error)
	CountAccountsByStatus(ctx context.Context, status account.Status) (uint64, error)

	// Idempotency registry

	ReserveIdempotencyKey(ctx context.Context, key, fingerprint string, expiry time.Time) (*idempotency.Record, error)
	GetIdempotencyKey(ctx context.Context, key string) (*idempotency.Record, error)
	MarkIdempotencyIntent(ctx context.Context, key, intentId string) error
	SuspendIdempotencyKey(ctx context.Context, key string) error
	CompleteIdempotencyKey(ctx context.Context, key string, outcome *idempotency.Outcome) error
	GetStaleIdempotencyKeys(ctx context.Context, createdBefore time.Time, limit uint64) ([]*idempotency.Record, error)
	CountInFlightIdempotencyKeys(ctx context.Context) (uint64, error)
}

type provider struct {
	accounts    account.Store
	idempotency idempotency.Store
}

// NewDatabaseProvider returns a Provider backed by postgres stores.
func NewDatabaseProvider(db *sql.DB) Provider {
	return &provider{
		accounts:    account_postgres_client.New(db),
		idempotency: idempotency_postgres_client.New(db),
	}
}

// NewTestDataProvider returns a Provider backed by in-memory stores.
func NewTestDataProvider() Provider {
	return &provider{
		accounts:    account_memory_client.New(),
		idempotency: idempotency_memory_client.New(),
	}
}

func (p *provider) InsertPendingAccount(ctx context.Context, record *account.Record) error {
	return p.accounts.InsertPending(ctx, record)
}

func (p *provider) PromoteAccount(ctx context.Context, accountId string, expectedVersion uint64) error {
	return p.accounts.Promote(ctx, accountId, expectedVersion)
}

func (p *provider) RejectAccount(ctx context.Context, accountId string) error {
	return p.accounts.Reject(ctx, accountId)
}

func (p *provider) GetAccount(ctx context.Context, accountId string) (*account.Record, error) {
	return p.accounts.Get(ctx, accountId)
}

func (p *provider) GetAccountByIntent(ctx context.Context, intentId string) (*account.Record, error) {
	return p.accounts.GetByIntent(ctx, intentId)
}

func (p *provider) CountAccountsByStatus(ctx context.Context, status account.Status) (uint64, error) {
	return p.accounts.CountByStatus(ctx, status)
}

func (p *provider) ReserveIdempotencyKey(ctx context.Context, key, fingerprint string, expiry time.Time) (*idempotency.Record, error) {
	return p.idempotency.Reserve(ctx, key, fingerprint, expiry)
}

func (p *provider) GetIdempotencyKey(ctx context.Context, key string) (*idempotency.Record, error) {
	return p.idempotency.Get(ctx, key)
}

func (p *provider) MarkIdempotencyIntent(ctx context.Context, key, intentId string) error {
	return p.idempotency.MarkIntent(ctx, key, intentId)
}

func (p *provider) SuspendIdempotencyKey(ctx context.Context, key string) error {
	return p.idempotency.Suspend(ctx, key)
}

func (p *provider) CompleteIdempotencyKey(ctx context.Context, key string, outcome *idempotency.Outcome) error {
	return p.idempotency.Complete(ctx, key, outcome)
}

func (p *provider) GetStaleIdempotencyKeys(ctx context.Context, createdBefore time.Time, limit uint64) ([]*idempotency.Record, error) {
	return p.idempotency.GetStaleInFlight(ctx, createdBefore, limit)
}

func (p *provider) CountInFlightIdempotencyKeys(ctx context.Context) (uint64, error) {
	return p.idempotency.CountInFlight(ctx)
}
