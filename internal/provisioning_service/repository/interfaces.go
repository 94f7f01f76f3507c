package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
)

// DBTX is the querier shared by *pgxpool.Pool, pgx.Tx and pgxmock, so the
// same repository code runs against the pool, inside a transaction, or
// under test.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is a transaction-scoped querier.
type Tx interface {
	DBTX
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner starts transactions. The connection pool is adapted to this
// interface so application services never depend on pgxpool directly.
type TxBeginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// NumberPoolRepository persists the shared DID pool.
type NumberPoolRepository interface {
	// WithTx returns a repository bound to the given transaction.
	WithTx(tx DBTX) NumberPoolRepository

	// ClaimAvailable atomically selects one available number, skipping rows
	// locked by concurrent claimers, and stamps it assigned to the given
	// tenant and agent. Returns domain.ErrPoolExhausted when no row is free.
	ClaimAvailable(ctx context.Context, tenantID, agentID uuid.UUID) (*domain.PooledNumber, error)

	// Release returns an assigned number to the pool and clears its owner
	// fields. Returns domain.ErrNotFound when the number is not assigned.
	Release(ctx context.Context, phoneNumber string) (*domain.PooledNumber, error)

	// AvailableCount is advisory only; it is stale the moment concurrent
	// claims occur and is never used for correctness decisions.
	AvailableCount(ctx context.Context) (int, error)

	// AddToPool inserts a new available number. Returns
	// domain.ErrDuplicateNumber if it already exists.
	AddToPool(ctx context.Context, phoneNumber string, webhookSecret *string) (*domain.PooledNumber, error)

	GetByNumber(ctx context.Context, phoneNumber string) (*domain.PooledNumber, error)
	List(ctx context.Context, limit int) ([]*domain.PooledNumber, error)
}

// TenantRepository persists tenants.
type TenantRepository interface {
	WithTx(tx DBTX) TenantRepository

	// Create inserts a tenant. Returns domain.ErrDuplicateTenant on a
	// uniqueness violation (payment ref, email or slug).
	Create(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error)

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*domain.Tenant, error)
}

// AgentRepository persists voice agents.
type AgentRepository interface {
	WithTx(tx DBTX) AgentRepository

	Create(ctx context.Context, agent *domain.Agent) (*domain.Agent, error)
	GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*domain.Agent, error)
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.Agent, error)

	// SetPhoneNumber updates the denormalized number on the agent row.
	// providerSID is non-nil only on the purchase-fallback path; a nil
	// phoneNumber clears the assignment (release path).
	SetPhoneNumber(ctx context.Context, agentID uuid.UUID, phoneNumber *string, providerSID *string) error
}
