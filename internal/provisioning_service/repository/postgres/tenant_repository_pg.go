package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository"
)

const tenantColumns = `id, name, slug, email, hashed_password, payment_ref, created_at, updated_at`

type PgTenantRepository struct {
	db     repository.DBTX
	logger *slog.Logger
}

func NewPgTenantRepository(db repository.DBTX, logger *slog.Logger) repository.TenantRepository {
	return &PgTenantRepository{db: db, logger: logger.With("component", "tenant_repository_pg")}
}

func (r *PgTenantRepository) WithTx(tx repository.DBTX) repository.TenantRepository {
	return &PgTenantRepository{db: tx, logger: r.logger}
}

func (r *PgTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error) {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	query := `
		INSERT INTO tenants (id, name, slug, email, hashed_password, payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Email, tenant.HashedPassword,
		tenant.PaymentRef, tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// A slug collision is retryable with a new slug; payment ref and
			// email collisions identify an existing tenant.
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return nil, domain.ErrDuplicateSlug
			}
			return nil, domain.ErrDuplicateTenant
		}
		r.logger.ErrorContext(ctx, "Error inserting tenant", "error", err, "slug", tenant.Slug)
		return nil, fmt.Errorf("inserting tenant: %w", err)
	}
	r.logger.InfoContext(ctx, "Tenant created", "tenant_id", tenant.ID, "slug", tenant.Slug)
	return tenant, nil
}

func (r *PgTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgTenantRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE payment_ref = $1`
	return r.scanOne(ctx, query, paymentRef)
}

func (r *PgTenantRepository) GetByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE email = $1`
	return r.scanOne(ctx, query, email)
}

func (r *PgTenantRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Tenant, error) {
	tenant := &domain.Tenant{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.Email, &tenant.HashedPassword,
		&tenant.PaymentRef, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetching tenant: %w", err)
	}
	return tenant, nil
}
