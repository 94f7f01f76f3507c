package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository"
)

const pooledNumberColumns = `id, phone_number, status, tenant_id, agent_id, webhook_secret, assigned_at, created_at, updated_at`

type PgNumberPoolRepository struct {
	db     repository.DBTX
	logger *slog.Logger
}

func NewPgNumberPoolRepository(db repository.DBTX, logger *slog.Logger) repository.NumberPoolRepository {
	return &PgNumberPoolRepository{db: db, logger: logger.With("component", "number_pool_repository_pg")}
}

func (r *PgNumberPoolRepository) WithTx(tx repository.DBTX) repository.NumberPoolRepository {
	return &PgNumberPoolRepository{db: tx, logger: r.logger}
}

// ClaimAvailable selects one available row with FOR UPDATE SKIP LOCKED and
// assigns it in the same statement, so claim-then-assign is a single atomic
// operation and concurrent claimers skip each other's rows instead of
// queueing behind them. Oldest row wins the tie-break.
func (r *PgNumberPoolRepository) ClaimAvailable(ctx context.Context, tenantID, agentID uuid.UUID) (*domain.PooledNumber, error) {
	query := `
		WITH candidate AS (
			SELECT id
			FROM pooled_numbers
			WHERE status = $1
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pooled_numbers pn
		SET status = $2, tenant_id = $3, agent_id = $4, assigned_at = $5, updated_at = $5
		FROM candidate c
		WHERE pn.id = c.id
		RETURNING pn.id, pn.phone_number, pn.status, pn.tenant_id, pn.agent_id, pn.webhook_secret, pn.assigned_at, pn.created_at, pn.updated_at
	`
	now := time.Now().UTC()
	num, err := scanPooledNumber(r.db.QueryRow(ctx, query,
		domain.NumberStatusAvailable, domain.NumberStatusAssigned, tenantID, agentID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.InfoContext(ctx, "No available number to claim", "tenant_id", tenantID)
			return nil, domain.ErrPoolExhausted
		}
		r.logger.ErrorContext(ctx, "Error claiming pooled number", "error", err, "tenant_id", tenantID)
		return nil, fmt.Errorf("claiming pooled number: %w", err)
	}
	r.logger.InfoContext(ctx, "Claimed pooled number", "phone_number", num.PhoneNumber, "tenant_id", tenantID, "agent_id", agentID)
	return num, nil
}

func (r *PgNumberPoolRepository) Release(ctx context.Context, phoneNumber string) (*domain.PooledNumber, error) {
	query := `
		UPDATE pooled_numbers
		SET status = $1, tenant_id = NULL, agent_id = NULL, assigned_at = NULL, updated_at = $2
		WHERE phone_number = $3 AND status = $4
		RETURNING ` + pooledNumberColumns
	now := time.Now().UTC()
	num, err := scanPooledNumber(r.db.QueryRow(ctx, query,
		domain.NumberStatusAvailable, now, phoneNumber, domain.NumberStatusAssigned))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Release requested for number not currently assigned", "phone_number", phoneNumber)
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error releasing pooled number", "error", err, "phone_number", phoneNumber)
		return nil, fmt.Errorf("releasing pooled number: %w", err)
	}
	r.logger.InfoContext(ctx, "Released pooled number", "phone_number", phoneNumber)
	return num, nil
}

func (r *PgNumberPoolRepository) AvailableCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM pooled_numbers WHERE status = $1`,
		domain.NumberStatusAvailable).Scan(&count)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error counting available numbers", "error", err)
		return 0, fmt.Errorf("counting available numbers: %w", err)
	}
	return count, nil
}

func (r *PgNumberPoolRepository) AddToPool(ctx context.Context, phoneNumber string, webhookSecret *string) (*domain.PooledNumber, error) {
	num := &domain.PooledNumber{
		ID:            uuid.New(),
		PhoneNumber:   domain.NormalizePhoneNumber(phoneNumber),
		Status:        domain.NumberStatusAvailable,
		WebhookSecret: webhookSecret,
	}
	now := time.Now().UTC()
	num.CreatedAt = now
	num.UpdatedAt = now

	query := `
		INSERT INTO pooled_numbers (id, phone_number, status, webhook_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, num.ID, num.PhoneNumber, num.Status, num.WebhookSecret, num.CreatedAt, num.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateNumber
		}
		r.logger.ErrorContext(ctx, "Error inserting pooled number", "error", err, "phone_number", num.PhoneNumber)
		return nil, fmt.Errorf("inserting pooled number: %w", err)
	}
	r.logger.InfoContext(ctx, "Number added to pool", "phone_number", num.PhoneNumber)
	return num, nil
}

func (r *PgNumberPoolRepository) GetByNumber(ctx context.Context, phoneNumber string) (*domain.PooledNumber, error) {
	query := `SELECT ` + pooledNumberColumns + ` FROM pooled_numbers WHERE phone_number = $1`
	num, err := scanPooledNumber(r.db.QueryRow(ctx, query, phoneNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetching pooled number: %w", err)
	}
	return num, nil
}

func (r *PgNumberPoolRepository) List(ctx context.Context, limit int) ([]*domain.PooledNumber, error) {
	query := `SELECT ` + pooledNumberColumns + ` FROM pooled_numbers ORDER BY created_at ASC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing pooled numbers", "error", err)
		return nil, fmt.Errorf("listing pooled numbers: %w", err)
	}
	defer rows.Close()

	var numbers []*domain.PooledNumber
	for rows.Next() {
		num, err := scanPooledNumber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pooled number row: %w", err)
		}
		numbers = append(numbers, num)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pooled number rows: %w", err)
	}
	return numbers, nil
}

func scanPooledNumber(row pgx.Row) (*domain.PooledNumber, error) {
	num := &domain.PooledNumber{}
	err := row.Scan(
		&num.ID, &num.PhoneNumber, &num.Status, &num.TenantID, &num.AgentID,
		&num.WebhookSecret, &num.AssignedAt, &num.CreatedAt, &num.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return num, nil
}
