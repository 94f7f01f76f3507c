package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository"
)

const agentColumns = `id, tenant_id, name, system_prompt, model, phone_number, provider_number_sid, created_at, updated_at`

type PgAgentRepository struct {
	db     repository.DBTX
	logger *slog.Logger
}

func NewPgAgentRepository(db repository.DBTX, logger *slog.Logger) repository.AgentRepository {
	return &PgAgentRepository{db: db, logger: logger.With("component", "agent_repository_pg")}
}

func (r *PgAgentRepository) WithTx(tx repository.DBTX) repository.AgentRepository {
	return &PgAgentRepository{db: tx, logger: r.logger}
}

func (r *PgAgentRepository) Create(ctx context.Context, agent *domain.Agent) (*domain.Agent, error) {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	query := `
		INSERT INTO agents (id, tenant_id, name, system_prompt, model, phone_number, provider_number_sid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		agent.ID, agent.TenantID, agent.Name, agent.SystemPrompt, agent.Model,
		agent.PhoneNumber, agent.ProviderNumberSID, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting agent", "error", err, "tenant_id", agent.TenantID)
		return nil, fmt.Errorf("inserting agent: %w", err)
	}
	r.logger.InfoContext(ctx, "Agent created", "agent_id", agent.ID, "tenant_id", agent.TenantID)
	return agent, nil
}

func (r *PgAgentRepository) GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE tenant_id = $1`
	return r.scanOne(ctx, query, tenantID)
}

func (r *PgAgentRepository) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE phone_number = $1`
	return r.scanOne(ctx, query, phoneNumber)
}

func (r *PgAgentRepository) SetPhoneNumber(ctx context.Context, agentID uuid.UUID, phoneNumber *string, providerSID *string) error {
	query := `UPDATE agents SET phone_number = $1, provider_number_sid = $2, updated_at = $3 WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, phoneNumber, providerSID, time.Now().UTC(), agentID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating agent phone number", "error", err, "agent_id", agentID)
		return fmt.Errorf("updating agent phone number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Agent not found for phone number update", "agent_id", agentID)
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgAgentRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Agent, error) {
	agent := &domain.Agent{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&agent.ID, &agent.TenantID, &agent.Name, &agent.SystemPrompt, &agent.Model,
		&agent.PhoneNumber, &agent.ProviderNumberSID, &agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetching agent: %w", err)
	}
	return agent, nil
}
