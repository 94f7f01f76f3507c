package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository"
)

// HandoffSender delivers a resolved call payload to the voice-AI consumer.
type HandoffSender interface {
	Handoff(ctx context.Context, payload *domain.CallHandoff) error
}

// CallResolver maps an inbound-call webhook to the owning tenant and agent
// and hands the structured payload to the downstream consumer.
type CallResolver struct {
	pool    repository.NumberPoolRepository
	agents  repository.AgentRepository
	tenants repository.TenantRepository
	router  HandoffSender
	logger  *slog.Logger
}

func NewCallResolver(
	pool repository.NumberPoolRepository,
	agents repository.AgentRepository,
	tenants repository.TenantRepository,
	router HandoffSender,
	logger *slog.Logger,
) *CallResolver {
	return &CallResolver{
		pool:    pool,
		agents:  agents,
		tenants: tenants,
		router:  router,
		logger:  logger.With("component", "call_resolver"),
	}
}

// ResolveAndHandoff resolves the called number, verifies the per-number
// webhook secret when one is set, and delivers the handoff payload.
func (r *CallResolver) ResolveAndHandoff(ctx context.Context, ev *domain.InboundCallEvent) (*domain.CallHandoff, error) {
	number := domain.NormalizePhoneNumber(ev.CalledNumber)
	logger := r.logger.With("phone_number", number, "call_sid", ev.CallSID)

	// Pooled numbers may carry a per-number secret configured at the
	// provider; externally purchased numbers are not in the pool and skip
	// this check.
	pooled, err := r.pool.GetByNumber(ctx, number)
	if err == nil && pooled.WebhookSecret != nil {
		if subtle.ConstantTimeCompare([]byte(*pooled.WebhookSecret), []byte(ev.Secret)) != 1 {
			logger.WarnContext(ctx, "Inbound call rejected: webhook secret mismatch")
			callHandoffCounter.WithLabelValues("secret_mismatch").Inc()
			return nil, fmt.Errorf("%w: webhook secret mismatch", domain.ErrInvalidEvent)
		}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		callHandoffCounter.WithLabelValues("error").Inc()
		return nil, err
	}

	agent, err := r.agents.GetByPhoneNumber(ctx, number)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "Inbound call for unassigned number")
			callHandoffCounter.WithLabelValues("unassigned").Inc()
		}
		return nil, err
	}
	tenant, err := r.tenants.GetByID(ctx, agent.TenantID)
	if err != nil {
		callHandoffCounter.WithLabelValues("error").Inc()
		return nil, err
	}

	payload := &domain.CallHandoff{
		PhoneNumber:  number,
		TenantSlug:   tenant.Slug,
		AgentName:    agent.Name,
		SystemPrompt: agent.SystemPrompt,
		Model:        agent.Model,
		CallerNumber: ev.CallerNumber,
		CallSID:      ev.CallSID,
	}
	if err := r.router.Handoff(ctx, payload); err != nil {
		callHandoffCounter.WithLabelValues("delivery_failed").Inc()
		return nil, err
	}

	logger.InfoContext(ctx, "Inbound call handed off", "tenant_slug", tenant.Slug, "agent_id", agent.ID)
	callHandoffCounter.WithLabelValues("success").Inc()
	return payload, nil
}
