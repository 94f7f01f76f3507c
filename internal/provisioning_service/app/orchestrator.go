package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/adapters/numberprovider"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository"
)

// Orchestrator runs the fixed-priority provisioning chain:
// pool claim, provider purchase, placeholder. Each stage is attempted at
// most once per invocation, every fall-through is logged with its reason,
// and the pool transaction always commits or rolls back before any external
// provider HTTP call is made.
type Orchestrator struct {
	txBeginner        repository.TxBeginner
	pool              repository.NumberPoolRepository
	agents            repository.AgentRepository
	provider          numberprovider.Adapter
	placeholderNumber string
	providerTimeout   time.Duration
	logger            *slog.Logger
}

func NewOrchestrator(
	txBeginner repository.TxBeginner,
	pool repository.NumberPoolRepository,
	agents repository.AgentRepository,
	provider numberprovider.Adapter,
	placeholderNumber string,
	providerTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}
	return &Orchestrator{
		txBeginner:        txBeginner,
		pool:              pool,
		agents:            agents,
		provider:          provider,
		placeholderNumber: placeholderNumber,
		providerTimeout:   providerTimeout,
		logger:            logger.With("component", "provisioning_orchestrator"),
	}
}

// Provision obtains a number for the tenant's agent. Provider-tier failures
// (exhausted pool, auth, timeout, no inventory) are absorbed and degrade to
// the next stage; only a persistence failure on the final agent write is
// returned, leaving state rolled back so the webhook delivery can be
// retried.
func (o *Orchestrator) Provision(ctx context.Context, tenant *domain.Tenant, agent *domain.Agent) (*domain.ProvisioningResult, error) {
	logger := o.logger.With("tenant_id", tenant.ID, "agent_id", agent.ID, "tenant_slug", tenant.Slug)

	// Stage 1: claim from the shared pool.
	result, err := o.claimFromPool(ctx, tenant, agent)
	if err == nil {
		logger.InfoContext(ctx, "Number provisioned from pool", "phone_number", result.PhoneNumber)
		numbersProvisionedCounter.WithLabelValues(string(domain.SourcePool)).Inc()
		return result, nil
	}
	reason := fallthroughReason(err)
	logger.WarnContext(ctx, "Pool claim failed, falling back to provider purchase", "reason", reason, "error", err)
	provisioningFallbackCounter.WithLabelValues("pool", reason).Inc()

	// Stage 2: purchase from the external provider. The claim transaction
	// has already committed or rolled back at this point.
	result, err = o.purchaseFromProvider(ctx, tenant, agent)
	if err == nil {
		logger.InfoContext(ctx, "Number provisioned via provider purchase",
			"phone_number", result.PhoneNumber, "provider", o.provider.GetName())
		numbersProvisionedCounter.WithLabelValues(string(domain.SourcePurchased)).Inc()
		return result, nil
	}
	if isPersistenceFailure(err) {
		return nil, err
	}
	reason = fallthroughReason(err)
	logger.WarnContext(ctx, "Provider purchase failed, falling back to placeholder",
		"reason", reason, "provider", o.provider.GetName(), "error", err)
	provisioningFallbackCounter.WithLabelValues("purchase", reason).Inc()

	// Stage 3: placeholder. Keeps the tenant account usable even when every
	// telephony dependency is down; the number is corrected later by an
	// administrative reassignment.
	placeholder := o.placeholderNumber
	if err := o.agents.SetPhoneNumber(ctx, agent.ID, &placeholder, nil); err != nil {
		return nil, fmt.Errorf("persisting placeholder number: %w", err)
	}
	agent.PhoneNumber = &placeholder
	agent.ProviderNumberSID = nil
	logger.InfoContext(ctx, "Placeholder number recorded", "phone_number", placeholder)
	numbersProvisionedCounter.WithLabelValues(string(domain.SourcePlaceholder)).Inc()
	return &domain.ProvisioningResult{PhoneNumber: placeholder, Source: domain.SourcePlaceholder}, nil
}

func (o *Orchestrator) claimFromPool(ctx context.Context, tenant *domain.Tenant, agent *domain.Agent) (*domain.ProvisioningResult, error) {
	tx, err := o.txBeginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning pool claim transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	poolTx := o.pool.WithTx(tx)
	agentsTx := o.agents.WithTx(tx)

	num, err := poolTx.ClaimAvailable(ctx, tenant.ID, agent.ID)
	if err != nil {
		return nil, err
	}
	if err := agentsTx.SetPhoneNumber(ctx, agent.ID, &num.PhoneNumber, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing pool claim: %w", err)
	}

	agent.PhoneNumber = &num.PhoneNumber
	agent.ProviderNumberSID = nil
	return &domain.ProvisioningResult{PhoneNumber: num.PhoneNumber, Source: domain.SourcePool}, nil
}

func (o *Orchestrator) purchaseFromProvider(ctx context.Context, tenant *domain.Tenant, agent *domain.Agent) (*domain.ProvisioningResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	start := time.Now()
	purchased, err := o.provider.PurchaseNumber(callCtx, tenant.Slug)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	providerRequestDurationHist.WithLabelValues(o.provider.GetName(), outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if err := o.agents.SetPhoneNumber(ctx, agent.ID, &purchased.PhoneNumber, &purchased.ProviderSID); err != nil {
		return nil, &persistenceError{err: fmt.Errorf("persisting purchased number: %w", err)}
	}
	agent.PhoneNumber = &purchased.PhoneNumber
	agent.ProviderNumberSID = &purchased.ProviderSID
	return &domain.ProvisioningResult{PhoneNumber: purchased.PhoneNumber, Source: domain.SourcePurchased}, nil
}

// Release returns a pooled number to the pool and clears the owning agent's
// denormalized reference in the same transaction. The agent-side cleanup is
// owned here, not by the pool repository.
func (o *Orchestrator) Release(ctx context.Context, phoneNumber string) (*domain.PooledNumber, error) {
	tx, err := o.txBeginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning release transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	poolTx := o.pool.WithTx(tx)
	agentsTx := o.agents.WithTx(tx)

	num, err := poolTx.Release(ctx, domain.NormalizePhoneNumber(phoneNumber))
	if err != nil {
		return nil, err
	}
	if num.AgentID != nil {
		if err := agentsTx.SetPhoneNumber(ctx, *num.AgentID, nil, nil); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing release: %w", err)
	}
	o.logger.InfoContext(ctx, "Number released back to pool", "phone_number", num.PhoneNumber)
	return num, nil
}

// AddToPool is the administrative pass-through for pool insertion.
func (o *Orchestrator) AddToPool(ctx context.Context, phoneNumber string, webhookSecret *string) (*domain.PooledNumber, error) {
	return o.pool.AddToPool(ctx, phoneNumber, webhookSecret)
}

// List is the administrative pass-through for pool inspection.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]*domain.PooledNumber, error) {
	return o.pool.List(ctx, limit)
}

// AvailableCount proxies the advisory pool count and refreshes the gauge.
func (o *Orchestrator) AvailableCount(ctx context.Context) (int, error) {
	count, err := o.pool.AvailableCount(ctx)
	if err != nil {
		return 0, err
	}
	poolAvailableGauge.Set(float64(count))
	return count, nil
}

// persistenceError marks database failures that must surface to the caller
// instead of degrading to the placeholder stage.
type persistenceError struct {
	err error
}

func (e *persistenceError) Error() string { return e.err.Error() }
func (e *persistenceError) Unwrap() error { return e.err }

func isPersistenceFailure(err error) bool {
	var pe *persistenceError
	return errors.As(err, &pe)
}

func fallthroughReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, domain.ErrProviderAuthFailed):
		return "provider_auth_failed"
	case errors.Is(err, domain.ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, domain.ErrProviderNoInventory):
		return "provider_no_inventory"
	default:
		return "error"
	}
}
