package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository"
)

// Provisioner is the slice of the orchestrator the intake depends on.
type Provisioner interface {
	Provision(ctx context.Context, tenant *domain.Tenant, agent *domain.Agent) (*domain.ProvisioningResult, error)
}

// IntakeConfig carries the intake-owned policy knobs.
type IntakeConfig struct {
	DefaultAgentModel    string
	PlaceholderNumber    string
	JWTAccessSecret      string
	JWTAccessExpiryHours int
}

// Intake turns validated payment and signup events into tenant + agent
// creation followed by number provisioning. Both triggers converge on the
// same path; duplicate deliveries are detected by external reference
// (payment reference code or signup email) and replay the prior result
// without side effects.
type Intake struct {
	txBeginner  repository.TxBeginner
	tenants     repository.TenantRepository
	agents      repository.AgentRepository
	provisioner Provisioner
	cfg         IntakeConfig
	logger      *slog.Logger
}

func NewIntake(
	txBeginner repository.TxBeginner,
	tenants repository.TenantRepository,
	agents repository.AgentRepository,
	provisioner Provisioner,
	cfg IntakeConfig,
	logger *slog.Logger,
) *Intake {
	return &Intake{
		txBeginner:  txBeginner,
		tenants:     tenants,
		agents:      agents,
		provisioner: provisioner,
		cfg:         cfg,
		logger:      logger.With("component", "webhook_intake"),
	}
}

// IntakeResult is the outcome of one intake invocation.
type IntakeResult struct {
	Tenant      *domain.Tenant
	Agent       *domain.Agent
	Result      *domain.ProvisioningResult
	AccessToken string // signup path only
	Replayed    bool
}

// HandlePaymentEvent processes a payment gateway webhook. Failure events
// are acknowledged and discarded; success events create and provision a
// tenant keyed on the payment reference code.
func (s *Intake) HandlePaymentEvent(ctx context.Context, ev *domain.PaymentEvent) (*IntakeResult, error) {
	if !ev.Success {
		s.logger.InfoContext(ctx, "Payment failure event acknowledged and discarded",
			"reference_code", ev.ReferenceCode, "transaction_id", ev.TransactionID)
		webhookEventsCounter.WithLabelValues("payment", "discarded").Inc()
		return nil, nil
	}

	logger := s.logger.With("reference_code", ev.ReferenceCode, "payer_email", ev.PayerEmail)

	// Pre-check for a replayed delivery; the unique constraint backstops the
	// race between concurrent duplicates.
	if existing, err := s.tenants.GetByPaymentRef(ctx, ev.ReferenceCode); err == nil {
		logger.InfoContext(ctx, "Duplicate payment webhook detected, replaying prior result")
		return s.replay(ctx, existing, "payment")
	} else if !errors.Is(err, domain.ErrNotFound) {
		webhookEventsCounter.WithLabelValues("payment", "error").Inc()
		return nil, err
	}

	name := ev.PayerName
	if name == "" {
		name = ev.PayerEmail
	}
	ref := ev.ReferenceCode
	tenant, agent, err := s.createTenantWithAgent(ctx, name, ev.PayerEmail, &ref)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTenant) {
			// Lost the insert race against a concurrent duplicate delivery,
			// or the customer already exists under the same email.
			logger.InfoContext(ctx, "Tenant insert hit uniqueness constraint, replaying existing tenant")
			return s.replayByReference(ctx, ev.ReferenceCode, ev.PayerEmail, "payment")
		}
		webhookEventsCounter.WithLabelValues("payment", "error").Inc()
		return nil, err
	}

	result, err := s.provisioner.Provision(ctx, tenant, agent)
	if err != nil {
		webhookEventsCounter.WithLabelValues("payment", "error").Inc()
		return nil, err
	}

	logger.InfoContext(ctx, "Payment event provisioned",
		"tenant_id", tenant.ID, "phone_number", result.PhoneNumber, "source", result.Source)
	webhookEventsCounter.WithLabelValues("payment", "provisioned").Inc()
	return &IntakeResult{Tenant: tenant, Agent: agent, Result: result}, nil
}

// HandleSignup processes a self-service signup synchronously and returns
// the provisioned number plus a dashboard access token.
func (s *Intake) HandleSignup(ctx context.Context, req *domain.SignupRequest) (*IntakeResult, error) {
	logger := s.logger.With("email", req.Email, "business_name", req.BusinessName)

	if existing, err := s.tenants.GetByEmail(ctx, req.Email); err == nil {
		logger.InfoContext(ctx, "Signup for existing email, replaying prior result")
		res, rerr := s.replay(ctx, existing, "signup")
		if rerr != nil {
			return nil, rerr
		}
		return s.withAccessToken(res)
	} else if !errors.Is(err, domain.ErrNotFound) {
		webhookEventsCounter.WithLabelValues("signup", "error").Inc()
		return nil, err
	}

	tenant, agent, err := s.createTenantWithAgent(ctx, req.BusinessName, req.Email, nil)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTenant) {
			logger.InfoContext(ctx, "Tenant insert hit uniqueness constraint, replaying existing tenant")
			res, rerr := s.replayByReference(ctx, "", req.Email, "signup")
			if rerr != nil {
				return nil, rerr
			}
			return s.withAccessToken(res)
		}
		webhookEventsCounter.WithLabelValues("signup", "error").Inc()
		return nil, err
	}

	result, err := s.provisioner.Provision(ctx, tenant, agent)
	if err != nil {
		webhookEventsCounter.WithLabelValues("signup", "error").Inc()
		return nil, err
	}

	logger.InfoContext(ctx, "Signup provisioned",
		"tenant_id", tenant.ID, "phone_number", result.PhoneNumber, "source", result.Source)
	webhookEventsCounter.WithLabelValues("signup", "provisioned").Inc()
	return s.withAccessToken(&IntakeResult{Tenant: tenant, Agent: agent, Result: result})
}

// maxSlugAttempts bounds the retry loop when derived slugs collide with
// existing tenants of the same business name.
const maxSlugAttempts = 4

// createTenantWithAgent commits the tenant and its agent in one
// transaction; either both rows exist afterwards or neither does. Slug
// collisions between distinct businesses with the same name are resolved by
// retrying with a random suffix; they never identify a duplicate delivery.
func (s *Intake) createTenantWithAgent(ctx context.Context, name, email string, paymentRef *string) (*domain.Tenant, *domain.Agent, error) {
	// The payment path has no password exchange; customers claim the
	// account later through the email-based reset flow, so only the hash of
	// a throwaway credential is ever stored.
	hashed, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing generated credential: %w", err)
	}

	baseSlug := domain.Slugify(name)
	if baseSlug == "" {
		baseSlug = "tenant"
	}

	tenant := &domain.Tenant{
		Name:           name,
		Slug:           baseSlug,
		Email:          email,
		HashedPassword: string(hashed),
		PaymentRef:     paymentRef,
	}
	agent := &domain.Agent{
		Name:         name + " Assistant",
		SystemPrompt: defaultSystemPrompt(name),
		Model:        s.cfg.DefaultAgentModel,
	}

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		if attempt > 0 {
			tenant.Slug = baseSlug + "-" + uuid.NewString()[:4]
			s.logger.InfoContext(ctx, "Tenant slug taken, retrying with suffix",
				"base_slug", baseSlug, "slug", tenant.Slug)
		}
		err = s.insertTenantWithAgent(ctx, tenant, agent)
		if errors.Is(err, domain.ErrDuplicateSlug) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return tenant, agent, nil
	}
	return nil, nil, fmt.Errorf("creating tenant %q: %w", baseSlug, err)
}

func (s *Intake) insertTenantWithAgent(ctx context.Context, tenant *domain.Tenant, agent *domain.Agent) error {
	tx, err := s.txBeginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tenant creation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tenantsTx := s.tenants.WithTx(tx)
	agentsTx := s.agents.WithTx(tx)

	if _, err := tenantsTx.Create(ctx, tenant); err != nil {
		return err
	}
	agent.TenantID = tenant.ID
	if _, err := agentsTx.Create(ctx, agent); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tenant creation: %w", err)
	}
	return nil
}

// replayByReference resolves the surviving tenant after an insert race,
// first by payment reference, then by email.
func (s *Intake) replayByReference(ctx context.Context, paymentRef, email, eventType string) (*IntakeResult, error) {
	if paymentRef != "" {
		if tenant, err := s.tenants.GetByPaymentRef(ctx, paymentRef); err == nil {
			return s.replay(ctx, tenant, eventType)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	tenant, err := s.tenants.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.replay(ctx, tenant, eventType)
}

// replay returns the prior result for an already-processed reference. A
// tenant whose agent has no number yet (crash between tenant commit and
// assignment) resumes provisioning instead of returning a half-provisioned
// result.
func (s *Intake) replay(ctx context.Context, tenant *domain.Tenant, eventType string) (*IntakeResult, error) {
	agent, err := s.agents.GetByTenantID(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	if agent.PhoneNumber == nil {
		s.logger.InfoContext(ctx, "Replayed tenant has no number yet, resuming provisioning", "tenant_id", tenant.ID)
		result, err := s.provisioner.Provision(ctx, tenant, agent)
		if err != nil {
			webhookEventsCounter.WithLabelValues(eventType, "error").Inc()
			return nil, err
		}
		webhookEventsCounter.WithLabelValues(eventType, "provisioned").Inc()
		return &IntakeResult{Tenant: tenant, Agent: agent, Result: result, Replayed: true}, nil
	}

	webhookEventsCounter.WithLabelValues(eventType, "replayed").Inc()
	return &IntakeResult{
		Tenant:   tenant,
		Agent:    agent,
		Result:   s.resultFromAgent(agent),
		Replayed: true,
	}, nil
}

func (s *Intake) withAccessToken(res *IntakeResult) (*IntakeResult, error) {
	token, err := issueAccessToken(res.Tenant, s.cfg.JWTAccessSecret,
		time.Duration(s.cfg.JWTAccessExpiryHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	res.AccessToken = token
	return res, nil
}

// resultFromAgent reconstructs the provisioning result recorded on an agent
// row: a provider SID means the purchase path ran, the configured
// placeholder number means the last-resort stage ran, anything else came
// from the pool.
func (s *Intake) resultFromAgent(agent *domain.Agent) *domain.ProvisioningResult {
	source := domain.SourcePool
	switch {
	case agent.ProviderNumberSID != nil:
		source = domain.SourcePurchased
	case *agent.PhoneNumber == s.cfg.PlaceholderNumber:
		source = domain.SourcePlaceholder
	}
	return &domain.ProvisioningResult{PhoneNumber: *agent.PhoneNumber, Source: source}
}

func defaultSystemPrompt(businessName string) string {
	return fmt.Sprintf(
		"You are the virtual phone assistant for %s. Greet callers politely, answer questions about the business, and take a message with a callback number when you cannot help.",
		businessName)
}
