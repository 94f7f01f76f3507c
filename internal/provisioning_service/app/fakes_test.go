package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/adapters/numberprovider"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository"
)

// In-memory fakes for the repository and provider interfaces. The pool fake
// mirrors the database contract: claims are mutually exclusive and pop
// distinct numbers under concurrent callers.

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeTxBeginner struct {
	mu       sync.Mutex
	beginErr error
	txs      []*fakeTx
}

func (b *fakeTxBeginner) Begin(ctx context.Context) (repository.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	tx := &fakeTx{}
	b.mu.Lock()
	b.txs = append(b.txs, tx)
	b.mu.Unlock()
	return tx, nil
}

type fakePool struct {
	mu        sync.Mutex
	available []string
	assigned  map[string]uuid.UUID // number -> tenant
	secrets   map[string]string
	claimErr  error
}

func newFakePool(numbers ...string) *fakePool {
	return &fakePool{available: numbers, assigned: map[string]uuid.UUID{}, secrets: map[string]string{}}
}

func (p *fakePool) WithTx(tx repository.DBTX) repository.NumberPoolRepository { return p }

func (p *fakePool) ClaimAvailable(ctx context.Context, tenantID, agentID uuid.UUID) (*domain.PooledNumber, error) {
	if p.claimErr != nil {
		return nil, p.claimErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.available) == 0 {
		return nil, domain.ErrPoolExhausted
	}
	number := p.available[0]
	p.available = p.available[1:]
	p.assigned[number] = tenantID
	now := time.Now()
	return &domain.PooledNumber{
		ID:          uuid.New(),
		PhoneNumber: number,
		Status:      domain.NumberStatusAssigned,
		TenantID:    &tenantID,
		AgentID:     &agentID,
		AssignedAt:  &now,
	}, nil
}

func (p *fakePool) Release(ctx context.Context, phoneNumber string) (*domain.PooledNumber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.assigned[phoneNumber]; !ok {
		return nil, domain.ErrNotFound
	}
	delete(p.assigned, phoneNumber)
	p.available = append(p.available, phoneNumber)
	agentID := uuid.New()
	return &domain.PooledNumber{
		PhoneNumber: phoneNumber,
		Status:      domain.NumberStatusAvailable,
		AgentID:     &agentID,
	}, nil
}

func (p *fakePool) AvailableCount(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available), nil
}

func (p *fakePool) AddToPool(ctx context.Context, phoneNumber string, webhookSecret *string) (*domain.PooledNumber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = append(p.available, phoneNumber)
	return &domain.PooledNumber{PhoneNumber: phoneNumber, Status: domain.NumberStatusAvailable}, nil
}

func (p *fakePool) GetByNumber(ctx context.Context, phoneNumber string) (*domain.PooledNumber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	num := &domain.PooledNumber{PhoneNumber: phoneNumber}
	if secret, ok := p.secrets[phoneNumber]; ok {
		num.WebhookSecret = &secret
		return num, nil
	}
	if _, ok := p.assigned[phoneNumber]; ok {
		num.Status = domain.NumberStatusAssigned
		return num, nil
	}
	for _, n := range p.available {
		if n == phoneNumber {
			num.Status = domain.NumberStatusAvailable
			return num, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (p *fakePool) List(ctx context.Context, limit int) ([]*domain.PooledNumber, error) {
	return nil, nil
}

type fakeAgents struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*domain.Agent
	setErr error
	setCnt int
}

func newFakeAgents() *fakeAgents {
	return &fakeAgents{byID: map[uuid.UUID]*domain.Agent{}}
}

func (a *fakeAgents) WithTx(tx repository.DBTX) repository.AgentRepository { return a }

func (a *fakeAgents) Create(ctx context.Context, agent *domain.Agent) (*domain.Agent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	a.byID[agent.ID] = agent
	return agent, nil
}

func (a *fakeAgents) GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*domain.Agent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, agent := range a.byID {
		if agent.TenantID == tenantID {
			return agent, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (a *fakeAgents) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.Agent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, agent := range a.byID {
		if agent.PhoneNumber != nil && *agent.PhoneNumber == phoneNumber {
			return agent, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (a *fakeAgents) SetPhoneNumber(ctx context.Context, agentID uuid.UUID, phoneNumber *string, providerSID *string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setCnt++
	if a.setErr != nil {
		return a.setErr
	}
	if agent, ok := a.byID[agentID]; ok {
		agent.PhoneNumber = phoneNumber
		agent.ProviderNumberSID = providerSID
	}
	return nil
}

type fakeTenants struct {
	mu          sync.Mutex
	byRef       map[string]*domain.Tenant
	byEmail     map[string]*domain.Tenant
	bySlug      map[string]*domain.Tenant
	createErr   error
	created     int
	missRefOnce bool // simulate losing the insert race: first ref lookup misses
}

func newFakeTenants() *fakeTenants {
	return &fakeTenants{
		byRef:   map[string]*domain.Tenant{},
		byEmail: map[string]*domain.Tenant{},
		bySlug:  map[string]*domain.Tenant{},
	}
}

func (t *fakeTenants) WithTx(tx repository.DBTX) repository.TenantRepository { return t }

func (t *fakeTenants) Create(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.createErr != nil {
		return nil, t.createErr
	}
	if _, ok := t.byEmail[tenant.Email]; ok {
		return nil, domain.ErrDuplicateTenant
	}
	if tenant.PaymentRef != nil {
		if _, ok := t.byRef[*tenant.PaymentRef]; ok {
			return nil, domain.ErrDuplicateTenant
		}
	}
	if _, ok := t.bySlug[tenant.Slug]; ok {
		return nil, domain.ErrDuplicateSlug
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	t.byEmail[tenant.Email] = tenant
	t.bySlug[tenant.Slug] = tenant
	if tenant.PaymentRef != nil {
		t.byRef[*tenant.PaymentRef] = tenant
	}
	t.created++
	return tenant, nil
}

func (t *fakeTenants) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tenant := range t.byEmail {
		if tenant.ID == id {
			return tenant, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *fakeTenants) GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Tenant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.missRefOnce {
		t.missRefOnce = false
		return nil, domain.ErrNotFound
	}
	if tenant, ok := t.byRef[paymentRef]; ok {
		return tenant, nil
	}
	return nil, domain.ErrNotFound
}

func (t *fakeTenants) GetByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tenant, ok := t.byEmail[email]; ok {
		return tenant, nil
	}
	return nil, domain.ErrNotFound
}

type stubProvider struct {
	mu     sync.Mutex
	number string
	sid    string
	err    error
	delay  time.Duration
	calls  int
}

func (p *stubProvider) GetName() string { return "stub" }

func (p *stubProvider) PurchaseNumber(ctx context.Context, friendlyLabel string) (*numberprovider.PurchasedNumber, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, domain.ErrProviderTimeout
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &numberprovider.PurchasedNumber{
		PhoneNumber:  p.number,
		ProviderSID:  p.sid,
		ProviderName: "stub",
	}, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
