package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
)

type fakeRouter struct {
	mu       sync.Mutex
	err      error
	payloads []*domain.CallHandoff
}

func (r *fakeRouter) Handoff(ctx context.Context, payload *domain.CallHandoff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func seedAssignedNumber(t *testing.T, pool *fakePool, tenants *fakeTenants, agents *fakeAgents, number string) (*domain.Tenant, *domain.Agent) {
	t.Helper()
	tenant := &domain.Tenant{Name: "Acme Kebap", Slug: "acme-kebap", Email: "owner@acmekebap.com"}
	_, err := tenants.Create(context.Background(), tenant)
	require.NoError(t, err)
	agent, err := agents.Create(context.Background(), &domain.Agent{
		TenantID:     tenant.ID,
		Name:         "Acme Kebap Assistant",
		SystemPrompt: "You answer the phone.",
		Model:        "gpt-4o-mini",
		PhoneNumber:  &number,
	})
	require.NoError(t, err)
	pool.assigned[number] = tenant.ID
	return tenant, agent
}

func TestCallResolver_ResolveAndHandoff(t *testing.T) {
	t.Run("ResolvesAndDelivers", func(t *testing.T) {
		pool := newFakePool()
		tenants := newFakeTenants()
		agents := newFakeAgents()
		router := &fakeRouter{}
		seedAssignedNumber(t, pool, tenants, agents, "+908501111111")

		resolver := NewCallResolver(pool, agents, tenants, router, discardLogger())

		payload, err := resolver.ResolveAndHandoff(context.Background(), &domain.InboundCallEvent{
			CalledNumber: "0850 111 11 11",
			CallerNumber: "+905321234567",
			CallSID:      "CALL-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "+908501111111", payload.PhoneNumber)
		assert.Equal(t, "acme-kebap", payload.TenantSlug)
		assert.Equal(t, "Acme Kebap Assistant", payload.AgentName)
		assert.Equal(t, "gpt-4o-mini", payload.Model)
		assert.Equal(t, "+905321234567", payload.CallerNumber)
		require.Len(t, router.payloads, 1)
	})

	t.Run("SecretMismatchRejected", func(t *testing.T) {
		pool := newFakePool()
		tenants := newFakeTenants()
		agents := newFakeAgents()
		router := &fakeRouter{}
		seedAssignedNumber(t, pool, tenants, agents, "+908501111111")
		pool.secrets["+908501111111"] = "expected-secret"

		resolver := NewCallResolver(pool, agents, tenants, router, discardLogger())

		_, err := resolver.ResolveAndHandoff(context.Background(), &domain.InboundCallEvent{
			CalledNumber: "+908501111111",
			Secret:       "wrong-secret",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidEvent)
		assert.Empty(t, router.payloads)
	})

	t.Run("SecretMatchAccepted", func(t *testing.T) {
		pool := newFakePool()
		tenants := newFakeTenants()
		agents := newFakeAgents()
		router := &fakeRouter{}
		seedAssignedNumber(t, pool, tenants, agents, "+908501111111")
		pool.secrets["+908501111111"] = "expected-secret"

		resolver := NewCallResolver(pool, agents, tenants, router, discardLogger())

		payload, err := resolver.ResolveAndHandoff(context.Background(), &domain.InboundCallEvent{
			CalledNumber: "+908501111111",
			Secret:       "expected-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "acme-kebap", payload.TenantSlug)
	})

	t.Run("UnassignedNumber", func(t *testing.T) {
		pool := newFakePool()
		tenants := newFakeTenants()
		agents := newFakeAgents()
		router := &fakeRouter{}

		resolver := NewCallResolver(pool, agents, tenants, router, discardLogger())

		_, err := resolver.ResolveAndHandoff(context.Background(), &domain.InboundCallEvent{
			CalledNumber: "+908504444444",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, router.payloads)
	})

	t.Run("PurchasedNumberSkipsPoolCheck", func(t *testing.T) {
		// Externally purchased numbers have no pooled_numbers row.
		pool := newFakePool()
		tenants := newFakeTenants()
		agents := newFakeAgents()
		router := &fakeRouter{}

		tenant := &domain.Tenant{Name: "Acme Kebap", Slug: "acme-kebap", Email: "owner@acmekebap.com"}
		_, err := tenants.Create(context.Background(), tenant)
		require.NoError(t, err)
		number := "+908509999999"
		sid := "VN-1"
		_, err = agents.Create(context.Background(), &domain.Agent{
			TenantID: tenant.ID, Name: "Assistant", PhoneNumber: &number, ProviderNumberSID: &sid,
		})
		require.NoError(t, err)

		resolver := NewCallResolver(pool, agents, tenants, router, discardLogger())

		payload, err := resolver.ResolveAndHandoff(context.Background(), &domain.InboundCallEvent{CalledNumber: number})
		require.NoError(t, err)
		assert.Equal(t, "acme-kebap", payload.TenantSlug)
	})

	t.Run("DeliveryFailure", func(t *testing.T) {
		pool := newFakePool()
		tenants := newFakeTenants()
		agents := newFakeAgents()
		router := &fakeRouter{err: errors.New("consumer unavailable")}
		seedAssignedNumber(t, pool, tenants, agents, "+908501111111")

		resolver := NewCallResolver(pool, agents, tenants, router, discardLogger())

		_, err := resolver.ResolveAndHandoff(context.Background(), &domain.InboundCallEvent{CalledNumber: "+908501111111"})
		assert.Error(t, err)
	})
}
