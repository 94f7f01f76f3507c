package domain

import (
	"time"

	"github.com/google/uuid"
)

// NumberStatus is the lifecycle state of a pooled DID.
type NumberStatus string

const (
	NumberStatusAvailable NumberStatus = "available"
	NumberStatusAssigned  NumberStatus = "assigned"
	NumberStatusBlocked   NumberStatus = "blocked"
)

// PooledNumber is a DID held in the shared pool.
// Invariant: Status == assigned exactly when TenantID is non-nil; owner
// fields are cleared when the number returns to available.
type PooledNumber struct {
	ID            uuid.UUID
	PhoneNumber   string // E.164, unique
	Status        NumberStatus
	TenantID      *uuid.UUID
	AgentID       *uuid.UUID
	WebhookSecret *string
	AssignedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tenant is created once per successful payment or signup event and is
// immutable afterwards from the provisioning core's perspective.
type Tenant struct {
	ID             uuid.UUID
	Name           string
	Slug           string // unique
	Email          string // unique
	HashedPassword string
	PaymentRef     *string // unique when set; external payment reference code
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Agent is the voice-AI agent provisioned for a tenant (1:1 in current
// scope). PhoneNumber is denormalized for fast call-routing lookup; it is
// either a pooled number assigned to the same tenant, or a purchased or
// placeholder number that the pool does not track.
type Agent struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Name              string
	SystemPrompt      string
	Model             string
	PhoneNumber       *string
	ProviderNumberSID *string // set only when the purchase fallback was used
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NumberSource identifies which stage of the provisioning chain produced a
// number.
type NumberSource string

const (
	SourcePool        NumberSource = "pool"
	SourcePurchased   NumberSource = "purchased"
	SourcePlaceholder NumberSource = "placeholder"
)

// ProvisioningResult is the ephemeral outcome of one provisioning attempt.
// It is never persisted on its own; it is folded into the Agent row.
type ProvisioningResult struct {
	PhoneNumber string
	Source      NumberSource
}

// CallHandoff is the structured payload handed to the downstream voice-AI
// consumer when an inbound call arrives for an assigned number.
type CallHandoff struct {
	PhoneNumber  string `json:"phone_number"`
	TenantSlug   string `json:"tenant_slug"`
	AgentName    string `json:"agent_name"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`
	CallerNumber string `json:"caller_number,omitempty"`
	CallSID      string `json:"call_sid,omitempty"`
}
