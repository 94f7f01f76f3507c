package numberprovider

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// MockProvider returns a deterministic synthetic number derived from the
// friendly label and always succeeds. It is selected when no Verimor API
// key is configured, so the provisioning flow stays exercisable end-to-end
// without external dependencies. Repeat purchases for the same label get
// the same number; distinct labels never share one, even when their hashes
// collide.
type MockProvider struct {
	logger *slog.Logger
	name   string

	mu     sync.Mutex
	issued map[uint32]string // suffix -> label that owns it
}

func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger.With("provider", "mock"),
		name:   "mock",
		issued: make(map[uint32]string),
	}
}

func (p *MockProvider) GetName() string { return p.name }

func (p *MockProvider) PurchaseNumber(ctx context.Context, friendlyLabel string) (*PurchasedNumber, error) {
	h := fnv.New32a()
	h.Write([]byte(friendlyLabel))
	suffix := h.Sum32() % 10000000 // seven digits after the 850 area code

	p.mu.Lock()
	for {
		owner, taken := p.issued[suffix]
		if !taken || owner == friendlyLabel {
			break
		}
		suffix = (suffix + 1) % 10000000
	}
	p.issued[suffix] = friendlyLabel
	p.mu.Unlock()

	number := fmt.Sprintf("+90850%07d", suffix)
	sid := "mock-" + uuid.NewString()

	p.logger.InfoContext(ctx, "MockProvider issued synthetic number",
		"phone_number", number, "provider_sid", sid, "label", friendlyLabel)

	return &PurchasedNumber{
		PhoneNumber:  number,
		ProviderSID:  sid,
		ProviderName: p.name,
	}, nil
}
