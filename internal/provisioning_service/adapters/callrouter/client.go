package callrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
)

// Client delivers call-handoff payloads to the downstream voice-AI
// consumer. The consumer's protocol beyond this payload is out of scope;
// the call is bounded so a hung consumer cannot stall inbound-call handling.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	endpoint   string
}

func NewClient(logger *slog.Logger, endpoint string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		logger:     logger.With("component", "call_router_client"),
		httpClient: httpClient,
		endpoint:   endpoint,
	}
}

// Handoff posts the resolved agent payload for an inbound call.
func (c *Client) Handoff(ctx context.Context, payload *domain.CallHandoff) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling call handoff: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building call handoff request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Call handoff delivery failed", "error", err, "phone_number", payload.PhoneNumber)
		return fmt.Errorf("delivering call handoff: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.ErrorContext(ctx, "Call router rejected handoff", "status_code", resp.StatusCode, "phone_number", payload.PhoneNumber)
		return fmt.Errorf("call router rejected handoff: status %d", resp.StatusCode)
	}

	c.logger.InfoContext(ctx, "Call handoff delivered",
		"phone_number", payload.PhoneNumber, "tenant_slug", payload.TenantSlug)
	return nil
}
