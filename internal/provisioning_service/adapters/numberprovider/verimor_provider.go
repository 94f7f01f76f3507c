package numberprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
)

// VerimorProvider purchases DIDs from the Verimor (bulutsantralim) API.
// Authentication is a `key` query parameter on every request.
type VerimorProvider struct {
	logger      *slog.Logger
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	areaCode    string
	callbackURL string // inbound-voice callback configured on purchased numbers
}

func NewVerimorProvider(logger *slog.Logger, baseURL, apiKey, areaCode, callbackURL string, httpClient *http.Client) *VerimorProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &VerimorProvider{
		logger:      logger.With("provider", "verimor"),
		httpClient:  httpClient,
		baseURL:     baseURL,
		apiKey:      apiKey,
		areaCode:    areaCode,
		callbackURL: callbackURL,
	}
}

func (p *VerimorProvider) GetName() string { return "verimor" }

type verimorAvailableResponse struct {
	Numbers []string `json:"numbers"`
}

type verimorPurchaseRequest struct {
	Number              string `json:"number"`
	FriendlyName        string `json:"friendly_name"`
	InboundVoiceWebhook string `json:"inbound_voice_webhook"`
}

type verimorPurchaseResponse struct {
	SID    string `json:"sid"`
	Number string `json:"number"`
	Status string `json:"status"`
}

// PurchaseNumber searches the configured area code for a voice-capable
// number and buys the first hit.
func (p *VerimorProvider) PurchaseNumber(ctx context.Context, friendlyLabel string) (*PurchasedNumber, error) {
	candidate, err := p.findAvailable(ctx)
	if err != nil {
		return nil, err
	}

	purchased, err := p.purchase(ctx, candidate, friendlyLabel)
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Purchased number from Verimor",
		"phone_number", purchased.PhoneNumber, "provider_sid", purchased.ProviderSID, "label", friendlyLabel)
	return purchased, nil
}

func (p *VerimorProvider) findAvailable(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/numbers/available?key=%s&area_code=%s",
		p.baseURL, url.QueryEscape(p.apiKey), url.QueryEscape(p.areaCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building Verimor search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", p.classifyTransportError(ctx, err, "search")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading Verimor search response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		p.logger.WarnContext(ctx, "Verimor rejected credentials on number search", "status_code", resp.StatusCode)
		return "", domain.ErrProviderAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Verimor number search failed: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed verimorAvailableResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed Verimor search response: %w", err)
	}
	if len(parsed.Numbers) == 0 {
		p.logger.InfoContext(ctx, "Verimor reported no available numbers", "area_code", p.areaCode)
		return "", domain.ErrProviderNoInventory
	}
	return parsed.Numbers[0], nil
}

func (p *VerimorProvider) purchase(ctx context.Context, number, friendlyLabel string) (*PurchasedNumber, error) {
	reqBody := verimorPurchaseRequest{
		Number:              number,
		FriendlyName:        friendlyLabel,
		InboundVoiceWebhook: p.callbackURL,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshalling Verimor purchase request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/numbers/purchase?key=%s", p.baseURL, url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building Verimor purchase request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, p.classifyTransportError(ctx, err, "purchase")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading Verimor purchase response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		p.logger.WarnContext(ctx, "Verimor rejected credentials on purchase", "status_code", resp.StatusCode)
		return nil, domain.ErrProviderAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Verimor purchase failed: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed verimorPurchaseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed Verimor purchase response: %w", err)
	}
	if parsed.Number == "" {
		parsed.Number = number
	}
	return &PurchasedNumber{
		PhoneNumber:  domain.NormalizePhoneNumber(parsed.Number),
		ProviderSID:  parsed.SID,
		ProviderName: p.GetName(),
	}, nil
}

func (p *VerimorProvider) classifyTransportError(ctx context.Context, err error, op string) error {
	var urlErr *url.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &urlErr) && urlErr.Timeout())
	if timedOut {
		p.logger.WarnContext(ctx, "Verimor request timed out", "op", op, "error", err)
		return fmt.Errorf("%w: %s: %v", domain.ErrProviderTimeout, op, err)
	}
	p.logger.ErrorContext(ctx, "Verimor request failed", "op", op, "error", err)
	return fmt.Errorf("Verimor %s request: %w", op, err)
}
