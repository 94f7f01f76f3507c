package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/app"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
)

const MaxRequestBodySize = 1 << 20 // 1 MB

// EventIntake is the slice of the intake service the handler needs; an
// interface so tests can mock it.
type EventIntake interface {
	HandlePaymentEvent(ctx context.Context, ev *domain.PaymentEvent) (*app.IntakeResult, error)
	HandleSignup(ctx context.Context, req *domain.SignupRequest) (*app.IntakeResult, error)
}

// CallHandoffResolver resolves inbound-call webhooks.
type CallHandoffResolver interface {
	ResolveAndHandoff(ctx context.Context, ev *domain.InboundCallEvent) (*domain.CallHandoff, error)
}

type WebhookHandler struct {
	intake   EventIntake
	resolver CallHandoffResolver
	logger   *slog.Logger
}

func NewWebhookHandler(intake EventIntake, resolver CallHandoffResolver, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		intake:   intake,
		resolver: resolver,
		logger:   logger.With("component", "webhook_handler"),
	}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/payments", h.HandlePaymentWebhook)
	r.Post("/webhooks/calls/inbound", h.HandleInboundCall)
	r.Post("/signup", h.HandleSignup)
}

// HandlePaymentWebhook receives payment events from the payment gateway.
// The gateway only needs an acknowledgment; provisioning detail stays
// server-side. A 5xx tells the gateway to redeliver.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	rawPayload, ok := h.readBody(w, r, logger)
	if !ok {
		return
	}

	ev, err := domain.ParsePaymentEvent(rawPayload)
	if err != nil {
		logger.WarnContext(ctx, "Rejected malformed payment webhook", "error", err)
		http.Error(w, "Invalid payment event payload", http.StatusBadRequest)
		return
	}

	result, err := h.intake.HandlePaymentEvent(ctx, ev)
	if err != nil {
		logger.ErrorContext(ctx, "Error processing payment webhook", "error", err, "reference_code", ev.ReferenceCode)
		http.Error(w, "Internal server error processing webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if result == nil {
		w.Write([]byte("Event acknowledged"))
		return
	}
	w.Write([]byte("Webhook processed successfully"))
	logger.InfoContext(ctx, "Payment webhook processed",
		"reference_code", ev.ReferenceCode, "replayed", result.Replayed)
}

type signupResponse struct {
	TenantID    string `json:"tenant_id"`
	Slug        string `json:"slug"`
	PhoneNumber string `json:"phone_number"`
	Source      string `json:"source"`
	AccessToken string `json:"access_token"`
}

// HandleSignup processes a self-service signup synchronously, returning the
// provisioned number in the response.
func (h *WebhookHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	rawPayload, ok := h.readBody(w, r, logger)
	if !ok {
		return
	}

	req, err := domain.ParseSignupRequest(rawPayload)
	if err != nil {
		logger.WarnContext(ctx, "Rejected malformed signup request", "error", err)
		http.Error(w, "Invalid signup payload", http.StatusBadRequest)
		return
	}

	result, err := h.intake.HandleSignup(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "Error processing signup", "error", err, "email", req.Email)
		http.Error(w, "Internal server error processing signup", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, signupResponse{
		TenantID:    result.Tenant.ID.String(),
		Slug:        result.Tenant.Slug,
		PhoneNumber: result.Result.PhoneNumber,
		Source:      string(result.Result.Source),
		AccessToken: result.AccessToken,
	})
	logger.InfoContext(ctx, "Signup processed", "tenant_id", result.Tenant.ID, "replayed", result.Replayed)
}

// HandleInboundCall resolves a provider inbound-call webhook to the owning
// agent and hands the call to the voice-AI consumer.
func (h *WebhookHandler) HandleInboundCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	rawPayload, ok := h.readBody(w, r, logger)
	if !ok {
		return
	}

	ev, err := domain.ParseInboundCallEvent(rawPayload)
	if err != nil {
		logger.WarnContext(ctx, "Rejected malformed inbound call webhook", "error", err)
		http.Error(w, "Invalid inbound call payload", http.StatusBadRequest)
		return
	}

	payload, err := h.resolver.ResolveAndHandoff(ctx, ev)
	switch {
	case errors.Is(err, domain.ErrInvalidEvent):
		http.Error(w, "Webhook secret verification failed", http.StatusForbidden)
		return
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "No agent assigned to called number", http.StatusNotFound)
		return
	case err != nil:
		logger.ErrorContext(ctx, "Error handling inbound call", "error", err, "called_number", ev.CalledNumber)
		http.Error(w, "Internal server error handling inbound call", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

func (h *WebhookHandler) readBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	rawPayload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to read request body", "error", err)
		if err.Error() == "http: request body too large" {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "Error reading request body", http.StatusBadRequest)
		}
		return nil, false
	}
	return rawPayload, true
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
