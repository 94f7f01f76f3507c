package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
)

// PoolAdmin covers the administrative pool operations: simple pass-throughs
// to the pool repository plus the orchestrator-owned release.
type PoolAdmin interface {
	AddToPool(ctx context.Context, phoneNumber string, webhookSecret *string) (*domain.PooledNumber, error)
	List(ctx context.Context, limit int) ([]*domain.PooledNumber, error)
	Release(ctx context.Context, phoneNumber string) (*domain.PooledNumber, error)
	AvailableCount(ctx context.Context) (int, error)
}

type AdminHandler struct {
	pool   PoolAdmin
	logger *slog.Logger
}

func NewAdminHandler(pool PoolAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{pool: pool, logger: logger.With("component", "admin_handler")}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/pool", func(r chi.Router) {
		r.Post("/numbers", h.HandleAddNumber)
		r.Get("/numbers", h.HandleListNumbers)
		r.Post("/numbers/release", h.HandleReleaseNumber)
		r.Get("/available-count", h.HandleAvailableCount)
	})
}

type addNumberRequest struct {
	PhoneNumber   string  `json:"phone_number"`
	WebhookSecret *string `json:"webhook_secret,omitempty"`
}

type pooledNumberResponse struct {
	PhoneNumber string  `json:"phone_number"`
	Status      string  `json:"status"`
	TenantID    *string `json:"tenant_id,omitempty"`
}

func (h *AdminHandler) HandleAddNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req addNumberRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PhoneNumber == "" {
		http.Error(w, "phone_number is required", http.StatusBadRequest)
		return
	}

	num, err := h.pool.AddToPool(ctx, req.PhoneNumber, req.WebhookSecret)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateNumber) {
			http.Error(w, "Number already in pool", http.StatusConflict)
			return
		}
		logger.ErrorContext(ctx, "Error adding number to pool", "error", err, "phone_number", req.PhoneNumber)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toPooledNumberResponse(num))
}

func (h *AdminHandler) HandleListNumbers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	numbers, err := h.pool.List(ctx, limit)
	if err != nil {
		logger.ErrorContext(ctx, "Error listing pool", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]pooledNumberResponse, 0, len(numbers))
	for _, num := range numbers {
		resp = append(resp, toPooledNumberResponse(num))
	}
	writeJSON(w, http.StatusOK, resp)
}

type releaseNumberRequest struct {
	PhoneNumber string `json:"phone_number"`
}

func (h *AdminHandler) HandleReleaseNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req releaseNumberRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	num, err := h.pool.Release(ctx, req.PhoneNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Number not currently assigned", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "Error releasing number", "error", err, "phone_number", req.PhoneNumber)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPooledNumberResponse(num))
}

func (h *AdminHandler) HandleAvailableCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	count, err := h.pool.AvailableCount(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Error counting available numbers", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": count})
}

func toPooledNumberResponse(num *domain.PooledNumber) pooledNumberResponse {
	resp := pooledNumberResponse{
		PhoneNumber: num.PhoneNumber,
		Status:      string(num.Status),
	}
	if num.TenantID != nil {
		id := num.TenantID.String()
		resp.TenantID = &id
	}
	return resp
}
