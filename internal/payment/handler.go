package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/sdms/payment-core/internal"
	"github.com/sdms/payment-core/internal/transport"
)

// ServiceAPI is the orchestrator surface the HTTP layer depends on.
type ServiceAPI interface {
	InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	VerifyPayment(ctx context.Context, reference string) (*StatusResponse, error)
	GetStatus(reference string) (*StatusResponse, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*RefundResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	PaymentService ServiceAPI
	Logger         *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    baseHandler,
		PaymentService: paymentService,
		Logger:         logger,
	}
}

// Initiate handles POST /api/v1/payments/initiate
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Initiate: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.PaymentService.InitiatePayment(r.Context(), req)
	if err != nil {
		h.Logger.Error("Initiate: service error",
			"error", err,
			"order_id", req.OrderID,
			"gateway", req.GatewayName)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, resp)
}

// Verify handles GET /api/v1/payments/verify/{reference}
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleError(w, errors.NewValidationError("payment reference is required", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.PaymentService.VerifyPayment(r.Context(), reference)
	if err != nil {
		h.Logger.Error("Verify: service error", "error", err, "payment_reference", reference)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// Status handles GET /api/v1/payments/status/{reference}, read-only with no
// gateway round trip.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleError(w, errors.NewValidationError("payment reference is required", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.PaymentService.GetStatus(reference)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// Refund handles POST /api/v1/payments/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Refund: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.PaymentService.RefundPayment(r.Context(), req)
	if err != nil {
		h.Logger.Error("Refund: service error", "error", err, "payment_reference", req.PaymentReference)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}
