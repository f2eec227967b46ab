package webhook

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/sdms/payment-core/internal"
	"github.com/sdms/payment-core/internal/transport"
)

// maxPayloadBytes bounds how much of a webhook body we are willing to read.
const maxPayloadBytes = 1 << 20

type Handler struct {
	*transport.BaseHandler
	ingestor *Ingestor
	logger   *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, ingestor *Ingestor, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		ingestor:    ingestor,
		logger:      logger,
	}
}

// HandleWebhook handles POST /api/v1/webhooks/{gateway}. Responses stay
// generic: the provider endpoint never learns internal processing detail,
// and any processed-or-duplicate outcome answers 200 so the provider does
// not retry deduplicated deliveries.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	gatewayName := chi.URLParam(r, "gateway")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", "gateway", gatewayName, "error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	signature := r.Header.Get("x-paystack-signature")
	if signature == "" {
		signature = r.Header.Get("X-Webhook-Signature")
	}

	result, err := h.ingestor.Ingest(r.Context(), gatewayName, payload, signature)
	if err != nil {
		appErr, ok := errors.IsAppError(err)
		switch {
		case ok && appErr.Code == errors.ErrCodeUnknownGateway:
			h.WriteError(w, http.StatusNotFound, "unknown gateway")
		case ok && appErr.Code == errors.ErrCodeInvalidSignature:
			h.WriteError(w, http.StatusBadRequest, "signature verification failed")
		case ok && appErr.Type != errors.ErrorTypeInternal:
			// a rejected transition (amount mismatch, conflicting terminal
			// state, unknown reference) is a processed outcome: retrying the
			// delivery cannot fix it, so the provider still gets a 200 and
			// the full detail stays in the logs
			h.logger.Error("webhook rejected",
				"gateway", gatewayName,
				"reason", appErr.Code,
				"error", err)
			h.WriteJSON(w, http.StatusOK, map[string]string{
				"status": string(OutcomeRejected),
			})
		default:
			h.logger.Error("webhook processing failed",
				"gateway", gatewayName,
				"error", err)
			h.WriteError(w, http.StatusInternalServerError, "processing failed")
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{
		"status": string(result.Outcome),
	})
}
