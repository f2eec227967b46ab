package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notifier is the collaborator interface to the order subsystem. Delivery is
// at-least-once: the order side must be idempotent on repeated notifications
// for the same payment reference.
type Notifier interface {
	OnPaymentSucceeded(ctx context.Context, orderID int64, paymentReference string) error
	OnPaymentFailed(ctx context.Context, orderID int64, paymentReference, reason string) error
}

// HTTPNotifier posts payment outcomes to the order subsystem endpoint.
type HTTPNotifier struct {
	client    *http.Client
	notifyURL string
	logger    *slog.Logger
}

func NewHTTPNotifier(notifyURL string, timeout time.Duration, logger *slog.Logger) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{
		client:    &http.Client{Timeout: timeout},
		notifyURL: notifyURL,
		logger:    logger,
	}
}

type notification struct {
	Event            string `json:"event"`
	OrderID          int64  `json:"order_id"`
	PaymentReference string `json:"payment_reference"`
	Reason           string `json:"reason,omitempty"`
}

func (n *HTTPNotifier) OnPaymentSucceeded(ctx context.Context, orderID int64, paymentReference string) error {
	return n.post(ctx, notification{
		Event:            "payment.succeeded",
		OrderID:          orderID,
		PaymentReference: paymentReference,
	})
}

func (n *HTTPNotifier) OnPaymentFailed(ctx context.Context, orderID int64, paymentReference, reason string) error {
	return n.post(ctx, notification{
		Event:            "payment.failed",
		OrderID:          orderID,
		PaymentReference: paymentReference,
		Reason:           reason,
	})
}

func (n *HTTPNotifier) post(ctx context.Context, payload notification) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.notifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build order notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Error("order notification failed",
			"order_id", payload.OrderID,
			"payment_reference", payload.PaymentReference,
			"error", err)
		return fmt.Errorf("deliver order notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		n.logger.Error("order subsystem rejected notification",
			"order_id", payload.OrderID,
			"payment_reference", payload.PaymentReference,
			"status", resp.StatusCode)
		return fmt.Errorf("order subsystem returned %d", resp.StatusCode)
	}

	n.logger.Info("order notified",
		"event", payload.Event,
		"order_id", payload.OrderID,
		"payment_reference", payload.PaymentReference)

	return nil
}

// LogNotifier is used when no order subsystem endpoint is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OnPaymentSucceeded(_ context.Context, orderID int64, paymentReference string) error {
	n.logger.Info("payment succeeded for order",
		"order_id", orderID,
		"payment_reference", paymentReference)
	return nil
}

func (n *LogNotifier) OnPaymentFailed(_ context.Context, orderID int64, paymentReference, reason string) error {
	n.logger.Info("payment failed for order",
		"order_id", orderID,
		"payment_reference", paymentReference,
		"reason", reason)
	return nil
}
