package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sdms/payment-core/internal/core/events"
)

// EventHandler adapts payment outcome events on the bus to the order
// subsystem collaborator.
type EventHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewEventHandler(notifier Notifier, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		notifier: notifier,
		logger:   logger,
	}
}

func (h *EventHandler) HandlePaymentSucceeded(ctx context.Context, event events.Event) error {
	succeeded, ok := event.(*events.PaymentSucceededEvent)
	if !ok {
		h.logger.Error("invalid event type for payment succeeded handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentSucceededEvent, got %T", event)
	}

	if err := h.notifier.OnPaymentSucceeded(ctx, succeeded.OrderID, succeeded.PaymentReference); err != nil {
		return fmt.Errorf("notify order %d: %w", succeeded.OrderID, err)
	}

	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	if err := h.notifier.OnPaymentFailed(ctx, failed.OrderID, failed.PaymentReference, failed.Reason); err != nil {
		return fmt.Errorf("notify order %d: %w", failed.OrderID, err)
	}

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentSucceeded, h.HandlePaymentSucceeded)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)

	h.logger.Info("order event handlers registered",
		"handlers", []string{events.EventTypePaymentSucceeded, events.EventTypePaymentFailed})
}
