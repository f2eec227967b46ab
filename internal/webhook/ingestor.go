package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/sdms/payment-core/internal"
	paymentmodel "github.com/sdms/payment-core/internal/core/datamodel/payment"
	webhookmodel "github.com/sdms/payment-core/internal/core/datamodel/webhook"
	"github.com/sdms/payment-core/internal/core/events"
	"github.com/sdms/payment-core/internal/gateway"
	"github.com/sdms/payment-core/internal/ledger"
)

// Outcome summarizes what ingestion did with a notification. Every outcome
// except a transport-level failure answers the provider with 200 so it does
// not retry deduplicated deliveries.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
)

type Result struct {
	Outcome          Outcome
	PaymentReference string
}

// Repository stores the append-only webhook audit trail.
type Repository interface {
	Create(e *webhookmodel.Event) error
	GetAppliedByDedupKey(dedupKey string) (*webhookmodel.Event, error)
	UpdateStatus(id int64, status string, rejectReason *string) error
}

type GatewayResolver interface {
	Resolve(name string) (gateway.Adapter, error)
}

type LedgerAPI interface {
	RequestTransition(reference, proposed string, evidence ledger.Evidence) (*ledger.TransitionResult, error)
}

// Ingestor validates, deduplicates and applies provider notifications.
type Ingestor struct {
	gateways GatewayResolver
	ledger   LedgerAPI
	repo     Repository
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewIngestor(gateways GatewayResolver, ledgerSvc LedgerAPI, repo Repository, eventBus *events.EventBus, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		gateways: gateways,
		ledger:   ledgerSvc,
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Ingest runs the pipeline: authenticate, deduplicate, map, transition.
// It short-circuits on the first failing step.
func (i *Ingestor) Ingest(ctx context.Context, gatewayName string, payload []byte, signatureHeader string) (*Result, error) {
	adapter, err := i.gateways.Resolve(gatewayName)
	if err != nil {
		return nil, err
	}

	parsed, err := adapter.ParseWebhook(payload, signatureHeader)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeInvalidSignature {
			i.storeRejected(gatewayName, payload, "invalid signature")
		}
		return nil, err
	}

	dedupKey := DedupKey(gatewayName, parsed.ProviderEventID, payload)

	applied, err := i.repo.GetAppliedByDedupKey(dedupKey)
	if err != nil {
		return nil, errors.NewInternalError("look up webhook dedup key", err)
	}
	if applied != nil {
		i.logger.Info("duplicate webhook delivery",
			"gateway", gatewayName,
			"dedup_key", dedupKey,
			"payment_reference", parsed.PaymentReference)
		i.store(&webhookmodel.Event{
			DedupKey:         dedupKey,
			GatewayName:      gatewayName,
			EventType:        parsed.EventType,
			PaymentReference: parsed.PaymentReference,
			RawPayload:       payload,
			SignatureValid:   true,
			ProcessingStatus: webhookmodel.StatusDuplicate,
		})
		return &Result{Outcome: OutcomeDuplicate, PaymentReference: parsed.PaymentReference}, nil
	}

	event := &webhookmodel.Event{
		DedupKey:         dedupKey,
		GatewayName:      gatewayName,
		EventType:        parsed.EventType,
		PaymentReference: parsed.PaymentReference,
		RawPayload:       payload,
		SignatureValid:   true,
		ProcessingStatus: webhookmodel.StatusVerified,
	}

	proposed, recognized := mapEventStatus(parsed.Status)
	if !recognized {
		// unrecognized event types are stored, not errors
		event.ProcessingStatus = webhookmodel.StatusReceived
		i.store(event)
		i.logger.Info("ignoring unrecognized webhook event type",
			"gateway", gatewayName,
			"event_type", parsed.EventType)
		return &Result{Outcome: OutcomeIgnored, PaymentReference: parsed.PaymentReference}, nil
	}

	i.store(event)

	evidence := ledger.Evidence{
		AmountObserved:        &parsed.AmountObserved,
		Currency:              parsed.Currency,
		ExternalTransactionID: parsed.ExternalTransactionID,
		Source:                "webhook",
	}
	if parsed.Status == gateway.ObservedFailed {
		evidence.ErrorCode = parsed.EventType
		evidence.ErrorMessage = parsed.GatewayResponse
	}

	result, err := i.ledger.RequestTransition(parsed.PaymentReference, proposed, evidence)
	if err != nil {
		reason := err.Error()
		i.markProcessed(event, webhookmodel.StatusRejected, &reason)
		return nil, err
	}

	i.markProcessed(event, webhookmodel.StatusApplied, nil)

	if result.FirstTimeSucceeded {
		i.eventBus.Publish(ctx, events.NewPaymentSucceededEvent(
			result.Payment.PaymentReference,
			result.Payment.OrderID,
			result.Payment.ExternalTransactionID,
			result.Payment.Amount.String(),
			result.Payment.Currency,
			result.Payment.GatewayName,
			result.Payment.CustomerEmail,
		))
	} else if result.Applied && result.Payment.Status == paymentmodel.StatusFailed {
		i.eventBus.Publish(ctx, events.NewPaymentFailedEvent(
			result.Payment.PaymentReference,
			result.Payment.OrderID,
			result.Payment.GatewayName,
			parsed.GatewayResponse,
			result.Payment.CustomerEmail,
		))
	}

	return &Result{Outcome: OutcomeApplied, PaymentReference: parsed.PaymentReference}, nil
}

// DedupKey identifies one provider notification: the provider event id when
// it supplies one, otherwise a fingerprint of the raw body.
func DedupKey(gatewayName, providerEventID string, payload []byte) string {
	if providerEventID != "" {
		return fmt.Sprintf("%s|%s", gatewayName, providerEventID)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s|sha256:%s", gatewayName, hex.EncodeToString(sum[:]))
}

func mapEventStatus(observed gateway.ObservedStatus) (string, bool) {
	switch observed {
	case gateway.ObservedSucceeded:
		return paymentmodel.StatusSucceeded, true
	case gateway.ObservedFailed:
		return paymentmodel.StatusFailed, true
	}
	return "", false
}

func (i *Ingestor) storeRejected(gatewayName string, payload []byte, reason string) {
	i.store(&webhookmodel.Event{
		DedupKey:         DedupKey(gatewayName, "", payload),
		GatewayName:      gatewayName,
		RawPayload:       payload,
		SignatureValid:   false,
		ProcessingStatus: webhookmodel.StatusRejected,
		RejectReason:     &reason,
	})
}

func (i *Ingestor) store(e *webhookmodel.Event) {
	e.ReceivedAt = time.Now().UTC()
	if err := i.repo.Create(e); err != nil {
		// the audit row is best effort, losing it must not block the payment
		i.logger.Error("failed to store webhook event",
			"gateway", e.GatewayName,
			"dedup_key", e.DedupKey,
			"error", err)
	}
}

func (i *Ingestor) markProcessed(e *webhookmodel.Event, status string, reason *string) {
	if e.ID == 0 {
		return
	}
	if err := i.repo.UpdateStatus(e.ID, status, reason); err != nil {
		i.logger.Error("failed to update webhook event status",
			"event_id", e.ID,
			"status", status,
			"error", err)
	}
}
