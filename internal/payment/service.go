package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	errors "github.com/sdms/payment-core/internal"
	paymentmodel "github.com/sdms/payment-core/internal/core/datamodel/payment"
	"github.com/sdms/payment-core/internal/core/events"
	"github.com/sdms/payment-core/internal/gateway"
	"github.com/sdms/payment-core/internal/ledger"
)

// LedgerAPI is the slice of the ledger the orchestrator needs. The ledger
// owns all status mutation; the orchestrator only proposes transitions.
type LedgerAPI interface {
	Create(p *paymentmodel.Payment) error
	Get(reference string) (*paymentmodel.Payment, error)
	GetLiveByOrderID(orderID int64) (*paymentmodel.Payment, error)
	RequestTransition(reference, proposed string, evidence ledger.Evidence) (*ledger.TransitionResult, error)
}

type GatewayResolver interface {
	Resolve(name string) (gateway.Adapter, error)
}

// Service coordinates adapters, the ledger and the outcome events for the
// checkout-facing payment flow.
type Service struct {
	ledger          LedgerAPI
	gateways        GatewayResolver
	eventBus        *events.EventBus
	callbackBaseURL string
	logger          *slog.Logger
}

func NewService(ledgerSvc LedgerAPI, gateways GatewayResolver, eventBus *events.EventBus, callbackBaseURL string, logger *slog.Logger) *Service {
	return &Service{
		ledger:          ledgerSvc,
		gateways:        gateways,
		eventBus:        eventBus,
		callbackBaseURL: callbackBaseURL,
		logger:          logger,
	}
}

// InitiatePayment opens a collection session with the requested gateway. On
// adapter failure the payment stays in created, and a repeat call for the
// same order picks that attempt back up instead of opening a second one.
func (s *Service) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	adapter, err := s.gateways.Resolve(req.GatewayName)
	if err != nil {
		return nil, err
	}

	p, err := s.ledger.GetLiveByOrderID(req.OrderID)
	if err != nil {
		return nil, err
	}

	if p != nil {
		// only an attempt whose gateway session never opened can be
		// retried, and only with the same terms
		if p.Status != paymentmodel.StatusCreated ||
			!p.Amount.Equal(req.Amount) ||
			p.Currency != req.Currency ||
			p.GatewayName != req.GatewayName {
			return nil, errors.ErrOrderAlreadyPaid
		}
		s.logger.Info("retrying gateway initialization",
			"payment_reference", p.PaymentReference,
			"order_id", req.OrderID)
	} else {
		p = &paymentmodel.Payment{
			PaymentReference: fmt.Sprintf("PAY-%s", uuid.NewString()),
			OrderID:          req.OrderID,
			Amount:           req.Amount,
			Currency:         req.Currency,
			GatewayName:      req.GatewayName,
			CustomerEmail:    req.CustomerEmail,
		}
		if err := s.ledger.Create(p); err != nil {
			return nil, err
		}
	}

	reference := p.PaymentReference

	result, err := adapter.Initialize(ctx, gateway.PaymentIntent{
		Reference:     reference,
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		CallbackURL:   s.callbackBaseURL,
		Metadata: map[string]string{
			"order_id": strconv.FormatInt(req.OrderID, 10),
		},
	})
	if err != nil {
		s.logger.Error("gateway initialization failed",
			"payment_reference", reference,
			"gateway", req.GatewayName,
			"error", err)
		return nil, err
	}

	if _, err := s.ledger.RequestTransition(reference, paymentmodel.StatusProcessing, ledger.Evidence{
		RawDetails: result.SessionData,
		Source:     "initiate",
	}); err != nil {
		return nil, err
	}

	s.logger.Info("payment initiated",
		"payment_reference", reference,
		"order_id", req.OrderID,
		"gateway", req.GatewayName,
		"amount", req.Amount.String())

	return &InitiateResponse{
		PaymentReference: reference,
		RedirectURL:      result.RedirectURL,
	}, nil
}

// VerifyPayment pulls the provider-side status and feeds it to the ledger.
// Safe to call repeatedly: re-confirmation of a recorded terminal state is a
// no-op and side effects fire at most once, gated entirely by the ledger's
// FirstTimeSucceeded flag.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*StatusResponse, error) {
	p, err := s.ledger.Get(reference)
	if err != nil {
		return nil, err
	}

	if p.IsTerminal() {
		return ToStatusResponse(p), nil
	}

	adapter, err := s.gateways.Resolve(p.GatewayName)
	if err != nil {
		return nil, err
	}

	observed, err := adapter.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	var proposed string
	evidence := ledger.Evidence{
		AmountObserved:        &observed.AmountObserved,
		Currency:              observed.Currency,
		ExternalTransactionID: observed.ExternalTransactionID,
		RawDetails:            observed.RawDetails,
		Source:                "verify",
	}

	switch observed.Status {
	case gateway.ObservedSucceeded:
		proposed = paymentmodel.StatusSucceeded
	case gateway.ObservedFailed:
		proposed = paymentmodel.StatusFailed
		evidence.ErrorCode = "charge.failed"
		evidence.ErrorMessage = observed.GatewayResponse
	default:
		// provider still settling, nothing to record yet
		s.logger.Info("verification still pending",
			"payment_reference", reference,
			"gateway", p.GatewayName)
		return ToStatusResponse(p), nil
	}

	result, err := s.ledger.RequestTransition(reference, proposed, evidence)
	if err != nil {
		return nil, err
	}

	s.emitOutcome(ctx, result, observed.GatewayResponse)

	return ToStatusResponse(result.Payment), nil
}

// GetStatus is a pure ledger read with no gateway round trip.
func (s *Service) GetStatus(reference string) (*StatusResponse, error) {
	p, err := s.ledger.Get(reference)
	if err != nil {
		return nil, err
	}
	return ToStatusResponse(p), nil
}

// RefundPayment is a synchronous single-shot refund, only valid from
// succeeded.
func (s *Service) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.ledger.Get(req.PaymentReference)
	if err != nil {
		return nil, err
	}
	if p.Status != paymentmodel.StatusSucceeded {
		return nil, errors.ErrRefundNotAllowed
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = p.Amount
	}
	if amount.GreaterThan(p.Amount) {
		return nil, errors.ErrAmountExceedsCaptured
	}

	adapter, err := s.gateways.Resolve(p.GatewayName)
	if err != nil {
		return nil, err
	}

	refund, err := adapter.Refund(ctx, gateway.RefundRequest{
		ProviderReference: p.PaymentReference,
		Amount:            amount,
		Currency:          p.Currency,
		Reason:            req.Reason,
		IdempotencyKey:    fmt.Sprintf("refund-%s", p.PaymentReference),
	})
	if err != nil {
		return nil, err
	}

	result, err := s.ledger.RequestTransition(req.PaymentReference, paymentmodel.StatusRefunded, ledger.Evidence{
		Source: "refund",
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		s.eventBus.Publish(ctx, events.NewPaymentRefundedEvent(
			p.PaymentReference,
			p.OrderID,
			refund.RefundID,
			amount.String(),
			p.Currency,
		))
	}

	s.logger.Info("payment refunded",
		"payment_reference", p.PaymentReference,
		"refund_id", refund.RefundID,
		"amount", amount.String())

	return &RefundResponse{
		PaymentReference: p.PaymentReference,
		RefundID:         refund.RefundID,
		Status:           refund.Status,
	}, nil
}

// emitOutcome publishes terminal outcome events. The ledger's flags are the
// only gate, never a local check, because the verify and webhook paths race.
func (s *Service) emitOutcome(ctx context.Context, result *ledger.TransitionResult, gatewayResponse string) {
	p := result.Payment

	if result.FirstTimeSucceeded {
		s.eventBus.Publish(ctx, events.NewPaymentSucceededEvent(
			p.PaymentReference,
			p.OrderID,
			p.ExternalTransactionID,
			p.Amount.String(),
			p.Currency,
			p.GatewayName,
			p.CustomerEmail,
		))
		return
	}

	if result.Applied && p.Status == paymentmodel.StatusFailed {
		s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(
			p.PaymentReference,
			p.OrderID,
			p.GatewayName,
			gatewayResponse,
			p.CustomerEmail,
		))
	}
}
