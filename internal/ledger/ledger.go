package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/sdms/payment-core/internal"
	"github.com/sdms/payment-core/internal/core/datamodel/payment"
)

// Repository is the persistence contract for the ledger. CompareAndSetStatus
// must be a single conditional update so two racing callers can never both
// win the same transition.
type Repository interface {
	Create(p *payment.Payment) error
	GetByReference(reference string) (*payment.Payment, error)
	GetLiveByOrderID(orderID int64) (*payment.Payment, error)
	CompareAndSetStatus(reference string, allowedFrom []string, updates map[string]interface{}) (bool, error)
}

// Evidence is what a caller observed at the provider when proposing a
// transition. AmountObserved nil means the caller saw no amount (e.g. the
// provisional move to processing right after initialization).
type Evidence struct {
	AmountObserved        *decimal.Decimal
	Currency              string
	ExternalTransactionID string
	ErrorCode             string
	ErrorMessage          string
	RawDetails            json.RawMessage
	// Source names the confirmation path for the audit log: "verify",
	// "webhook", "initiate" or "refund".
	Source string
}

type TransitionResult struct {
	Payment *payment.Payment
	// Applied is true when this call actually changed the stored status.
	Applied bool
	// FirstTimeSucceeded is true for exactly one caller across all racing
	// transitions of a payment into succeeded. It is the only gate for
	// terminal-success side effects.
	FirstTimeSucceeded bool
}

// Service owns every mutation of payment status and the lifecycle
// timestamps. All other components go through RequestTransition.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create persists a new attempt in created. An order may hold many failed
// attempts but only one that can still succeed.
func (s *Service) Create(p *payment.Payment) error {
	if !p.Amount.IsPositive() {
		return errors.NewValidationError("payment amount must be positive", errors.ErrCodeInvalidAmount)
	}

	live, err := s.repo.GetLiveByOrderID(p.OrderID)
	if err != nil {
		return errors.NewInternalError("check live payment attempts", err)
	}
	if live != nil {
		s.logger.Warn("rejecting second live payment attempt",
			"order_id", p.OrderID,
			"existing_reference", live.PaymentReference,
			"existing_status", live.Status)
		return errors.ErrOrderAlreadyPaid
	}

	p.Status = payment.StatusCreated
	p.InitiatedAt = time.Now().UTC()

	if err := s.repo.Create(p); err != nil {
		// the partial unique index closes the check-then-create window
		if isDuplicateLiveAttempt(err) {
			return errors.ErrOrderAlreadyPaid
		}
		return errors.NewInternalError("create payment record", err)
	}

	s.logger.Info("payment created",
		"payment_reference", p.PaymentReference,
		"order_id", p.OrderID,
		"amount", p.Amount.String(),
		"currency", p.Currency,
		"gateway", p.GatewayName)

	return nil
}

// GetLiveByOrderID returns the order's attempt that can still succeed, or
// nil when every recorded attempt has failed.
func (s *Service) GetLiveByOrderID(orderID int64) (*payment.Payment, error) {
	p, err := s.repo.GetLiveByOrderID(orderID)
	if err != nil {
		return nil, errors.NewInternalError("load live payment attempt", err)
	}
	return p, nil
}

func (s *Service) Get(reference string) (*payment.Payment, error) {
	p, err := s.repo.GetByReference(reference)
	if err != nil {
		return nil, errors.NewInternalError("load payment", err)
	}
	if p == nil {
		return nil, errors.ErrPaymentNotFound
	}
	return p, nil
}

// isDuplicateLiveAttempt matches the unique-violation wording of both the
// postgres driver and the sqlite driver used in tests.
func isDuplicateLiveAttempt(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// allowedFrom returns the set of current statuses a proposal may leave from.
func allowedFrom(proposed string) []string {
	switch proposed {
	case payment.StatusProcessing:
		return []string{payment.StatusCreated}
	case payment.StatusSucceeded, payment.StatusFailed:
		return []string{payment.StatusCreated, payment.StatusProcessing}
	case payment.StatusRefunded:
		return []string{payment.StatusSucceeded}
	}
	return nil
}

// RequestTransition is the only status mutator. It applies the proposal with
// a compare-and-set keyed by payment reference: of any number of concurrent
// callers proposing succeeded, exactly one sees FirstTimeSucceeded.
func (s *Service) RequestTransition(reference, proposed string, evidence Evidence) (*TransitionResult, error) {
	p, err := s.Get(reference)
	if err != nil {
		return nil, err
	}

	if err := s.checkEvidence(p, evidence); err != nil {
		return nil, err
	}

	from := allowedFrom(proposed)
	if from == nil {
		return nil, errors.ErrInvalidTransition.WithDetails(fmt.Sprintf("proposed status %q", proposed))
	}

	updates := s.buildUpdates(p, proposed, evidence)

	applied, err := s.repo.CompareAndSetStatus(reference, from, updates)
	if err != nil {
		return nil, errors.NewInternalError("apply status transition", err)
	}

	if !applied {
		return s.classifyLostRace(reference, proposed, evidence)
	}

	current, err := s.Get(reference)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment transition applied",
		"payment_reference", reference,
		"from", p.Status,
		"to", proposed,
		"source", evidence.Source)

	return &TransitionResult{
		Payment:            current,
		Applied:            true,
		FirstTimeSucceeded: proposed == payment.StatusSucceeded,
	}, nil
}

// checkEvidence rejects any proposal whose observed amount or currency does
// not match the recorded payment, whatever status it proposes. Under-payment
// must never be recorded as success.
func (s *Service) checkEvidence(p *payment.Payment, evidence Evidence) error {
	if evidence.AmountObserved != nil && !evidence.AmountObserved.Equal(p.Amount) {
		s.logger.Error("payment amount mismatch",
			"payment_reference", p.PaymentReference,
			"expected", p.Amount.String(),
			"observed", evidence.AmountObserved.String(),
			"source", evidence.Source)
		return errors.ErrAmountMismatch.WithDetails(fmt.Sprintf(
			"expected %s, observed %s", p.Amount.String(), evidence.AmountObserved.String()))
	}
	if evidence.Currency != "" && evidence.Currency != p.Currency {
		s.logger.Error("payment currency mismatch",
			"payment_reference", p.PaymentReference,
			"expected", p.Currency,
			"observed", evidence.Currency,
			"source", evidence.Source)
		return errors.ErrAmountMismatch.WithDetails(fmt.Sprintf(
			"expected currency %s, observed %s", p.Currency, evidence.Currency))
	}
	return nil
}

func (s *Service) buildUpdates(p *payment.Payment, proposed string, evidence Evidence) map[string]interface{} {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     proposed,
		"updated_at": now,
	}

	if p.ProcessedAt == nil {
		updates["processed_at"] = now
	}
	// completed_at records when the charge itself settled; a later refund
	// must not overwrite it
	if proposed == payment.StatusSucceeded {
		updates["completed_at"] = now
	}
	// the external id is written inside the same guarded update that flips
	// the status, and never after it has been set once
	if evidence.ExternalTransactionID != "" && p.ExternalTransactionID == "" {
		updates["external_transaction_id"] = evidence.ExternalTransactionID
	}
	if evidence.ErrorCode != "" {
		updates["error_code"] = evidence.ErrorCode
	}
	if evidence.ErrorMessage != "" {
		updates["error_message"] = evidence.ErrorMessage
	}
	if len(evidence.RawDetails) > 0 {
		updates["gateway_data"] = evidence.RawDetails
	}

	return updates
}

// classifyLostRace decides what a failed compare-and-set means: idempotent
// re-confirmation, stale non-terminal proposal, or a genuine conflict
// between the verify and webhook evidence.
func (s *Service) classifyLostRace(reference, proposed string, evidence Evidence) (*TransitionResult, error) {
	current, err := s.Get(reference)
	if err != nil {
		return nil, err
	}

	switch {
	case current.Status == proposed:
		// both confirmation paths agreed, the other one just got here first
		return &TransitionResult{Payment: current, Applied: false}, nil

	case current.IsTerminal() && payment.IsTerminal(proposed):
		// this is never auto-corrected: the two confirmation signals
		// disagree about the outcome, which an operator must inspect
		s.logger.Error("conflicting terminal state proposed",
			"payment_reference", reference,
			"recorded", current.Status,
			"proposed", proposed,
			"source", evidence.Source)
		return nil, errors.ErrConflictingTerminalState.WithDetails(fmt.Sprintf(
			"recorded %s, proposed %s", current.Status, proposed))

	case current.IsTerminal() && proposed == payment.StatusProcessing:
		// a slow initialization losing to a fast confirmation is harmless
		return &TransitionResult{Payment: current, Applied: false}, nil

	case proposed == payment.StatusRefunded:
		return nil, errors.ErrRefundNotAllowed

	default:
		return nil, errors.ErrInvalidTransition.WithDetails(fmt.Sprintf(
			"current %s, proposed %s", current.Status, proposed))
	}
}
