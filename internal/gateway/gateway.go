package gateway

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ObservedStatus is the provider-side transaction status as reported by a
// verify call or a webhook, before the ledger has accepted it.
type ObservedStatus string

const (
	ObservedPending   ObservedStatus = "pending"
	ObservedSucceeded ObservedStatus = "succeeded"
	ObservedFailed    ObservedStatus = "failed"
)

// PaymentIntent carries everything an adapter needs to open a collection
// session with its provider.
type PaymentIntent struct {
	Reference     string
	OrderID       int64
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	CallbackURL   string
	Metadata      map[string]string
}

type InitializeResult struct {
	// RedirectURL is where the customer completes the payment.
	RedirectURL       string
	ProviderReference string
	// SessionData is gateway-specific checkout state (access codes, client
	// secrets). Only the owning adapter reads it back.
	SessionData json.RawMessage
}

type VerifyResult struct {
	Status                ObservedStatus
	AmountObserved        decimal.Decimal
	Currency              string
	ExternalTransactionID string
	GatewayResponse       string
	RawDetails            json.RawMessage
}

// ParsedEvent is an authenticated, decoded webhook notification. Adapters
// must verify the signature before decoding any semantic field.
type ParsedEvent struct {
	ProviderEventID       string
	EventType             string
	PaymentReference      string
	Status                ObservedStatus
	AmountObserved        decimal.Decimal
	Currency              string
	ExternalTransactionID string
	GatewayResponse       string
}

type RefundRequest struct {
	ProviderReference string
	Amount            decimal.Decimal
	Currency          string
	Reason            string
	// IdempotencyKey lets the caller replay a refund without double-crediting.
	IdempotencyKey string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// Adapter is the uniform capability surface over one payment provider.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context, intent PaymentIntent) (*InitializeResult, error)
	Verify(ctx context.Context, providerReference string) (*VerifyResult, error)
	ParseWebhook(payload []byte, signatureHeader string) (*ParsedEvent, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}
