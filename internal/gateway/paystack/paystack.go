package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/sdms/payment-core/internal"
	"github.com/sdms/payment-core/internal/gateway"
)

const (
	GatewayName    = "paystack"
	defaultBaseURL = "https://api.paystack.co"

	// SignatureHeader carries the HMAC-SHA512 digest Paystack computes over
	// the raw webhook body.
	SignatureHeader = "x-paystack-signature"
)

type Config struct {
	BaseURL        string
	SecretKey      string
	CallbackURL    string
	RequestTimeout time.Duration
}

// Adapter talks to the Paystack transaction API. Amounts on the wire are in
// kobo, the NGN minor unit.
type Adapter struct {
	client      *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		client:      &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		logger:      logger,
	}
}

func (a *Adapter) Name() string {
	return GatewayName
}

type initializePayload struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (a *Adapter) Initialize(ctx context.Context, intent gateway.PaymentIntent) (*gateway.InitializeResult, error) {
	payload := initializePayload{
		Email:       intent.CustomerEmail,
		Amount:      toSubunit(intent.Amount),
		Reference:   intent.Reference,
		Currency:    intent.Currency,
		CallbackURL: a.callbackURL,
		Metadata:    intent.Metadata,
	}

	var data initializeData
	raw, err := a.post(ctx, "/transaction/initialize", payload, &data)
	if err != nil {
		return nil, err
	}

	a.logger.Info("paystack transaction initialized",
		"reference", intent.Reference,
		"access_code", data.AccessCode)

	return &gateway.InitializeResult{
		RedirectURL:       data.AuthorizationURL,
		ProviderReference: data.Reference,
		SessionData:       raw,
	}, nil
}

type verifyData struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	GatewayResponse string `json:"gateway_response"`
}

func (a *Adapter) Verify(ctx context.Context, providerReference string) (*gateway.VerifyResult, error) {
	var data verifyData
	raw, err := a.get(ctx, "/transaction/verify/"+providerReference, &data)
	if err != nil {
		return nil, err
	}

	return &gateway.VerifyResult{
		Status:                mapTransactionStatus(data.Status),
		AmountObserved:        fromSubunit(data.Amount),
		Currency:              data.Currency,
		ExternalTransactionID: strconv.FormatInt(data.ID, 10),
		GatewayResponse:       data.GatewayResponse,
		RawDetails:            raw,
	}, nil
}

type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		ID              int64  `json:"id"`
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// ParseWebhook authenticates the raw body before any field is decoded.
// Paystack signs the body with HMAC-SHA512 using the account secret key.
func (a *Adapter) ParseWebhook(payload []byte, signatureHeader string) (*gateway.ParsedEvent, error) {
	mac := hmac.New(sha512.New, []byte(a.secretKey))
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signatureHeader)) {
		a.logger.Warn("paystack webhook signature mismatch")
		return nil, errors.ErrInvalidSignature
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, errors.ErrGatewayRejected.WithCause(fmt.Errorf("decode webhook payload: %w", err))
	}

	event := &gateway.ParsedEvent{
		EventType:             envelope.Event,
		PaymentReference:      envelope.Data.Reference,
		AmountObserved:        fromSubunit(envelope.Data.Amount),
		Currency:              envelope.Data.Currency,
		GatewayResponse:       envelope.Data.GatewayResponse,
		ExternalTransactionID: strconv.FormatInt(envelope.Data.ID, 10),
	}
	// Paystack carries no event id, only the transaction id. The event name
	// is part of the identity: a charge.failed contradicting an applied
	// charge.success for the same transaction must not deduplicate away.
	if envelope.Data.ID != 0 {
		event.ProviderEventID = fmt.Sprintf("%s:%d", envelope.Event, envelope.Data.ID)
	}

	switch envelope.Event {
	case "charge.success":
		event.Status = gateway.ObservedSucceeded
	case "charge.failed":
		event.Status = gateway.ObservedFailed
	default:
		event.Status = gateway.ObservedPending
	}

	return event, nil
}

type refundPayload struct {
	Transaction  string `json:"transaction"`
	Amount       int64  `json:"amount,omitempty"`
	MerchantNote string `json:"merchant_note,omitempty"`
}

type refundData struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (a *Adapter) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	payload := refundPayload{
		Transaction:  req.ProviderReference,
		Amount:       toSubunit(req.Amount),
		MerchantNote: req.Reason,
	}

	var data refundData
	_, err := a.postWithIdempotencyKey(ctx, "/refund", payload, req.IdempotencyKey, &data)
	if err != nil {
		return nil, err
	}

	return &gateway.RefundResult{
		RefundID: strconv.FormatInt(data.ID, 10),
		Status:   data.Status,
	}, nil
}

func (a *Adapter) post(ctx context.Context, path string, payload, out interface{}) (json.RawMessage, error) {
	return a.postWithIdempotencyKey(ctx, path, payload, "", out)
}

func (a *Adapter) postWithIdempotencyKey(ctx context.Context, path string, payload interface{}, idempotencyKey string, out interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewInternalError("marshal paystack request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternalError("build paystack request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	return a.do(req, out)
}

func (a *Adapter) get(ctx context.Context, path string, out interface{}) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, errors.NewInternalError("build paystack request", err)
	}
	return a.do(req, out)
}

func (a *Adapter) do(req *http.Request, out interface{}) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+a.secretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		// network failure or bounded timeout, safe for the caller to retry
		a.logger.Error("paystack request failed", "path", req.URL.Path, "error", err)
		return nil, errors.ErrGatewayUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ErrGatewayUnavailable.WithCause(err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.ErrGatewayNotFound
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		a.logger.Error("paystack server error", "path", req.URL.Path, "status", resp.StatusCode)
		return nil, errors.ErrGatewayUnavailable.WithCause(fmt.Errorf("paystack returned %d", resp.StatusCode))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, errors.ErrGatewayRejected.WithCause(fmt.Errorf("decode paystack response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.Status {
		a.logger.Warn("paystack declined request",
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"message", envelope.Message)
		return nil, errors.ErrGatewayRejected.WithDetails(envelope.Message)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, errors.ErrGatewayRejected.WithCause(fmt.Errorf("decode paystack data: %w", err))
		}
	}

	return envelope.Data, nil
}

func mapTransactionStatus(status string) gateway.ObservedStatus {
	switch status {
	case "success":
		return gateway.ObservedSucceeded
	case "failed", "abandoned", "reversed":
		return gateway.ObservedFailed
	default:
		return gateway.ObservedPending
	}
}

func toSubunit(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func fromSubunit(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100))
}
