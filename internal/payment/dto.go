package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sdms/payment-core/internal/core/common/validation"
	paymentmodel "github.com/sdms/payment-core/internal/core/datamodel/payment"
)

type InitiateRequest struct {
	OrderID       int64           `json:"order_id"`
	GatewayName   string          `json:"gateway_name"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CustomerEmail string          `json:"customer_email"`
}

func (r *InitiateRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("order_id", r.OrderID).Required()
	validator.Field("gateway_name", r.GatewayName).Required()
	validator.Field("amount", r.Amount).Required().PositiveAmount()
	validator.Field("currency", r.Currency).Required().CurrencyCode()
	validator.Field("customer_email", r.CustomerEmail).Required().Email()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type InitiateResponse struct {
	PaymentReference string `json:"payment_reference"`
	RedirectURL      string `json:"redirect_url"`
}

type RefundRequest struct {
	PaymentReference string          `json:"payment_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           string          `json:"reason"`
}

func (r *RefundRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("payment_reference", r.PaymentReference).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type RefundResponse struct {
	PaymentReference string `json:"payment_reference"`
	RefundID         string `json:"refund_id"`
	Status           string `json:"status"`
}

// StatusResponse is the read projection shared by the verify and status
// endpoints.
type StatusResponse struct {
	PaymentReference string     `json:"payment_reference"`
	OrderID          int64      `json:"order_id"`
	Status           string     `json:"status"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	GatewayName      string     `json:"gateway_name"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ErrorCode        *string    `json:"error_code,omitempty"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
}

func ToStatusResponse(p *paymentmodel.Payment) *StatusResponse {
	return &StatusResponse{
		PaymentReference: p.PaymentReference,
		OrderID:          p.OrderID,
		Status:           p.Status,
		Amount:           p.Amount.String(),
		Currency:         p.Currency,
		GatewayName:      p.GatewayName,
		CompletedAt:      p.CompletedAt,
		ErrorCode:        p.ErrorCode,
		ErrorMessage:     p.ErrorMessage,
	}
}
