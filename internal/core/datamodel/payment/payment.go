package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusCreated    = "created"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

// Payment is one attempt to collect money for one order. Status and the
// lifecycle timestamps are owned by the ledger; nothing else writes them.
type Payment struct {
	ID                    int64           `gorm:"primaryKey"`
	PaymentReference      string          `gorm:"column:payment_reference;not null;uniqueIndex"`
	ExternalTransactionID string          `gorm:"column:external_transaction_id"`
	OrderID               int64           `gorm:"column:order_id;not null;index"`
	Amount                decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency              string          `gorm:"column:currency;size:3;not null"`
	GatewayName           string          `gorm:"column:gateway_name;not null"`
	Status                string          `gorm:"column:status;default:created"`
	CustomerEmail         string          `gorm:"column:customer_email;not null"`
	ErrorCode             *string         `gorm:"column:error_code"`
	ErrorMessage          *string         `gorm:"column:error_message"`
	GatewayData           json.RawMessage `gorm:"column:gateway_data;type:jsonb"`
	Metadata              json.RawMessage `gorm:"column:metadata;type:jsonb"`
	InitiatedAt           time.Time       `gorm:"column:initiated_at;default:now()"`
	ProcessedAt           *time.Time      `gorm:"column:processed_at"`
	CompletedAt           *time.Time      `gorm:"column:completed_at"`
	CreatedAt             time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;default:now()"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsTerminal reports whether no further status transition is accepted.
func IsTerminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

func (p *Payment) IsTerminal() bool {
	return IsTerminal(p.Status)
}

// IsLive reports whether this attempt can still reach success. An order may
// accumulate failed attempts but at most one live one.
func (p *Payment) IsLive() bool {
	return p.Status != StatusFailed
}

// AmountInSubunit converts the amount to the gateway's minor unit
// (kobo for NGN, cents for USD).
func (p *Payment) AmountInSubunit() int64 {
	return p.Amount.Mul(decimal.NewFromInt(100)).IntPart()
}
