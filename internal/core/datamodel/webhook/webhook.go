package webhook

import (
	"encoding/json"
	"time"
)

const (
	StatusReceived  = "received"
	StatusVerified  = "verified"
	StatusApplied   = "applied"
	StatusRejected  = "rejected"
	StatusDuplicate = "duplicate"
)

// Event is one inbound provider notification, stored append-only for
// audit and idempotency. Rows are never deleted.
type Event struct {
	ID               int64           `gorm:"primaryKey"`
	// DedupKey is unique among applied rows (partial index in the schema)
	// so duplicate receipts can still be recorded for audit.
	DedupKey         string          `gorm:"column:dedup_key;not null;index"`
	GatewayName      string          `gorm:"column:gateway_name;not null"`
	EventType        string          `gorm:"column:event_type"`
	PaymentReference string          `gorm:"column:payment_reference;index"`
	RawPayload       json.RawMessage `gorm:"column:raw_payload;type:jsonb"`
	SignatureValid   bool            `gorm:"column:signature_valid"`
	ProcessingStatus string          `gorm:"column:processing_status;default:received"`
	RejectReason     *string         `gorm:"column:reject_reason"`
	ReceivedAt       time.Time       `gorm:"column:received_at;default:now()"`
	ProcessedAt      *time.Time      `gorm:"column:processed_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;default:now()"`
}

func (Event) TableName() string {
	return "webhook_events"
}
