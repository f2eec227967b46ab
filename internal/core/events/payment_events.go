package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentSucceeded = "payment.succeeded"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentRefunded  = "payment.refunded"
)

type PaymentSucceededEvent struct {
	BaseEvent
	PaymentReference      string `json:"payment_reference"`
	OrderID               int64  `json:"order_id"`
	ExternalTransactionID string `json:"external_transaction_id"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	GatewayName           string `json:"gateway_name"`
	CustomerEmail         string `json:"customer_email"`
}

func NewPaymentSucceededEvent(reference string, orderID int64, externalTransactionID, amount, currency, gatewayName, customerEmail string) *PaymentSucceededEvent {
	return &PaymentSucceededEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentSucceeded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_reference":       reference,
				"order_id":                orderID,
				"external_transaction_id": externalTransactionID,
				"amount":                  amount,
				"currency":                currency,
				"gateway_name":            gatewayName,
			},
		},
		PaymentReference:      reference,
		OrderID:               orderID,
		ExternalTransactionID: externalTransactionID,
		Amount:                amount,
		Currency:              currency,
		GatewayName:           gatewayName,
		CustomerEmail:         customerEmail,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentReference string `json:"payment_reference"`
	OrderID          int64  `json:"order_id"`
	GatewayName      string `json:"gateway_name"`
	Reason           string `json:"reason"`
	CustomerEmail    string `json:"customer_email"`
}

func NewPaymentFailedEvent(reference string, orderID int64, gatewayName, reason, customerEmail string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_reference": reference,
				"order_id":          orderID,
				"gateway_name":      gatewayName,
				"reason":            reason,
			},
		},
		PaymentReference: reference,
		OrderID:          orderID,
		GatewayName:      gatewayName,
		Reason:           reason,
		CustomerEmail:    customerEmail,
	}
}

type PaymentRefundedEvent struct {
	BaseEvent
	PaymentReference string `json:"payment_reference"`
	OrderID          int64  `json:"order_id"`
	RefundID         string `json:"refund_id"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
}

func NewPaymentRefundedEvent(reference string, orderID int64, refundID, amount, currency string) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRefunded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_reference": reference,
				"order_id":          orderID,
				"refund_id":         refundID,
				"amount":            amount,
				"currency":          currency,
			},
		},
		PaymentReference: reference,
		OrderID:          orderID,
		RefundID:         refundID,
		Amount:           amount,
		Currency:         currency,
	}
}
