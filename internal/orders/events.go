package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventPaymentFailed  = "PaymentFailed"
	EventOrderCancelled = "OrderCancelled"
	EventOrderExpired   = "OrderExpired"
	EventPaymentRetried = "PaymentRetried"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string     `json:"order_id"`
	BuyerID    string     `json:"buyer_id"`
	Items      []LineItem `json:"items"`
	TotalCents int        `json:"total_cents"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// OrderStatusPayload carries every post-checkout lifecycle change.
type OrderStatusPayload struct {
	OrderID    string `json:"order_id"`
	Status     Status `json:"status"`
	PaymentRef string `json:"payment_ref,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
