package redisx

import "time"

const (
	// Idempotent checkout: idem:checkout:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Cached order snapshot for GET: order_status:{order_id}
	KeyOrderStatus = "order_status:%s"

	// Dedup for gateway notifications: dedup:webhook:{correlation_id}:{raw_status}
	KeyWebhookDedup = "dedup:webhook:%s:%s"
)

var (
	// Idempotency keys live as long as the reservation window.
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
