package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/furnistore/order-reserve/internal/checkout"
	"github.com/furnistore/order-reserve/internal/expiry"
	kafkax "github.com/furnistore/order-reserve/internal/kafka"
	"github.com/furnistore/order-reserve/internal/metrics"
	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/furnistore/order-reserve/internal/payments"
	"github.com/furnistore/order-reserve/internal/reconcile"
	"github.com/furnistore/order-reserve/internal/redisx"
	"github.com/furnistore/order-reserve/internal/stock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type ProductLister interface {
	ListProducts(ctx context.Context) ([]stock.Product, error)
}

type OrdersHandler struct {
	Checkout *checkout.Service
	Rec      *reconcile.Reconciler
	Store    orders.Store
	Products ProductLister
	Redis    *redis.Client
	Producer *kafkax.Producer
	Metrics  *metrics.Set
	Service  string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/retry", h.retryPayment)
	r.Post("/orders/{id}/check", h.checkStatus)
	r.Post("/webhooks/payment", h.paymentWebhook)
	r.Get("/products", h.listProducts)
}

type CheckoutReq struct {
	ExternalID string            `json:"external_id"`
	BuyerID    string            `json:"buyer_id"`
	BuyerName  string            `json:"buyer_name"`
	BuyerEmail string            `json:"buyer_email"`
	Items      []orders.LineItem `json:"items"`
}

type OrderResp struct {
	OrderID       string        `json:"order_id"`
	Status        orders.Status `json:"status"`
	TotalCents    int           `json:"total_cents"`
	StockReserved bool          `json:"stock_reserved"`
	ExpiresAt     time.Time     `json:"expires_at"`
	Remaining     string        `json:"remaining"`
	Idempotent    bool          `json:"idempotent,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) orderResp(o *orders.Order, idem bool) OrderResp {
	return OrderResp{
		OrderID:       o.ID,
		Status:        o.Status,
		TotalCents:    o.TotalCents,
		StockReserved: o.StockReserved,
		ExpiresAt:     o.ExpiresAt,
		Remaining:     expiry.FormatRemaining(expiry.TimeRemaining(o.ExpiresAt, time.Now().UTC())),
		Idempotent:    idem,
	}
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ExternalID == "" || req.BuyerID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Idempotent replay: same external id returns the original order.
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
	if prev, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && prev != "" {
		if o, err := h.Store.Get(ctx, prev); err == nil {
			writeJSON(w, http.StatusOK, h.orderResp(o, true))
			return
		}
	}

	o, err := h.Checkout.Checkout(ctx, checkout.CheckoutRequest{
		BuyerID:    req.BuyerID,
		BuyerName:  req.BuyerName,
		BuyerEmail: req.BuyerEmail,
		Items:      req.Items,
	})
	if err != nil {
		h.writeCheckoutErr(w, err)
		return
	}
	h.countCheckout("created")

	_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	h.cacheOrder(ctx, o)
	h.publishCreated(r, o)

	writeJSON(w, http.StatusCreated, h.orderResp(o, false))
}

func (h *OrdersHandler) writeCheckoutErr(w http.ResponseWriter, err error) {
	var short *stock.InsufficientError
	switch {
	case errors.As(err, &short):
		h.countCheckout("rejected")
		if h.Metrics != nil {
			h.Metrics.Shortfalls.Inc()
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      short.Error(),
			"product_id": short.ProductID,
			"available":  short.Available,
		})
	case errors.Is(err, payments.ErrGatewayUnavailable):
		h.countCheckout("gateway_error")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.Is(err, stock.ErrUnknownProduct), errors.Is(err, checkout.ErrEmptyCart):
		h.countCheckout("invalid")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.countCheckout("error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Store.Get(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, h.orderResp(o, false))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	applied, err := h.Rec.Cancel(ctx, orderID)
	if err != nil {
		h.writeReconcileErr(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.Transition(string(orders.StatusCancelled), applied)
	}
	if !applied {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not cancellable"})
		return
	}

	h.dropCache(ctx, orderID)
	h.publishStatus(r, orderID, orders.EventOrderCancelled, orders.StatusCancelled, "buyer cancelled")
	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "status": string(orders.StatusCancelled)})
}

func (h *OrdersHandler) retryPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Checkout.Retry(ctx, orderID)
	if err != nil {
		var short *stock.InsufficientError
		switch {
		case errors.As(err, &short):
			if h.Metrics != nil {
				h.Metrics.Shortfalls.Inc()
			}
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":      short.Error(),
				"product_id": short.ProductID,
				"available":  short.Available,
			})
		case errors.Is(err, orders.ErrNotRetryable), errors.Is(err, orders.ErrConflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, orders.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, payments.ErrGatewayUnavailable):
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	h.dropCache(ctx, orderID)
	h.publishStatus(r, orderID, orders.EventPaymentRetried, o.Status, "payment retried")
	writeJSON(w, http.StatusOK, h.orderResp(o, false))
}

func (h *OrdersHandler) checkStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Rec.Poll(ctx, orderID)
	if err != nil {
		h.writeReconcileErr(w, err)
		return
	}

	h.dropCache(ctx, orderID)
	writeJSON(w, http.StatusOK, h.orderResp(o, false))
}

type webhookReq struct {
	EventID       string `json:"event_id"`
	OrderID       string `json:"order_id"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"transaction_status"`
}

// paymentWebhook is the gateway's asynchronous callback. Always answered
// with 200 once decoded: a stale outcome that lost the race is absorbed, and
// replays are deduplicated.
func (h *OrdersHandler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == "" || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	corr := req.CorrelationID
	if corr == "" {
		corr = req.OrderID
	}
	dkey := fmt.Sprintf(redisx.KeyWebhookDedup, corr, req.Status)
	if fresh, err := redisx.SetNX(ctx, h.Redis, dkey, redisx.TTLDedup); err == nil && !fresh {
		writeJSON(w, http.StatusOK, map[string]string{"result": "duplicate"})
		return
	}

	outcome := payments.MapStatus(req.Status)
	orderID := req.OrderID
	applied, err := h.Rec.ApplyOutcome(ctx, orderID, outcome)
	if errors.Is(err, orders.ErrNotFound) {
		// Retried payments reach the gateway under a RETRY- id; map the
		// callback back to its order through the payment ref.
		if o, lerr := h.Store.GetByPaymentRef(ctx, corr); lerr == nil {
			orderID = o.ID
			applied, err = h.Rec.ApplyOutcome(ctx, orderID, outcome)
		}
	}
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown order"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if applied {
		h.dropCache(ctx, orderID)
		switch outcome {
		case payments.OutcomeSuccess:
			h.publishStatus(r, orderID, orders.EventOrderPaid, orders.StatusPaid, "")
			if h.Metrics != nil {
				h.Metrics.Transition(string(orders.StatusPaid), true)
			}
		case payments.OutcomeFailed:
			h.publishStatus(r, orderID, orders.EventPaymentFailed, orders.StatusFailed, req.Status)
			if h.Metrics != nil {
				h.Metrics.Transition(string(orders.StatusFailed), true)
			}
		case payments.OutcomeCancelled:
			h.publishStatus(r, orderID, orders.EventOrderCancelled, orders.StatusCancelled, req.Status)
		case payments.OutcomeExpired:
			h.publishStatus(r, orderID, orders.EventOrderExpired, orders.StatusExpired, req.Status)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": "ok", "applied": applied})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) writeReconcileErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, reconcile.ErrNoPaymentRef):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, payments.ErrGatewayUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *OrdersHandler) countCheckout(result string) {
	if h.Metrics != nil {
		h.Metrics.Checkouts.WithLabelValues(result).Inc()
	}
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o *orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(h.orderResp(o, false)), redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) dropCache(ctx context.Context, orderID string) {
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}

func (h *OrdersHandler) publishCreated(r *http.Request, o *orders.Order) {
	if h.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:    o.ID,
			BuyerID:    o.BuyerID,
			Items:      o.Items,
			TotalCents: o.TotalCents,
			ExpiresAt:  o.ExpiresAt,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) publishStatus(r *http.Request, orderID, eventType string, status orders.Status, reason string) {
	if h.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderStatusPayload{
			OrderID: orderID,
			Status:  status,
			Reason:  reason,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
