// Package checkout orchestrates the reservation step of a purchase: an
// all-or-nothing stock hold, a payment intent at the gateway, and one order
// record awaiting exactly one of payment, cancellation or expiry.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/furnistore/order-reserve/internal/payments"
	"github.com/furnistore/order-reserve/internal/stock"
	"github.com/google/uuid"
)

var ErrEmptyCart = errors.New("cart is empty")

type CheckoutRequest struct {
	BuyerID    string
	BuyerName  string
	BuyerEmail string
	Items      []orders.LineItem
}

type Service struct {
	Ledger  stock.Ledger
	Store   orders.Store
	Gateway payments.Gateway

	// TTL is the reservation window; ExpiresAt = now + TTL.
	TTL time.Duration

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Checkout reserves stock for the whole cart, obtains a payment intent and
// persists the order. Any failure after the reservation rolls the hold back;
// stock is never left decremented without a matching order.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*orders.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	items := make([]stock.Item, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Qty <= 0 {
			return nil, fmt.Errorf("invalid qty for product %s", it.ProductID)
		}
		if it.PriceCents < 0 {
			return nil, fmt.Errorf("invalid price for product %s", it.ProductID)
		}
		items = append(items, stock.Item{ProductID: it.ProductID, Qty: it.Qty})
	}

	// Non-binding pre-check; the ledger re-checks under lock.
	if err := s.precheck(ctx, items); err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	if err := s.Ledger.Reserve(ctx, orderID, items); err != nil {
		return nil, err
	}

	now := s.now()
	intent, err := s.Gateway.CreateIntent(ctx, orderID, orders.Total(req.Items), payments.BuyerInfo{
		Name:  req.BuyerName,
		Email: req.BuyerEmail,
	})
	if err != nil {
		s.compensate(ctx, orderID)
		return nil, err
	}

	o := &orders.Order{
		ID:            orderID,
		BuyerID:       req.BuyerID,
		Items:         req.Items,
		TotalCents:    orders.Total(req.Items),
		Status:        orders.StatusAwaitingPayment,
		StockReserved: true,
		PaymentRef:    intent.CorrelationID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.TTL),
		UpdatedAt:     now,
	}
	if err := s.Store.Create(ctx, o); err != nil {
		s.compensate(ctx, orderID)
		return nil, err
	}
	return o, nil
}

// Retry re-arms payment for a Failed or Expired order: the original line
// items are re-reserved (a no-op when the failed order still holds its
// reservation), a fresh intent is created and the order re-enters
// AwaitingPayment with a new deadline. A shortfall fails closed and leaves
// the order exactly as it was.
func (s *Service) Retry(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.StatusFailed && o.Status != orders.StatusExpired {
		return nil, orders.ErrNotRetryable
	}

	items := make([]stock.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, stock.Item{ProductID: it.ProductID, Qty: it.Qty})
	}
	if err := s.Ledger.Reserve(ctx, orderID, items); err != nil {
		return nil, err
	}
	// Only roll back what this call took: a Failed order kept its original
	// hold, and that hold must survive a failed retry.
	freshHold := !o.StockReserved

	now := s.now()
	gatewayID := fmt.Sprintf("RETRY-%s-%d", shortID(orderID), now.UnixMilli())
	intent, err := s.Gateway.CreateIntent(ctx, gatewayID, o.TotalCents, payments.BuyerInfo{})
	if err != nil {
		if freshHold {
			s.compensate(ctx, orderID)
		}
		return nil, err
	}

	deadline := now.Add(s.TTL)
	res, err := s.Store.Transition(ctx, orderID,
		[]orders.Status{orders.StatusFailed, orders.StatusExpired},
		orders.Change{
			Status:        orders.StatusAwaitingPayment,
			StockReserved: orders.Bool(true),
			PaymentRef:    orders.Str(intent.CorrelationID),
			ExpiresAt:     orders.Time(deadline),
		})
	if err != nil {
		if freshHold {
			s.compensate(ctx, orderID)
		}
		return nil, err
	}
	if !res.Applied {
		// A competing trigger transitioned the order first.
		if freshHold {
			s.compensate(ctx, orderID)
		}
		return nil, orders.ErrConflict
	}

	return s.Store.Get(ctx, orderID)
}

func (s *Service) precheck(ctx context.Context, items []stock.Item) error {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	avail, err := s.Ledger.Available(ctx, ids)
	if err != nil {
		return err
	}
	for _, it := range items {
		n, ok := avail[it.ProductID]
		if !ok {
			return stock.ErrUnknownProduct
		}
		if n < it.Qty {
			return &stock.InsufficientError{ProductID: it.ProductID, Requested: it.Qty, Available: n}
		}
	}
	return nil
}

func (s *Service) compensate(ctx context.Context, orderID string) {
	if err := s.Ledger.Release(ctx, orderID); err != nil {
		// Release is idempotent; a leftover hold is caught by the audit.
		log.Printf("compensating release failed: order=%s err=%v", orderID, err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
