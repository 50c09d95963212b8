// Package reconcile applies the competing terminal triggers (gateway result,
// buyer cancel, expiry) to an order exactly once. Every path runs the same
// guarded compare-and-swap in the order store first and only then touches the
// ledger, so whichever trigger lands first wins and the rest become no-ops.
package reconcile

import (
	"context"
	"errors"
	"log"

	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/furnistore/order-reserve/internal/payments"
	"github.com/furnistore/order-reserve/internal/stock"
)

var ErrNoPaymentRef = errors.New("order has no payment reference")

type Reconciler struct {
	Store   orders.Store
	Ledger  stock.Ledger
	Gateway payments.Gateway
}

// ApplyOutcome maps a gateway outcome onto the order's state machine.
// The returned bool reports whether this call changed the order; false means
// the guard failed (stale trigger) or the outcome needed no change.
func (r *Reconciler) ApplyOutcome(ctx context.Context, orderID string, outcome payments.Outcome) (bool, error) {
	switch outcome {
	case payments.OutcomeSuccess:
		// Sale finalized; the stock decrement stays.
		res, err := r.Store.Transition(ctx, orderID,
			[]orders.Status{orders.StatusAwaitingPayment},
			orders.Change{Status: orders.StatusPaid})
		return res.Applied, err

	case payments.OutcomeFailed:
		// Stock is kept so the buyer can retry against the same hold.
		res, err := r.Store.Transition(ctx, orderID,
			[]orders.Status{orders.StatusAwaitingPayment},
			orders.Change{Status: orders.StatusFailed})
		return res.Applied, err

	case payments.OutcomeCancelled:
		return r.Cancel(ctx, orderID)

	case payments.OutcomeExpired:
		return r.Expire(ctx, orderID)

	case payments.OutcomePending:
		// Correlation id was recorded when the intent was created; nothing
		// to change until a terminal outcome arrives.
		return false, nil

	default:
		return false, nil
	}
}

// Cancel handles buyer-initiated cancellation of an AwaitingPayment or
// Failed order, releasing the hold if one exists.
func (r *Reconciler) Cancel(ctx context.Context, orderID string) (bool, error) {
	res, err := r.Store.Transition(ctx, orderID,
		[]orders.Status{orders.StatusAwaitingPayment, orders.StatusFailed},
		orders.Change{Status: orders.StatusCancelled, StockReserved: orders.Bool(false)})
	if err != nil {
		return false, err
	}
	if !res.Applied {
		return false, nil
	}
	r.release(ctx, orderID, res.HadStock)
	return true, nil
}

// Expire fires when the reservation deadline passes. The guard makes a late
// expiry against an already-paid order a silent no-op.
func (r *Reconciler) Expire(ctx context.Context, orderID string) (bool, error) {
	res, err := r.Store.Transition(ctx, orderID,
		[]orders.Status{orders.StatusAwaitingPayment},
		orders.Change{Status: orders.StatusExpired, StockReserved: orders.Bool(false)})
	if err != nil {
		return false, err
	}
	if !res.Applied {
		return false, nil
	}
	r.release(ctx, orderID, res.HadStock)
	return true, nil
}

// Poll re-checks the gateway by correlation id and applies whatever outcome
// it reports. Used by the buyer-facing "check status" action.
func (r *Reconciler) Poll(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := r.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.StatusAwaitingPayment {
		return o, nil
	}
	if o.PaymentRef == "" {
		return nil, ErrNoPaymentRef
	}

	outcome, _, err := r.Gateway.PollStatus(ctx, o.PaymentRef)
	if err != nil {
		return nil, err
	}
	if _, err := r.ApplyOutcome(ctx, orderID, outcome); err != nil {
		return nil, err
	}
	return r.Store.Get(ctx, orderID)
}

func (r *Reconciler) release(ctx context.Context, orderID string, hadStock bool) {
	if !hadStock {
		return
	}
	// The status flip already committed; release is idempotent, so failing
	// here leaves a re-issuable hold that the audit will flag.
	if err := r.Ledger.Release(ctx, orderID); err != nil {
		log.Printf("stock release failed: order=%s err=%v", orderID, err)
	}
}
