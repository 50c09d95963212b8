package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/furnistore/order-reserve/internal/payments"
	"github.com/furnistore/order-reserve/internal/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	failCreate bool
	creates    int
	lastID     string
	outcome    payments.Outcome
}

func (g *fakeGateway) CreateIntent(_ context.Context, gatewayOrderID string, _ int, _ payments.BuyerInfo) (payments.Intent, error) {
	g.creates++
	g.lastID = gatewayOrderID
	if g.failCreate {
		return payments.Intent{}, fmt.Errorf("%w: connection refused", payments.ErrGatewayUnavailable)
	}
	return payments.Intent{Token: "tok", CorrelationID: gatewayOrderID}, nil
}

func (g *fakeGateway) PollStatus(context.Context, string) (payments.Outcome, string, error) {
	return g.outcome, string(g.outcome), nil
}

func newService(avail map[string]int) (*Service, *stock.MemoryLedger, *orders.MemStore, *fakeGateway) {
	ledger := stock.NewMemoryLedger(avail)
	store := orders.NewMemStore()
	gw := &fakeGateway{}
	svc := &Service{
		Ledger:  ledger,
		Store:   store,
		Gateway: gw,
		TTL:     24 * time.Hour,
	}
	return svc, ledger, store, gw
}

func cart(lines ...orders.LineItem) CheckoutRequest {
	return CheckoutRequest{
		BuyerID:    "buyer-1",
		BuyerName:  "Buyer",
		BuyerEmail: "buyer@example.com",
		Items:      lines,
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	ctx := context.Background()
	svc, ledger, store, gw := newService(map[string]int{"p1": 5, "p2": 3})

	start := time.Now().UTC()
	o, err := svc.Checkout(ctx, cart(
		orders.LineItem{ProductID: "p1", Name: "Chair", PriceCents: 1500, Qty: 2},
		orders.LineItem{ProductID: "p2", Name: "Lamp", PriceCents: 400, Qty: 1},
	))
	require.NoError(t, err)

	assert.Equal(t, orders.StatusAwaitingPayment, o.Status)
	assert.True(t, o.StockReserved)
	assert.Equal(t, 3400, o.TotalCents)
	assert.Equal(t, o.ID, o.PaymentRef)
	assert.WithinDuration(t, start.Add(24*time.Hour), o.ExpiresAt, 2*time.Second)

	avail, _ := ledger.Available(ctx, []string{"p1", "p2"})
	assert.Equal(t, map[string]int{"p1": 3, "p2": 2}, avail)
	assert.True(t, ledger.Holds(o.ID))
	assert.Equal(t, 1, gw.creates)

	stored, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalCents, stored.TotalCents)
	assert.Len(t, stored.Items, 2)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _, gw := newService(map[string]int{"p1": 4})

	_, err := svc.Checkout(ctx, cart(orders.LineItem{ProductID: "p1", PriceCents: 100, Qty: 10}))

	var short *stock.InsufficientError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p1", short.ProductID)
	assert.Equal(t, 4, short.Available)

	// no order, no reservation, no gateway call
	avail, _ := ledger.Available(ctx, []string{"p1"})
	assert.Equal(t, 4, avail["p1"])
	assert.Equal(t, 0, gw.creates)
}

func TestCheckoutGatewayDownReleasesStock(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _, gw := newService(map[string]int{"p1": 5})
	gw.failCreate = true

	_, err := svc.Checkout(ctx, cart(orders.LineItem{ProductID: "p1", PriceCents: 100, Qty: 2}))
	assert.ErrorIs(t, err, payments.ErrGatewayUnavailable)

	avail, _ := ledger.Available(ctx, []string{"p1"})
	assert.Equal(t, 5, avail["p1"], "compensating release must restore stock")
}

func TestCheckoutRejectsBadCart(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(map[string]int{"p1": 5})

	_, err := svc.Checkout(ctx, cart())
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.Checkout(ctx, cart(orders.LineItem{ProductID: "p1", PriceCents: 100, Qty: 0}))
	assert.ErrorContains(t, err, "invalid qty")

	_, err = svc.Checkout(ctx, cart(orders.LineItem{ProductID: "p1", PriceCents: -1, Qty: 1}))
	assert.ErrorContains(t, err, "invalid price")

	_, err = svc.Checkout(ctx, cart(orders.LineItem{ProductID: "ghost", PriceCents: 100, Qty: 1}))
	assert.ErrorIs(t, err, stock.ErrUnknownProduct)
}

func seedTerminal(t *testing.T, svc *Service, ledger *stock.MemoryLedger, store *orders.MemStore, status orders.Status, holdStock bool) *orders.Order {
	t.Helper()
	ctx := context.Background()
	o := &orders.Order{
		ID:         "order-1",
		BuyerID:    "buyer-1",
		Items:      []orders.LineItem{{ProductID: "p1", Name: "Chair", PriceCents: 1000, Qty: 2}},
		TotalCents: 2000,
		Status:     status,
		CreatedAt:  time.Now().UTC().Add(-48 * time.Hour),
		ExpiresAt:  time.Now().UTC().Add(-24 * time.Hour),
	}
	if holdStock {
		require.NoError(t, ledger.Reserve(ctx, o.ID, []stock.Item{{ProductID: "p1", Qty: 2}}))
		o.StockReserved = true
	}
	require.NoError(t, store.Create(ctx, o))
	return o
}

func TestRetryFromFailedKeepsOriginalHold(t *testing.T) {
	ctx := context.Background()
	svc, ledger, store, gw := newService(map[string]int{"p1": 5})
	seedTerminal(t, svc, ledger, store, orders.StatusFailed, true)

	avail, _ := ledger.Available(ctx, []string{"p1"})
	require.Equal(t, 3, avail["p1"])

	o, err := svc.Retry(ctx, "order-1")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusAwaitingPayment, o.Status)
	assert.True(t, o.StockReserved)
	assert.True(t, o.ExpiresAt.After(time.Now().UTC()))
	assert.Contains(t, gw.lastID, "RETRY-")

	// the hold was reused, not doubled
	avail, _ = ledger.Available(ctx, []string{"p1"})
	assert.Equal(t, 3, avail["p1"])
}

func TestRetryFromExpiredReReserves(t *testing.T) {
	ctx := context.Background()
	svc, ledger, store, _ := newService(map[string]int{"p1": 5})
	seedTerminal(t, svc, ledger, store, orders.StatusExpired, false)

	o, err := svc.Retry(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAwaitingPayment, o.Status)
	assert.True(t, o.StockReserved)

	avail, _ := ledger.Available(ctx, []string{"p1"})
	assert.Equal(t, 3, avail["p1"])
}

func TestRetryFailsClosedOnShortfall(t *testing.T) {
	ctx := context.Background()
	svc, ledger, store, gw := newService(map[string]int{"p1": 1})
	seedTerminal(t, svc, ledger, store, orders.StatusExpired, false)

	_, err := svc.Retry(ctx, "order-1")
	var short *stock.InsufficientError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 1, short.Available)

	o, _ := store.Get(ctx, "order-1")
	assert.Equal(t, orders.StatusExpired, o.Status, "order must stay in its prior state")
	assert.False(t, o.StockReserved)
	assert.Equal(t, 0, gw.creates)

	avail, _ := ledger.Available(ctx, []string{"p1"})
	assert.Equal(t, 1, avail["p1"])
}

func TestRetryGatewayDownReleasesFreshHoldOnly(t *testing.T) {
	ctx := context.Background()
	svc, ledger, store, gw := newService(map[string]int{"p1": 5})
	seedTerminal(t, svc, ledger, store, orders.StatusExpired, false)
	gw.failCreate = true

	_, err := svc.Retry(ctx, "order-1")
	assert.ErrorIs(t, err, payments.ErrGatewayUnavailable)

	avail, _ := ledger.Available(ctx, []string{"p1"})
	assert.Equal(t, 5, avail["p1"], "fresh hold must be rolled back")
	assert.False(t, ledger.Holds("order-1"))
}

func TestRetryNotRetryable(t *testing.T) {
	ctx := context.Background()
	svc, ledger, store, _ := newService(map[string]int{"p1": 5})
	seedTerminal(t, svc, ledger, store, orders.StatusAwaitingPayment, true)

	_, err := svc.Retry(ctx, "order-1")
	assert.ErrorIs(t, err, orders.ErrNotRetryable)
}
