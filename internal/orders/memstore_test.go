package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, s *MemStore, id string, status Status, expiresAt time.Time) {
	t.Helper()
	err := s.Create(context.Background(), &Order{
		ID:            id,
		BuyerID:       "buyer-1",
		Items:         []LineItem{{ProductID: "p1", PriceCents: 100, Qty: 1}},
		TotalCents:    100,
		Status:        status,
		StockReserved: status == StatusAwaitingPayment,
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     expiresAt,
	})
	require.NoError(t, err)
}

func TestMemStoreGuardedTransition(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedOrder(t, s, "o1", StatusAwaitingPayment, time.Now().Add(time.Hour))

	res, err := s.Transition(ctx, "o1", []Status{StatusAwaitingPayment}, Change{Status: StatusPaid})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.HadStock)

	// A late expiry trigger must not clobber the paid status.
	res, err = s.Transition(ctx, "o1", []Status{StatusAwaitingPayment},
		Change{Status: StatusExpired, StockReserved: Bool(false)})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	o, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.True(t, o.StockReserved)
}

func TestMemStoreTransitionUnknownOrder(t *testing.T) {
	s := NewMemStore()
	_, err := s.Transition(context.Background(), "nope", []Status{StatusAwaitingPayment}, Change{Status: StatusPaid})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreListExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	now := time.Now().UTC()

	seedOrder(t, s, "overdue-old", StatusAwaitingPayment, now.Add(-2*time.Hour))
	seedOrder(t, s, "overdue-new", StatusAwaitingPayment, now.Add(-time.Minute))
	seedOrder(t, s, "future", StatusAwaitingPayment, now.Add(time.Hour))
	seedOrder(t, s, "paid", StatusPaid, now.Add(-time.Hour))

	ids, err := s.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"overdue-old", "overdue-new"}, ids)

	ids, err = s.ListExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"overdue-old"}, ids)
}

func TestMemStoreGetByPaymentRef(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedOrder(t, s, "o1", StatusAwaitingPayment, time.Now().Add(time.Hour))

	res, err := s.Transition(ctx, "o1", []Status{StatusAwaitingPayment},
		Change{Status: StatusFailed, PaymentRef: Str("RETRY-o1-1")})
	require.NoError(t, err)
	require.True(t, res.Applied)

	o, err := s.GetByPaymentRef(ctx, "RETRY-o1-1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)

	_, err = s.GetByPaymentRef(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetByPaymentRef(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreCreateDuplicate(t *testing.T) {
	s := NewMemStore()
	seedOrder(t, s, "o1", StatusAwaitingPayment, time.Now())
	err := s.Create(context.Background(), &Order{ID: "o1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}
