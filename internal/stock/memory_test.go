package stock

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(map[string]int{"p1": 5, "p2": 1})

	err := l.Reserve(ctx, "o1", []Item{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 3},
	})
	var short *InsufficientError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p2", short.ProductID)
	assert.Equal(t, 3, short.Requested)
	assert.Equal(t, 1, short.Available)

	// nothing decremented
	avail, err := l.Available(ctx, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 5, "p2": 1}, avail)
	assert.False(t, l.Holds("o1"))
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(map[string]int{"p1": 5})

	require.NoError(t, l.Reserve(ctx, "o1", []Item{{ProductID: "p1", Qty: 2}}))
	avail, _ := l.Available(ctx, []string{"p1"})
	assert.Equal(t, 3, avail["p1"])
	assert.True(t, l.Holds("o1"))

	require.NoError(t, l.Release(ctx, "o1"))
	avail, _ = l.Available(ctx, []string{"p1"})
	assert.Equal(t, 5, avail["p1"])
	assert.False(t, l.Holds("o1"))

	// releasing again must not double-credit
	require.NoError(t, l.Release(ctx, "o1"))
	avail, _ = l.Available(ctx, []string{"p1"})
	assert.Equal(t, 5, avail["p1"])
}

func TestReserveIsIdempotentPerOrder(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(map[string]int{"p1": 5})

	require.NoError(t, l.Reserve(ctx, "o1", []Item{{ProductID: "p1", Qty: 2}}))
	require.NoError(t, l.Reserve(ctx, "o1", []Item{{ProductID: "p1", Qty: 2}}))

	avail, _ := l.Available(ctx, []string{"p1"})
	assert.Equal(t, 3, avail["p1"], "repeat reserve for the same order must not decrement twice")
}

func TestReserveAggregatesDuplicateLines(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(map[string]int{"p1": 5})

	require.NoError(t, l.Reserve(ctx, "o1", []Item{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p1", Qty: 1},
	}))
	avail, _ := l.Available(ctx, []string{"p1"})
	assert.Equal(t, 2, avail["p1"])
}

func TestReserveUnknownProduct(t *testing.T) {
	l := NewMemoryLedger(map[string]int{"p1": 5})
	err := l.Reserve(context.Background(), "o1", []Item{{ProductID: "ghost", Qty: 1}})
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	const available = 10
	const attempts = 50
	l := NewMemoryLedger(map[string]int{"p1": available})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := l.Reserve(ctx, fmt.Sprintf("o%d", n), []Item{{ProductID: "p1", Qty: 1}})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			var short *InsufficientError
			assert.ErrorAs(t, err, &short)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, available, successes, "successful reservations must equal initial stock")
	avail, _ := l.Available(ctx, []string{"p1"})
	assert.Equal(t, 0, avail["p1"])
	assert.GreaterOrEqual(t, avail["p1"], 0, "stock must never go negative")
}
