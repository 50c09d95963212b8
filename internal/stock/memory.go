package stock

import (
	"context"
	"sync"
)

// MemoryLedger mirrors the PGLedger contract with an in-process map. Used by
// tests and local runs without Postgres.
type MemoryLedger struct {
	mu    sync.Mutex
	avail map[string]int
	held  map[string]map[string]int // orderID -> productID -> qty
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger(initial map[string]int) *MemoryLedger {
	avail := make(map[string]int, len(initial))
	for id, n := range initial {
		avail[id] = n
	}
	return &MemoryLedger{
		avail: avail,
		held:  make(map[string]map[string]int),
	}
}

func (l *MemoryLedger) Reserve(_ context.Context, orderID string, items []Item) error {
	ids, want := collapse(items)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.held[orderID]) > 0 {
		return nil
	}

	for _, id := range ids {
		avail, ok := l.avail[id]
		if !ok {
			return ErrUnknownProduct
		}
		if avail < want[id] {
			return &InsufficientError{ProductID: id, Requested: want[id], Available: avail}
		}
	}

	hold := make(map[string]int, len(ids))
	for _, id := range ids {
		l.avail[id] -= want[id]
		hold[id] = want[id]
	}
	l.held[orderID] = hold
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, qty := range l.held[orderID] {
		l.avail[id] += qty
	}
	delete(l.held, orderID)
	return nil
}

func (l *MemoryLedger) Available(_ context.Context, productIDs []string) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int, len(productIDs))
	for _, id := range productIDs {
		if n, ok := l.avail[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

// Holds reports whether the order currently holds a reservation.
func (l *MemoryLedger) Holds(orderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held[orderID]) > 0
}
