// Package stock holds the authoritative available-quantity counters.
// A reservation decrements counters for a whole item set atomically and is
// tracked per order, so releasing the same order twice restores stock once.
package stock

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	Available  int       `json:"available"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// InsufficientError names the first product that could not be reserved and
// how much of it was actually available.
type InsufficientError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient stock: product=%s requested=%d available=%d",
		e.ProductID, e.Requested, e.Available)
}

type Ledger interface {
	// Reserve decrements stock for every item or none of them. A repeat call
	// for an order that already holds a reservation is a no-op.
	Reserve(ctx context.Context, orderID string, items []Item) error
	// Release restores whatever the order still holds. Idempotent.
	Release(ctx context.Context, orderID string) error
	Available(ctx context.Context, productIDs []string) (map[string]int, error)
}

// collapse merges duplicate product lines and returns ids sorted, so that
// row locks are always taken in the same order.
func collapse(items []Item) ([]string, map[string]int) {
	want := make(map[string]int, len(items))
	for _, it := range items {
		q := it.Qty
		if q < 1 {
			q = 1
		}
		want[it.ProductID] += q
	}
	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, want
}
