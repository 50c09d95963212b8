package orders

import (
	"context"
	"time"
)

// LineItem is a cart line snapshotted at checkout. Prices are never
// recomputed from the catalog afterwards.
type LineItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
	Qty        int    `json:"qty"`
}

type Order struct {
	ID            string     `json:"id"`
	BuyerID       string     `json:"buyer_id"`
	Items         []LineItem `json:"items"`
	TotalCents    int        `json:"total_cents"`
	Status        Status     `json:"status"`
	StockReserved bool       `json:"stock_reserved"`
	PaymentRef    string     `json:"payment_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Total sums qty*price over the line items.
func Total(items []LineItem) int {
	var total int
	for _, it := range items {
		total += it.PriceCents * it.Qty
	}
	return total
}

// Change is the field set applied by a guarded transition. Nil pointers
// leave the column untouched.
type Change struct {
	Status        Status
	StockReserved *bool
	PaymentRef    *string
	ExpiresAt     *time.Time
}

// TransitionResult reports whether the compare-and-swap applied and whether
// the row held a stock reservation before the update. Callers use HadStock
// to decide if a ledger release is owed.
type TransitionResult struct {
	Applied  bool
	HadStock bool
}

type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetByPaymentRef finds the order whose latest payment attempt used ref.
	// Retried payments reach the gateway under a fresh reference, so callbacks
	// for them can only be mapped back to the order this way.
	GetByPaymentRef(ctx context.Context, ref string) (*Order, error)
	// Transition applies ch only if the current status is in from.
	// A guard miss is not an error; it returns Applied=false.
	Transition(ctx context.Context, id string, from []Status, ch Change) (TransitionResult, error)
	// ListExpired returns ids of AwaitingPayment orders whose deadline has
	// passed, oldest first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

func Bool(b bool) *bool          { return &b }
func Str(s string) *string       { return &s }
func Time(t time.Time) *time.Time { return &t }
