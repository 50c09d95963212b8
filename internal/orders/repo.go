package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, status, total_cents, stock_reserved, payment_ref, created_at, expires_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$7)`,
		o.ID, o.BuyerID, o.Status, o.TotalCents, o.StockReserved, o.PaymentRef, o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.Name, it.Qty, it.PriceCents,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, buyer_id, status, total_cents, stock_reserved, payment_ref, created_at, expires_at, updated_at
		FROM orders WHERE id=$1`, id,
	).Scan(&o.ID, &o.BuyerID, &o.Status, &o.TotalCents, &o.StockReserved, &o.PaymentRef, &o.CreatedAt, &o.ExpiresAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, qty, price_cents
		FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *Repo) GetByPaymentRef(ctx context.Context, ref string) (*Order, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE payment_ref=$1`, ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Transition is the compare-and-swap at the heart of outcome reconciliation:
// the row is locked, the current status checked against the expected set, and
// the change applied only on a match. Whichever trigger gets here first wins;
// the loser sees Applied=false and must not touch the ledger.
func (r *Repo) Transition(ctx context.Context, id string, from []Status, ch Change) (TransitionResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransitionResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur Status
	var reserved bool
	err = tx.QueryRow(ctx, `SELECT status, stock_reserved FROM orders WHERE id=$1 FOR UPDATE`, id).
		Scan(&cur, &reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return TransitionResult{}, ErrNotFound
	}
	if err != nil {
		return TransitionResult{}, err
	}

	if !statusIn(cur, from) || !CanTransition(cur, ch.Status) {
		return TransitionResult{Applied: false, HadStock: reserved}, nil
	}

	set := "status=$2, updated_at=now()"
	args := []any{id, ch.Status}
	if ch.StockReserved != nil {
		args = append(args, *ch.StockReserved)
		set += fmt.Sprintf(", stock_reserved=$%d", len(args))
	}
	if ch.PaymentRef != nil {
		args = append(args, *ch.PaymentRef)
		set += fmt.Sprintf(", payment_ref=$%d", len(args))
	}
	if ch.ExpiresAt != nil {
		args = append(args, *ch.ExpiresAt)
		set += fmt.Sprintf(", expires_at=$%d", len(args))
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET `+set+` WHERE id=$1`, args...); err != nil {
		return TransitionResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Applied: true, HadStock: reserved}, nil
}

func (r *Repo) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status=$1 AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3`, StatusAwaitingPayment, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func statusIn(s Status, set []Status) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
