package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger keeps counters in products.stock and one reservation row per
// (order, product). Rows flip RESERVED -> RELEASED exactly once, which is
// what makes Release safe to re-issue after a crash or a lost race.
type PGLedger struct{ DB *pgxpool.Pool }

var _ Ledger = (*PGLedger)(nil)

var ErrUnknownProduct = errors.New("unknown product")

func (l *PGLedger) Reserve(ctx context.Context, orderID string, items []Item) error {
	ids, want := collapse(items)

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Short-circuit: the order already holds a reservation (payment retry
	// on a Failed order, or a redelivered request).
	var held int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM reservations WHERE order_id=$1 AND status='RESERVED'`, orderID,
	).Scan(&held); err != nil {
		return err
	}
	if held > 0 {
		return nil
	}

	// Check everything before touching anything.
	for _, id := range ids {
		var avail int
		err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, id).Scan(&avail)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUnknownProduct
		}
		if err != nil {
			return err
		}
		if avail < want[id] {
			return &InsufficientError{ProductID: id, Requested: want[id], Available: avail}
		}
	}

	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`, id, want[id],
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(order_id, product_id, qty, status)
			VALUES ($1,$2,$3,'RESERVED')
			ON CONFLICT (order_id, product_id) DO UPDATE SET qty=EXCLUDED.qty, status='RESERVED'`,
			orderID, id, want[id],
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (l *PGLedger) Release(ctx context.Context, orderID string) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT product_id, qty FROM reservations WHERE order_id=$1 AND status='RESERVED' ORDER BY product_id`, orderID)
	if err != nil {
		return err
	}
	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, x.pid, x.qty,
		); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE reservations SET status='RELEASED' WHERE order_id=$1 AND status='RESERVED'`, orderID,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PGLedger) Available(ctx context.Context, productIDs []string) (map[string]int, error) {
	rows, err := l.DB.Query(ctx, `SELECT id, stock FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int, len(productIDs))
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (l *PGLedger) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT id, name, price_cents, stock, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
