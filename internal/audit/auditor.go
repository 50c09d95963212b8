// Package audit cross-checks the order store against the stock ledger.
// A mismatch between an order's stock_reserved flag and its live reservation
// rows should never occur; when it does it is a data-integrity fault for
// manual remediation, never something to retry or repair automatically.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/furnistore/order-reserve/internal/kafka"
	"github.com/furnistore/order-reserve/internal/metrics"
	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/jackc/pgx/v5"
	kafkago "github.com/segmentio/kafka-go"
)

// DB is the slice of pgxpool.Pool the auditor reads through.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Auditor struct {
	DB      DB
	Metrics *metrics.Set
}

// Fault is one order/ledger mismatch.
type Fault struct {
	OrderID string
	Detail  string
}

func (f *Fault) String() string {
	return fmt.Sprintf("order=%s: %s", f.OrderID, f.Detail)
}

// HandleLifecycle is mounted as a consumer handler on the lifecycle topic:
// every event settles the order into a state whose ledger footprint is
// checkable, so each one triggers a consistency check.
func (a *Auditor) HandleLifecycle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafka.UnmarshalEnvelope(m.Value, &env); err != nil {
		return err
	}
	if env.CorrelationID == "" {
		return nil
	}

	fault, err := a.CheckOrder(ctx, env.CorrelationID)
	if err != nil {
		return err
	}
	if fault != nil {
		// Commit the offset anyway; redelivery cannot fix bad data.
		log.Printf("FATAL integrity fault: %s", fault)
		if a.Metrics != nil {
			a.Metrics.IntegrityFaults.Inc()
		}
	}
	return nil
}

// CheckOrder verifies that stock_reserved on the order matches the presence
// of RESERVED reservation rows. Returns a non-nil Fault on mismatch.
func (a *Auditor) CheckOrder(ctx context.Context, orderID string) (*Fault, error) {
	var reserved bool
	err := a.DB.QueryRow(ctx, `SELECT stock_reserved FROM orders WHERE id=$1`, orderID).Scan(&reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		// Reservation rows with no order at all: stock decremented into the void.
		var n int
		if err := a.DB.QueryRow(ctx,
			`SELECT COUNT(*) FROM reservations WHERE order_id=$1 AND status='RESERVED'`, orderID,
		).Scan(&n); err != nil {
			return nil, err
		}
		if n > 0 {
			return &Fault{OrderID: orderID, Detail: fmt.Sprintf("order row missing but %d reservation rows held", n)}, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var held int
	if err := a.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM reservations WHERE order_id=$1 AND status='RESERVED'`, orderID,
	).Scan(&held); err != nil {
		return nil, err
	}

	if reserved && held == 0 {
		return &Fault{OrderID: orderID, Detail: "marked stock_reserved but ledger holds nothing"}, nil
	}
	if !reserved && held > 0 {
		return &Fault{OrderID: orderID, Detail: fmt.Sprintf("marked released but ledger still holds %d rows", held)}, nil
	}
	return nil, nil
}
