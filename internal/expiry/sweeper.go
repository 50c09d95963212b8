package expiry

import (
	"context"
	"log"
	"time"

	"github.com/furnistore/order-reserve/internal/metrics"
	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/furnistore/order-reserve/internal/reconcile"
	"golang.org/x/sync/errgroup"
)

// Expired is called for each order the sweeper transitioned to Expired;
// wiring uses it to publish lifecycle events and bump metrics. Optional.
type Expired func(orderID string)

// Sweeper walks AwaitingPayment orders past their deadline and runs the
// reconciler's Expire on each. Correctness does not depend on sweep timing:
// the guarded transition in the store arbitrates against concurrent gateway
// callbacks and cancellations.
type Sweeper struct {
	Store    orders.Store
	Rec      *reconcile.Reconciler
	Interval time.Duration
	Batch    int
	Workers  int
	OnExpire Expired
	Metrics  *metrics.Set

	Now func() time.Time
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			start := time.Now()
			n, err := s.Sweep(ctx)
			if s.Metrics != nil {
				s.Metrics.SweepSeconds.Observe(time.Since(start).Seconds())
			}
			if err != nil {
				log.Printf("sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweep: expired %d orders", n)
			}
		}
	}
}

// Sweep processes one batch and returns how many orders it expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}
	ids, err := s.Store.ListExpired(ctx, s.now(), batch)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}

	expired := make(chan string, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			applied, err := s.Rec.Expire(gctx, id)
			if err != nil {
				return err
			}
			if applied {
				expired <- id
			}
			return nil
		})
	}
	err = g.Wait()
	close(expired)

	var n int
	for id := range expired {
		n++
		if s.OnExpire != nil {
			s.OnExpire(id)
		}
	}
	return n, err
}
