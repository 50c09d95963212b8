package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore mirrors the Repo contract in process memory. Used by tests and
// local runs without Postgres.
type MemStore struct {
	mu   sync.Mutex
	byID map[string]*Order
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*Order)}
}

func (s *MemStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *o
	cp.Items = append([]LineItem(nil), o.Items...)
	s.byID[o.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]LineItem(nil), o.Items...)
	return &cp, nil
}

func (s *MemStore) GetByPaymentRef(ctx context.Context, ref string) (*Order, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	var id string
	for _, o := range s.byID {
		if o.PaymentRef == ref {
			id = o.ID
			break
		}
	}
	s.mu.Unlock()
	if id == "" {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *MemStore) Transition(_ context.Context, id string, from []Status, ch Change) (TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return TransitionResult{}, ErrNotFound
	}
	res := TransitionResult{HadStock: o.StockReserved}
	if !statusIn(o.Status, from) || !CanTransition(o.Status, ch.Status) {
		return res, nil
	}
	o.Status = ch.Status
	if ch.StockReserved != nil {
		o.StockReserved = *ch.StockReserved
	}
	if ch.PaymentRef != nil {
		o.PaymentRef = *ch.PaymentRef
	}
	if ch.ExpiresAt != nil {
		o.ExpiresAt = *ch.ExpiresAt
	}
	o.UpdatedAt = time.Now().UTC()
	res.Applied = true
	return res, nil
}

func (s *MemStore) ListExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type due struct {
		id string
		at time.Time
	}
	var dues []due
	for id, o := range s.byID {
		if o.Status == StatusAwaitingPayment && !o.ExpiresAt.After(now) {
			dues = append(dues, due{id, o.ExpiresAt})
		}
	}
	sort.Slice(dues, func(i, j int) bool { return dues[i].at.Before(dues[j].at) })
	if limit > 0 && len(dues) > limit {
		dues = dues[:limit]
	}
	ids := make([]string, 0, len(dues))
	for _, d := range dues {
		ids = append(ids, d.id)
	}
	return ids, nil
}
