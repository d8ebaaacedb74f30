package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/getachewzemene/minalesh-inventory/internal/model"
)

// MemStore is an in-process Store backed by maps and a single mutex.
// The mutex is held for the whole of WithinTx, which serializes
// transactions the way the SQL store's row locks serialize reserve
// calls per owner — the guarding primitive lives at the same place as
// the data, which for this store is process memory.  It backs the
// engine's tests and is handy for local development without MySQL.
type MemStore struct {
	mu           sync.Mutex
	stock        map[ownerKey]int64
	reservations map[string]*model.Reservation
}

// ownerKey flattens a StockOwner into a comparable map key.  A nil
// variant is distinct from every non-nil one, preserving the rule that
// a parent product and its variants never share a counter.
type ownerKey struct {
	productID  uint64
	variantID  uint64
	hasVariant bool
}

func keyFor(o model.StockOwner) ownerKey {
	k := ownerKey{productID: o.ProductID}
	if o.VariantID != nil {
		k.variantID = *o.VariantID
		k.hasVariant = true
	}
	return k
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		stock:        make(map[ownerKey]int64),
		reservations: make(map[string]*model.Reservation),
	}
}

// SetStock creates or overwrites the stock counter for an owner, the
// way an administrative catalog edit would.
func (s *MemStore) SetStock(owner model.StockOwner, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[keyFor(owner)] = qty
}

// Stock returns the owner's current raw stock_quantity counter and
// whether the owner exists.
func (s *MemStore) Stock(owner model.StockOwner) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qty, ok := s.stock[keyFor(owner)]
	return qty, ok
}

// Reservation returns a copy of the stored reservation, if any.
func (s *MemStore) Reservation(id string) (model.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return model.Reservation{}, false
	}
	return *res, true
}

// WithinTx serializes fn against every other store operation and rolls
// the whole state back when fn fails, mirroring the SQL store's
// transaction semantics.
func (s *MemStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	stockSnap := make(map[ownerKey]int64, len(s.stock))
	for k, v := range s.stock {
		stockSnap[k] = v
	}
	resSnap := make(map[string]*model.Reservation, len(s.reservations))
	for k, v := range s.reservations {
		cp := *v
		resSnap[k] = &cp
	}
	if err := fn(&memTx{s: s}); err != nil {
		s.stock = stockSnap
		s.reservations = resSnap
		return err
	}
	return nil
}

// StockQuantity implements the advisory read.
func (s *MemStore) StockQuantity(ctx context.Context, owner model.StockOwner) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qty, ok := s.stock[keyFor(owner)]
	return qty, ok, nil
}

// ActiveReservedSum implements the advisory active-hold sum.
func (s *MemStore) ActiveReservedSum(ctx context.Context, owner model.StockOwner, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSumLocked(owner, now), nil
}

func (s *MemStore) activeSumLocked(owner model.StockOwner, now time.Time) int64 {
	key := keyFor(owner)
	var sum int64
	for _, res := range s.reservations {
		if keyFor(res.Owner) != key {
			continue
		}
		if res.Status == model.ReservationActive && res.ExpiresAt.After(now) {
			sum += res.Quantity
		}
	}
	return sum
}

// ReleaseReservation implements the single-row conditional release.
func (s *MemStore) ReleaseReservation(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok || res.Status != model.ReservationActive {
		return false, nil
	}
	res.Status = model.ReservationReleased
	t := now.UTC()
	res.ReleasedAt = &t
	return true, nil
}

// ExpireReservations implements the batched sweep.
func (s *MemStore) ExpireReservations(ctx context.Context, now time.Time, limit int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, res := range s.reservations {
		if n >= limit {
			break
		}
		if res.Status == model.ReservationActive && !res.ExpiresAt.After(now) {
			res.Status = model.ReservationExpired
			t := now.UTC()
			res.ReleasedAt = &t
			n++
		}
	}
	return n, nil
}

// memTx is the in-transaction view over a locked MemStore.
type memTx struct {
	s *MemStore
}

func (t *memTx) StockQuantityForUpdate(ctx context.Context, owner model.StockOwner) (int64, bool, error) {
	qty, ok := t.s.stock[keyFor(owner)]
	return qty, ok, nil
}

func (t *memTx) ActiveReservedSum(ctx context.Context, owner model.StockOwner, now time.Time) (int64, error) {
	return t.s.activeSumLocked(owner, now), nil
}

func (t *memTx) InsertReservation(ctx context.Context, res *model.Reservation) error {
	cp := *res
	t.s.reservations[res.ID] = &cp
	return nil
}

func (t *memTx) ReservationForUpdate(ctx context.Context, id string) (*model.Reservation, error) {
	res, ok := t.s.reservations[id]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (t *memTx) DecrementStock(ctx context.Context, owner model.StockOwner, qty int64) (bool, error) {
	key := keyFor(owner)
	current, ok := t.s.stock[key]
	if !ok || current < qty {
		return false, nil
	}
	t.s.stock[key] = current - qty
	return true, nil
}

func (t *memTx) MarkCommitted(ctx context.Context, id string, orderID uint64) (bool, error) {
	res, ok := t.s.reservations[id]
	if !ok || res.Status != model.ReservationActive {
		return false, nil
	}
	res.Status = model.ReservationCommitted
	res.OrderID = &orderID
	return true, nil
}

// compile-time interface checks
var (
	_ Store = (*MemStore)(nil)
	_ Tx    = (*memTx)(nil)
)
