package inventory

import (
	"context"
	"time"

	"github.com/getachewzemene/minalesh-inventory/internal/model"
)

// Store is the transactional data-store contract the engine runs against.
// The production implementation wraps MySQL (see internal/repository); the
// engine's tests use an in-memory store guarded by a mutex.  Whatever the
// backing store, WithinTx must make the read-then-decide sequence of a
// reserve call atomic with respect to concurrent reserves on the same
// stock owner — that property is what prevents overselling.
type Store interface {
	// WithinTx runs fn inside a single atomic transaction.  When fn
	// returns a non-nil error the transaction is rolled back and the
	// error is returned unchanged; otherwise the transaction commits.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// StockQuantity is the advisory, non-locking read used outside a
	// transaction.  ok is false when the owner has no stock row.
	StockQuantity(ctx context.Context, owner model.StockOwner) (qty int64, ok bool, err error)

	// ActiveReservedSum sums the quantities of ACTIVE reservations for
	// the owner whose hold window has not yet passed at now.
	ActiveReservedSum(ctx context.Context, owner model.StockOwner, now time.Time) (int64, error)

	// ReleaseReservation transitions a single reservation
	// ACTIVE→RELEASED, stamping released_at = now.  It reports false
	// when the reservation does not exist or is no longer ACTIVE.
	ReleaseReservation(ctx context.Context, id string, now time.Time) (bool, error)

	// ExpireReservations transitions up to limit reservations whose
	// hold window passed before now from ACTIVE to EXPIRED, stamping
	// released_at = now, and returns how many rows it transitioned.
	ExpireReservations(ctx context.Context, now time.Time, limit int64) (int64, error)
}

// Tx exposes the row-level operations available inside a WithinTx
// callback.  Implementations back the *ForUpdate reads with row locks
// (or an equivalent serialization) so that two concurrent transactions
// cannot both observe the same available stock and both succeed.
type Tx interface {
	// StockQuantityForUpdate reads the owner's stock row under a row
	// lock held until the transaction ends.  ok is false when the
	// owner has no stock row.
	StockQuantityForUpdate(ctx context.Context, owner model.StockOwner) (qty int64, ok bool, err error)

	// ActiveReservedSum is the in-transaction variant of
	// Store.ActiveReservedSum.
	ActiveReservedSum(ctx context.Context, owner model.StockOwner, now time.Time) (int64, error)

	// InsertReservation persists a new reservation row exactly as given.
	InsertReservation(ctx context.Context, res *model.Reservation) error

	// ReservationForUpdate loads a reservation under a row lock.  It
	// returns (nil, nil) when no row with that id exists.
	ReservationForUpdate(ctx context.Context, id string) (*model.Reservation, error)

	// DecrementStock atomically decrements the owner's stock_quantity
	// by qty only if the current value is at least qty.  It reports
	// whether a row was actually updated; false signals a lost race or
	// externally reduced stock, never an error.
	DecrementStock(ctx context.Context, owner model.StockOwner, qty int64) (bool, error)

	// MarkCommitted transitions a reservation ACTIVE→COMMITTED and
	// stamps the linked order.  It reports false when the row was not
	// ACTIVE anymore.
	MarkCommitted(ctx context.Context, id string, orderID uint64) (bool, error)
}
