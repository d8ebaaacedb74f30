package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/getachewzemene/minalesh-inventory/internal/inventory"
	"github.com/getachewzemene/minalesh-inventory/internal/model"
)

// Store adapts the SQL repositories to the engine's store contract.  It
// owns the transaction boundary: WithinTx opens a transaction, hands the
// engine a Tx view over the same repositories, and commits only when the
// engine's callback succeeds.  The row locks taken by the *ForUpdate
// reads live exactly as long as that transaction.
type Store struct {
	db           *sql.DB
	stock        *StockRepo
	reservations *ReservationRepo
	log          zerolog.Logger
}

// NewStore returns a Store over the given database handle.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:           db,
		stock:        NewStockRepo(db),
		reservations: NewReservationRepo(db),
		log:          logger,
	}
}

// WithinTx runs fn inside a single database transaction.  Any error
// from fn rolls the transaction back and is returned unchanged, so the
// engine's typed rejections (insufficient stock, commit refusal) pass
// through without leaving partial writes behind.
func (s *Store) WithinTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.log.Error().Err(rbErr).Msg("transaction rollback failed")
			}
		}
	}()
	if err := fn(&storeTx{tx: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// StockQuantity implements the advisory stock read.
func (s *Store) StockQuantity(ctx context.Context, owner model.StockOwner) (int64, bool, error) {
	return s.stock.Quantity(ctx, owner.ProductID, owner.VariantID)
}

// ActiveReservedSum implements the advisory active-hold sum.
func (s *Store) ActiveReservedSum(ctx context.Context, owner model.StockOwner, now time.Time) (int64, error) {
	return s.reservations.ActiveSum(ctx, owner.ProductID, owner.VariantID, now)
}

// ReleaseReservation implements the single-statement release.
func (s *Store) ReleaseReservation(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.reservations.Release(ctx, id, now)
}

// ExpireReservations implements the batched expiry sweep.
func (s *Store) ExpireReservations(ctx context.Context, now time.Time, limit int64) (int64, error) {
	return s.reservations.ExpireBatch(ctx, now, limit)
}

// storeTx is the in-transaction view handed to the engine's WithinTx
// callback.  It reuses the repositories' *Tx methods over one *sql.Tx.
type storeTx struct {
	tx *sql.Tx
	s  *Store
}

func (t *storeTx) StockQuantityForUpdate(ctx context.Context, owner model.StockOwner) (int64, bool, error) {
	return t.s.stock.QuantityForUpdateTx(ctx, t.tx, owner.ProductID, owner.VariantID)
}

func (t *storeTx) ActiveReservedSum(ctx context.Context, owner model.StockOwner, now time.Time) (int64, error) {
	return t.s.reservations.ActiveSumTx(ctx, t.tx, owner.ProductID, owner.VariantID, now)
}

func (t *storeTx) InsertReservation(ctx context.Context, res *model.Reservation) error {
	return t.s.reservations.CreateTx(ctx, t.tx, res)
}

func (t *storeTx) ReservationForUpdate(ctx context.Context, id string) (*model.Reservation, error) {
	return t.s.reservations.GetForUpdateTx(ctx, t.tx, id)
}

func (t *storeTx) DecrementStock(ctx context.Context, owner model.StockOwner, qty int64) (bool, error) {
	return t.s.stock.DecrementTx(ctx, t.tx, owner.ProductID, owner.VariantID, qty, time.Now())
}

func (t *storeTx) MarkCommitted(ctx context.Context, id string, orderID uint64) (bool, error) {
	return t.s.reservations.MarkCommittedTx(ctx, t.tx, id, orderID)
}

// compile-time interface checks
var (
	_ inventory.Store = (*Store)(nil)
	_ inventory.Tx    = (*storeTx)(nil)
)
