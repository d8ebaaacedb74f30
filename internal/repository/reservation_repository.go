package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/getachewzemene/minalesh-inventory/internal/model"
)

// ReservationRepo provides CRUD operations for the reservations table.
// Rows move through a small state machine — ACTIVE, then exactly one of
// COMMITTED, RELEASED or EXPIRED — and every state-changing statement
// carries a WHERE status = 'ACTIVE' guard so a row can never leave a
// terminal state, no matter how often an operation is retried.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, product_id, variant_id, quantity, user_id, session_id, order_id, status, created_at, expires_at, released_at`

// scanReservation reads one reservations row from a row scanner,
// converting the nullable columns into pointer fields.
func scanReservation(row *sql.Row) (*model.Reservation, error) {
	var res model.Reservation
	var variantID, userID, orderID sql.NullInt64
	var sessionID sql.NullString
	var releasedAt sql.NullTime
	err := row.Scan(
		&res.ID, &res.Owner.ProductID, &variantID, &res.Quantity,
		&userID, &sessionID, &orderID, &res.Status,
		&res.CreatedAt, &res.ExpiresAt, &releasedAt,
	)
	if err != nil {
		return nil, err
	}
	if variantID.Valid {
		v := uint64(variantID.Int64)
		res.Owner.VariantID = &v
	}
	if userID.Valid {
		u := uint64(userID.Int64)
		res.UserID = &u
	}
	if sessionID.Valid {
		s := sessionID.String
		res.SessionID = &s
	}
	if orderID.Valid {
		o := uint64(orderID.Int64)
		res.OrderID = &o
	}
	if releasedAt.Valid {
		t := releasedAt.Time.UTC()
		res.ReleasedAt = &t
	}
	return &res, nil
}

// CreateTx inserts a new reservation within the provided transaction.
// The caller supplies a complete record including the generated UUID;
// there is no LastInsertId round trip.  The caller must commit or roll
// back the transaction.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations
	           (id, product_id, variant_id, quantity, user_id, session_id, status, created_at, expires_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		res.ID, res.Owner.ProductID, res.Owner.VariantID, res.Quantity,
		res.UserID, res.SessionID, res.Status,
		res.CreatedAt.UTC(), res.ExpiresAt.UTC(),
	)
	return err
}

// GetForUpdateTx loads a reservation under a row lock held until the
// surrounding transaction ends, so that concurrent commit and release
// attempts on the same reservation serialize.  It returns (nil, nil)
// when no row with that id exists.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ? FOR UPDATE`
	res, err := scanReservation(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

// ActiveSumTx sums the quantities of the owner's ACTIVE reservations
// whose hold window has not yet passed at now.  It must run inside the
// same transaction as the stock read that precedes a reserve decision;
// computed outside, the sum races with concurrent reserves.  Rows past
// expires_at are excluded even before the sweep stamps them, so a late
// sweep never keeps stock locked away.
func (r *ReservationRepo) ActiveSumTx(ctx context.Context, tx *sql.Tx, productID uint64, variantID *uint64, now time.Time) (int64, error) {
	const q = `SELECT COALESCE(SUM(quantity), 0) FROM reservations
	           WHERE product_id = ? AND variant_id <=> ? AND status = ? AND expires_at > ?`
	var sum int64
	err := tx.QueryRowContext(ctx, q, productID, variantID, model.ReservationActive, now.UTC()).Scan(&sum)
	return sum, err
}

// ActiveSum is the non-transactional variant of ActiveSumTx, used by
// the advisory availability read.
func (r *ReservationRepo) ActiveSum(ctx context.Context, productID uint64, variantID *uint64, now time.Time) (int64, error) {
	const q = `SELECT COALESCE(SUM(quantity), 0) FROM reservations
	           WHERE product_id = ? AND variant_id <=> ? AND status = ? AND expires_at > ?`
	var sum int64
	err := r.db.QueryRowContext(ctx, q, productID, variantID, model.ReservationActive, now.UTC()).Scan(&sum)
	return sum, err
}

// MarkCommittedTx transitions a reservation ACTIVE→COMMITTED within the
// provided transaction, stamping the order it was committed for.  The
// affected-row count reports whether the row was still ACTIVE.
func (r *ReservationRepo) MarkCommittedTx(ctx context.Context, tx *sql.Tx, id string, orderID uint64) (bool, error) {
	const q = `UPDATE reservations SET status = ?, order_id = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.ReservationCommitted, orderID, id, model.ReservationActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release transitions a reservation ACTIVE→RELEASED, stamping
// released_at = now.  It is a single conditional update: releasing a
// missing or already-terminal reservation affects zero rows and reports
// false, which callers treat as a harmless no-op.
func (r *ReservationRepo) Release(ctx context.Context, id string, now time.Time) (bool, error) {
	const q = `UPDATE reservations SET status = ?, released_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, model.ReservationReleased, now.UTC(), id, model.ReservationActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpireBatch bulk-transitions up to limit ACTIVE reservations whose
// expires_at passed before now to EXPIRED, stamping released_at = now,
// and returns the number of rows transitioned.  Running it again over
// the same data touches nothing: the status guard makes the sweep
// idempotent.
func (r *ReservationRepo) ExpireBatch(ctx context.Context, now time.Time, limit int64) (int64, error) {
	const q = `UPDATE reservations SET status = ?, released_at = ?
	           WHERE status = ? AND expires_at <= ?
	           LIMIT ?`
	res, err := r.db.ExecContext(ctx, q, model.ReservationExpired, now.UTC(), model.ReservationActive, now.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
