// Package repository provides raw SQL data access for the reservation
// service: the product_stock counter rows and the reservations table.
// All timestamp comparisons use instants supplied by the caller (in
// UTC) so that expiry behaviour stays deterministic under test.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// StockRepo provides data access to the product_stock table.  Every
// query is keyed by the null-safe (product_id, variant_id) pair: a
// variant's counter is a different row from the parent product's
// variant-less counter and from every sibling variant.
type StockRepo struct {
	db *sql.DB
}

// NewStockRepo returns a new StockRepo bound to the provided database.
func NewStockRepo(db *sql.DB) *StockRepo { return &StockRepo{db: db} }

// Quantity reads the owner's stock_quantity without locking.  This is
// the advisory read backing availability lookups; ok is false when the
// owner has no stock row.
func (r *StockRepo) Quantity(ctx context.Context, productID uint64, variantID *uint64) (int64, bool, error) {
	const q = `SELECT stock_quantity FROM product_stock WHERE product_id = ? AND variant_id <=> ?`
	var qty int64
	err := r.db.QueryRowContext(ctx, q, productID, variantID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return qty, true, nil
}

// QuantityForUpdateTx reads the owner's stock_quantity under a row lock
// held until the surrounding transaction ends.  Concurrent reserve
// transactions on the same owner serialize on this lock, which is what
// keeps the read-sum-insert sequence atomic.  ok is false when the
// owner has no stock row.
func (r *StockRepo) QuantityForUpdateTx(ctx context.Context, tx *sql.Tx, productID uint64, variantID *uint64) (int64, bool, error) {
	const q = `SELECT stock_quantity FROM product_stock WHERE product_id = ? AND variant_id <=> ? FOR UPDATE`
	var qty int64
	err := tx.QueryRowContext(ctx, q, productID, variantID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return qty, true, nil
}

// DecrementTx performs the conditional stock decrement that backs a
// reservation commit: subtract qty only while stock_quantity >= qty.
// The affected-row count reveals a lost race (or stock reduced by other
// means since the reservation was taken); in that case it reports false
// and the caller must roll back.
func (r *StockRepo) DecrementTx(ctx context.Context, tx *sql.Tx, productID uint64, variantID *uint64, qty int64, now time.Time) (bool, error) {
	const q = `UPDATE product_stock
	           SET stock_quantity = stock_quantity - ?, updated_at = ?
	           WHERE product_id = ? AND variant_id <=> ? AND stock_quantity >= ?`
	res, err := tx.ExecContext(ctx, q, qty, now.UTC(), productID, variantID, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
