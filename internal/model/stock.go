package model

import "time"

// StockOwner identifies the entity whose stock_quantity is authoritative:
// either a product on its own, or a specific product+variant combination.
// VariantID is nil for variant-less products.  All availability sums and
// stock decrements are keyed strictly by this pair so that variants never
// share a counter with each other or with the parent product.
type StockOwner struct {
	ProductID uint64  // product_stock.product_id
	VariantID *uint64 // product_stock.variant_id (nullable)
}

// ProductStock mirrors a row of the product_stock table.  The quantity is
// mutated only by administrative edits (out of scope here) and by the
// conditional decrement performed when a reservation is committed.
//
// Fields:
//  Owner         – product or product+variant the row belongs to.
//  StockQuantity – authoritative on-hand quantity.
//  UpdatedAt     – last update timestamp (UTC).
type ProductStock struct {
	Owner         StockOwner // (product_stock.product_id, product_stock.variant_id)
	StockQuantity int64      // product_stock.stock_quantity
	UpdatedAt     time.Time  // product_stock.updated_at
}
