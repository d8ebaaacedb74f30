// Package inventory implements the stock reservation engine: the
// reserve → commit / release / expire lifecycle that guarantees no two
// concurrent checkout attempts can oversell a product's stock.  The
// engine is transport-free; HTTP handlers and the background sweeper
// are thin callers of it.
package inventory

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the base error for malformed reserve arguments.
// Callers can match the whole family with errors.Is(err, ErrInvalidInput)
// and should translate it into an HTTP 400 response.  Invalid input is
// rejected before any transaction is opened and is never retried.
var ErrInvalidInput = errors.New("invalid input")

// ErrQuantityNotPositive rejects zero or negative reservation quantities.
var ErrQuantityNotPositive = fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)

// ErrHolderRequired rejects reserve calls that do not identify the holder
// with exactly one of a user ID or an anonymous session ID.
var ErrHolderRequired = fmt.Errorf("%w: user ID or session ID required", ErrInvalidInput)

// ErrStockNotFound is returned when the referenced product (or
// product+variant) has no stock row.  Handlers should translate this
// into an HTTP 404 response.
var ErrStockNotFound = errors.New("stock owner not found")

// InsufficientStockError is the core business rejection: the requested
// quantity exceeds what is available once active holds are subtracted.
// It carries both numbers so the caller can show an accurate
// "only N left" message.  It is an expected, frequent outcome and is
// never retried automatically.
type InsufficientStockError struct {
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

// IsInsufficientStock reports whether err is an InsufficientStockError
// and returns it when so.
func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}
