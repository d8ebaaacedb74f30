package model

import "time"

// Reservation statuses.  ACTIVE is the only non-terminal state; the
// allowed transitions are ACTIVE→COMMITTED, ACTIVE→RELEASED and
// ACTIVE→EXPIRED.  Nothing ever transitions out of a terminal state.
const (
	ReservationActive    = "ACTIVE"
	ReservationCommitted = "COMMITTED"
	ReservationReleased  = "RELEASED"
	ReservationExpired   = "EXPIRED"
)

// Reservation records a short-lived hold of stock against a product or
// product variant while a checkout attempt is in flight.  A reservation
// never mutates stock by itself; only committing it decrements the
// owner's stock_quantity.  Uncommitted, unreleased reservations become
// eligible for expiry once ExpiresAt passes and are swept in bulk.
//
// Fields:
//  ID         – UUID primary key, generated at reserve time.
//  Owner      – product or product+variant whose stock is held.
//  Quantity   – units held; always positive.
//  UserID     – authenticated holder (nullable).
//  SessionID  – anonymous holder (nullable).  Exactly one of UserID and
//               SessionID is set.
//  OrderID    – order the reservation was committed for (nullable).
//  Status     – one of the Reservation* constants above.
//  CreatedAt  – creation timestamp (UTC).
//  ExpiresAt  – end of the hold window (UTC).
//  ReleasedAt – when the hold stopped counting: release or expiry (nullable).
type Reservation struct {
	ID         string     // reservations.id
	Owner      StockOwner // (reservations.product_id, reservations.variant_id)
	Quantity   int64      // reservations.quantity
	UserID     *uint64    // reservations.user_id (nullable)
	SessionID  *string    // reservations.session_id (nullable)
	OrderID    *uint64    // reservations.order_id (nullable)
	Status     string     // reservations.status
	CreatedAt  time.Time  // reservations.created_at
	ExpiresAt  time.Time  // reservations.expires_at
	ReleasedAt *time.Time // reservations.released_at (nullable)
}

// IsTerminal reports whether the reservation has left the ACTIVE state.
// Terminal reservations no longer count toward any availability sum and
// admit no further transitions.
func (r *Reservation) IsTerminal() bool {
	return r.Status != ReservationActive
}

// ExpiryEligible reports whether the reservation is still ACTIVE but its
// hold window has already passed at the given instant.  Such rows are
// treated as expired by every availability computation even before the
// sweep stamps them.
func (r *Reservation) ExpiryEligible(now time.Time) bool {
	return r.Status == ReservationActive && !r.ExpiresAt.After(now)
}
