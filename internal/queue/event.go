// Package queue defines message payloads exchanged over the message broker.
package queue

// ReservationCommittedEvent is published when a reservation is
// successfully committed and the stock decrement has been applied.  It
// carries enough for downstream consumers (order fulfilment, vendor
// notifications, analytics) to act without querying the primary
// database.
type ReservationCommittedEvent struct {
	ReservationID string  `json:"reservation_id"`
	ProductID     uint64  `json:"product_id,omitempty"`
	VariantID     *uint64 `json:"variant_id,omitempty"`
	Quantity      int64   `json:"quantity,omitempty"`
	OrderID       uint64  `json:"order_id"`
	CommittedAt   string  `json:"committed_at"`
}
