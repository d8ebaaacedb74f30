package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/getachewzemene/minalesh-inventory/internal/model"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultHoldWindow = 15 * time.Minute
	DefaultSweepBatch = 500
)

// errRejected forces a rollback inside Commit without surfacing a fault:
// double commits, expired reservations and lost decrement races are all
// routine outcomes reported to the caller as a plain false.
var errRejected = errors.New("commit rejected")

// Config carries the engine's tunables.  Zero values fall back to the
// Default* constants above; a negative HoldWindow is rejected.
type Config struct {
	// HoldWindow is how long a reservation holds stock before it
	// becomes eligible for expiry.
	HoldWindow time.Duration
	// SweepBatch bounds how many rows a single SweepExpired call may
	// transition when the caller does not pass its own limit.
	SweepBatch int64
	// Logger receives engine diagnostics.  A zero logger is usable and
	// silent-by-level.
	Logger zerolog.Logger
}

// Engine owns the reservation lifecycle for inventory stock.  All
// coordination happens through short-lived store transactions per call;
// the engine itself keeps no mutable state and is safe for concurrent
// use.
type Engine struct {
	store      Store
	holdWindow time.Duration
	sweepBatch int64
	log        zerolog.Logger

	// now is swapped out by tests to drive expiry deterministically.
	now func() time.Time
}

// New constructs an Engine over the given store.  It returns an error
// for a nil store or a negative hold window.
func New(store Store, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("inventory: nil store")
	}
	if cfg.HoldWindow < 0 {
		return nil, fmt.Errorf("inventory: negative hold window %v", cfg.HoldWindow)
	}
	if cfg.HoldWindow == 0 {
		cfg.HoldWindow = DefaultHoldWindow
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = DefaultSweepBatch
	}
	return &Engine{
		store:      store,
		holdWindow: cfg.HoldWindow,
		sweepBatch: cfg.SweepBatch,
		log:        cfg.Logger,
		now:        time.Now,
	}, nil
}

// ReserveRequest carries the arguments of a reserve call.  Exactly one
// of UserID and SessionID identifies the holder.
type ReserveRequest struct {
	ProductID uint64
	VariantID *uint64
	Quantity  int64
	UserID    *uint64
	SessionID *string
}

// Owner returns the stock owner the request targets.
func (r ReserveRequest) Owner() model.StockOwner {
	return model.StockOwner{ProductID: r.ProductID, VariantID: r.VariantID}
}

// ReserveResult is returned on a successful reserve.  AvailableStock is
// the availability observed inside the transaction before the new hold
// was inserted, so the caller can display remaining stock.
type ReserveResult struct {
	ReservationID  string
	AvailableStock int64
	ExpiresAt      time.Time
}

// Reserve places a hold of req.Quantity units against the requested
// stock owner.  Validation failures surface as ErrInvalidInput-wrapped
// errors before any transaction is opened.  Inside a single transaction
// it reads the stock row under a row lock, sums the owner's active
// holds, and inserts an ACTIVE reservation only when enough stock
// remains; otherwise it rolls back and returns *InsufficientStockError.
// No reservation row exists after a failed reserve.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	if req.Quantity <= 0 {
		return nil, ErrQuantityNotPositive
	}
	// Exactly one holder identity: neither and both are rejected alike.
	if (req.UserID == nil) == (req.SessionID == nil) {
		return nil, ErrHolderRequired
	}

	now := e.now().UTC()
	owner := req.Owner()
	var result ReserveResult
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		stock, ok, err := tx.StockQuantityForUpdate(ctx, owner)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStockNotFound
		}
		held, err := tx.ActiveReservedSum(ctx, owner, now)
		if err != nil {
			return err
		}
		available := stock - held
		if available < req.Quantity {
			return &InsufficientStockError{Requested: req.Quantity, Available: available}
		}
		res := &model.Reservation{
			ID:        uuid.NewString(),
			Owner:     owner,
			Quantity:  req.Quantity,
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Status:    model.ReservationActive,
			CreatedAt: now,
			ExpiresAt: now.Add(e.holdWindow),
		}
		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}
		result = ReserveResult{
			ReservationID:  res.ID,
			AvailableStock: available,
			ExpiresAt:      res.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		if ise, ok := IsInsufficientStock(err); ok {
			e.log.Debug().
				Uint64("product_id", req.ProductID).
				Int64("requested", ise.Requested).
				Int64("available", ise.Available).
				Msg("reserve rejected: insufficient stock")
		}
		return nil, err
	}
	e.log.Debug().
		Str("reservation_id", result.ReservationID).
		Uint64("product_id", req.ProductID).
		Int64("quantity", req.Quantity).
		Time("expires_at", result.ExpiresAt).
		Msg("reservation created")
	return &result, nil
}

// Commit converts a reservation into a permanent stock decrement,
// normally on payment success.  It returns (false, nil) — never an
// error — when there is nothing to commit: unknown id, a reservation
// already committed/released/expired, one whose hold window has passed,
// or a lost race on the conditional decrement.  In the lost-race case
// the reservation stays ACTIVE so the caller can decide to release it.
func (e *Engine) Commit(ctx context.Context, reservationID string, orderID uint64) (bool, error) {
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		res, err := tx.ReservationForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		now := e.now().UTC()
		if res == nil || res.IsTerminal() || res.ExpiryEligible(now) {
			return errRejected
		}
		ok, err := tx.DecrementStock(ctx, res.Owner, res.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			// Stock shrank underneath the reservation; roll back so the
			// row stays ACTIVE for the caller to release.
			e.log.Warn().
				Str("reservation_id", reservationID).
				Uint64("product_id", res.Owner.ProductID).
				Int64("quantity", res.Quantity).
				Msg("commit lost the stock decrement race")
			return errRejected
		}
		ok, err = tx.MarkCommitted(ctx, reservationID, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return errRejected
		}
		return nil
	})
	if errors.Is(err, errRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.log.Info().
		Str("reservation_id", reservationID).
		Uint64("order_id", orderID).
		Msg("reservation committed")
	return true, nil
}

// Release frees a reservation's held quantity without touching
// stock_quantity.  Releasing a reservation that is missing or already
// terminal returns (false, nil); double release is harmless.
func (e *Engine) Release(ctx context.Context, reservationID string) (bool, error) {
	released, err := e.store.ReleaseReservation(ctx, reservationID, e.now().UTC())
	if err != nil {
		return false, err
	}
	if released {
		e.log.Debug().Str("reservation_id", reservationID).Msg("reservation released")
	}
	return released, nil
}

// AvailableStock is the advisory "can I add N more to cart" read:
// stock_quantity minus the sum of active holds for the owner.  It
// returns 0 — not an error — for an unknown owner and never goes
// negative.  The authoritative check is always the transactional one
// inside Reserve.
func (e *Engine) AvailableStock(ctx context.Context, owner model.StockOwner) (int64, error) {
	stock, ok, err := e.store.StockQuantity(ctx, owner)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	held, err := e.store.ActiveReservedSum(ctx, owner, e.now().UTC())
	if err != nil {
		return 0, err
	}
	available := stock - held
	if available < 0 {
		available = 0
	}
	return available, nil
}

// SweepExpired bulk-transitions reservations whose hold window has
// passed from ACTIVE to EXPIRED and returns how many rows it touched.
// A non-positive batchSize falls back to the configured batch.  The
// sweep never touches stock_quantity: expired holds simply stop
// counting toward availability.
func (e *Engine) SweepExpired(ctx context.Context, batchSize int64) (int64, error) {
	if batchSize <= 0 {
		batchSize = e.sweepBatch
	}
	n, err := e.store.ExpireReservations(ctx, e.now().UTC(), batchSize)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info().Int64("expired", n).Msg("expired stale reservations")
	}
	return n, nil
}

// HoldWindow exposes the configured hold window so transports can
// surface it to clients.
func (e *Engine) HoldWindow() time.Duration { return e.holdWindow }
