package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/getachewzemene/minalesh-inventory/internal/inventory"
	"github.com/getachewzemene/minalesh-inventory/internal/middleware"
	"github.com/getachewzemene/minalesh-inventory/internal/queue"
)

// CommittedPublisher publishes the event emitted after a successful
// commit.  Publishing is best-effort: a broker outage must never fail a
// commit that has already decremented stock.
type CommittedPublisher func(ctx context.Context, ev queue.ReservationCommittedEvent) error

// ReservationHandler exposes the engine's reserve/commit/release/sweep
// contract over HTTP for the order-placement workflow.  Holder identity
// is resolved by the HolderIdentity middleware; everything else is a
// thin translation between JSON and the engine's typed results.
type ReservationHandler struct {
	Engine  *inventory.Engine
	Publish CommittedPublisher // may be nil (events disabled)
	Log     zerolog.Logger
}

// NewReservationHandler constructs a ReservationHandler.  The engine
// must be non-nil; the publisher is optional.
func NewReservationHandler(engine *inventory.Engine, publish CommittedPublisher, logger zerolog.Logger) *ReservationHandler {
	if engine == nil {
		panic("nil engine passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: engine, Publish: publish, Log: logger}
}

// reserveRequest is the body of POST /v1/reservations.  Quantity is
// deliberately left to the engine to validate so the response carries
// the engine's own invalid-input message.
type reserveRequest struct {
	ProductID uint64  `json:"product_id" validate:"required"`
	VariantID *uint64 `json:"variant_id,omitempty"`
	Quantity  int64   `json:"quantity"`
}

// Reserve handles POST /v1/reservations.  It places a hold for the
// caller against the requested product or variant.  Responses: 201 with
// the reservation id, the availability observed before the hold and the
// expiry timestamp; 400 for invalid input; 404 for an unknown product;
// 409 with requested/available when stock is insufficient.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	var body reserveRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	req := inventory.ReserveRequest{
		ProductID: body.ProductID,
		VariantID: body.VariantID,
		Quantity:  body.Quantity,
	}
	// Prefer the authenticated identity when both are present; the
	// engine enforces the exactly-one rule.
	if uid := middleware.HolderUserID(c); uid != nil {
		req.UserID = uid
	} else if sid := middleware.HolderSessionID(c); sid != nil {
		req.SessionID = sid
	}

	res, err := h.Engine.Reserve(c.Request().Context(), req)
	if err != nil {
		if ise, ok := inventory.IsInsufficientStock(err); ok {
			return c.JSON(http.StatusConflict, echo.Map{
				"error":     "insufficient stock",
				"requested": ise.Requested,
				"available": ise.Available,
			})
		}
		if errors.Is(err, inventory.ErrInvalidInput) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		if errors.Is(err, inventory.ErrStockNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		h.Log.Error().Err(err).Uint64("product_id", body.ProductID).Msg("reserve failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create reservation"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id":  res.ReservationID,
		"available_stock": res.AvailableStock,
		"expires_at":      res.ExpiresAt.Format(time.RFC3339),
	})
}

// commitRequest is the body of POST /v1/reservations/:id/commit.
type commitRequest struct {
	OrderID uint64 `json:"order_id" validate:"required"`
}

// Commit handles POST /v1/reservations/:id/commit, called by the order
// workflow when payment succeeds.  A commit that finds nothing to do —
// unknown id, terminal or expired reservation, or a lost race on the
// stock decrement — responds 409 so the workflow can release and
// reconcile; per the engine's contract this is routine, not a fault.
func (h *ReservationHandler) Commit(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body commitRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	ctx := c.Request().Context()
	committed, err := h.Engine.Commit(ctx, id, body.OrderID)
	if err != nil {
		h.Log.Error().Err(err).Str("reservation_id", id).Msg("commit failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit reservation"})
	}
	if !committed {
		return c.JSON(http.StatusConflict, echo.Map{
			"committed": false,
			"error":     "reservation not committable",
		})
	}
	if h.Publish != nil {
		ev := queue.ReservationCommittedEvent{
			ReservationID: id,
			OrderID:       body.OrderID,
			CommittedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if err := h.Publish(ctx, ev); err != nil {
			// Stock is already decremented; the event is advisory.
			h.Log.Warn().Err(err).Str("reservation_id", id).Msg("failed to publish committed event")
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"committed": true})
}

// Release handles POST /v1/reservations/:id/release, called on payment
// failure, cancellation or cart abandonment.  Releasing frees the hold
// without touching stock.  A missing or already-terminal reservation
// responds 409; double release is harmless by design.
func (h *ReservationHandler) Release(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	released, err := h.Engine.Release(c.Request().Context(), id)
	if err != nil {
		h.Log.Error().Err(err).Str("reservation_id", id).Msg("release failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release reservation"})
	}
	if !released {
		return c.JSON(http.StatusConflict, echo.Map{
			"released": false,
			"error":    "reservation not active",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"released": true})
}

// Sweep handles POST /v1/internal/sweep.  The background sweeper calls
// the same engine operation on a timer; this endpoint exists so
// operators and tests can trigger a deterministic pass.  The optional
// ?batch= query bounds the number of rows transitioned.
func (h *ReservationHandler) Sweep(c echo.Context) error {
	var batch int64
	if raw := c.QueryParam("batch"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid batch"})
		}
		batch = n
	}
	expired, err := h.Engine.SweepExpired(c.Request().Context(), batch)
	if err != nil {
		h.Log.Error().Err(err).Msg("sweep failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to sweep reservations"})
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": expired})
}
