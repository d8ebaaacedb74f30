package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/getachewzemene/minalesh-inventory/internal/inventory"
	"github.com/getachewzemene/minalesh-inventory/internal/model"
)

// AvailabilityHandler serves the advisory "how many can I still add to
// cart" read.  The response is cacheable (see middleware.NewRedisCache);
// the authoritative availability check always happens inside the
// reserve transaction.
type AvailabilityHandler struct {
	Engine *inventory.Engine
	Log    zerolog.Logger
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(engine *inventory.Engine, logger zerolog.Logger) *AvailabilityHandler {
	if engine == nil {
		panic("nil engine passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Engine: engine, Log: logger}
}

// Get handles GET /v1/products/:id/availability with an optional
// ?variant_id= query.  An unknown product is not an error: it reports
// zero availability, matching the engine's contract, so storefront
// pages never have to special-case missing stock rows.
func (h *AvailabilityHandler) Get(c echo.Context) error {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || productID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	owner := model.StockOwner{ProductID: productID}
	if raw := c.QueryParam("variant_id"); raw != "" {
		variantID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || variantID == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid variant id"})
		}
		owner.VariantID = &variantID
	}

	available, err := h.Engine.AvailableStock(c.Request().Context(), owner)
	if err != nil {
		h.Log.Error().Err(err).Uint64("product_id", productID).Msg("availability read failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read availability"})
	}
	resp := echo.Map{
		"product_id": owner.ProductID,
		"available":  available,
	}
	if owner.VariantID != nil {
		resp["variant_id"] = *owner.VariantID
	}
	return c.JSON(http.StatusOK, resp)
}
