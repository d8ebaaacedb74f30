package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/getachewzemene/minalesh-inventory/internal/config"
	"github.com/getachewzemene/minalesh-inventory/internal/handler"
	"github.com/getachewzemene/minalesh-inventory/internal/middleware"
)

// RegisterRoutes registers routes that need no identity or advisory
// middleware.  Currently it exposes only a health check, used by load
// balancers to verify that the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterReservations wires the reservation lifecycle endpoints.  The
// holder-identity middleware resolves who is reserving (bearer token or
// anonymous session header); the Redis token bucket shields the hot
// reserve path, which contends on stock row locks, from abusive
// callers.  Commit and release share the same group: they are invoked
// by the order workflow with the same identity as the reserve call.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/reservations")
	g.Use(middleware.HolderIdentity(jwtSecret))
	g.Use(middleware.NewTokenBucket(rlCfg, rdb))
	g.POST("", h.Reserve)
	g.POST("/:id/commit", h.Commit)
	g.POST("/:id/release", h.Release)

	// Deterministic sweep trigger for operators and tests.  The
	// background sweeper runs the same operation on a timer.
	e.POST("/v1/internal/sweep", h.Sweep)
}

// RegisterAvailability wires the advisory availability read behind the
// Redis response cache.  No identity is required: availability is
// public storefront data.
func RegisterAvailability(e *echo.Echo, h *handler.AvailabilityHandler, cacheCfg config.CacheConfig, rdb *redis.Client) {
	e.GET("/v1/products/:id/availability", h.Get, middleware.NewRedisCache(cacheCfg, rdb))
}
