package main // Entry point package

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/getachewzemene/minalesh-inventory/internal/config"
	"github.com/getachewzemene/minalesh-inventory/internal/database"
	"github.com/getachewzemene/minalesh-inventory/internal/handler"
	"github.com/getachewzemene/minalesh-inventory/internal/inventory"
	"github.com/getachewzemene/minalesh-inventory/internal/queue"
	"github.com/getachewzemene/minalesh-inventory/internal/repository"
	"github.com/getachewzemene/minalesh-inventory/internal/router"
	queue_publisher "github.com/getachewzemene/minalesh-inventory/internal/service"
	"github.com/getachewzemene/minalesh-inventory/internal/sweeper"
)

func main() {
	_ = godotenv.Load() // .env is optional; deployments set the environment directly

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "inventory").Logger()
	zlog.Logger = logger // packages using the global logger share the same sink

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	store := repository.NewStore(db, logger)
	engine, err := inventory.New(store, inventory.Config{
		HoldWindow: cfg.HoldWindow,
		SweepBatch: int64(cfg.SweepBatch),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("engine construction failed")
	}

	// Redis is advisory (availability cache, rate limiting); the service
	// runs without it.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn().Msg("redis unavailable; response cache and rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()

	reservations := handler.NewReservationHandler(engine, queue_publisher.PublishReservationCommitted, logger)
	availability := handler.NewAvailabilityHandler(engine, logger)

	router.RegisterRoutes(e)
	router.RegisterReservations(e, reservations, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)
	router.RegisterAvailability(e, availability, config.LoadCacheConfig(), rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background actors: expiry sweep on a timer, audit-log consumer on
	// the committed-reservation queue.
	go sweeper.Run(ctx, engine, cfg.SweepInterval, int64(cfg.SweepBatch), logger)
	go func() {
		if err := queue.StartCommittedConsumer(); err != nil {
			logger.Error().Err(err).Msg("committed consumer exited")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil {
		logger.Info().Err(err).Msg("server stopped")
	}
}
