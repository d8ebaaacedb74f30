// Package sweeper runs the periodic expiry sweep.  The engine exposes
// the sweep as an explicit, externally-triggered operation so tests and
// operators can invoke it deterministically; this package is merely the
// wall-clock scheduler around it.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/getachewzemene/minalesh-inventory/internal/inventory"
)

// DefaultInterval is used when Run is given a non-positive interval.
const DefaultInterval = 2 * time.Minute

// Run invokes engine.SweepExpired every interval until ctx is
// cancelled.  Sweep failures are logged and the loop keeps going: a
// transient database error must not stop future passes, and expired
// rows left behind are picked up by the next one.  Run blocks; callers
// start it in its own goroutine.
func Run(ctx context.Context, engine *inventory.Engine, interval time.Duration, batch int64, logger zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Int64("batch", batch).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			n, err := engine.SweepExpired(ctx, batch)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msg("sweep pass failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("expired", n).Msg("sweep pass complete")
			}
		}
	}
}
