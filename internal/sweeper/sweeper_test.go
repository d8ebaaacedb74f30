package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/getachewzemene/minalesh-inventory/internal/inventory"
	"github.com/getachewzemene/minalesh-inventory/internal/model"
)

func TestRunExpiresStaleHoldsAndStopsOnCancel(t *testing.T) {
	store := inventory.NewMemStore()
	// A one-millisecond hold window makes the reservation expiry-eligible
	// almost immediately without touching the engine's clock.
	engine, err := inventory.New(store, inventory.Config{HoldWindow: time.Millisecond})
	require.NoError(t, err)

	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)
	res, err := engine.Reserve(context.Background(), inventory.ReserveRequest{
		ProductID: 1, Quantity: 3, SessionID: sessionID("sess-1"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, engine, 5*time.Millisecond, 100, zerolog.Nop())
	}()

	require.Eventually(t, func() bool {
		stored, ok := store.Reservation(res.ReservationID)
		return ok && stored.Status == model.ReservationExpired
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}

func sessionID(s string) *string { return &s }
