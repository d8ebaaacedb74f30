package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getachewzemene/minalesh-inventory/internal/model"
)

func u64(v uint64) *uint64 { return &v }
func str(v string) *string { return &v }

// newTestEngine builds an engine over a fresh MemStore with a fixed,
// test-controlled clock.
func newTestEngine(t *testing.T, window time.Duration) (*Engine, *MemStore, *time.Time) {
	t.Helper()
	store := NewMemStore()
	engine, err := New(store, Config{HoldWindow: window})
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	return engine, store, &now
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	for _, qty := range []int64{0, -3} {
		_, err := engine.Reserve(context.Background(), ReserveRequest{
			ProductID: 1, Quantity: qty, UserID: u64(7),
		})
		require.ErrorIs(t, err, ErrQuantityNotPositive)
		require.ErrorIs(t, err, ErrInvalidInput)
	}
	// no reservation row was created
	available, err := engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10), available)
}

func TestReserveRequiresExactlyOneHolder(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	store.SetStock(model.StockOwner{ProductID: 1}, 10)

	// neither identity
	_, err := engine.Reserve(context.Background(), ReserveRequest{ProductID: 1, Quantity: 1})
	require.ErrorIs(t, err, ErrHolderRequired)

	// both identities
	_, err = engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 1, UserID: u64(7), SessionID: str("sess-1"),
	})
	require.ErrorIs(t, err, ErrHolderRequired)
}

func TestReserveUnknownOwner(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultHoldWindow)
	_, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 42, Quantity: 1, UserID: u64(7),
	})
	require.ErrorIs(t, err, ErrStockNotFound)
}

func TestReserveReportsPreReservationAvailability(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	res, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 4, SessionID: str("sess-1"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ReservationID)
	assert.Equal(t, int64(10), res.AvailableStock)

	// the availability read now subtracts the active hold
	available, err := engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(6), available)

	// stock_quantity itself is untouched until commit
	qty, ok := store.Stock(owner)
	require.True(t, ok)
	assert.Equal(t, int64(10), qty)
}

func TestReserveInsufficientStockLeavesNoRow(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 3)

	_, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 5, UserID: u64(7),
	})
	ise, ok := IsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, int64(5), ise.Requested)
	assert.Equal(t, int64(3), ise.Available)

	available, err := engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), available)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	const stock = 10
	store.SetStock(owner, stock)

	const callers = 25
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Reserve(context.Background(), ReserveRequest{
				ProductID: 1, Quantity: 2, UserID: u64(uint64(i + 1)),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var granted int64
	for _, err := range results {
		if err == nil {
			granted += 2
			continue
		}
		_, ok := IsInsufficientStock(err)
		require.True(t, ok, "every failure must be an insufficient-stock rejection, got %v", err)
	}
	assert.LessOrEqual(t, granted, int64(stock))
	assert.Equal(t, int64(stock), granted, "with enough callers every unit should be granted exactly once")

	available, err := engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), available)
}

func TestCommitDecrementsStockExactlyOnce(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	res, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 7, UserID: u64(7),
	})
	require.NoError(t, err)

	committed, err := engine.Commit(context.Background(), res.ReservationID, 900)
	require.NoError(t, err)
	require.True(t, committed)

	qty, ok := store.Stock(owner)
	require.True(t, ok)
	assert.Equal(t, int64(3), qty)

	stored, ok := store.Reservation(res.ReservationID)
	require.True(t, ok)
	assert.Equal(t, model.ReservationCommitted, stored.Status)
	require.NotNil(t, stored.OrderID)
	assert.Equal(t, uint64(900), *stored.OrderID)

	// double commit is a no-op failure, not a second decrement
	committed, err = engine.Commit(context.Background(), res.ReservationID, 900)
	require.NoError(t, err)
	assert.False(t, committed)
	qty, _ = store.Stock(owner)
	assert.Equal(t, int64(3), qty)
}

func TestCommitUnknownReservation(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultHoldWindow)
	committed, err := engine.Commit(context.Background(), "no-such-id", 1)
	require.NoError(t, err)
	assert.False(t, committed)
}

func TestCommitLosesRaceWhenStockShrank(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	res, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 7, UserID: u64(7),
	})
	require.NoError(t, err)

	// stock reduced by other means between reserve and commit
	store.SetStock(owner, 5)

	committed, err := engine.Commit(context.Background(), res.ReservationID, 900)
	require.NoError(t, err)
	assert.False(t, committed)

	// rolled back: the reservation stays ACTIVE for the caller to release
	stored, ok := store.Reservation(res.ReservationID)
	require.True(t, ok)
	assert.Equal(t, model.ReservationActive, stored.Status)
	qty, _ := store.Stock(owner)
	assert.Equal(t, int64(5), qty)
}

func TestReleaseFreesCapacityWithoutTouchingStock(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	res, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 4, SessionID: str("sess-1"),
	})
	require.NoError(t, err)

	available, err := engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, int64(6), available)

	released, err := engine.Release(context.Background(), res.ReservationID)
	require.NoError(t, err)
	require.True(t, released)

	qty, _ := store.Stock(owner)
	assert.Equal(t, int64(10), qty, "release must not mutate stock_quantity")
	available, err = engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10), available)

	stored, _ := store.Reservation(res.ReservationID)
	assert.Equal(t, model.ReservationReleased, stored.Status)
	assert.NotNil(t, stored.ReleasedAt)

	// double release is harmless
	released, err = engine.Release(context.Background(), res.ReservationID)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestCommitAfterReleaseFails(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	res, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 2, UserID: u64(7),
	})
	require.NoError(t, err)

	released, err := engine.Release(context.Background(), res.ReservationID)
	require.NoError(t, err)
	require.True(t, released)

	committed, err := engine.Commit(context.Background(), res.ReservationID, 900)
	require.NoError(t, err)
	assert.False(t, committed)
	qty, _ := store.Stock(owner)
	assert.Equal(t, int64(10), qty)
}

func TestExpiredHoldStopsCountingBeforeSweep(t *testing.T) {
	engine, store, now := newTestEngine(t, 15*time.Minute)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	res, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 7, UserID: u64(7),
	})
	require.NoError(t, err)

	// one second past the hold window, sweep not yet run
	*now = now.Add(15*time.Minute + time.Second)

	available, err := engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10), available, "expiry-eligible holds must not count")

	// the stale reservation is no longer committable
	committed, err := engine.Commit(context.Background(), res.ReservationID, 900)
	require.NoError(t, err)
	assert.False(t, committed)
	qty, _ := store.Stock(owner)
	assert.Equal(t, int64(10), qty)
}

func TestSweepExpiresEligibleRowsExactlyOnce(t *testing.T) {
	engine, store, now := newTestEngine(t, 15*time.Minute)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		res, err := engine.Reserve(context.Background(), ReserveRequest{
			ProductID: 1, Quantity: 1, UserID: u64(uint64(i + 1)),
		})
		require.NoError(t, err)
		ids = append(ids, res.ReservationID)
	}
	// a fourth reservation that stays inside its window
	*now = now.Add(10 * time.Minute)
	fresh, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 1, UserID: u64(99),
	})
	require.NoError(t, err)

	*now = now.Add(6 * time.Minute) // first three are now past expiry

	n, err := engine.SweepExpired(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	for _, id := range ids {
		stored, ok := store.Reservation(id)
		require.True(t, ok)
		assert.Equal(t, model.ReservationExpired, stored.Status)
		assert.NotNil(t, stored.ReleasedAt)
	}
	stillActive, _ := store.Reservation(fresh.ReservationID)
	assert.Equal(t, model.ReservationActive, stillActive.Status)

	// second pass over the same data transitions nothing
	n, err = engine.SweepExpired(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSweepHonorsBatchLimit(t *testing.T) {
	engine, store, now := newTestEngine(t, time.Minute)
	store.SetStock(model.StockOwner{ProductID: 1}, 100)

	for i := 0; i < 5; i++ {
		_, err := engine.Reserve(context.Background(), ReserveRequest{
			ProductID: 1, Quantity: 1, UserID: u64(uint64(i + 1)),
		})
		require.NoError(t, err)
	}
	*now = now.Add(2 * time.Minute)

	total := int64(0)
	for _, want := range []int64{2, 2, 1} {
		n, err := engine.SweepExpired(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		total += n
	}
	assert.Equal(t, int64(5), total)
}

// TestCheckoutScenario walks the reference flow end to end: stock 10,
// reserve 7, a competing reserve of 5 is rejected with 3 available,
// committing the 7 drops stock to 3, and releasing the committed
// reservation afterwards is a no-op failure.
func TestCheckoutScenario(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	first, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 7, UserID: u64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.AvailableStock)

	_, err = engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 5, UserID: u64(2),
	})
	ise, ok := IsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, int64(5), ise.Requested)
	assert.Equal(t, int64(3), ise.Available)

	committed, err := engine.Commit(context.Background(), first.ReservationID, 900)
	require.NoError(t, err)
	require.True(t, committed)

	qty, _ := store.Stock(owner)
	assert.Equal(t, int64(3), qty)
	available, err := engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), available)

	released, err := engine.Release(context.Background(), first.ReservationID)
	require.NoError(t, err)
	assert.False(t, released)
	stored, _ := store.Reservation(first.ReservationID)
	assert.Equal(t, model.ReservationCommitted, stored.Status)
}

func TestVariantIsolation(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	parent := model.StockOwner{ProductID: 1}
	variantA := model.StockOwner{ProductID: 1, VariantID: u64(10)}
	variantB := model.StockOwner{ProductID: 1, VariantID: u64(11)}
	store.SetStock(parent, 5)
	store.SetStock(variantA, 3)
	store.SetStock(variantB, 4)

	_, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, VariantID: u64(10), Quantity: 2, UserID: u64(7),
	})
	require.NoError(t, err)

	for _, tc := range []struct {
		owner model.StockOwner
		want  int64
	}{
		{variantA, 1},
		{variantB, 4},
		{parent, 5},
	} {
		available, err := engine.AvailableStock(context.Background(), tc.owner)
		require.NoError(t, err)
		assert.Equal(t, tc.want, available)
	}
}

func TestAvailableStockUnknownOwnerIsZero(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultHoldWindow)
	available, err := engine.AvailableStock(context.Background(), model.StockOwner{ProductID: 404})
	require.NoError(t, err)
	assert.Equal(t, int64(0), available)
}

func TestAvailableStockNeverNegative(t *testing.T) {
	engine, store, _ := newTestEngine(t, DefaultHoldWindow)
	owner := model.StockOwner{ProductID: 1}
	store.SetStock(owner, 10)

	_, err := engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 8, UserID: u64(7),
	})
	require.NoError(t, err)

	// admin shrinks stock below the active hold
	store.SetStock(owner, 4)

	available, err := engine.AvailableStock(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), available)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)

	_, err = New(NewMemStore(), Config{HoldWindow: -time.Minute})
	require.Error(t, err)
}

func TestReserveStoreErrorPropagates(t *testing.T) {
	store := NewMemStore()
	engine, err := New(&failingStore{Store: store}, Config{})
	require.NoError(t, err)
	store.SetStock(model.StockOwner{ProductID: 1}, 10)

	_, err = engine.Reserve(context.Background(), ReserveRequest{
		ProductID: 1, Quantity: 1, UserID: u64(7),
	})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInvalidInput))
}

// failingStore fails every transaction, standing in for an unreachable
// database: such conditions surface as faults, not business rejections.
type failingStore struct {
	Store
}

func (f *failingStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return errors.New("store unreachable")
}
