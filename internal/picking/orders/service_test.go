package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warewave/warewave/internal/picking/shared"
	"github.com/warewave/warewave/internal/picking/waves"
	internalShared "github.com/warewave/warewave/internal/shared"
)

type taskSums struct {
	requested, confirmed float64
	tasks, completed     int
}

type memoryRepo struct {
	orders map[int64]Order
	sums   map[int64]taskSums
	stops  map[int64][]TaskStop
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]Order), sums: make(map[int64]taskSums), stops: make(map[int64][]TaskStop)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := make(map[int64]Order, len(r.orders))
	for k, v := range r.orders {
		snap[k] = v
	}
	id := r.nextID
	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.orders = snap
		r.nextID = id
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	if order, ok := r.orders[id]; ok {
		return order, nil
	}
	return Order{}, ErrOrderNotFound
}

func (r *memoryRepo) GetByNumber(ctx context.Context, number string) (Order, error) {
	for _, order := range r.orders {
		if order.Number == number {
			return order, nil
		}
	}
	return Order{}, ErrOrderNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	result := []Order{}
	for _, order := range r.orders {
		result = append(result, order)
	}
	return result, len(result), nil
}

func (r *memoryRepo) TaskStops(ctx context.Context, orderID int64) ([]TaskStop, error) {
	return r.stops[orderID], nil
}

type memoryTx memoryRepo

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	if order, ok := tx.orders[id]; ok {
		return order, nil
	}
	return Order{}, ErrOrderNotFound
}

func (tx *memoryTx) Insert(ctx context.Context, order Order) (int64, error) {
	for _, existing := range tx.orders {
		if existing.Number == order.Number {
			return 0, ErrDuplicateNumber
		}
	}
	tx.nextID++
	order.ID = tx.nextID
	tx.orders[order.ID] = order
	return order.ID, nil
}

func (tx *memoryTx) Update(ctx context.Context, order Order) error {
	tx.orders[order.ID] = order
	return nil
}

func (tx *memoryTx) TaskSums(ctx context.Context, orderID int64) (float64, float64, int, int, error) {
	s := tx.sums[orderID]
	return s.requested, s.confirmed, s.tasks, s.completed, nil
}

type fakeWaves struct {
	waves      map[int64]waves.Wave
	recomputes []int64
}

func (f *fakeWaves) Get(ctx context.Context, id int64) (waves.Wave, error) {
	if wave, ok := f.waves[id]; ok {
		return wave, nil
	}
	return waves.Wave{}, waves.ErrWaveNotFound
}

func (f *fakeWaves) RecomputeProgress(ctx context.Context, id int64) (waves.Wave, error) {
	f.recomputes = append(f.recomputes, id)
	return f.waves[id], nil
}

var testActor = internalShared.Actor{ID: 3, Name: "dispatcher"}

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo, fw *fakeWaves) *Service {
	return NewService(repo, fw, nil, internalShared.FixedClock{At: testNow})
}

func openWave() *fakeWaves {
	return &fakeWaves{waves: map[int64]waves.Wave{
		1: {ID: 1, State: shared.StatusInProgress},
		2: {ID: 2, State: shared.StatusCompleted},
	}}
}

func createOrder(t *testing.T, svc *Service) Order {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateInput{
		Number: "po-100", WaveID: 1, Actor: testActor,
	})
	require.NoError(t, err)
	return order
}

func TestCreateAttachesToWave(t *testing.T) {
	repo := newMemoryRepo()
	fw := openWave()
	svc := newTestService(repo, fw)

	order := createOrder(t, svc)
	require.Equal(t, "PO-100", order.Number)
	require.Equal(t, int64(1), order.WaveID)
	require.Equal(t, shared.StatusPending, order.State)
	require.Equal(t, []int64{1}, fw.recomputes)

	_, err := svc.Create(context.Background(), CreateInput{Number: "PO-100", WaveID: 1, Actor: testActor})
	require.ErrorIs(t, err, internalShared.ErrConflict)
}

func TestCreateRejectsTerminalWave(t *testing.T) {
	svc := newTestService(newMemoryRepo(), openWave())
	_, err := svc.Create(context.Background(), CreateInput{Number: "PO-2", WaveID: 2, Actor: testActor})
	require.ErrorIs(t, err, internalShared.ErrInvalidState)

	_, err = svc.Create(context.Background(), CreateInput{Number: "PO-3", WaveID: 99, Actor: testActor})
	require.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestStartOnlyFromPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, openWave())
	ctx := context.Background()
	order := createOrder(t, svc)

	started, err := svc.Start(ctx, order.ID, 8, testActor)
	require.NoError(t, err)
	require.Equal(t, shared.StatusInProgress, started.State)
	require.Equal(t, int64(8), started.OperatorID)

	_, err = svc.Start(ctx, order.ID, 8, testActor)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)
}

func TestRecomputeCompletesAndCascades(t *testing.T) {
	repo := newMemoryRepo()
	fw := openWave()
	svc := newTestService(repo, fw)
	ctx := context.Background()
	order := createOrder(t, svc)
	_, err := svc.Start(ctx, order.ID, 8, testActor)
	require.NoError(t, err)
	fw.recomputes = nil

	repo.sums[order.ID] = taskSums{requested: 12, confirmed: 7, tasks: 3, completed: 2}
	updated, err := svc.RecomputeProgress(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusInProgress, updated.State)
	require.InDelta(t, 12.0, updated.TotalItems, 1e-9)
	require.InDelta(t, 7.0, updated.CompletedItems, 1e-9)
	require.Empty(t, fw.recomputes)

	repo.sums[order.ID] = taskSums{requested: 12, confirmed: 12, tasks: 3, completed: 3}
	updated, err = svc.RecomputeProgress(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCompleted, updated.State)
	require.NotNil(t, updated.EndedAt)
	require.Equal(t, []int64{1}, fw.recomputes)

	// already terminal: a redundant recompute refreshes counts only
	again, err := svc.RecomputeProgress(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCompleted, again.State)
	require.Equal(t, []int64{1}, fw.recomputes)
}

func TestCancelRefreshesWave(t *testing.T) {
	repo := newMemoryRepo()
	fw := openWave()
	svc := newTestService(repo, fw)
	ctx := context.Background()
	order := createOrder(t, svc)
	fw.recomputes = nil

	cancelled, err := svc.Cancel(ctx, order.ID, "customer withdrew", testActor)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCancelled, cancelled.State)
	require.Equal(t, []int64{1}, fw.recomputes)

	_, err = svc.Cancel(ctx, order.ID, "again", testActor)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)
}

func TestEstimateWalksNearestFirst(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, openWave())
	order := createOrder(t, svc)

	repo.stops[order.ID] = []TaskStop{
		{TaskID: 2, LocationID: 20, X: 6, Y: 8, Quantity: 1},
		{TaskID: 1, LocationID: 10, X: 3, Y: 4, Quantity: 2},
	}
	est, err := svc.Estimate(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, 2, est.Stops)
	// origin -> (3,4) is 5, (3,4) -> (6,8) is 5
	require.InDelta(t, 10.0, est.DistanceUnits, 1e-9)
	require.InDelta(t, 10*secondsPerDistanceUnit+3*secondsPerItem, est.Seconds, 1e-9)

	again, err := svc.Estimate(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, est, again)
}

func TestEstimateEmptyOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, openWave())
	order := createOrder(t, svc)

	est, err := svc.Estimate(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, 0, est.Stops)
	require.Zero(t, est.DistanceUnits)
}
