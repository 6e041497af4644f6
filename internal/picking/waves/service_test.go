package waves

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

type childOrder struct {
	state            shared.Status
	items, confirmed float64
}

type memoryRepo struct {
	waves    map[int64]Wave
	children map[int64][]childOrder
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{waves: make(map[int64]Wave), children: make(map[int64][]childOrder)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := make(map[int64]Wave, len(r.waves))
	for k, v := range r.waves {
		snap[k] = v
	}
	id := r.nextID
	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.waves = snap
		r.nextID = id
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Wave, error) {
	if wave, ok := r.waves[id]; ok {
		return wave, nil
	}
	return Wave{}, ErrWaveNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Wave, int, error) {
	result := []Wave{}
	for _, wave := range r.waves {
		result = append(result, wave)
	}
	return result, len(result), nil
}

type memoryTx memoryRepo

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Wave, error) {
	if wave, ok := tx.waves[id]; ok {
		return wave, nil
	}
	return Wave{}, ErrWaveNotFound
}

func (tx *memoryTx) Insert(ctx context.Context, wave Wave) (int64, error) {
	tx.nextID++
	wave.ID = tx.nextID
	tx.waves[wave.ID] = wave
	return wave.ID, nil
}

func (tx *memoryTx) Update(ctx context.Context, wave Wave) error {
	tx.waves[wave.ID] = wave
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, id int64) error {
	delete(tx.waves, id)
	return nil
}

// ChildCounts mirrors the SQL rollup: cancelled orders are not counted.
func (tx *memoryTx) ChildCounts(ctx context.Context, waveID int64) (int, int, float64, float64, error) {
	var orders, completed int
	var items, confirmed float64
	for _, o := range tx.children[waveID] {
		if o.state == shared.StatusCancelled {
			continue
		}
		orders++
		items += o.items
		confirmed += o.confirmed
		if o.state == shared.StatusCompleted {
			completed++
		}
	}
	return orders, completed, items, confirmed, nil
}

var testActor = internalShared.Actor{ID: 11, Name: "planner"}

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, internalShared.FixedClock{At: testNow})
}

func createWave(t *testing.T, svc *Service) Wave {
	t.Helper()
	wave, err := svc.Create(context.Background(), CreateInput{
		Name:     "morning run",
		Priority: shared.PriorityHigh,
		Deadline: testNow.Add(4 * time.Hour),
		Actor:    testActor,
	})
	require.NoError(t, err)
	return wave
}

func TestCreateRejectsPastDeadline(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Create(context.Background(), CreateInput{
		Name:     "late",
		Deadline: testNow.Add(-time.Minute),
		Actor:    testActor,
	})
	require.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{
		Name:     "now",
		Deadline: testNow,
		Actor:    testActor,
	})
	require.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestStartOnlyFromPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	wave := createWave(t, svc)

	started, err := svc.Start(ctx, wave.ID, 5, testActor)
	require.NoError(t, err)
	require.Equal(t, shared.StatusInProgress, started.State)
	require.Equal(t, int64(5), started.OperatorID)
	require.NotNil(t, started.StartedAt)

	_, err = svc.Start(ctx, wave.ID, 5, testActor)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)
}

func TestRecomputeAutoCompletes(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	wave := createWave(t, svc)
	_, err := svc.Start(ctx, wave.ID, 5, testActor)
	require.NoError(t, err)

	repo.children[wave.ID] = []childOrder{
		{state: shared.StatusCompleted, items: 10, confirmed: 10},
		{state: shared.StatusCompleted, items: 10, confirmed: 8},
		{state: shared.StatusInProgress, items: 10, confirmed: 0},
	}
	updated, err := svc.RecomputeProgress(ctx, wave.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusInProgress, updated.State)
	require.Equal(t, 3, updated.TotalOrders)
	require.Equal(t, 2, updated.CompletedOrders)

	repo.children[wave.ID] = []childOrder{
		{state: shared.StatusCompleted, items: 10, confirmed: 10},
		{state: shared.StatusCompleted, items: 10, confirmed: 10},
		{state: shared.StatusCompleted, items: 10, confirmed: 10},
	}
	updated, err = svc.RecomputeProgress(ctx, wave.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCompleted, updated.State)
	require.NotNil(t, updated.EndedAt)

	// idempotent: a second recompute changes nothing observable
	again, err := svc.RecomputeProgress(ctx, wave.ID)
	require.NoError(t, err)
	require.Equal(t, updated.State, again.State)
	require.Equal(t, updated.CompletedOrders, again.CompletedOrders)
	require.Equal(t, updated.EndedAt, again.EndedAt)
}

func TestRecomputeDoesNotCompleteEmptyWave(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	wave := createWave(t, svc)
	_, err := svc.Start(ctx, wave.ID, 5, testActor)
	require.NoError(t, err)

	updated, err := svc.RecomputeProgress(ctx, wave.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusInProgress, updated.State)
}

func TestCancelFromTerminalFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	wave := createWave(t, svc)

	cancelled, err := svc.Cancel(ctx, wave.ID, "demand dropped", testActor)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCancelled, cancelled.State)

	_, err = svc.Cancel(ctx, wave.ID, "again", testActor)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)
}

func TestDeleteRefusedWhileInProgress(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	wave := createWave(t, svc)
	_, err := svc.Start(ctx, wave.ID, 5, testActor)
	require.NoError(t, err)

	err = svc.Delete(ctx, wave.ID, testActor)
	require.ErrorIs(t, err, internalShared.ErrConflict)

	_, err = svc.Cancel(ctx, wave.ID, "abort", testActor)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, wave.ID, testActor))

	_, err = svc.Get(ctx, wave.ID)
	require.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestRecomputeIgnoresCancelledOrders(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	wave := createWave(t, svc)
	_, err := svc.Start(ctx, wave.ID, 5, testActor)
	require.NoError(t, err)

	// one order cancelled mid-wave must not hold the wave open
	repo.children[wave.ID] = []childOrder{
		{state: shared.StatusCompleted, items: 10, confirmed: 10},
		{state: shared.StatusCancelled, items: 5, confirmed: 0},
	}
	updated, err := svc.RecomputeProgress(ctx, wave.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCompleted, updated.State)
	require.Equal(t, 1, updated.TotalOrders)
	require.Equal(t, 1, updated.CompletedOrders)
	require.InDelta(t, 10.0, updated.TotalItems, 1e-9)
}

type waveMetrics struct {
	completed int
}

func (m *waveMetrics) WaveCompleted() { m.completed++ }

func TestWaveCompletionIncrementsMetric(t *testing.T) {
	repo := newMemoryRepo()
	metrics := &waveMetrics{}
	svc := newTestService(repo).WithMetrics(metrics)
	ctx := context.Background()
	wave := createWave(t, svc)
	_, err := svc.Start(ctx, wave.ID, 5, testActor)
	require.NoError(t, err)

	repo.children[wave.ID] = []childOrder{{state: shared.StatusCompleted, items: 10, confirmed: 10}}
	_, err = svc.RecomputeProgress(ctx, wave.ID)
	require.NoError(t, err)
	require.Equal(t, 1, metrics.completed)

	// recomputing an already completed wave does not double count
	_, err = svc.RecomputeProgress(ctx, wave.ID)
	require.NoError(t, err)
	require.Equal(t, 1, metrics.completed)
}
