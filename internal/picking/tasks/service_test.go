package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warewave/warewave/internal/inventory"
	"github.com/warewave/warewave/internal/lots"
	"github.com/warewave/warewave/internal/picking/orders"
	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
	"github.com/warewave/warewave/internal/trace"
)

type memoryRepo struct {
	mu        sync.Mutex
	tasks     map[int64]Task
	lots      map[int64]lots.Lot
	positions map[inventory.AvailabilityQuery]float64
	ledger    []inventory.LedgerEntry
	events    []trace.Event
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		tasks:     make(map[int64]Task),
		lots:      make(map[int64]lots.Lot),
		positions: make(map[inventory.AvailabilityQuery]float64),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	taskSnap := make(map[int64]Task, len(r.tasks))
	for k, v := range r.tasks {
		taskSnap[k] = v
	}
	lotSnap := make(map[int64]lots.Lot, len(r.lots))
	for k, v := range r.lots {
		lotSnap[k] = v
	}
	posSnap := make(map[inventory.AvailabilityQuery]float64, len(r.positions))
	for k, v := range r.positions {
		posSnap[k] = v
	}
	ledgerLen, eventsLen, id := len(r.ledger), len(r.events), r.nextID
	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.tasks = taskSnap
		r.lots = lotSnap
		r.positions = posSnap
		r.ledger = r.ledger[:ledgerLen]
		r.events = r.events[:eventsLen]
		r.nextID = id
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[id]; ok {
		return task, nil
	}
	return Task{}, ErrTaskNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []Task{}
	for _, task := range r.tasks {
		result = append(result, task)
	}
	return result, len(result), nil
}

type memoryTx memoryRepo

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Task, error) {
	if task, ok := tx.tasks[id]; ok {
		return task, nil
	}
	return Task{}, ErrTaskNotFound
}

func (tx *memoryTx) Insert(ctx context.Context, task Task) (int64, error) {
	tx.nextID++
	task.ID = tx.nextID
	tx.tasks[task.ID] = task
	return task.ID, nil
}

func (tx *memoryTx) Update(ctx context.Context, task Task) error {
	tx.tasks[task.ID] = task
	return nil
}

func (tx *memoryTx) GetLotForUpdate(ctx context.Context, lotID int64) (lots.Lot, error) {
	if lot, ok := tx.lots[lotID]; ok {
		return lot, nil
	}
	return lots.Lot{}, lots.ErrLotNotFound
}

func (tx *memoryTx) UpdateLotQuantity(ctx context.Context, lotID int64, qty float64) error {
	lot := tx.lots[lotID]
	lot.AvailableQty = qty
	tx.lots[lotID] = lot
	return nil
}

func (tx *memoryTx) GetPositionForUpdate(ctx context.Context, q inventory.AvailabilityQuery) (inventory.Position, error) {
	onHand, ok := tx.positions[q]
	pos := inventory.Position{ProductID: q.ProductID, LocationID: q.LocationID, LotID: q.LotID, SerialID: q.SerialID, OnHand: onHand}
	if !ok {
		return pos, inventory.ErrPositionNotFound
	}
	return pos, nil
}

func (tx *memoryTx) Apply(ctx context.Context, entry inventory.LedgerEntry) (int64, error) {
	tx.nextID++
	entry.ID = tx.nextID
	tx.ledger = append(tx.ledger, entry)
	tx.positions[inventory.AvailabilityQuery{
		ProductID: entry.ProductID, LocationID: entry.LocationID, LotID: entry.LotID, SerialID: entry.SerialID,
	}] = entry.QtyAfter
	return entry.ID, nil
}

func (tx *memoryTx) RecordTrace(ctx context.Context, event trace.Event) (int64, error) {
	tx.nextID++
	event.ID = tx.nextID
	tx.events = append(tx.events, event)
	return event.ID, nil
}

type fakeOrders struct {
	mu         sync.Mutex
	orders     map[int64]orders.Order
	recomputes []int64
}

func (f *fakeOrders) Get(ctx context.Context, id int64) (orders.Order, error) {
	if order, ok := f.orders[id]; ok {
		return order, nil
	}
	return orders.Order{}, orders.ErrOrderNotFound
}

func (f *fakeOrders) RecomputeProgress(ctx context.Context, id int64) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputes = append(f.recomputes, id)
	return f.orders[id], nil
}

// positionInventory answers availability straight from the repo's positions.
type positionInventory struct {
	repo *memoryRepo
}

func (p positionInventory) Availability(ctx context.Context, q inventory.AvailabilityQuery) (float64, error) {
	// Called from inside WithTx, which already holds repo.mu. Reading
	// without re-locking keeps the non-reentrant mutex from deadlocking.
	return p.repo.positions[q], nil
}

var testActor = internalShared.Actor{ID: 21, Name: "picker"}

var testNow = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *memoryRepo
	orders *fakeOrders
	svc    *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	fo := &fakeOrders{orders: map[int64]orders.Order{
		1: {ID: 1, Number: "PO-1", WaveID: 1, State: shared.StatusInProgress},
	}}
	svc := NewService(repo, fo, positionInventory{repo: repo}, nil, internalShared.FixedClock{At: testNow})
	return &fixture{repo: repo, orders: fo, svc: svc}
}

// seedLot installs a lot and its matching position.
func (f *fixture) seedLot(id int64, qty float64) {
	f.repo.lots[id] = lots.Lot{
		ID: id, Code: "LOTE-1", ProductID: 100, LocationID: 10,
		InitialQty: qty, AvailableQty: qty, State: lots.LotAvailable, Active: true,
	}
	f.repo.positions[inventory.AvailabilityQuery{ProductID: 100, LocationID: 10, LotID: id}] = qty
}

func (f *fixture) createLotTask(t *testing.T, requested float64) Task {
	t.Helper()
	task, err := f.svc.Create(context.Background(), CreateInput{
		OrderID: 1, ProductID: 100, LotID: 1, LocationID: 10, RequestedQty: requested, Actor: testActor,
	})
	require.NoError(t, err)
	return task
}

func TestStartRequiresAvailability(t *testing.T) {
	f := newFixture()
	f.seedLot(1, 5)
	ctx := context.Background()
	task := f.createLotTask(t, 8)

	_, err := f.svc.Start(ctx, task.ID, 21, testActor)
	require.ErrorIs(t, err, internalShared.ErrInsufficientStock)

	current, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusPending, current.State)

	ok, err := f.svc.CheckAvailability(ctx, task.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStartThenRecordPicked(t *testing.T) {
	f := newFixture()
	f.seedLot(1, 10)
	ctx := context.Background()
	task := f.createLotTask(t, 4)

	_, err := f.svc.RecordPicked(ctx, task.ID, 4, testActor)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)

	started, err := f.svc.Start(ctx, task.ID, 21, testActor)
	require.NoError(t, err)
	require.Equal(t, shared.StatusInProgress, started.State)
	require.NotNil(t, started.StartedAt)

	picked, err := f.svc.RecordPicked(ctx, task.ID, 3, testActor)
	require.NoError(t, err)
	require.InDelta(t, 3.0, picked.PickedQty, 1e-9)

	// the physical scan never touches inventory
	require.InDelta(t, 10.0, f.repo.lots[1].AvailableQty, 1e-9)
	require.Empty(t, f.repo.ledger)
}

func TestCompleteConsumesLot(t *testing.T) {
	f := newFixture()
	f.seedLot(1, 10)
	ctx := context.Background()
	task := f.createLotTask(t, 4)
	_, err := f.svc.Start(ctx, task.ID, 21, testActor)
	require.NoError(t, err)
	f.orders.recomputes = nil

	done, err := f.svc.Complete(ctx, task.ID, 4, testActor)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCompleted, done.State)
	require.InDelta(t, 4.0, done.ConfirmedQty, 1e-9)
	require.NotNil(t, done.EndedAt)

	require.InDelta(t, 6.0, f.repo.lots[1].AvailableQty, 1e-9)
	require.Len(t, f.repo.ledger, 1)
	entry := f.repo.ledger[0]
	require.Equal(t, inventory.MovementExit, entry.Kind)
	require.InDelta(t, 10.0, entry.QtyBefore, 1e-9)
	require.InDelta(t, 6.0, entry.QtyAfter, 1e-9)

	require.Len(t, f.repo.events, 1)
	require.Equal(t, trace.EventExit, f.repo.events[0].Kind)
	require.Equal(t, []int64{1}, f.orders.recomputes)
}

func TestCompleteValidatesConfirmedAgainstRequested(t *testing.T) {
	f := newFixture()
	f.seedLot(1, 10)
	ctx := context.Background()
	task := f.createLotTask(t, 4)
	_, err := f.svc.Start(ctx, task.ID, 21, testActor)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, task.ID, 5, testActor)
	require.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = f.svc.Complete(ctx, task.ID, 0, testActor)
	require.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestCompleteRechecksLotAtCommit(t *testing.T) {
	f := newFixture()
	f.seedLot(1, 5)
	ctx := context.Background()
	task := f.createLotTask(t, 5)
	_, err := f.svc.Start(ctx, task.ID, 21, testActor)
	require.NoError(t, err)

	// the lot drains between start and complete
	lot := f.repo.lots[1]
	lot.AvailableQty = 2
	f.repo.lots[1] = lot

	_, err = f.svc.Complete(ctx, task.ID, 5, testActor)
	require.ErrorIs(t, err, internalShared.ErrInsufficientStock)

	// the failed completion left the task in progress for retry
	current, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, shared.StatusInProgress, current.State)
	require.Empty(t, f.repo.ledger)
}

func TestConcurrentCompletionsDoNotOversell(t *testing.T) {
	f := newFixture()
	f.seedLot(1, 10)
	ctx := context.Background()

	first := f.createLotTask(t, 7)
	second := f.createLotTask(t, 6)
	_, err := f.svc.Start(ctx, first.ID, 21, testActor)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, second.ID, 22, testActor)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, task := range []Task{first, second} {
		wg.Add(1)
		go func(i int, id int64, qty float64) {
			defer wg.Done()
			_, errs[i] = f.svc.Complete(ctx, id, qty, testActor)
		}(i, task.ID, task.RequestedQty)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, internalShared.ErrInsufficientStock)
			failures++
		}
	}
	require.Equal(t, 1, failures)
	require.GreaterOrEqual(t, f.repo.lots[1].AvailableQty, 0.0)
	require.Len(t, f.repo.ledger, 1)
}

func TestCompleteWithoutLotUsesPosition(t *testing.T) {
	f := newFixture()
	f.repo.positions[inventory.AvailabilityQuery{ProductID: 200, LocationID: 11}] = 9
	ctx := context.Background()

	task, err := f.svc.Create(ctx, CreateInput{
		OrderID: 1, ProductID: 200, LocationID: 11, RequestedQty: 3, Actor: testActor,
	})
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, task.ID, 21, testActor)
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, task.ID, 3, testActor)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCompleted, done.State)
	require.InDelta(t, 6.0, f.repo.positions[inventory.AvailabilityQuery{ProductID: 200, LocationID: 11}], 1e-9)
}

func TestCancelReleasesNothing(t *testing.T) {
	f := newFixture()
	f.seedLot(1, 10)
	ctx := context.Background()
	task := f.createLotTask(t, 4)
	_, err := f.svc.Start(ctx, task.ID, 21, testActor)
	require.NoError(t, err)
	f.orders.recomputes = nil

	cancelled, err := f.svc.Cancel(ctx, task.ID, "damaged shelf", testActor)
	require.NoError(t, err)
	require.Equal(t, shared.StatusCancelled, cancelled.State)

	require.InDelta(t, 10.0, f.repo.lots[1].AvailableQty, 1e-9)
	require.Empty(t, f.repo.ledger)
	require.Len(t, f.repo.events, 1)
	require.Equal(t, trace.EventStateChange, f.repo.events[0].Kind)
	require.Equal(t, []int64{1}, f.orders.recomputes)

	_, err = f.svc.Cancel(ctx, task.ID, "again", testActor)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)
}

func TestSerializedTaskPicksOneUnit(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), CreateInput{
		OrderID: 1, ProductID: 100, SerialID: 9, LocationID: 10, RequestedQty: 2, Actor: testActor,
	})
	require.ErrorIs(t, err, internalShared.ErrValidation)
}

type recordingMetrics struct {
	mu        sync.Mutex
	completed []float64
	failed    []string
}

func (m *recordingMetrics) TaskCompleted(quantity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, quantity)
}

func (m *recordingMetrics) TaskFailed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, reason)
}

func TestMetricsCountPickOutcomes(t *testing.T) {
	f := newFixture()
	metrics := &recordingMetrics{}
	f.svc.WithMetrics(metrics)
	f.seedLot(1, 5)
	ctx := context.Background()

	short := f.createLotTask(t, 8)
	_, err := f.svc.Start(ctx, short.ID, 21, testActor)
	require.ErrorIs(t, err, internalShared.ErrInsufficientStock)
	require.Equal(t, []string{"insufficient_stock"}, metrics.failed)

	task := f.createLotTask(t, 4)
	_, err = f.svc.Start(ctx, task.ID, 21, testActor)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, task.ID, 4, testActor)
	require.NoError(t, err)
	require.Equal(t, []float64{4}, metrics.completed)

	// a second completion of the same task is an invalid transition
	_, err = f.svc.Complete(ctx, task.ID, 4, testActor)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)
	require.Equal(t, []string{"insufficient_stock", "invalid_state"}, metrics.failed)
}
