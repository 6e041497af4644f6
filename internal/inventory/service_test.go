package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warewave/warewave/internal/shared"
)

type memoryRepo struct {
	positions map[string]Position
	ledger    []LedgerEntry
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{positions: make(map[string]Position)}
}

func scopeKey(q AvailabilityQuery) string {
	return fmt.Sprintf("%d:%d:%d:%d", q.ProductID, q.LocationID, q.LotID, q.SerialID)
}

// WithTx snapshots state so a failing callback leaves nothing applied,
// mirroring the rollback the real repository gets from PostgreSQL.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[string]Position, len(r.positions))
	for k, v := range r.positions {
		snapshot[k] = v
	}
	ledgerLen := len(r.ledger)
	id := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.positions = snapshot
		r.ledger = r.ledger[:ledgerLen]
		r.nextID = id
		return err
	}
	return nil
}

func (r *memoryRepo) GetPosition(ctx context.Context, q AvailabilityQuery) (Position, error) {
	if pos, ok := r.positions[scopeKey(q)]; ok {
		return pos, nil
	}
	return Position{}, ErrPositionNotFound
}

func (r *memoryRepo) ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	result := make([]LedgerEntry, len(r.ledger))
	copy(result, r.ledger)
	return result, nil
}

func (r *memoryRepo) SumLedger(ctx context.Context, q AvailabilityQuery) (float64, int, error) {
	var sum float64
	var count int
	for _, e := range r.ledger {
		if e.ProductID == q.ProductID && e.LocationID == q.LocationID && e.LotID == q.LotID && e.SerialID == q.SerialID {
			sum += e.QtyAfter - e.QtyBefore
			count++
		}
	}
	return sum, count, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetPositionForUpdate(ctx context.Context, q AvailabilityQuery) (Position, error) {
	if pos, ok := tx.repo.positions[scopeKey(q)]; ok {
		return pos, nil
	}
	// Mirror the SQL repository, which hands back the query scope with
	// the not-found error so callers can seed a fresh row.
	return Position{ProductID: q.ProductID, LocationID: q.LocationID, LotID: q.LotID, SerialID: q.SerialID}, ErrPositionNotFound
}

func (tx *memoryTx) UpsertPosition(ctx context.Context, pos Position) error {
	tx.repo.positions[scopeKey(AvailabilityQuery{ProductID: pos.ProductID, LocationID: pos.LocationID, LotID: pos.LotID, SerialID: pos.SerialID})] = pos
	return nil
}

func (tx *memoryTx) AppendEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.repo.ledger = append(tx.repo.ledger, entry)
	return entry.ID, nil
}

var testActor = shared.Actor{ID: 7, Name: "tester"}

func testClock() shared.Clock {
	return shared.FixedClock{At: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func TestPostEntryThenExit(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, testClock())
	ctx := context.Background()

	in, err := svc.Post(ctx, MovementInput{Kind: MovementEntry, ProductID: 1, LocationID: 10, LotID: 5, Quantity: 12, Reason: "receiving", Actor: testActor})
	require.NoError(t, err)
	require.InDelta(t, 0.0, in.QtyBefore, 1e-9)
	require.InDelta(t, 12.0, in.QtyAfter, 1e-9)

	out, err := svc.Post(ctx, MovementInput{Kind: MovementExit, ProductID: 1, LocationID: 10, LotID: 5, Quantity: 4, Reason: "pick", Actor: testActor})
	require.NoError(t, err)
	require.InDelta(t, 12.0, out.QtyBefore, 1e-9)
	require.InDelta(t, 8.0, out.QtyAfter, 1e-9)

	avail, err := svc.Availability(ctx, AvailabilityQuery{ProductID: 1, LocationID: 10, LotID: 5})
	require.NoError(t, err)
	require.InDelta(t, 8.0, avail, 1e-9)
}

func TestPostRejectsOverdraw(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, testClock())
	ctx := context.Background()

	_, err := svc.Post(ctx, MovementInput{Kind: MovementExit, ProductID: 1, LocationID: 10, Quantity: 1, Actor: testActor})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, repo.ledger)
}

func TestPostValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, testClock())
	ctx := context.Background()

	_, err := svc.Post(ctx, MovementInput{Kind: "BOGUS", ProductID: 1, LocationID: 1, Quantity: 1, Actor: testActor})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Post(ctx, MovementInput{Kind: MovementEntry, ProductID: 1, LocationID: 1, Quantity: 0, Actor: testActor})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Post(ctx, MovementInput{Kind: MovementEntry, ProductID: 1, LocationID: 1, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNegativeAdjustmentGuard(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, testClock())
	ctx := context.Background()

	_, err := svc.Post(ctx, MovementInput{Kind: MovementEntry, ProductID: 2, LocationID: 3, Quantity: 5, Actor: testActor})
	require.NoError(t, err)

	entry, err := svc.Post(ctx, MovementInput{Kind: MovementAdjustment, ProductID: 2, LocationID: 3, Quantity: -5, Reason: "cycle count", Actor: testActor})
	require.NoError(t, err)
	require.InDelta(t, 0.0, entry.QtyAfter, 1e-9)

	_, err = svc.Post(ctx, MovementInput{Kind: MovementAdjustment, ProductID: 2, LocationID: 3, Quantity: -1, Actor: testActor})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestTransferIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, testClock())
	ctx := context.Background()

	_, err := svc.Post(ctx, MovementInput{Kind: MovementEntry, ProductID: 1, LocationID: 1, Quantity: 10, Actor: testActor})
	require.NoError(t, err)

	out, in, err := svc.Transfer(ctx, TransferInput{ProductID: 1, SrcLocation: 1, DstLocation: 2, Quantity: 4, Actor: testActor})
	require.NoError(t, err)
	require.InDelta(t, 6.0, out.QtyAfter, 1e-9)
	require.InDelta(t, 4.0, in.QtyAfter, 1e-9)

	_, _, err = svc.Transfer(ctx, TransferInput{ProductID: 1, SrcLocation: 1, DstLocation: 2, Quantity: 100, Actor: testActor})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// failed transfer leaves no half-applied entries
	avail, err := svc.Availability(ctx, AvailabilityQuery{ProductID: 1, LocationID: 2})
	require.NoError(t, err)
	require.InDelta(t, 4.0, avail, 1e-9)
}

func TestReplayMatchesPosition(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, testClock())
	ctx := context.Background()

	scope := AvailabilityQuery{ProductID: 9, LocationID: 4, LotID: 2}
	for _, qty := range []float64{10, 3, 7} {
		_, err := svc.Post(ctx, MovementInput{Kind: MovementEntry, ProductID: 9, LocationID: 4, LotID: 2, Quantity: qty, Actor: testActor})
		require.NoError(t, err)
	}
	_, err := svc.Post(ctx, MovementInput{Kind: MovementExit, ProductID: 9, LocationID: 4, LotID: 2, Quantity: 6, Actor: testActor})
	require.NoError(t, err)

	result, err := svc.Replay(ctx, scope)
	require.NoError(t, err)
	require.True(t, result.Consistent)
	require.InDelta(t, 14.0, result.OnHand, 1e-9)
	require.InDelta(t, result.OnHand, result.Replayed, 1e-9)
	require.Equal(t, 4, result.Entries)
}

// scopelessTx drops the query scope from the not-found return, like a
// repository that hands back a bare zero value.
type scopelessTx struct {
	*memoryTx
}

func (tx scopelessTx) GetPositionForUpdate(ctx context.Context, q AvailabilityQuery) (Position, error) {
	if pos, ok := tx.repo.positions[scopeKey(q)]; ok {
		return pos, nil
	}
	return Position{}, ErrPositionNotFound
}

type scopelessRepo struct {
	*memoryRepo
}

func (r scopelessRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.memoryRepo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, scopelessTx{tx.(*memoryTx)})
	})
}

func TestFirstMovementSeedsPositionScope(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(scopelessRepo{repo}, nil, nil, testClock())
	ctx := context.Background()

	_, err := svc.Post(ctx, MovementInput{Kind: MovementEntry, ProductID: 3, LocationID: 30, LotID: 9, Quantity: 5, Reason: "receiving", Actor: testActor})
	require.NoError(t, err)

	pos, ok := repo.positions[scopeKey(AvailabilityQuery{ProductID: 3, LocationID: 30, LotID: 9})]
	require.True(t, ok, "position must land under the movement's scope")
	require.Equal(t, int64(3), pos.ProductID)
	require.Equal(t, int64(30), pos.LocationID)
	require.Equal(t, int64(9), pos.LotID)
	require.InDelta(t, 5.0, pos.OnHand, 1e-9)
}
