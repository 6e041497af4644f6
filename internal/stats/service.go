package stats

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	pickshared "github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Reader exposes the fact queries the aggregation needs.
type Reader interface {
	Orders(ctx context.Context, operatorID int64, from, to time.Time, waveID int64) ([]OrderFact, error)
	Tasks(ctx context.Context, operatorID int64, from, to time.Time, waveID int64) ([]TaskFact, error)
	Distance(ctx context.Context, operatorID int64, from, to time.Time, waveID int64) (float64, error)
}

// Service computes picking performance snapshots and serves them through
// the cache.
type Service struct {
	repo  Reader
	cache *Cache
	clock internalShared.Clock
}

// NewService wires a Reader with a Cache helper.
func NewService(repo Reader, cache *Cache, clock internalShared.Clock) *Service {
	return &Service{repo: repo, cache: cache, clock: clock}
}

// Get returns the snapshot for the window, computing it on a cache miss.
func (s *Service) Get(ctx context.Context, win Window) (Snapshot, error) {
	if err := win.Validate(); err != nil {
		return Snapshot{}, err
	}
	key, err := s.cache.BuildKey(ctx, snapshotKey(win)...)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	err = s.cache.FetchJSON(ctx, key, &snap, func(ctx context.Context) (interface{}, error) {
		return s.Compute(ctx, win)
	})
	return snap, err
}

// Refresh discards every stored snapshot and recomputes this window.
func (s *Service) Refresh(ctx context.Context, win Window) (Snapshot, error) {
	if err := win.Validate(); err != nil {
		return Snapshot{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		return Snapshot{}, err
	}
	return s.Get(ctx, win)
}

// Invalidate bumps the cache version without recomputing anything. The
// scheduled refresh job calls this on its cron; between runs the snapshot
// TTL bounds how stale a cached read can get.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Compute aggregates the window's facts into a fresh snapshot. The three
// fact queries run concurrently.
func (s *Service) Compute(ctx context.Context, win Window) (Snapshot, error) {
	if err := win.Validate(); err != nil {
		return Snapshot{}, err
	}
	from, to := win.Bounds()

	var (
		orders   []OrderFact
		tasks    []TaskFact
		distance float64
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.repo.Orders(ctx, win.OperatorID, from, to, win.WaveID)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.repo.Tasks(ctx, win.OperatorID, from, to, win.WaveID)
		return err
	})
	g.Go(func() error {
		var err error
		distance, err = s.repo.Distance(ctx, win.OperatorID, from, to, win.WaveID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap := aggregate(win, orders, tasks, distance)
	snap.ComputedAt = s.clock.Now()
	return snap, nil
}

// aggregate folds the facts into a snapshot. Pure so it can be checked
// against hand-computed fixtures.
func aggregate(win Window, orders []OrderFact, tasks []TaskFact, distance float64) Snapshot {
	snap := Snapshot{Window: win, DistanceUnits: distance}

	var orderSeconds float64
	var timedOrders int
	for _, o := range orders {
		snap.TotalOrders++
		if o.State != string(pickshared.StatusCompleted) {
			continue
		}
		snap.CompletedOrders++
		if o.StartedAt != nil && o.EndedAt != nil {
			orderSeconds += o.EndedAt.Sub(*o.StartedAt).Seconds()
			timedOrders++
		}
	}

	var taskSeconds float64
	for _, t := range tasks {
		snap.TotalTasks++
		if t.State != string(pickshared.StatusCompleted) {
			continue
		}
		snap.CompletedTasks++
		snap.ConfirmedItems += t.Confirmed
		if math.Abs(t.Picked-t.Confirmed) > 1e-9 {
			snap.ErrorCount++
		}
		if t.StartedAt != nil && t.EndedAt != nil {
			taskSeconds += t.EndedAt.Sub(*t.StartedAt).Seconds()
		}
	}

	if timedOrders > 0 {
		snap.AvgSecondsOrder = round2(decimal.NewFromFloat(orderSeconds).
			Div(decimal.NewFromInt(int64(timedOrders))))
	}
	if snap.ConfirmedItems > 0 && taskSeconds > 0 {
		items := decimal.NewFromFloat(snap.ConfirmedItems)
		seconds := decimal.NewFromFloat(taskSeconds)
		snap.AvgSecondsItem = round2(seconds.Div(items))
		snap.ItemsPerHour = round2(items.Div(seconds).Mul(decimal.NewFromInt(3600)))
	}
	if snap.CompletedTasks > 0 {
		clean := decimal.NewFromInt(int64(snap.CompletedTasks - snap.ErrorCount))
		total := decimal.NewFromInt(int64(snap.CompletedTasks))
		snap.AccuracyPct = round2(clean.Div(total).Mul(decimal.NewFromInt(100)))
	}
	return snap
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
