package orders

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/warewave/warewave/internal/picking/shared"
	"github.com/warewave/warewave/internal/picking/waves"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	GetByNumber(ctx context.Context, number string) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	TaskStops(ctx context.Context, orderID int64) ([]TaskStop, error)
}

// WavesPort is the slice of the wave service the order cascade needs.
type WavesPort interface {
	Get(ctx context.Context, id int64) (waves.Wave, error)
	RecomputeProgress(ctx context.Context, id int64) (waves.Wave, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Rough planning constants for the derived estimates: walking speed over
// grid units and fixed handling time per picked unit.
const (
	secondsPerDistanceUnit = 2.0
	secondsPerItem         = 12.0
)

// Service drives the order lifecycle.
type Service struct {
	repo  RepositoryPort
	waves WavesPort
	audit AuditPort
	clock internalShared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, wavesPort WavesPort, audit AuditPort, clock internalShared.Clock) *Service {
	if clock == nil {
		clock = internalShared.SystemClock{}
	}
	return &Service{repo: repo, waves: wavesPort, audit: audit, clock: clock}
}

// CreateInput describes a new order attached to a wave.
type CreateInput struct {
	Number    string
	WaveID    int64
	Requester string
	Priority  shared.Priority
	Deadline  *time.Time
	Actor     internalShared.Actor
}

// Create attaches a new PENDING order to a wave. The wave must exist and
// still accept work; the wave reference is immutable afterwards.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	number := internalShared.NormalizeCode(input.Number)
	if number == "" {
		return Order{}, fmt.Errorf("orders: %w: order number required", internalShared.ErrValidation)
	}
	if input.WaveID == 0 {
		return Order{}, fmt.Errorf("orders: %w: wave required", internalShared.ErrValidation)
	}
	if input.Priority == "" {
		input.Priority = shared.PriorityMedium
	}
	if !input.Priority.Valid() {
		return Order{}, fmt.Errorf("orders: %w: unknown priority %q", internalShared.ErrValidation, input.Priority)
	}
	if !input.Actor.Valid() {
		return Order{}, fmt.Errorf("orders: %w: actor required", internalShared.ErrValidation)
	}
	wave, err := s.waves.Get(ctx, input.WaveID)
	if err != nil {
		return Order{}, err
	}
	if wave.State.Terminal() {
		return Order{}, fmt.Errorf("orders: wave %d is %s: %w", wave.ID, wave.State, internalShared.ErrInvalidState)
	}

	now := s.clock.Now()
	order := Order{
		Number:    number,
		WaveID:    input.WaveID,
		Requester: strings.TrimSpace(input.Requester),
		State:     shared.StatusPending,
		Priority:  input.Priority,
		OrderedAt: now,
		Deadline:  input.Deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	// New child changes the wave's totals.
	if _, err := s.waves.RecomputeProgress(ctx, order.WaveID); err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.Actor, "orders:create", order.ID, map[string]any{"number": order.Number, "wave_id": order.WaveID})
	return order, nil
}

// Start transitions PENDING -> IN_PROGRESS and pins the operator.
func (s *Service) Start(ctx context.Context, id, operatorID int64, actor internalShared.Actor) (Order, error) {
	if !actor.Valid() {
		return Order{}, fmt.Errorf("orders: %w: actor required", internalShared.ErrValidation)
	}
	if operatorID == 0 {
		operatorID = actor.ID
	}
	now := s.clock.Now()
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !order.State.CanStart() {
			return fmt.Errorf("orders: cannot start order in %s: %w", order.State, internalShared.ErrInvalidState)
		}
		order.State = shared.StatusInProgress
		order.OperatorID = operatorID
		order.StartedAt = &now
		return tx.Update(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actor, "orders:start", order.ID, map[string]any{"operator_id": operatorID})
	return order, nil
}

// RecomputeProgress rescans child tasks and refreshes the rollup. When every
// remaining task is complete the order completes and the parent wave is
// recomputed in turn. Safe to call redundantly.
func (s *Service) RecomputeProgress(ctx context.Context, id int64) (Order, error) {
	now := s.clock.Now()
	var order Order
	var cascaded bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		requested, confirmed, tasks, completed, err := tx.TaskSums(ctx, id)
		if err != nil {
			return err
		}
		order.TotalItems = requested
		order.CompletedItems = confirmed

		progress := shared.Progress{Total: tasks, Completed: completed}
		if progress.Done() && order.State == shared.StatusInProgress {
			order.State = shared.StatusCompleted
			order.EndedAt = &now
			cascaded = true
		}
		return tx.Update(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	if cascaded {
		if _, err := s.waves.RecomputeProgress(ctx, order.WaveID); err != nil {
			return Order{}, err
		}
	}
	return order, nil
}

// Cancel aborts a non-terminal order and refreshes the parent wave.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, actor internalShared.Actor) (Order, error) {
	if !actor.Valid() {
		return Order{}, fmt.Errorf("orders: %w: actor required", internalShared.ErrValidation)
	}
	now := s.clock.Now()
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !order.State.CanCancel() {
			return fmt.Errorf("orders: cannot cancel order in %s: %w", order.State, internalShared.ErrInvalidState)
		}
		order.State = shared.StatusCancelled
		order.EndedAt = &now
		return tx.Update(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	if _, err := s.waves.RecomputeProgress(ctx, order.WaveID); err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actor, "orders:cancel", order.ID, map[string]any{"reason": reason})
	return order, nil
}

// Estimate derives planning figures from the order's task locations using
// the same nearest-first walk the route builder performs. Advisory only.
func (s *Service) Estimate(ctx context.Context, id int64) (Estimate, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Estimate{}, err
	}
	stops, err := s.repo.TaskStops(ctx, order.ID)
	if err != nil {
		return Estimate{}, err
	}
	est := Estimate{OrderID: order.ID, Stops: len(stops)}
	if len(stops) == 0 {
		return est, nil
	}
	sort.SliceStable(stops, func(i, j int) bool {
		di := math.Hypot(stops[i].X, stops[i].Y)
		dj := math.Hypot(stops[j].X, stops[j].Y)
		if di != dj {
			return di < dj
		}
		return stops[i].TaskID < stops[j].TaskID
	})
	var prevX, prevY float64
	for _, stop := range stops {
		est.DistanceUnits += math.Hypot(stop.X-prevX, stop.Y-prevY)
		est.Seconds += stop.Quantity * secondsPerItem
		prevX, prevY = stop.X, stop.Y
	}
	est.Seconds += est.DistanceUnits * secondsPerDistanceUnit
	return est, nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber returns one order by normalized number.
func (s *Service) GetByNumber(ctx context.Context, number string) (Order, error) {
	return s.repo.GetByNumber(ctx, internalShared.NormalizeCode(number))
}

// List returns orders and a total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actor internalShared.Actor, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}
