package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/warewave/warewave/internal/inventory"
	"github.com/warewave/warewave/internal/picking/orders"
	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
	"github.com/warewave/warewave/internal/trace"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Task, error)
	List(ctx context.Context, filter ListFilter) ([]Task, int, error)
}

// OrdersPort is the slice of the order service the task cascade needs.
type OrdersPort interface {
	Get(ctx context.Context, id int64) (orders.Order, error)
	RecomputeProgress(ctx context.Context, id int64) (orders.Order, error)
}

// InventoryPort answers availability questions against positions.
type InventoryPort interface {
	Availability(ctx context.Context, q inventory.AvailabilityQuery) (float64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort counts pick outcomes for monitoring.
type MetricsPort interface {
	TaskCompleted(quantity float64)
	TaskFailed(reason string)
}

// Service drives pick task allocation and completion. Inventory is consumed
// exactly once, at completion: a started task holds no reservation, which
// keeps lots free for other pickers at the cost of a late re-check.
type Service struct {
	repo      RepositoryPort
	orders    OrdersPort
	inventory InventoryPort
	audit     AuditPort
	metrics   MetricsPort
	clock     internalShared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, ordersPort OrdersPort, inventoryPort InventoryPort, audit AuditPort, clock internalShared.Clock) *Service {
	if clock == nil {
		clock = internalShared.SystemClock{}
	}
	return &Service{repo: repo, orders: ordersPort, inventory: inventoryPort, audit: audit, clock: clock}
}

// WithMetrics attaches outcome counters and returns the service.
func (s *Service) WithMetrics(m MetricsPort) *Service {
	s.metrics = m
	return s
}

func (s *Service) observeFailure(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, internalShared.ErrInsufficientStock):
		s.metrics.TaskFailed("insufficient_stock")
	case errors.Is(err, internalShared.ErrInvalidState):
		s.metrics.TaskFailed("invalid_state")
	}
}

// CreateInput describes a new pick task on an order.
type CreateInput struct {
	OrderID      int64
	ProductID    int64
	LotID        int64
	SerialID     int64
	LocationID   int64
	RequestedQty float64
	Actor        internalShared.Actor
}

// Create adds a PENDING task to an order that still accepts lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (Task, error) {
	if input.OrderID == 0 || input.ProductID == 0 || input.LocationID == 0 {
		return Task{}, fmt.Errorf("tasks: %w: order, product and location required", internalShared.ErrValidation)
	}
	if input.RequestedQty <= 0 {
		return Task{}, fmt.Errorf("tasks: %w: requested quantity must be positive", internalShared.ErrValidation)
	}
	if input.SerialID != 0 && input.RequestedQty != 1 {
		return Task{}, fmt.Errorf("tasks: %w: a serialized task picks exactly one unit", internalShared.ErrValidation)
	}
	if !input.Actor.Valid() {
		return Task{}, fmt.Errorf("tasks: %w: actor required", internalShared.ErrValidation)
	}
	order, err := s.orders.Get(ctx, input.OrderID)
	if err != nil {
		return Task{}, err
	}
	if order.State.Terminal() {
		return Task{}, fmt.Errorf("tasks: order %s is %s: %w", order.Number, order.State, internalShared.ErrInvalidState)
	}

	now := s.clock.Now()
	task := Task{
		OrderID:      input.OrderID,
		ProductID:    input.ProductID,
		LotID:        input.LotID,
		SerialID:     input.SerialID,
		LocationID:   input.LocationID,
		RequestedQty: input.RequestedQty,
		State:        shared.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, task)
		if err != nil {
			return err
		}
		task.ID = id
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	if _, err := s.orders.RecomputeProgress(ctx, task.OrderID); err != nil {
		return Task{}, err
	}
	s.recordAudit(ctx, input.Actor, "tasks:create", task.ID, map[string]any{"order_id": task.OrderID, "requested": task.RequestedQty})
	return task, nil
}

// CheckAvailability reports whether the task's position currently covers the
// requested quantity. This is the gate evaluated at start time; completion
// re-checks under lock because the answer can change while picking.
func (s *Service) CheckAvailability(ctx context.Context, id int64) (bool, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	onHand, err := s.availability(ctx, task)
	if err != nil {
		return false, err
	}
	return onHand >= task.RequestedQty, nil
}

func (s *Service) availability(ctx context.Context, task Task) (float64, error) {
	return s.inventory.Availability(ctx, inventory.AvailabilityQuery{
		ProductID:  task.ProductID,
		LocationID: task.LocationID,
		LotID:      task.LotID,
		SerialID:   task.SerialID,
	})
}

// Start transitions PENDING -> IN_PROGRESS after the availability gate.
func (s *Service) Start(ctx context.Context, id, operatorID int64, actor internalShared.Actor) (Task, error) {
	if !actor.Valid() {
		return Task{}, fmt.Errorf("tasks: %w: actor required", internalShared.ErrValidation)
	}
	if operatorID == 0 {
		operatorID = actor.ID
	}
	now := s.clock.Now()
	var task Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		task, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !task.State.CanStart() {
			return fmt.Errorf("tasks: cannot start task in %s: %w", task.State, internalShared.ErrInvalidState)
		}
		onHand, err := s.availability(ctx, task)
		if err != nil {
			return err
		}
		if onHand < task.RequestedQty {
			return fmt.Errorf("tasks: task %d needs %.3f, position holds %.3f: %w",
				task.ID, task.RequestedQty, onHand, internalShared.ErrInsufficientStock)
		}
		task.State = shared.StatusInProgress
		task.OperatorID = operatorID
		task.StartedAt = &now
		return tx.Update(ctx, task)
	})
	if err != nil {
		s.observeFailure(err)
		return Task{}, err
	}
	s.recordAudit(ctx, actor, "tasks:start", task.ID, map[string]any{"operator_id": operatorID})
	return task, nil
}

// RecordPicked stores the operator's physical scan. Inventory is untouched;
// only completion consumes stock.
func (s *Service) RecordPicked(ctx context.Context, id int64, quantity float64, actor internalShared.Actor) (Task, error) {
	if quantity < 0 {
		return Task{}, fmt.Errorf("tasks: %w: picked quantity cannot be negative", internalShared.ErrValidation)
	}
	if !actor.Valid() {
		return Task{}, fmt.Errorf("tasks: %w: actor required", internalShared.ErrValidation)
	}
	var task Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		task, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if task.State != shared.StatusInProgress {
			return fmt.Errorf("tasks: cannot record pick in %s: %w", task.State, internalShared.ErrInvalidState)
		}
		task.PickedQty = quantity
		return tx.Update(ctx, task)
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// Complete accepts the verified quantity and consumes inventory. The lot (or
// bare position) is re-checked under its row lock at commit time: two
// concurrent completions against the same lot cannot both drain it. On an
// insufficiency the transaction rolls back and the task stays IN_PROGRESS
// for operator intervention.
func (s *Service) Complete(ctx context.Context, id int64, confirmedQty float64, actor internalShared.Actor) (Task, error) {
	if confirmedQty <= 0 {
		return Task{}, fmt.Errorf("tasks: %w: confirmed quantity must be positive", internalShared.ErrValidation)
	}
	if !actor.Valid() {
		return Task{}, fmt.Errorf("tasks: %w: actor required", internalShared.ErrValidation)
	}
	now := s.clock.Now()
	var task Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		task, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if task.State != shared.StatusInProgress {
			return fmt.Errorf("tasks: cannot complete task in %s: %w", task.State, internalShared.ErrInvalidState)
		}
		if confirmedQty > task.RequestedQty {
			return fmt.Errorf("tasks: confirmed %.3f exceeds requested %.3f: %w",
				confirmedQty, task.RequestedQty, internalShared.ErrValidation)
		}

		var before, after float64
		var refDoc string
		if task.LotID != 0 {
			lot, err := tx.GetLotForUpdate(ctx, task.LotID)
			if err != nil {
				return err
			}
			if lot.Terminal() || !lot.Active {
				return fmt.Errorf("tasks: lot %s is %s: %w", lot.Code, lot.State, internalShared.ErrInvalidState)
			}
			before = lot.AvailableQty
			after = before - confirmedQty
			if after < -1e-9 {
				return fmt.Errorf("tasks: lot %s holds %.3f, task confirmed %.3f: %w",
					lot.Code, before, confirmedQty, internalShared.ErrInsufficientStock)
			}
			if math.Abs(after) < 1e-9 {
				after = 0
			}
			if err := tx.UpdateLotQuantity(ctx, lot.ID, after); err != nil {
				return err
			}
			refDoc = lot.Code
		} else {
			pos, err := tx.GetPositionForUpdate(ctx, inventory.AvailabilityQuery{
				ProductID:  task.ProductID,
				LocationID: task.LocationID,
				SerialID:   task.SerialID,
			})
			if err != nil && !errors.Is(err, inventory.ErrPositionNotFound) {
				return err
			}
			before = pos.OnHand
			after = before - confirmedQty
			if after < -1e-9 {
				return fmt.Errorf("tasks: position holds %.3f, task confirmed %.3f: %w",
					before, confirmedQty, internalShared.ErrInsufficientStock)
			}
			if math.Abs(after) < 1e-9 {
				after = 0
			}
		}

		if _, err := tx.Apply(ctx, inventory.LedgerEntry{
			ProductID:  task.ProductID,
			LocationID: task.LocationID,
			LotID:      task.LotID,
			SerialID:   task.SerialID,
			Kind:       inventory.MovementExit,
			Quantity:   confirmedQty,
			QtyBefore:  before,
			QtyAfter:   after,
			Reason:     "pick confirmed",
			RefDoc:     refDoc,
			ActorID:    actor.ID,
			OccurredAt: now,
		}); err != nil {
			return err
		}

		event, err := trace.Build(trace.RecordInput{
			ProductID:      task.ProductID,
			LotID:          task.LotID,
			SerialID:       task.SerialID,
			Kind:           trace.EventExit,
			OriginLocation: task.LocationID,
			Quantity:       confirmedQty,
			Actor:          actor,
			Payload:        map[string]any{"task_id": task.ID, "order_id": task.OrderID},
		}, s.clock)
		if err != nil {
			return err
		}
		if _, err := tx.RecordTrace(ctx, event); err != nil {
			return err
		}

		task.ConfirmedQty = confirmedQty
		task.State = shared.StatusCompleted
		task.EndedAt = &now
		return tx.Update(ctx, task)
	})
	if err != nil {
		s.observeFailure(err)
		return Task{}, err
	}
	if s.metrics != nil {
		s.metrics.TaskCompleted(confirmedQty)
	}
	if _, err := s.orders.RecomputeProgress(ctx, task.OrderID); err != nil {
		return Task{}, err
	}
	s.recordAudit(ctx, actor, "tasks:complete", task.ID, map[string]any{"confirmed": confirmedQty})
	return task, nil
}

// Cancel aborts a non-terminal task. No inventory is released: nothing was
// consumed before completion. A STATE_CHANGE trace event marks the abort.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, actor internalShared.Actor) (Task, error) {
	if !actor.Valid() {
		return Task{}, fmt.Errorf("tasks: %w: actor required", internalShared.ErrValidation)
	}
	now := s.clock.Now()
	var task Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		task, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !task.State.CanCancel() {
			return fmt.Errorf("tasks: cannot cancel task in %s: %w", task.State, internalShared.ErrInvalidState)
		}
		task.State = shared.StatusCancelled
		task.EndedAt = &now
		if err := tx.Update(ctx, task); err != nil {
			return err
		}
		event, err := trace.Build(trace.RecordInput{
			ProductID:      task.ProductID,
			LotID:          task.LotID,
			SerialID:       task.SerialID,
			Kind:           trace.EventStateChange,
			OriginLocation: task.LocationID,
			Actor:          actor,
			Payload:        map[string]any{"task_id": task.ID, "state": string(shared.StatusCancelled), "reason": reason},
		}, s.clock)
		if err != nil {
			return err
		}
		_, err = tx.RecordTrace(ctx, event)
		return err
	})
	if err != nil {
		return Task{}, err
	}
	if _, err := s.orders.RecomputeProgress(ctx, task.OrderID); err != nil {
		return Task{}, err
	}
	s.recordAudit(ctx, actor, "tasks:cancel", task.ID, map[string]any{"reason": reason})
	return task, nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, id int64) (Task, error) {
	return s.repo.Get(ctx, id)
}

// List returns tasks and a total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actor internalShared.Actor, action string, taskID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "pick_task",
		EntityID: fmt.Sprintf("%d", taskID),
		Meta:     meta,
	})
}
