package waves

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Wave, error)
	List(ctx context.Context, filter ListFilter) ([]Wave, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort counts wave completions for monitoring.
type MetricsPort interface {
	WaveCompleted()
}

// Service drives the wave lifecycle.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	clock   internalShared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, clock internalShared.Clock) *Service {
	if clock == nil {
		clock = internalShared.SystemClock{}
	}
	return &Service{repo: repo, audit: audit, clock: clock}
}

// WithMetrics attaches completion counters and returns the service.
func (s *Service) WithMetrics(m MetricsPort) *Service {
	s.metrics = m
	return s
}

// CreateInput describes a new wave.
type CreateInput struct {
	Name        string
	Description string
	Priority    shared.Priority
	Zone        string
	OperatorID  int64
	Deadline    time.Time
	Actor       internalShared.Actor
}

// Create registers a wave in PENDING. The deadline must be strictly in the
// future.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wave, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Wave{}, fmt.Errorf("waves: %w: name required", internalShared.ErrValidation)
	}
	if input.Priority == "" {
		input.Priority = shared.PriorityMedium
	}
	if !input.Priority.Valid() {
		return Wave{}, fmt.Errorf("waves: %w: unknown priority %q", internalShared.ErrValidation, input.Priority)
	}
	if !input.Actor.Valid() {
		return Wave{}, fmt.Errorf("waves: %w: actor required", internalShared.ErrValidation)
	}
	now := s.clock.Now()
	if !input.Deadline.After(now) {
		return Wave{}, fmt.Errorf("waves: %w: deadline must be in the future", internalShared.ErrValidation)
	}

	wave := Wave{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		State:       shared.StatusPending,
		Priority:    input.Priority,
		Zone:        internalShared.NormalizeCode(input.Zone),
		OperatorID:  input.OperatorID,
		Deadline:    input.Deadline.UTC(),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, wave)
		if err != nil {
			return err
		}
		wave.ID = id
		return nil
	})
	if err != nil {
		return Wave{}, err
	}
	s.recordAudit(ctx, input.Actor, "waves:create", wave.ID, map[string]any{"name": wave.Name, "priority": wave.Priority})
	return wave, nil
}

// Start transitions PENDING -> IN_PROGRESS and pins the operator.
func (s *Service) Start(ctx context.Context, id, operatorID int64, actor internalShared.Actor) (Wave, error) {
	if operatorID == 0 {
		operatorID = actor.ID
	}
	if !actor.Valid() {
		return Wave{}, fmt.Errorf("waves: %w: actor required", internalShared.ErrValidation)
	}
	now := s.clock.Now()
	var wave Wave
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wave, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !wave.State.CanStart() {
			return fmt.Errorf("waves: cannot start wave in %s: %w", wave.State, internalShared.ErrInvalidState)
		}
		wave.State = shared.StatusInProgress
		wave.OperatorID = operatorID
		wave.StartedAt = &now
		return tx.Update(ctx, wave)
	})
	if err != nil {
		return Wave{}, err
	}
	s.recordAudit(ctx, actor, "waves:start", wave.ID, map[string]any{"operator_id": operatorID})
	return wave, nil
}

// AssignOperator reassigns a non-terminal wave.
func (s *Service) AssignOperator(ctx context.Context, id, operatorID int64, actor internalShared.Actor) (Wave, error) {
	if operatorID == 0 {
		return Wave{}, fmt.Errorf("waves: %w: operator required", internalShared.ErrValidation)
	}
	if !actor.Valid() {
		return Wave{}, fmt.Errorf("waves: %w: actor required", internalShared.ErrValidation)
	}
	var wave Wave
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wave, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if wave.State.Terminal() {
			return fmt.Errorf("waves: cannot reassign wave in %s: %w", wave.State, internalShared.ErrInvalidState)
		}
		wave.OperatorID = operatorID
		return tx.Update(ctx, wave)
	})
	if err != nil {
		return Wave{}, err
	}
	s.recordAudit(ctx, actor, "waves:assign", wave.ID, map[string]any{"operator_id": operatorID})
	return wave, nil
}

// RecomputeProgress rescans child orders and refreshes the rollup. When the
// last order completes and the wave is IN_PROGRESS it auto-completes. The
// recomputation is a count, not an increment, so redundant calls are safe.
func (s *Service) RecomputeProgress(ctx context.Context, id int64) (Wave, error) {
	now := s.clock.Now()
	var wave Wave
	var finished bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		finished = false
		var err error
		wave, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		orders, completed, items, confirmed, err := tx.ChildCounts(ctx, id)
		if err != nil {
			return err
		}
		wave.TotalOrders = orders
		wave.CompletedOrders = completed
		wave.TotalItems = items
		wave.CompletedItems = confirmed

		progress := shared.Progress{Total: orders, Completed: completed}
		if progress.Done() && wave.State == shared.StatusInProgress {
			wave.State = shared.StatusCompleted
			wave.EndedAt = &now
			finished = true
		}
		return tx.Update(ctx, wave)
	})
	if err == nil && finished && s.metrics != nil {
		s.metrics.WaveCompleted()
	}
	return wave, err
}

// Cancel aborts a non-terminal wave.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, actor internalShared.Actor) (Wave, error) {
	if !actor.Valid() {
		return Wave{}, fmt.Errorf("waves: %w: actor required", internalShared.ErrValidation)
	}
	now := s.clock.Now()
	var wave Wave
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wave, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !wave.State.CanCancel() {
			return fmt.Errorf("waves: cannot cancel wave in %s: %w", wave.State, internalShared.ErrInvalidState)
		}
		wave.State = shared.StatusCancelled
		wave.EndedAt = &now
		return tx.Update(ctx, wave)
	})
	if err != nil {
		return Wave{}, err
	}
	s.recordAudit(ctx, actor, "waves:cancel", wave.ID, map[string]any{"reason": reason})
	return wave, nil
}

// Delete removes a wave. Deleting an IN_PROGRESS wave is refused: pickers
// are on the floor working it.
func (s *Service) Delete(ctx context.Context, id int64, actor internalShared.Actor) error {
	if !actor.Valid() {
		return fmt.Errorf("waves: %w: actor required", internalShared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wave, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if wave.State == shared.StatusInProgress {
			return fmt.Errorf("waves: wave %d is in progress: %w", id, internalShared.ErrConflict)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "waves:delete", id, nil)
	return nil
}

// Get returns one wave.
func (s *Service) Get(ctx context.Context, id int64) (Wave, error) {
	return s.repo.Get(ctx, id)
}

// List returns waves and a total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Wave, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actor internalShared.Actor, action string, waveID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "wave",
		EntityID: fmt.Sprintf("%d", waveID),
		Meta:     meta,
	})
}
