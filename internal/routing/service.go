package routing

import (
	"context"
	"fmt"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListRoute(ctx context.Context, waveID, operatorID int64) ([]Entry, error)
	PendingStops(ctx context.Context, waveID int64) ([]Stop, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort counts route builds for monitoring.
type MetricsPort interface {
	RouteGenerated()
}

// Service builds and consumes picking routes.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	metrics     MetricsPort
	idempotency *internalShared.IdempotencyStore
	clock       internalShared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *internalShared.IdempotencyStore, clock internalShared.Clock) *Service {
	if clock == nil {
		clock = internalShared.SystemClock{}
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, clock: clock}
}

// WithMetrics attaches build counters and returns the service.
func (s *Service) WithMetrics(m MetricsPort) *Service {
	s.metrics = m
	return s
}

// GenerateInput describes a route build request.
type GenerateInput struct {
	WaveID         int64
	OperatorID     int64
	IdempotencyKey string
	Actor          internalShared.Actor
}

// Generate plans a fresh route over the wave's pending tasks and replaces
// any prior route for the same wave and operator. An empty eligible set is
// reported, not fatal: nothing is deleted in that case.
func (s *Service) Generate(ctx context.Context, input GenerateInput) ([]Entry, error) {
	if input.WaveID == 0 || input.OperatorID == 0 {
		return nil, fmt.Errorf("routing: %w: wave and operator required", internalShared.ErrValidation)
	}
	if !input.Actor.Valid() {
		return nil, fmt.Errorf("routing: %w: actor required", internalShared.ErrValidation)
	}
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "routing"); err != nil {
			return nil, err
		}
	}

	stops, err := s.repo.PendingStops(ctx, input.WaveID)
	if err != nil {
		return nil, err
	}
	if len(stops) == 0 {
		return nil, ErrNoEligibleTasks
	}

	entries := plan(stops, input.WaveID, input.OperatorID, s.clock.Now())
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteRoute(ctx, input.WaveID, input.OperatorID); err != nil {
			return err
		}
		return tx.InsertEntries(ctx, entries)
	})
	if err != nil {
		if s.idempotency != nil && input.IdempotencyKey != "" {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RouteGenerated()
	}
	s.recordAudit(ctx, input.Actor, "routing:generate", input.WaveID, map[string]any{
		"operator_id": input.OperatorID, "entries": len(entries),
	})
	return entries, nil
}

// CompleteEntry marks a stop done. Stops are consumed in sequence order: an
// earlier open stop on the same route blocks completion.
func (s *Service) CompleteEntry(ctx context.Context, id int64, actor internalShared.Actor) (Entry, error) {
	return s.consume(ctx, id, shared.StatusCompleted, actor)
}

// CancelEntry skips a stop, also in sequence order.
func (s *Service) CancelEntry(ctx context.Context, id int64, actor internalShared.Actor) (Entry, error) {
	return s.consume(ctx, id, shared.StatusCancelled, actor)
}

func (s *Service) consume(ctx context.Context, id int64, next shared.Status, actor internalShared.Actor) (Entry, error) {
	if !actor.Valid() {
		return Entry{}, fmt.Errorf("routing: %w: actor required", internalShared.ErrValidation)
	}
	now := s.clock.Now()
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.State.Terminal() {
			return fmt.Errorf("routing: entry %d already %s: %w", entry.ID, entry.State, internalShared.ErrInvalidState)
		}
		open, err := tx.OpenSeqBefore(ctx, entry)
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("routing: %d earlier stop(s) still open before seq %d: %w",
				open, entry.Seq, internalShared.ErrConflict)
		}
		entry.State = next
		entry.DoneAt = &now
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Route returns the current route for a wave, optionally one operator's.
func (s *Service) Route(ctx context.Context, waveID, operatorID int64) ([]Entry, error) {
	if waveID == 0 {
		return nil, fmt.Errorf("routing: %w: wave required", internalShared.ErrValidation)
	}
	return s.repo.ListRoute(ctx, waveID, operatorID)
}

func (s *Service) recordAudit(ctx context.Context, actor internalShared.Actor, action string, waveID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "route",
		EntityID: fmt.Sprintf("%d", waveID),
		Meta:     meta,
	})
}
