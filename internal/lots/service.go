package lots

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/warewave/warewave/internal/inventory"
	"github.com/warewave/warewave/internal/shared"
	"github.com/warewave/warewave/internal/trace"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, id int64) (Lot, error)
	GetLotByCode(ctx context.Context, code string) (Lot, error)
	List(ctx context.Context, filter ListFilter) ([]Lot, int, error)
	ListExpiring(ctx context.Context, before time.Time) ([]Lot, error)
	GetSerial(ctx context.Context, id int64) (SerialUnit, error)
	GetSerialByValue(ctx context.Context, serial string) (SerialUnit, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the lot and serial registries. Adjust is the only code path
// that mutates a lot's available quantity, so every change carries exactly
// one ledger entry and one trace event.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	clock shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{repo: repo, audit: audit, clock: clock}
}

// CreateLotInput describes a new lot intake.
type CreateLotInput struct {
	Code            string
	ProductID       int64
	LocationID      int64
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
	Supplier        string
	InitialQty      float64
	Actor           shared.Actor
}

// CreateLot registers a lot and posts its intake ENTRY.
func (s *Service) CreateLot(ctx context.Context, input CreateLotInput) (Lot, error) {
	code := shared.NormalizeCode(input.Code)
	if code == "" {
		return Lot{}, fmt.Errorf("lots: %w: code required", shared.ErrValidation)
	}
	if input.ProductID == 0 || input.LocationID == 0 {
		return Lot{}, fmt.Errorf("lots: %w: product and location required", shared.ErrValidation)
	}
	if input.InitialQty <= 0 {
		return Lot{}, fmt.Errorf("lots: %w: initial quantity must be positive", shared.ErrValidation)
	}
	if !input.Actor.Valid() {
		return Lot{}, fmt.Errorf("lots: %w: actor required", shared.ErrValidation)
	}
	if input.ExpiryDate != nil && !input.ExpiryDate.After(s.clock.Now()) {
		return Lot{}, fmt.Errorf("lots: %w: expiry date must be in the future", shared.ErrValidation)
	}

	now := s.clock.Now()
	lot := Lot{
		Code:            code,
		ProductID:       input.ProductID,
		LocationID:      input.LocationID,
		ManufactureDate: input.ManufactureDate,
		ExpiryDate:      input.ExpiryDate,
		Supplier:        input.Supplier,
		InitialQty:      input.InitialQty,
		AvailableQty:    input.InitialQty,
		State:           LotAvailable,
		Active:          true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLot(ctx, lot)
		if err != nil {
			return err
		}
		lot.ID = id
		if _, err := tx.AppendLedger(ctx, inventory.LedgerEntry{
			ProductID:  lot.ProductID,
			LocationID: lot.LocationID,
			LotID:      lot.ID,
			Kind:       inventory.MovementEntry,
			Quantity:   lot.InitialQty,
			QtyBefore:  0,
			QtyAfter:   lot.InitialQty,
			Reason:     "lot intake",
			RefDoc:     lot.Code,
			ActorID:    input.Actor.ID,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		event, err := trace.Build(trace.RecordInput{
			ProductID:    lot.ProductID,
			LotID:        lot.ID,
			Kind:         trace.EventEntry,
			DestLocation: lot.LocationID,
			Quantity:     lot.InitialQty,
			Actor:        input.Actor,
			Payload:      map[string]any{"supplier": lot.Supplier},
		}, s.clock)
		if err != nil {
			return err
		}
		_, err = tx.RecordTrace(ctx, event)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.recordAudit(ctx, input.Actor, "lots:create", lot.ID, map[string]any{"code": lot.Code, "qty": lot.InitialQty})
	lot.CreatedAt = now
	lot.UpdatedAt = now
	return lot, nil
}

// Reserve earmarks quantity against the lot.
func (s *Service) Reserve(ctx context.Context, lotID int64, qty float64, actor shared.Actor) (Lot, error) {
	if qty <= 0 {
		return Lot{}, fmt.Errorf("lots: %w: quantity must be positive", shared.ErrValidation)
	}
	return s.adjust(ctx, lotID, -qty, inventory.MovementReserve, trace.EventReserve, "reserve", actor)
}

// Release returns previously reserved quantity. The result is not clamped
// at the initial quantity: legitimate entries can also increase supply.
func (s *Service) Release(ctx context.Context, lotID int64, qty float64, actor shared.Actor) (Lot, error) {
	if qty <= 0 {
		return Lot{}, fmt.Errorf("lots: %w: quantity must be positive", shared.ErrValidation)
	}
	return s.adjust(ctx, lotID, qty, inventory.MovementRelease, trace.EventRelease, "release", actor)
}

// Adjust applies a signed manual correction.
func (s *Service) Adjust(ctx context.Context, lotID int64, delta float64, reason string, actor shared.Actor) (Lot, error) {
	if math.Abs(delta) < 1e-9 {
		return Lot{}, fmt.Errorf("lots: %w: delta must be non-zero", shared.ErrValidation)
	}
	if reason == "" {
		return Lot{}, fmt.Errorf("lots: %w: adjustment reason required", shared.ErrValidation)
	}
	return s.adjust(ctx, lotID, delta, inventory.MovementAdjustment, trace.EventAdjustment, reason, actor)
}

// adjust is the sole mutator of available_qty. Every call writes exactly
// one ledger entry and one trace event in the same transaction.
func (s *Service) adjust(ctx context.Context, lotID int64, delta float64, kind inventory.MovementKind, eventKind trace.EventKind, reason string, actor shared.Actor) (Lot, error) {
	if !actor.Valid() {
		return Lot{}, fmt.Errorf("lots: %w: actor required", shared.ErrValidation)
	}
	now := s.clock.Now()
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, err = tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.Terminal() || !lot.Active {
			return ErrLotInactive
		}
		before := lot.AvailableQty
		after := before + delta
		if after < -1e-9 {
			return fmt.Errorf("lots: lot %s: %w", lot.Code, shared.ErrInsufficientStock)
		}
		if math.Abs(after) < 1e-9 {
			after = 0
		}
		if err := tx.UpdateLotQuantity(ctx, lot.ID, after); err != nil {
			return err
		}
		lot.AvailableQty = after

		// Fully reserved lots flip to RESERVED so planners can see the pool
		// is exhausted; any release returns them to AVAILABLE.
		if kind == inventory.MovementReserve && after == 0 && lot.State == LotAvailable {
			if err := tx.UpdateLotState(ctx, lot.ID, LotReserved); err != nil {
				return err
			}
			lot.State = LotReserved
		}
		if kind == inventory.MovementRelease && lot.State == LotReserved {
			if err := tx.UpdateLotState(ctx, lot.ID, LotAvailable); err != nil {
				return err
			}
			lot.State = LotAvailable
		}

		if _, err := tx.AppendLedger(ctx, inventory.LedgerEntry{
			ProductID:  lot.ProductID,
			LocationID: lot.LocationID,
			LotID:      lot.ID,
			Kind:       kind,
			Quantity:   math.Abs(delta),
			QtyBefore:  before,
			QtyAfter:   after,
			Reason:     reason,
			RefDoc:     lot.Code,
			ActorID:    actor.ID,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		event, err := trace.Build(trace.RecordInput{
			ProductID:      lot.ProductID,
			LotID:          lot.ID,
			Kind:           eventKind,
			OriginLocation: lot.LocationID,
			Quantity:       math.Abs(delta),
			Actor:          actor,
			Payload:        map[string]any{"reason": reason},
		}, s.clock)
		if err != nil {
			return err
		}
		_, err = tx.RecordTrace(ctx, event)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.recordAudit(ctx, actor, fmt.Sprintf("lots:%s", kind), lot.ID, map[string]any{"delta": delta, "reason": reason})
	return lot, nil
}

// Withdraw retires a lot: remaining availability is zeroed through an
// ADJUSTMENT entry and the state becomes WITHDRAWN.
func (s *Service) Withdraw(ctx context.Context, lotID int64, reason string, actor shared.Actor) (Lot, error) {
	if !actor.Valid() {
		return Lot{}, fmt.Errorf("lots: %w: actor required", shared.ErrValidation)
	}
	if reason == "" {
		return Lot{}, fmt.Errorf("lots: %w: withdrawal reason required", shared.ErrValidation)
	}
	now := s.clock.Now()
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, err = tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.State == LotWithdrawn {
			return fmt.Errorf("lots: lot %s already withdrawn: %w", lot.Code, shared.ErrInvalidState)
		}
		if lot.AvailableQty > 0 {
			before := lot.AvailableQty
			if err := tx.UpdateLotQuantity(ctx, lot.ID, 0); err != nil {
				return err
			}
			if _, err := tx.AppendLedger(ctx, inventory.LedgerEntry{
				ProductID:  lot.ProductID,
				LocationID: lot.LocationID,
				LotID:      lot.ID,
				Kind:       inventory.MovementAdjustment,
				Quantity:   before,
				QtyBefore:  before,
				QtyAfter:   0,
				Reason:     reason,
				RefDoc:     lot.Code,
				ActorID:    actor.ID,
				OccurredAt: now,
			}); err != nil {
				return err
			}
			lot.AvailableQty = 0
		}
		if err := tx.UpdateLotState(ctx, lot.ID, LotWithdrawn); err != nil {
			return err
		}
		lot.State = LotWithdrawn
		event, err := trace.Build(trace.RecordInput{
			ProductID:      lot.ProductID,
			LotID:          lot.ID,
			Kind:           trace.EventStateChange,
			OriginLocation: lot.LocationID,
			Actor:          actor,
			Payload:        map[string]any{"state": string(LotWithdrawn), "reason": reason},
		}, s.clock)
		if err != nil {
			return err
		}
		_, err = tx.RecordTrace(ctx, event)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.recordAudit(ctx, actor, "lots:withdraw", lot.ID, map[string]any{"reason": reason})
	return lot, nil
}

// Get returns one lot.
func (s *Service) Get(ctx context.Context, id int64) (Lot, error) {
	return s.repo.GetLot(ctx, id)
}

// GetByCode returns one lot by normalized code.
func (s *Service) GetByCode(ctx context.Context, code string) (Lot, error) {
	return s.repo.GetLotByCode(ctx, shared.NormalizeCode(code))
}

// List returns lots and a total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Lot, int, error) {
	return s.repo.List(ctx, filter)
}

// ListExpiring re-derives the expiring set on each call; nothing is cached.
func (s *Service) ListExpiring(ctx context.Context, withinDays int) ([]Lot, error) {
	if withinDays <= 0 {
		withinDays = 30
	}
	return s.repo.ListExpiring(ctx, s.clock.Now().AddDate(0, 0, withinDays))
}

// MarkExpired transitions lots past their expiry date to EXPIRED and records
// a trace event per lot. Returns how many lots were transitioned.
func (s *Service) MarkExpired(ctx context.Context, actor shared.Actor) (int, error) {
	if !actor.Valid() {
		return 0, fmt.Errorf("lots: %w: actor required", shared.ErrValidation)
	}
	now := s.clock.Now()
	expired, err := s.repo.ListExpiring(ctx, now)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, candidate := range expired {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			lot, err := tx.GetLotForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// Re-check under lock; another worker may have raced us.
			if lot.Terminal() || !lot.IsExpired(now) {
				return nil
			}
			if err := tx.UpdateLotState(ctx, lot.ID, LotExpired); err != nil {
				return err
			}
			event, err := trace.Build(trace.RecordInput{
				ProductID:      lot.ProductID,
				LotID:          lot.ID,
				Kind:           trace.EventStateChange,
				OriginLocation: lot.LocationID,
				Actor:          actor,
				Payload:        map[string]any{"state": string(LotExpired)},
			}, s.clock)
			if err != nil {
				return err
			}
			if _, err := tx.RecordTrace(ctx, event); err != nil {
				return err
			}
			marked++
			return nil
		})
		if err != nil {
			return marked, err
		}
	}
	return marked, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, lotID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "lot",
		EntityID: fmt.Sprintf("%d", lotID),
		Meta:     meta,
	})
}
