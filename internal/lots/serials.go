package lots

import (
	"context"
	"fmt"

	"github.com/warewave/warewave/internal/inventory"
	"github.com/warewave/warewave/internal/shared"
	"github.com/warewave/warewave/internal/trace"
)

// RegisterSerialInput describes a new serialized unit intake.
type RegisterSerialInput struct {
	Serial     string
	ProductID  int64
	LotID      int64
	LocationID int64
	Actor      shared.Actor
}

// RegisterSerial registers one physical unit and posts its intake ENTRY.
func (s *Service) RegisterSerial(ctx context.Context, input RegisterSerialInput) (SerialUnit, error) {
	serial := shared.NormalizeCode(input.Serial)
	if serial == "" {
		return SerialUnit{}, fmt.Errorf("lots: %w: serial value required", shared.ErrValidation)
	}
	if input.ProductID == 0 || input.LocationID == 0 {
		return SerialUnit{}, fmt.Errorf("lots: %w: product and location required", shared.ErrValidation)
	}
	if !input.Actor.Valid() {
		return SerialUnit{}, fmt.Errorf("lots: %w: actor required", shared.ErrValidation)
	}

	now := s.clock.Now()
	unit := SerialUnit{
		Serial:     serial,
		ProductID:  input.ProductID,
		LotID:      input.LotID,
		LocationID: input.LocationID,
		State:      SerialAvailable,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSerial(ctx, unit)
		if err != nil {
			return err
		}
		unit.ID = id
		if _, err := tx.AppendLedger(ctx, inventory.LedgerEntry{
			ProductID:  unit.ProductID,
			LocationID: unit.LocationID,
			LotID:      unit.LotID,
			SerialID:   unit.ID,
			Kind:       inventory.MovementEntry,
			Quantity:   1,
			QtyBefore:  0,
			QtyAfter:   1,
			Reason:     "serial intake",
			RefDoc:     unit.Serial,
			ActorID:    input.Actor.ID,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		event, err := trace.Build(trace.RecordInput{
			ProductID:    unit.ProductID,
			LotID:        unit.LotID,
			SerialID:     unit.ID,
			Kind:         trace.EventEntry,
			DestLocation: unit.LocationID,
			Quantity:     1,
			Actor:        input.Actor,
		}, s.clock)
		if err != nil {
			return err
		}
		_, err = tx.RecordTrace(ctx, event)
		return err
	})
	if err != nil {
		return SerialUnit{}, err
	}
	s.recordAudit(ctx, input.Actor, "lots:serial_register", unit.ID, map[string]any{"serial": unit.Serial})
	unit.CreatedAt = now
	unit.UpdatedAt = now
	return unit, nil
}

// SetSerialState moves a serial through its lifecycle, recording a
// STATE_CHANGE trace event. Illegal transitions fail with InvalidState.
func (s *Service) SetSerialState(ctx context.Context, serialID int64, next SerialState, actor shared.Actor) (SerialUnit, error) {
	if !next.Valid() {
		return SerialUnit{}, fmt.Errorf("lots: %w: unknown serial state", shared.ErrValidation)
	}
	if !actor.Valid() {
		return SerialUnit{}, fmt.Errorf("lots: %w: actor required", shared.ErrValidation)
	}
	var unit SerialUnit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		unit, err = tx.GetSerialForUpdate(ctx, serialID)
		if err != nil {
			return err
		}
		if unit.State == next {
			return nil
		}
		if !unit.State.CanTransition(next) {
			return fmt.Errorf("lots: serial %s cannot move %s -> %s: %w", unit.Serial, unit.State, next, shared.ErrInvalidState)
		}
		prev := unit.State
		if err := tx.UpdateSerial(ctx, unit.ID, next, unit.LocationID); err != nil {
			return err
		}
		unit.State = next
		event, err := trace.Build(trace.RecordInput{
			ProductID:      unit.ProductID,
			LotID:          unit.LotID,
			SerialID:       unit.ID,
			Kind:           trace.EventStateChange,
			OriginLocation: unit.LocationID,
			Actor:          actor,
			Payload:        map[string]any{"from": string(prev), "to": string(next)},
		}, s.clock)
		if err != nil {
			return err
		}
		_, err = tx.RecordTrace(ctx, event)
		return err
	})
	if err != nil {
		return SerialUnit{}, err
	}
	return unit, nil
}

// MoveSerial relocates a serial unit, shifting its single-unit position
// between locations and recording a TRANSFER trace event.
func (s *Service) MoveSerial(ctx context.Context, serialID, toLocation int64, actor shared.Actor) (SerialUnit, error) {
	if toLocation == 0 {
		return SerialUnit{}, fmt.Errorf("lots: %w: destination location required", shared.ErrValidation)
	}
	if !actor.Valid() {
		return SerialUnit{}, fmt.Errorf("lots: %w: actor required", shared.ErrValidation)
	}
	now := s.clock.Now()
	var unit SerialUnit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		unit, err = tx.GetSerialForUpdate(ctx, serialID)
		if err != nil {
			return err
		}
		if unit.LocationID == toLocation {
			return fmt.Errorf("lots: serial already at location %d: %w", toLocation, shared.ErrValidation)
		}
		if unit.State == SerialLost {
			return fmt.Errorf("lots: cannot move a LOST serial: %w", shared.ErrInvalidState)
		}
		from := unit.LocationID
		if err := tx.UpdateSerial(ctx, unit.ID, unit.State, toLocation); err != nil {
			return err
		}
		unit.LocationID = toLocation

		for _, leg := range []inventory.LedgerEntry{
			{ProductID: unit.ProductID, LocationID: from, LotID: unit.LotID, SerialID: unit.ID,
				Kind: inventory.MovementTransfer, Quantity: 1, QtyBefore: 1, QtyAfter: 0,
				Reason: fmt.Sprintf("serial move to location %d", toLocation), RefDoc: unit.Serial,
				ActorID: actor.ID, OccurredAt: now},
			{ProductID: unit.ProductID, LocationID: toLocation, LotID: unit.LotID, SerialID: unit.ID,
				Kind: inventory.MovementTransfer, Quantity: 1, QtyBefore: 0, QtyAfter: 1,
				Reason: fmt.Sprintf("serial move from location %d", from), RefDoc: unit.Serial,
				ActorID: actor.ID, OccurredAt: now},
		} {
			if _, err := tx.AppendLedger(ctx, leg); err != nil {
				return err
			}
		}
		event, err := trace.Build(trace.RecordInput{
			ProductID:      unit.ProductID,
			LotID:          unit.LotID,
			SerialID:       unit.ID,
			Kind:           trace.EventTransfer,
			OriginLocation: from,
			DestLocation:   toLocation,
			Quantity:       1,
			Actor:          actor,
		}, s.clock)
		if err != nil {
			return err
		}
		_, err = tx.RecordTrace(ctx, event)
		return err
	})
	if err != nil {
		return SerialUnit{}, err
	}
	return unit, nil
}

// GetSerialUnit returns one serial unit.
func (s *Service) GetSerialUnit(ctx context.Context, id int64) (SerialUnit, error) {
	return s.repo.GetSerial(ctx, id)
}

// GetSerialByValue returns one serial unit by normalized value.
func (s *Service) GetSerialByValue(ctx context.Context, serial string) (SerialUnit, error) {
	return s.repo.GetSerialByValue(ctx, shared.NormalizeCode(serial))
}
