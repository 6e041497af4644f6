package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/warewave/warewave/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPosition(ctx context.Context, q AvailabilityQuery) (Position, error)
	ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	SumLedger(ctx context.Context, q AvailabilityQuery) (float64, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates position mutations and ledger appends.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	clock       shared.Clock
}

// NewService builds Service. Clock is injected so posting stays
// deterministic under test.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, clock: clock}
}

// Post applies one movement: atomic check-and-update of the position plus
// exactly one ledger entry, in a single transaction.
func (s *Service) Post(ctx context.Context, input MovementInput) (LedgerEntry, error) {
	if !input.Kind.Valid() {
		return LedgerEntry{}, ErrUnknownMovement
	}
	if input.Kind == MovementTransfer {
		return LedgerEntry{}, fmt.Errorf("inventory: %w: use Transfer for location moves", shared.ErrValidation)
	}
	if input.ProductID == 0 || input.LocationID == 0 {
		return LedgerEntry{}, fmt.Errorf("inventory: %w: product and location required", shared.ErrValidation)
	}
	if input.Kind == MovementAdjustment {
		if math.Abs(input.Quantity) < 1e-9 {
			return LedgerEntry{}, ErrInvalidQuantity
		}
	} else if input.Quantity <= 0 {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	if !input.Actor.Valid() {
		return LedgerEntry{}, fmt.Errorf("inventory: %w: actor required", shared.ErrValidation)
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "inventory"); err != nil {
			return LedgerEntry{}, err
		}
		insertedKey = true
	}

	entry, err := s.apply(ctx, input)
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return LedgerEntry{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.Actor.ID,
			Action:   fmt.Sprintf("inventory:%s", input.Kind),
			Entity:   "inventory_ledger",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"product_id":  input.ProductID,
				"location_id": input.LocationID,
				"lot_id":      input.LotID,
				"qty":         input.Quantity,
				"reason":      input.Reason,
			},
		})
	}
	return entry, nil
}

// Transfer posts the outbound and inbound halves of a location move inside
// one transaction so a half-applied transfer cannot exist.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (LedgerEntry, LedgerEntry, error) {
	if input.ProductID == 0 || input.SrcLocation == 0 || input.DstLocation == 0 {
		return LedgerEntry{}, LedgerEntry{}, fmt.Errorf("inventory: %w: product and both locations required", shared.ErrValidation)
	}
	if input.SrcLocation == input.DstLocation {
		return LedgerEntry{}, LedgerEntry{}, fmt.Errorf("inventory: %w: source and destination must differ", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return LedgerEntry{}, LedgerEntry{}, ErrInvalidQuantity
	}
	if !input.Actor.Valid() {
		return LedgerEntry{}, LedgerEntry{}, fmt.Errorf("inventory: %w: actor required", shared.ErrValidation)
	}

	now := s.clock.Now()
	var out, in LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.applyInTx(ctx, tx, movement{
			kind: MovementTransfer, product: input.ProductID, location: input.SrcLocation,
			lot: input.LotID, serial: input.SerialID, delta: -input.Quantity, qty: input.Quantity,
			reason: fmt.Sprintf("transfer to location %d: %s", input.DstLocation, input.Reason),
			refDoc: input.RefDoc, actor: input.Actor.ID, at: now,
		})
		if err != nil {
			return err
		}
		in, err = s.applyInTx(ctx, tx, movement{
			kind: MovementTransfer, product: input.ProductID, location: input.DstLocation,
			lot: input.LotID, serial: input.SerialID, delta: input.Quantity, qty: input.Quantity,
			reason: fmt.Sprintf("transfer from location %d: %s", input.SrcLocation, input.Reason),
			refDoc: input.RefDoc, actor: input.Actor.ID, at: now,
		})
		return err
	})
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	return out, in, nil
}

// Availability returns the on-hand quantity for one scope. Missing positions
// read as zero.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (float64, error) {
	pos, err := s.repo.GetPosition(ctx, q)
	if err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return pos.OnHand, nil
}

// Ledger lists ledger entries.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	return s.repo.ListLedger(ctx, filter)
}

// Replay recomputes a position from its ledger history and compares against
// the materialised value. The two must always agree.
func (s *Service) Replay(ctx context.Context, q AvailabilityQuery) (ReplayResult, error) {
	replayed, count, err := s.repo.SumLedger(ctx, q)
	if err != nil {
		return ReplayResult{}, err
	}
	onHand := 0.0
	pos, err := s.repo.GetPosition(ctx, q)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return ReplayResult{}, err
	}
	if err == nil {
		onHand = pos.OnHand
	}
	return ReplayResult{
		OnHand:     onHand,
		Replayed:   replayed,
		Consistent: math.Abs(onHand-replayed) < 1e-6,
		Entries:    count,
	}, nil
}

type movement struct {
	kind     MovementKind
	product  int64
	location int64
	lot      int64
	serial   int64
	delta    float64
	qty      float64
	reason   string
	refDoc   string
	actor    int64
	at       time.Time
}

func (s *Service) applyInTx(ctx context.Context, tx TxRepository, m movement) (LedgerEntry, error) {
	q := AvailabilityQuery{ProductID: m.product, LocationID: m.location, LotID: m.lot, SerialID: m.serial}
	pos, err := tx.GetPositionForUpdate(ctx, q)
	if errors.Is(err, ErrPositionNotFound) {
		// First movement on this scope. Seed the row from the movement
		// itself rather than whatever the repository returned with the
		// error.
		pos = Position{ProductID: m.product, LocationID: m.location, LotID: m.lot, SerialID: m.serial}
	} else if err != nil {
		return LedgerEntry{}, err
	}
	before := pos.OnHand
	after := before + m.delta
	if after < -1e-9 {
		return LedgerEntry{}, ErrNegativeStock
	}
	if math.Abs(after) < 1e-9 {
		after = 0
	}
	entry := LedgerEntry{
		ProductID:  m.product,
		LocationID: m.location,
		LotID:      m.lot,
		SerialID:   m.serial,
		Kind:       m.kind,
		Quantity:   m.qty,
		QtyBefore:  before,
		QtyAfter:   after,
		Reason:     m.reason,
		RefDoc:     m.refDoc,
		ActorID:    m.actor,
		OccurredAt: m.at,
	}
	id, err := tx.AppendEntry(ctx, entry)
	if err != nil {
		return LedgerEntry{}, err
	}
	entry.ID = id
	pos.OnHand = after
	if err := tx.UpsertPosition(ctx, pos); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

func (s *Service) apply(ctx context.Context, input MovementInput) (LedgerEntry, error) {
	delta := input.Quantity
	if input.Kind != MovementAdjustment {
		delta = input.Kind.Direction() * input.Quantity
	}
	now := s.clock.Now()
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.applyInTx(ctx, tx, movement{
			kind: input.Kind, product: input.ProductID, location: input.LocationID,
			lot: input.LotID, serial: input.SerialID, delta: delta, qty: math.Abs(input.Quantity),
			reason: input.Reason, refDoc: input.RefDoc, actor: input.Actor.ID, at: now,
		})
		return err
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}
