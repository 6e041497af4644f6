package inventory

import (
	"fmt"
	"time"

	"github.com/warewave/warewave/internal/shared"
)

// MovementKind enumerates supported inventory quantity changes.
type MovementKind string

const (
	// MovementEntry represents inbound stock (receiving, returns).
	MovementEntry MovementKind = "ENTRY"
	// MovementExit represents outbound stock (pick confirmation, shipping).
	MovementExit MovementKind = "EXIT"
	// MovementTransfer moves stock between locations.
	MovementTransfer MovementKind = "TRANSFER"
	// MovementAdjustment is a signed manual correction.
	MovementAdjustment MovementKind = "ADJUSTMENT"
	// MovementReserve earmarks lot quantity against future consumption.
	MovementReserve MovementKind = "RESERVE"
	// MovementRelease returns previously reserved lot quantity.
	MovementRelease MovementKind = "RELEASE"
)

// Direction returns the sign a movement applies to on-hand quantity.
// Adjustments carry their own sign in the quantity itself.
func (k MovementKind) Direction() float64 {
	switch k {
	case MovementEntry, MovementRelease:
		return 1
	case MovementExit, MovementReserve:
		return -1
	default:
		return 0
	}
}

// Valid reports whether the kind is one of the known movements.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementEntry, MovementExit, MovementTransfer, MovementAdjustment, MovementReserve, MovementRelease:
		return true
	}
	return false
}

// Position is the materialised on-hand quantity for one inventory scope.
// LotID and SerialID are zero when the position is not lot or serial bound.
// The ledger history must always reproduce OnHand by replay.
type Position struct {
	ProductID  int64
	LocationID int64
	LotID      int64
	SerialID   int64
	OnHand     float64
	UpdatedAt  time.Time
}

// LedgerEntry is one immutable quantity change. Entries are inserted and
// read, never updated or deleted.
type LedgerEntry struct {
	ID         int64
	ProductID  int64
	LocationID int64
	LotID      int64
	SerialID   int64
	Kind       MovementKind
	Quantity   float64
	QtyBefore  float64
	QtyAfter   float64
	Reason     string
	RefDoc     string
	ActorID    int64
	OccurredAt time.Time
}

// MovementInput describes a single quantity change to post.
type MovementInput struct {
	Kind           MovementKind
	ProductID      int64
	LocationID     int64
	LotID          int64
	SerialID       int64
	Quantity       float64
	Reason         string
	RefDoc         string
	Actor          shared.Actor
	IdempotencyKey string
}

// TransferInput moves quantity between two locations as coupled EXIT-side
// and ENTRY-side ledger entries inside one transaction.
type TransferInput struct {
	ProductID   int64
	LotID       int64
	SerialID    int64
	SrcLocation int64
	DstLocation int64
	Quantity    float64
	Reason      string
	RefDoc      string
	Actor       shared.Actor
}

// LedgerFilter scopes ledger reads.
type LedgerFilter struct {
	ProductID  int64
	LocationID int64
	LotID      int64
	SerialID   int64
	From       time.Time
	To         time.Time
	Limit      int
}

// AvailabilityQuery identifies one inventory scope.
type AvailabilityQuery struct {
	ProductID  int64
	LocationID int64
	LotID      int64
	SerialID   int64
}

// ReplayResult compares a materialised position against its ledger history.
type ReplayResult struct {
	OnHand     float64
	Replayed   float64
	Consistent bool
	Entries    int
}

var (
	// ErrInvalidQuantity rejects zero or wrongly signed quantities.
	ErrInvalidQuantity = fmt.Errorf("inventory: %w: quantity must be positive", shared.ErrValidation)
	// ErrUnknownMovement rejects movement kinds outside the enum.
	ErrUnknownMovement = fmt.Errorf("inventory: %w: unknown movement kind", shared.ErrValidation)
	// ErrNegativeStock signals the change would drive on-hand below zero.
	ErrNegativeStock = fmt.Errorf("inventory: %w", shared.ErrInsufficientStock)
)
