package trace

import (
	"fmt"
	"time"

	"github.com/warewave/warewave/internal/shared"
)

// EventKind enumerates genealogical events. It covers every ledger movement
// kind plus events with no quantity effect.
type EventKind string

const (
	EventEntry       EventKind = "ENTRY"
	EventExit        EventKind = "EXIT"
	EventTransfer    EventKind = "TRANSFER"
	EventAdjustment  EventKind = "ADJUSTMENT"
	EventReserve     EventKind = "RESERVE"
	EventRelease     EventKind = "RELEASE"
	EventInspection  EventKind = "INSPECTION"
	EventStateChange EventKind = "STATE_CHANGE"
)

// Valid reports whether the kind is known.
func (k EventKind) Valid() bool {
	switch k {
	case EventEntry, EventExit, EventTransfer, EventAdjustment, EventReserve, EventRelease, EventInspection, EventStateChange:
		return true
	}
	return false
}

// Event is one immutable genealogy record. Same logical event as a ledger
// entry but a separate log with different consumers: the ledger reconciles
// quantities, the trace answers recall and audit questions.
type Event struct {
	ID             int64          `json:"id"`
	EventID        string         `json:"event_id"`
	ProductID      int64          `json:"product_id"`
	LotID          int64          `json:"lot_id,omitempty"`
	SerialID       int64          `json:"serial_id,omitempty"`
	Kind           EventKind      `json:"kind"`
	OriginLocation int64          `json:"origin_location_id,omitempty"`
	DestLocation   int64          `json:"dest_location_id,omitempty"`
	Quantity       float64        `json:"quantity,omitempty"`
	ActorID        int64          `json:"actor_id"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Filter scopes timeline reads.
type Filter struct {
	ProductID int64
	LotID     int64
	SerialID  int64
	Kind      EventKind
	From      time.Time
	To        time.Time
	Limit     int
}

// ErrUnknownKind rejects event kinds outside the enum.
var ErrUnknownKind = fmt.Errorf("trace: %w: unknown event kind", shared.ErrValidation)
