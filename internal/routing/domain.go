package routing

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Entry is one stop on a picking route. Entries are created in bulk by the
// builder and consumed in ascending sequence order; regeneration replaces
// the whole route rather than patching it.
type Entry struct {
	ID          int64         `json:"id"`
	WaveID      int64         `json:"wave_id"`
	OperatorID  int64         `json:"operator_id"`
	Seq         int           `json:"seq"`
	TaskID      int64         `json:"task_id"`
	ProductID   int64         `json:"product_id"`
	LocationID  int64         `json:"location_id"`
	Quantity    float64       `json:"quantity"`
	State       shared.Status `json:"state"`
	LegDistance float64       `json:"leg_distance"`
	EstSeconds  float64       `json:"est_seconds"`
	DoneAt      *time.Time    `json:"done_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Stop is a pending pick task with resolved coordinates, the builder input.
type Stop struct {
	TaskID     int64
	ProductID  int64
	LocationID int64
	X          float64
	Y          float64
	Quantity   float64
}

var (
	ErrEntryNotFound = fmt.Errorf("routing: entry %w", internalShared.ErrNotFound)
	// ErrNoEligibleTasks is informational: the wave simply has nothing
	// pending to route.
	ErrNoEligibleTasks = fmt.Errorf("routing: no eligible pending tasks: %w", internalShared.ErrEmptyInput)
)

// Walking speed over grid units, matching the order estimates.
const secondsPerDistanceUnit = 2.0

// plan orders stops nearest-first from the dispatch origin (0,0) and assigns
// sequence numbers from 1. Ties on distance break by ascending task id, so
// the ordering is fully deterministic for a given input set. Leg distance is
// the straight line from the previous stop, or from the origin for the first.
func plan(stops []Stop, waveID, operatorID int64, now time.Time) []Entry {
	ordered := make([]Stop, len(stops))
	copy(ordered, stops)
	sort.SliceStable(ordered, func(i, j int) bool {
		di := math.Hypot(ordered[i].X, ordered[i].Y)
		dj := math.Hypot(ordered[j].X, ordered[j].Y)
		if di != dj {
			return di < dj
		}
		return ordered[i].TaskID < ordered[j].TaskID
	})

	entries := make([]Entry, 0, len(ordered))
	var prevX, prevY float64
	for i, stop := range ordered {
		leg := math.Hypot(stop.X-prevX, stop.Y-prevY)
		entries = append(entries, Entry{
			WaveID:      waveID,
			OperatorID:  operatorID,
			Seq:         i + 1,
			TaskID:      stop.TaskID,
			ProductID:   stop.ProductID,
			LocationID:  stop.LocationID,
			Quantity:    stop.Quantity,
			State:       shared.StatusPending,
			LegDistance: leg,
			EstSeconds:  leg * secondsPerDistanceUnit,
			CreatedAt:   now,
		})
		prevX, prevY = stop.X, stop.Y
	}
	return entries
}
