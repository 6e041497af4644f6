package stats

import (
	"fmt"
	"time"

	internalShared "github.com/warewave/warewave/internal/shared"
)

// Window selects the facts to aggregate: one operator, one day, optionally
// scoped to a single wave.
type Window struct {
	OperatorID int64     `json:"operator_id"`
	Day        time.Time `json:"day"`
	WaveID     int64     `json:"wave_id,omitempty"`
}

// Validate checks the window.
func (w Window) Validate() error {
	if w.OperatorID == 0 {
		return fmt.Errorf("stats: %w: operator required", internalShared.ErrValidation)
	}
	if w.Day.IsZero() {
		return fmt.Errorf("stats: %w: day required", internalShared.ErrValidation)
	}
	return nil
}

// Bounds returns the UTC day boundaries.
func (w Window) Bounds() (time.Time, time.Time) {
	day := w.Day.UTC().Truncate(24 * time.Hour)
	return day, day.Add(24 * time.Hour)
}

// Snapshot is the derived picking performance record for a window. It is a
// cache of a computation over orders, tasks and route entries, never edited
// by hand; any stored copy can be discarded and recomputed.
type Snapshot struct {
	Window          Window    `json:"window"`
	TotalOrders     int       `json:"total_orders"`
	CompletedOrders int       `json:"completed_orders"`
	TotalTasks      int       `json:"total_tasks"`
	CompletedTasks  int       `json:"completed_tasks"`
	ConfirmedItems  float64   `json:"confirmed_items"`
	ErrorCount      int       `json:"error_count"`
	AvgSecondsOrder float64   `json:"avg_seconds_per_order"`
	AvgSecondsItem  float64   `json:"avg_seconds_per_item"`
	DistanceUnits   float64   `json:"distance_units"`
	AccuracyPct     float64   `json:"accuracy_pct"`
	ItemsPerHour    float64   `json:"items_per_hour"`
	ComputedAt      time.Time `json:"computed_at"`
}

// OrderFact is one order's slice of the window.
type OrderFact struct {
	ID        int64
	State     string
	StartedAt *time.Time
	EndedAt   *time.Time
	Items     float64
	Confirmed float64
}

// TaskFact is one task's slice of the window.
type TaskFact struct {
	ID        int64
	State     string
	Requested float64
	Picked    float64
	Confirmed float64
	StartedAt *time.Time
	EndedAt   *time.Time
}
