package orders

import (
	"fmt"
	"time"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Order is one customer request inside a wave. The wave reference is fixed
// at creation and never reassigned.
type Order struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	WaveID         int64           `json:"wave_id"`
	Requester      string          `json:"requester,omitempty"`
	State          shared.Status   `json:"state"`
	Priority       shared.Priority `json:"priority"`
	OperatorID     int64           `json:"operator_id,omitempty"`
	OrderedAt      time.Time       `json:"ordered_at"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	TotalItems     float64         `json:"total_items"`
	CompletedItems float64         `json:"completed_items"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Estimate carries planning figures derived from the order's task locations.
// They are advisory only and never feed allocation decisions.
type Estimate struct {
	OrderID       int64   `json:"order_id"`
	Stops         int     `json:"stops"`
	DistanceUnits float64 `json:"distance_units"`
	Seconds       float64 `json:"seconds"`
}

// TaskStop is a task location snapshot used for estimates.
type TaskStop struct {
	TaskID     int64
	LocationID int64
	X          float64
	Y          float64
	Quantity   float64
}

// ListFilter narrows order listings.
type ListFilter struct {
	WaveID     int64
	State      shared.Status
	OperatorID int64
	Pagination internalShared.Pagination
}

var (
	ErrOrderNotFound   = fmt.Errorf("orders: order %w", internalShared.ErrNotFound)
	ErrDuplicateNumber = fmt.Errorf("orders: order number already exists: %w", internalShared.ErrConflict)
)
