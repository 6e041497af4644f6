package tasks

import (
	"fmt"
	"time"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Task is one order line: pick RequestedQty of a product at a location,
// optionally from a specific lot or a specific serialized unit.
//
// PickedQty is what the operator physically scanned; ConfirmedQty is what
// was accepted after verification. Only the confirmed quantity ever touches
// inventory, and only at completion.
type Task struct {
	ID           int64         `json:"id"`
	OrderID      int64         `json:"order_id"`
	ProductID    int64         `json:"product_id"`
	LotID        int64         `json:"lot_id,omitempty"`
	SerialID     int64         `json:"serial_id,omitempty"`
	LocationID   int64         `json:"location_id"`
	RequestedQty float64       `json:"requested_qty"`
	PickedQty    float64       `json:"picked_qty"`
	ConfirmedQty float64       `json:"confirmed_qty"`
	State        shared.Status `json:"state"`
	OperatorID   int64         `json:"operator_id,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ListFilter narrows task listings.
type ListFilter struct {
	OrderID    int64
	WaveID     int64
	State      shared.Status
	OperatorID int64
	Pagination internalShared.Pagination
}

var (
	ErrTaskNotFound = fmt.Errorf("tasks: task %w", internalShared.ErrNotFound)
)
