package waves

import (
	"fmt"
	"time"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Wave groups orders for a single picking run through the warehouse.
type Wave struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	State           shared.Status   `json:"state"`
	Priority        shared.Priority `json:"priority"`
	Zone            string          `json:"zone,omitempty"`
	OperatorID      int64           `json:"operator_id,omitempty"`
	Deadline        time.Time       `json:"deadline"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	TotalOrders     int             `json:"total_orders"`
	CompletedOrders int             `json:"completed_orders"`
	TotalItems      float64         `json:"total_items"`
	CompletedItems  float64         `json:"completed_items"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ListFilter narrows wave listings.
type ListFilter struct {
	State      shared.Status
	Priority   shared.Priority
	Zone       string
	OperatorID int64
	Pagination internalShared.Pagination
}

var (
	ErrWaveNotFound = fmt.Errorf("waves: wave %w", internalShared.ErrNotFound)
)
