package lots

import (
	"fmt"
	"time"

	"github.com/warewave/warewave/internal/shared"
)

// LotState enumerates lot lifecycle states.
type LotState string

const (
	LotAvailable LotState = "AVAILABLE"
	LotReserved  LotState = "RESERVED"
	LotExpired   LotState = "EXPIRED"
	LotWithdrawn LotState = "WITHDRAWN"
)

// Lot is a tracked batch of one product sharing manufacture and expiry
// attributes with a shared available-quantity pool. AvailableQty is mutated
// only through Service.Adjust so every change is ledger-backed.
type Lot struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	ProductID       int64      `json:"product_id"`
	LocationID      int64      `json:"location_id"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	Supplier        string     `json:"supplier,omitempty"`
	InitialQty      float64    `json:"initial_qty"`
	AvailableQty    float64    `json:"available_qty"`
	State           LotState   `json:"state"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsExpired reports whether the lot's expiry date has passed. Pure derived
// query; callers re-derive on every check rather than caching.
func (l Lot) IsExpired(now time.Time) bool {
	return l.ExpiryDate != nil && !now.Before(*l.ExpiryDate)
}

// IsExpiringSoon reports whether the lot expires within the given days.
func (l Lot) IsExpiringSoon(now time.Time, withinDays int) bool {
	if l.ExpiryDate == nil || l.IsExpired(now) {
		return false
	}
	return l.ExpiryDate.Before(now.AddDate(0, 0, withinDays))
}

// Terminal reports whether the lot can no longer serve allocations.
func (l Lot) Terminal() bool {
	return l.State == LotExpired || l.State == LotWithdrawn
}

// SerialState enumerates serialized-unit lifecycle states.
type SerialState string

const (
	SerialAvailable SerialState = "AVAILABLE"
	SerialReserved  SerialState = "RESERVED"
	SerialInUse     SerialState = "IN_USE"
	SerialDefective SerialState = "DEFECTIVE"
	SerialLost      SerialState = "LOST"
)

// serialTransitions lists the legal state moves. A serial is exactly one
// physical item, so its state is the single-unit analogue of lot
// reservation.
var serialTransitions = map[SerialState][]SerialState{
	SerialAvailable: {SerialReserved, SerialInUse, SerialDefective, SerialLost},
	SerialReserved:  {SerialAvailable, SerialInUse, SerialDefective, SerialLost},
	SerialInUse:     {SerialAvailable, SerialDefective, SerialLost},
	SerialDefective: {SerialAvailable, SerialLost},
	SerialLost:      {SerialAvailable},
}

// CanTransition reports whether moving from s to next is legal.
func (s SerialState) CanTransition(next SerialState) bool {
	for _, allowed := range serialTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether the state is known.
func (s SerialState) Valid() bool {
	_, ok := serialTransitions[s]
	return ok
}

// SerialUnit is one individually tracked physical item.
type SerialUnit struct {
	ID         int64       `json:"id"`
	Serial     string      `json:"serial"`
	ProductID  int64       `json:"product_id"`
	LotID      int64       `json:"lot_id,omitempty"`
	LocationID int64       `json:"location_id"`
	State      SerialState `json:"state"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ListFilter scopes lot listings.
type ListFilter struct {
	ProductID  int64
	LocationID int64
	State      LotState
	ActiveOnly bool
	Page       int
	PerPage    int
}

var (
	// ErrDuplicateCode indicates the lot code or serial value already exists.
	ErrDuplicateCode = fmt.Errorf("lots: %w: code already registered", shared.ErrConflict)
	// ErrLotInactive indicates the lot cannot serve the operation.
	ErrLotInactive = fmt.Errorf("lots: %w: lot is expired, withdrawn or inactive", shared.ErrInvalidState)
)
