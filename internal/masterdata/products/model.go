package products

import (
	"time"
)

// Product represents a catalog item
type Product struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Unit          string    `json:"unit"`
	TracksLots    bool      `json:"tracks_lots"`
	TracksSerials bool      `json:"tracks_serials"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
