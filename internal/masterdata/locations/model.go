package locations

import (
	"math"
	"time"
)

// Location represents a physical storage slot on the warehouse floor plan.
// X and Y are grid coordinates measured from the dispatch origin (0,0).
type Location struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Zone      string    `json:"zone"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Capacity  float64   `json:"capacity"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DistanceTo returns the straight-line distance between two locations.
func (l Location) DistanceTo(other Location) float64 {
	return math.Hypot(other.X-l.X, other.Y-l.Y)
}

// DistanceFromOrigin returns the distance from the dispatch origin.
func (l Location) DistanceFromOrigin() float64 {
	return math.Hypot(l.X, l.Y)
}
