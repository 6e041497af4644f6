package shared

// Status is the lifecycle shared by waves, orders and pick tasks. The flow
// is strictly forward; CANCELLED is reachable from either non-terminal state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanStart reports whether a start transition is legal.
func (s Status) CanStart() bool {
	return s == StatusPending
}

// CanCancel reports whether a cancel transition is legal.
func (s Status) CanCancel() bool {
	return !s.Terminal()
}
