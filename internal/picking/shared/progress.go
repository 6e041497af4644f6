package shared

// Progress is a completed-of-total rollup. Rollups are recomputed counts,
// never increments, so redundant recomputation is harmless.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Done reports whether every child is complete. An empty set is never done:
// a wave with no orders must not auto-complete.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Completed >= p.Total
}

// Percent returns completion as 0..100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}
