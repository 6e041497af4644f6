package locations

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	a := Location{X: 3, Y: 4}
	b := Location{X: 3, Y: 0}

	require.InDelta(t, 5.0, a.DistanceFromOrigin(), 1e-9)
	require.InDelta(t, 4.0, a.DistanceTo(b), 1e-9)
	require.InDelta(t, a.DistanceTo(b), b.DistanceTo(a), 1e-9)
}
