package geo

import (
	"errors"
	"math"
	"sort"
)

// ErrDegenerateRoute is returned for polylines that cannot carry telemetry:
// fewer than two points or zero total length.
var ErrDegenerateRoute = errors.New("degenerate route polyline")

// Measure holds arc lengths of a closed polyline in meters.
// SegmentLengths[i] is the length of segment i -> (i+1) mod n and
// Cumulative[i] is the arc length from point 0 to point i.
type Measure struct {
	SegmentLengths []float64
	Cumulative     []float64
	Total          float64
}

// BuildMeasure precomputes the closed-route arc length tables for coords.
func BuildMeasure(coords []Coordinate) (*Measure, error) {
	n := len(coords)
	if n < 2 {
		return nil, ErrDegenerateRoute
	}
	m := &Measure{
		SegmentLengths: make([]float64, n),
		Cumulative:     make([]float64, n),
	}
	total := 0.0
	for i := 0; i < n; i++ {
		m.Cumulative[i] = total
		l := Distance(coords[i], coords[(i+1)%n])
		m.SegmentLengths[i] = l
		total += l
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, ErrDegenerateRoute
	}
	m.Total = total
	return m, nil
}

// Along converts a projection into meters from the route's distance-zero point.
func (m *Measure) Along(p Projection) float64 {
	if p.Segment < 0 || p.Segment >= len(m.Cumulative) {
		return 0
	}
	return m.Cumulative[p.Segment] + p.T*m.SegmentLengths[p.Segment]
}

// Normalize folds an along-distance into [0, Total).
func (m *Measure) Normalize(along float64) float64 {
	return ForwardDistance(m.Total, 0, along)
}

// ForwardDistance is the distance travelled moving strictly forward from
// fromAlong to toAlong on a loop of the given total length, in [0, total).
// It returns 0 when total is not positive.
func ForwardDistance(total, fromAlong, toAlong float64) float64 {
	if !(total > 0) {
		return 0
	}
	d := math.Mod(toAlong-fromAlong, total)
	if d < 0 {
		d += total
	}
	if d >= total {
		d = 0
	}
	return d
}

// Placement is a point on the route recovered from an along-distance.
type Placement struct {
	Coordinate Coordinate
	Heading    float64
	Segment    int
	T          float64
}

// PositionAt is the inverse of Along: it finds the segment containing along by
// binary search over the cumulative table and interpolates inside it.
func (m *Measure) PositionAt(coords []Coordinate, along float64) Placement {
	n := len(coords)
	d := m.Normalize(along)
	i := sort.Search(n, func(k int) bool { return m.Cumulative[k] > d }) - 1
	if i < 0 {
		i = 0
	}
	t := 0.0
	if l := m.SegmentLengths[i]; l > 0 {
		t = clamp01((d - m.Cumulative[i]) / l)
	}
	a, b := coords[i], coords[(i+1)%n]
	return Placement{
		Coordinate: Lerp(a, b, t),
		Heading:    Bearing(a, b),
		Segment:    i,
		T:          t,
	}
}
