package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square() []Coordinate {
	return []Coordinate{
		{Lon: 0, Lat: 0},
		{Lon: 0.001, Lat: 0},
		{Lon: 0.001, Lat: 0.001},
		{Lon: 0, Lat: 0.001},
	}
}

func TestForwardDistance(t *testing.T) {
	tests := []struct {
		name           string
		total, from, to float64
		want           float64
	}{
		{name: "no wrap", total: 100, from: 10, to: 40, want: 30},
		{name: "wraparound", total: 100, from: 90, to: 10, want: 20},
		{name: "same point", total: 100, from: 0, to: 0, want: 0},
		{name: "same point mid loop", total: 100, from: 42.5, to: 42.5, want: 0},
		{name: "to equals total", total: 100, from: 0, to: 100, want: 0},
		{name: "zero total", total: 0, from: 5, to: 10, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ForwardDistance(tt.total, tt.from, tt.to), 1e-9)
		})
	}
}

func TestForwardDistanceRange(t *testing.T) {
	const total = 37.5
	for a := -100.0; a <= 100; a += 3.7 {
		for b := -100.0; b <= 100; b += 4.1 {
			d := ForwardDistance(total, a, b)
			assert.GreaterOrEqual(t, d, 0.0)
			assert.Less(t, d, total)
		}
	}
}

func TestBuildMeasure(t *testing.T) {
	coords := square()
	m, err := BuildMeasure(coords)
	require.NoError(t, err)

	assert.Len(t, m.SegmentLengths, len(coords))
	assert.Len(t, m.Cumulative, len(coords))
	assert.Greater(t, m.Total, 0.0)
	assert.Equal(t, 0.0, m.Cumulative[0])
	assert.InDelta(t, m.Cumulative[3]+m.SegmentLengths[3], m.Total, 1e-9)
	for i := 1; i < len(coords); i++ {
		assert.GreaterOrEqual(t, m.Cumulative[i], m.Cumulative[i-1])
	}
}

func TestBuildMeasureDegenerate(t *testing.T) {
	_, err := BuildMeasure([]Coordinate{{Lon: 1, Lat: 1}})
	assert.ErrorIs(t, err, ErrDegenerateRoute)

	_, err = BuildMeasure([]Coordinate{{Lon: 1, Lat: 1}, {Lon: 1, Lat: 1}})
	assert.ErrorIs(t, err, ErrDegenerateRoute)
}

func TestProjectOwnVertices(t *testing.T) {
	coords := square()
	for _, c := range coords {
		p := Project(coords, c)
		assert.InDelta(t, 0, p.Dist2, 1e-18)
	}
}

func TestProjectClampsAndWraps(t *testing.T) {
	coords := square()

	// Left of the closing segment (3 -> 0).
	p := Project(coords, Coordinate{Lon: -0.0005, Lat: 0.0005})
	assert.Equal(t, 3, p.Segment)
	assert.InDelta(t, 0.5, p.T, 1e-9)
	assert.InDelta(t, 0, p.Point.Lon, 1e-12)

	// Below the first segment, past its start.
	p = Project(coords, Coordinate{Lon: -0.0001, Lat: -0.001})
	assert.Equal(t, 0, p.Segment)
	assert.Equal(t, 0.0, p.T)
}

func TestProjectDegenerateSegment(t *testing.T) {
	coords := []Coordinate{{Lon: 1, Lat: 1}, {Lon: 1, Lat: 1}, {Lon: 2, Lat: 1}}
	tt, point, _ := ProjectOnSegment(Coordinate{Lon: 5, Lat: 5}, coords[0], coords[1])
	assert.Equal(t, 0.0, tt)
	assert.Equal(t, coords[0], point)

	p := Project(coords, Coordinate{Lon: 1, Lat: 1})
	assert.Equal(t, 0, p.Segment, "ties resolve to the lowest segment index")
}

func TestAlongAndPositionAtRoundTrip(t *testing.T) {
	coords := square()
	m, err := BuildMeasure(coords)
	require.NoError(t, err)

	for _, frac := range []float64{0, 0.1, 0.25, 0.5, 0.74, 0.99} {
		along := frac * m.Total
		pl := m.PositionAt(coords, along)
		back := m.Along(Project(coords, pl.Coordinate))
		assert.InDelta(t, along, back, 0.01, "frac %v", frac)
	}

	// Negative and overflowing inputs wrap.
	assert.Equal(t, m.PositionAt(coords, 10).Segment, m.PositionAt(coords, 10+m.Total).Segment)
	assert.InDelta(t, m.PositionAt(coords, -10).T, m.PositionAt(coords, m.Total-10).T, 1e-9)
}

func TestBearing(t *testing.T) {
	o := Coordinate{}
	assert.InDelta(t, 0, Bearing(o, Coordinate{Lat: 1}), 1e-9)
	assert.InDelta(t, 90, Bearing(o, Coordinate{Lon: 1}), 1e-9)
	assert.InDelta(t, 180, Bearing(o, Coordinate{Lat: -1}), 1e-9)
	assert.InDelta(t, 270, Bearing(o, Coordinate{Lon: -1}), 1e-9)
	assert.Equal(t, 0.0, NormalizeHeading(360))
	assert.InDelta(t, 350, NormalizeHeading(-10), 1e-9)
}

func TestDistance(t *testing.T) {
	// One millidegree of latitude is about 111 m.
	d := Distance(Coordinate{}, Coordinate{Lat: 0.001})
	assert.InDelta(t, 111.19, d, 0.05)
	assert.False(t, math.IsNaN(Distance(Coordinate{}, Coordinate{})))
}
