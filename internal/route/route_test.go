package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/shuttle"
)

func squareCoords() []geo.Coordinate {
	return []geo.Coordinate{
		{Lon: 0, Lat: 0},
		{Lon: 0.001, Lat: 0},
		{Lon: 0.001, Lat: 0.001},
		{Lon: 0, Lat: 0.001},
	}
}

func stop(id string, lon, lat float64, seq int, dir string) shuttle.Stop {
	return shuttle.Stop{ID: id, NameEN: id, Longitude: lon, Latitude: lat, Sequence: seq, Direction: dir}
}

func TestBuildAnchors(t *testing.T) {
	coords := squareCoords()
	m, err := geo.BuildMeasure(coords)
	require.NoError(t, err)

	stops := []shuttle.Stop{
		stop("mid", 0.0005, 0, 1, shuttle.Outbound),
		stop("corner", 0.001, 0, 2, shuttle.Outbound),
		stop("origin", 0, 0, 3, shuttle.Outbound),
		stop("far", 0.0005, 0.0002, 4, shuttle.Outbound),
		stop("near", 0.0003, -0.00005, 5, shuttle.Outbound),
	}
	ix := BuildAnchors(m, coords, stops, DefaultOptions)
	require.Equal(t, len(stops), ix.Len())

	byID := map[string]Anchor{}
	for _, a := range ix.All() {
		byID[a.StopID] = a
	}

	assert.Equal(t, 0, byID["mid"].Segment)
	assert.InDelta(t, 0.5, byID["mid"].T, 1e-9)
	assert.InDelta(t, m.SegmentLengths[0]/2, byID["mid"].Along, 1e-6)

	assert.Equal(t, 0, byID["corner"].Segment)
	assert.InDelta(t, 1, byID["corner"].T, 1e-9)

	// A projection at the start of segment 0 moves to the end of segment 3.
	assert.Equal(t, 3, byID["origin"].Segment)
	assert.Equal(t, 1.0, byID["origin"].T)
	assert.InDelta(t, 0, byID["origin"].Along, 1e-6)

	// ~22 m off the route: glued to the projected point.
	assert.InDelta(t, 0, byID["far"].Snap.Lat, 1e-12)
	// ~5.5 m off the route: keeps the stop's own coordinate.
	assert.Equal(t, stops[4].Coordinate(), byID["near"].Snap)

	seg0 := ix.OnSegment(0)
	for i := 1; i < len(seg0); i++ {
		assert.LessOrEqual(t, seg0[i-1].T, seg0[i].T)
	}

	along, ok := ix.Along("mid")
	assert.True(t, ok)
	assert.InDelta(t, byID["mid"].Along, along, 1e-9)
	_, ok = ix.Along("missing")
	assert.False(t, ok)
}

func TestAnchorIndexNext(t *testing.T) {
	coords := squareCoords()
	m, err := geo.BuildMeasure(coords)
	require.NoError(t, err)
	ix := BuildAnchors(m, coords, []shuttle.Stop{
		stop("b", 0.0007, 0, 2, shuttle.Outbound),
		stop("a", 0.0002, 0, 1, shuttle.Outbound),
	}, DefaultOptions)

	a, ok := ix.Next(0, 0, 1e-6)
	require.True(t, ok)
	assert.Equal(t, "a", a.StopID)

	a, ok = ix.Next(0, 0.2, 1e-6)
	require.True(t, ok)
	assert.Equal(t, "b", a.StopID)

	_, ok = ix.Next(0, 0.7, 1e-6)
	assert.False(t, ok)
	_, ok = ix.Next(9, 0, 1e-6)
	assert.False(t, ok)
}

func TestBuildNetworkFallbacks(t *testing.T) {
	r := shuttle.Route{
		ID: "loop",
		Directions: []shuttle.Direction{
			{Name: shuttle.Outbound, Coordinates: squareCoords()},
		},
	}
	stops := []shuttle.Stop{
		stop("s2", 0.001, 0.0005, 2, shuttle.Outbound),
		stop("s1", 0.0005, 0, 1, ""),
	}
	n := Build(r, stops, DefaultOptions)

	out := n.Direction(shuttle.Outbound)
	require.True(t, out.Available())
	assert.Equal(t, []string{"s1", "s2"}, []string{out.Stops[0].ID, out.Stops[1].ID})

	in := n.Direction(shuttle.Inbound)
	require.True(t, in.Available())
	assert.Equal(t, squareCoords()[3], in.Coords[0], "inbound is the reversed outbound polyline")
	assert.Len(t, in.Stops, 2, "inbound reuses outbound stops")
	assert.InDelta(t, out.Measure.Total, in.Measure.Total, 1e-6)

	assert.Same(t, out, n.Direction("sideways"))
}

func TestBuildNetworkStopRefs(t *testing.T) {
	r := shuttle.Route{
		Directions: []shuttle.Direction{
			{Name: shuttle.Inbound, Coordinates: squareCoords(), Stops: []shuttle.StopRef{{ID: "b", Sequence: 2}, {ID: "a", Sequence: 1}, {ID: "ghost", Sequence: 3}}},
			{Name: shuttle.Outbound, Coordinates: squareCoords()},
		},
	}
	stops := []shuttle.Stop{
		stop("a", 0.0005, 0, 1, shuttle.Outbound),
		stop("b", 0.001, 0.0005, 2, shuttle.Outbound),
	}
	n := Build(r, stops, DefaultOptions)
	in := n.Direction(shuttle.Inbound)
	require.Len(t, in.Stops, 2)
	assert.Equal(t, "a", in.Stops[0].ID)
	assert.Equal(t, "b", in.Stops[1].ID)
}

func TestBuildNetworkDegenerate(t *testing.T) {
	r := shuttle.Route{Directions: []shuttle.Direction{
		{Name: shuttle.Outbound, Coordinates: []geo.Coordinate{{Lon: 1, Lat: 1}}},
	}}
	n := Build(r, []shuttle.Stop{stop("a", 1, 1, 1, shuttle.Outbound)}, DefaultOptions)
	for _, d := range n.Directions() {
		assert.False(t, d.Available())
		assert.Nil(t, d.Anchors)
	}

	empty := Build(shuttle.Route{}, nil, DefaultOptions)
	assert.False(t, empty.Direction(shuttle.Outbound).Available())
}
