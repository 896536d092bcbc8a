package motion

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/shuttle"
)

func square() []geo.Coordinate {
	return []geo.Coordinate{
		{Lon: 0, Lat: 0},
		{Lon: 0.001, Lat: 0},
		{Lon: 0.001, Lat: 0.001},
		{Lon: 0, Lat: 0.001},
	}
}

func network(stops ...shuttle.Stop) *route.Network {
	r := shuttle.Route{Directions: []shuttle.Direction{{Name: shuttle.Outbound, Coordinates: square()}}}
	return route.Build(r, stops, route.DefaultOptions)
}

func fixedOptions() Options {
	o := DefaultOptions
	o.SpeedJitterMps = 0
	return o
}

func single(net *route.Network) *Simulator {
	return New(net, []FleetEntry{{ID: "v1", Label: "BU-01", Direction: shuttle.Outbound}}, fixedOptions(), rand.New(rand.NewSource(1)))
}

func TestStepArrivesAtStop(t *testing.T) {
	mid := shuttle.Stop{ID: "mid", Longitude: 0.0005, Latitude: 0, Sequence: 1, Direction: shuttle.Outbound}
	sim := single(network(mid))
	v := sim.Vehicles()[0]
	require.Equal(t, 0, v.Motion.Segment)
	require.Equal(t, 0.0, v.Motion.Progress)

	// 85 m budget, the stop is ~55.6 m ahead.
	sim.Step(10 * time.Second)

	assert.Equal(t, Dwelling, v.Motion.State)
	assert.Equal(t, 0.0, v.Motion.SpeedMps)
	assert.InDelta(t, 0.5, v.Motion.Progress, 1e-9)
	assert.Equal(t, mid.Coordinate(), v.Position)
	assert.Equal(t, shuttle.StatusDelayed, v.Status)
	assert.Equal(t, "mid", v.AtStop)
	assert.GreaterOrEqual(t, v.Motion.TicksRemaining, 300)
	assert.Less(t, v.Motion.TicksRemaining, 600)
	assert.Equal(t, 1, sim.Dwelling())

	// Held in place while dwelling.
	sim.Step(10 * time.Second)
	assert.Equal(t, mid.Coordinate(), v.Position)
	assert.Equal(t, shuttle.StatusDelayed, v.Status)
}

func TestDwellEnds(t *testing.T) {
	mid := shuttle.Stop{ID: "mid", Longitude: 0.0005, Latitude: 0, Sequence: 1, Direction: shuttle.Outbound}
	sim := single(network(mid))
	v := sim.Vehicles()[0]
	sim.Step(10 * time.Second)
	require.Equal(t, Dwelling, v.Motion.State)

	v.Motion.TicksRemaining = 1
	sim.Step(time.Second)
	assert.Equal(t, Cruising, v.Motion.State)
	assert.Equal(t, v.Motion.BaseSpeedMps, v.Motion.SpeedMps)
	assert.Equal(t, shuttle.StatusFresh, v.Status)
	assert.Empty(t, v.AtStop)

	// The stop just served is not hit again.
	sim.Step(time.Second)
	assert.Equal(t, Cruising, v.Motion.State)
	assert.Greater(t, v.Motion.Progress, 0.5)
}

func TestStepCruisesAcrossSegments(t *testing.T) {
	sim := single(network())
	v := sim.Vehicles()[0]
	seg := geo.Distance(square()[0], square()[1])

	sim.Step(time.Second)
	assert.InDelta(t, 8.5/seg, v.Motion.Progress, 1e-9)
	assert.InDelta(t, 90, v.Heading, 1e-6)
	assert.Equal(t, Cruising, v.Motion.State)

	// 150 m more runs past the first corner.
	v.Motion.BaseSpeedMps = 150
	sim.Step(time.Second)
	assert.Equal(t, 1, v.Motion.Segment)
	assert.InDelta(t, (158.5-seg)/geo.Distance(square()[1], square()[2]), v.Motion.Progress, 1e-9)
	assert.InDelta(t, 0, v.Heading, 1e-6)
	assert.InDelta(t, 0.001, v.Position.Lon, 1e-12)
}

func TestStepStopsAtSegmentEnd(t *testing.T) {
	corner := shuttle.Stop{ID: "corner", Longitude: 0.001, Latitude: 0, Sequence: 1, Direction: shuttle.Outbound}
	sim := single(network(corner))
	v := sim.Vehicles()[0]

	sim.Step(30 * time.Second)
	assert.Equal(t, Dwelling, v.Motion.State)
	assert.Equal(t, 0, v.Motion.Segment)
	assert.Equal(t, 1.0, v.Motion.Progress)

	v.Motion.TicksRemaining = 1
	sim.Step(time.Second)
	sim.Step(time.Second)
	assert.Equal(t, 1, v.Motion.Segment)
	assert.Equal(t, Cruising, v.Motion.State)
}

func TestNewStaggersFleet(t *testing.T) {
	sim := New(network(), DefaultFleet, DefaultOptions, rand.New(rand.NewSource(7)))
	vs := sim.Vehicles()
	require.Len(t, vs, 3)
	assert.Equal(t, 0, vs[0].Motion.Segment)
	assert.Equal(t, 1, vs[1].Motion.Segment)
	assert.Equal(t, 2, vs[2].Motion.Segment)
	assert.Equal(t, shuttle.Inbound, vs[2].Direction)
	for _, v := range vs {
		assert.GreaterOrEqual(t, v.Motion.BaseSpeedMps, DefaultOptions.CruiseSpeedMps)
		assert.Less(t, v.Motion.BaseSpeedMps, DefaultOptions.CruiseSpeedMps+DefaultOptions.SpeedJitterMps)
	}

	ps := sim.Positions()
	require.Len(t, ps, 3)
	assert.Equal(t, "BU-02", ps[1].Label)
	snap := sim.Snapshot(time.Unix(10, 0))
	assert.Equal(t, time.Unix(10, 0), snap[0].LastUpdated)
	assert.Equal(t, "vehicle-1", snap[0].ID)
}

func TestNewSkipsUnavailableDirections(t *testing.T) {
	flat := route.Build(shuttle.Route{Directions: []shuttle.Direction{{
		Name:        shuttle.Outbound,
		Coordinates: []geo.Coordinate{{Lon: 1, Lat: 1}},
	}}}, nil, route.DefaultOptions)
	sim := New(flat, DefaultFleet, DefaultOptions, nil)
	assert.Empty(t, sim.Vehicles())
	assert.Equal(t, 3, sim.Skipped())
	sim.Step(time.Second)
	assert.Empty(t, sim.Positions())
}
