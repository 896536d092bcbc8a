package routeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/shuttle"
)

func TestDefault(t *testing.T) {
	r, stops := Default()
	assert.Equal(t, "campus-loop", r.ID)
	require.Len(t, r.Directions, 1)
	assert.Len(t, r.Directions[0].Coordinates, 8)
	require.Len(t, stops, 5)
	assert.Equal(t, "Sala Phra Kiao", stops[0].DisplayName())

	net := route.Build(r, stops, route.DefaultOptions)
	for _, d := range net.Directions() {
		require.True(t, d.Available(), d.Name)
		assert.Equal(t, 5, d.Anchors.Len(), d.Name)
	}
}

func TestParsePolyline(t *testing.T) {
	square := []geo.Coordinate{
		{Lon: 100.5, Lat: 13.7},
		{Lon: 100.51, Lat: 13.7},
		{Lon: 100.51, Lat: 13.71},
		{Lon: 100.5, Lat: 13.71},
	}
	doc := fmt.Sprintf(`
route:
  id: poly
  directions:
    - direction: inbound
      polyline: %q
stops:
  - id: a
    latitude: 13.7
    longitude: 100.505
  - id: b
    latitude: 13.71
    longitude: 100.505
    direction: inbound
`, EncodePolyline(square))

	r, stops, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, r.Directions, 1)
	got := r.Directions[0].Coordinates
	require.Len(t, got, len(square))
	for i := range square {
		assert.InDelta(t, square[i].Lon, got[i].Lon, 1e-5)
		assert.InDelta(t, square[i].Lat, got[i].Lat, 1e-5)
	}

	require.Len(t, stops, 2)
	assert.Equal(t, 1, stops[0].Sequence, "missing sequence follows file order")
	assert.Equal(t, 2, stops[1].Sequence)
	assert.Equal(t, shuttle.Outbound, stops[0].Direction)
	assert.Equal(t, shuttle.Inbound, stops[1].Direction)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id", "route:\n  directions:\n    - direction: outbound\n      coordinates: [[0, 0], [1, 1]]\n"},
		{"no directions", "route:\n  id: x\n"},
		{"unknown direction", "route:\n  id: x\n  directions:\n    - direction: sideways\n      coordinates: [[0, 0], [1, 1]]\n"},
		{"no geometry", "route:\n  id: x\n  directions:\n    - direction: outbound\n"},
		{"bad pair", "route:\n  id: x\n  directions:\n    - direction: outbound\n      coordinates: [[0, 0, 0], [1, 1, 1]]\n"},
		{"single point", "route:\n  id: x\n  directions:\n    - direction: outbound\n      coordinates: [[0, 0]]\n"},
		{"bad latitude", "route:\n  id: x\n  directions:\n    - direction: outbound\n      coordinates: [[0, 0], [1, 1]]\nstops:\n  - id: s\n    latitude: 95\n    longitude: 0\n"},
		{"stop without id", "route:\n  id: x\n  directions:\n    - direction: outbound\n      coordinates: [[0, 0], [1, 1]]\nstops:\n  - latitude: 1\n    longitude: 1\n"},
		{"not yaml", "route: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "route.yml")
	require.NoError(t, os.WriteFile(p, defaultRoute, 0o644))
	r, stops, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "campus-loop", r.ID)
	assert.Len(t, stops, 5)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
