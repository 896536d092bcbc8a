// Package route turns route and stop definitions into per-direction geometry:
// the closed polyline, its arc-length measure and the stop anchor index.
package route

import (
	"slices"
	"sort"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/shuttle"
)

type Options struct {
	// SnapRadiusMeters is how close a stop must be to its projection for the
	// anchor to use the stop's own coordinate.
	SnapRadiusMeters float64
	// BoundaryEpsilon is the t below which a projection counts as a segment start.
	BoundaryEpsilon float64
}

var DefaultOptions = Options{
	SnapRadiusMeters: 9,
	BoundaryEpsilon:  1e-6,
}

// DirectionNetwork is the geometry of one direction of travel. Measure and
// Anchors are nil when the polyline is degenerate.
type DirectionNetwork struct {
	Name    string
	Coords  []geo.Coordinate
	Measure *geo.Measure
	Anchors *AnchorIndex
	Stops   []shuttle.Stop
}

// Available reports whether the direction can carry motion and telemetry.
func (d *DirectionNetwork) Available() bool {
	return d != nil && d.Measure != nil && d.Measure.Total > 0
}

type Network struct {
	RouteID    string
	directions map[string]*DirectionNetwork
}

// Direction returns the network for a direction tag; unknown tags map to outbound.
func (n *Network) Direction(name string) *DirectionNetwork {
	if n == nil {
		return nil
	}
	return n.directions[shuttle.NormalizeDirection(name)]
}

// Directions returns both directions, outbound first.
func (n *Network) Directions() []*DirectionNetwork {
	if n == nil {
		return nil
	}
	return []*DirectionNetwork{n.directions[shuttle.Outbound], n.directions[shuttle.Inbound]}
}

// Build prepares the outbound and inbound networks. The outbound polyline is
// the direction named outbound, else the first one; inbound falls back to the
// reversed outbound polyline. Degenerate directions are kept but unavailable.
func Build(r shuttle.Route, stops []shuttle.Stop, opts Options) *Network {
	var outbound, inbound *shuttle.Direction
	for i := range r.Directions {
		d := &r.Directions[i]
		switch d.Name {
		case shuttle.Outbound:
			if outbound == nil {
				outbound = d
			}
		case shuttle.Inbound:
			if inbound == nil {
				inbound = d
			}
		}
	}
	if outbound == nil && len(r.Directions) > 0 {
		outbound = &r.Directions[0]
	}
	if outbound == nil {
		outbound = &shuttle.Direction{Name: shuttle.Outbound}
	}
	if inbound == nil || len(inbound.Coordinates) < 2 {
		rev := slices.Clone(outbound.Coordinates)
		slices.Reverse(rev)
		inbound = &shuttle.Direction{Name: shuttle.Inbound, Coordinates: rev}
	}

	outStops := stopsFor(*outbound, shuttle.Outbound, stops)
	inStops := stopsFor(*inbound, shuttle.Inbound, stops)
	if len(inStops) == 0 {
		inStops = outStops
	}

	return &Network{
		RouteID: r.ID,
		directions: map[string]*DirectionNetwork{
			shuttle.Outbound: buildDirection(shuttle.Outbound, outbound.Coordinates, outStops, opts),
			shuttle.Inbound:  buildDirection(shuttle.Inbound, inbound.Coordinates, inStops, opts),
		},
	}
}

func buildDirection(name string, coords []geo.Coordinate, stops []shuttle.Stop, opts Options) *DirectionNetwork {
	d := &DirectionNetwork{Name: name, Coords: coords, Stops: stops}
	m, err := geo.BuildMeasure(coords)
	if err != nil {
		return d
	}
	d.Measure = m
	d.Anchors = BuildAnchors(m, coords, stops, opts)
	return d
}

// stopsFor resolves a direction's stop references, or falls back to stops
// tagged with the direction when the direction lists none.
func stopsFor(d shuttle.Direction, tag string, all []shuttle.Stop) []shuttle.Stop {
	if len(d.Stops) > 0 {
		byID := make(map[string]shuttle.Stop, len(all))
		for _, s := range all {
			if _, dup := byID[s.ID]; !dup {
				byID[s.ID] = s
			}
		}
		refs := slices.Clone(d.Stops)
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].Sequence < refs[j].Sequence })
		out := make([]shuttle.Stop, 0, len(refs))
		for _, ref := range refs {
			if s, ok := byID[ref.ID]; ok {
				out = append(out, s)
			}
		}
		return out
	}
	var out []shuttle.Stop
	for _, s := range all {
		if shuttle.NormalizeDirection(s.Direction) == tag {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}
