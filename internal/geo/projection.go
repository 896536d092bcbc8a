package geo

import "math"

// minSegmentDenominator treats shorter segments as points.
const minSegmentDenominator = 1e-18

// Projection is the nearest point of a closed polyline to some coordinate.
// Dist2 is a squared degree-space distance and is only meaningful when
// comparing projections against the same polyline.
type Projection struct {
	Segment int
	T       float64
	Point   Coordinate
	Dist2   float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ProjectOnSegment projects p onto the segment a->b, clamped to its endpoints.
func ProjectOnSegment(p, a, b Coordinate) (t float64, point Coordinate, dist2 float64) {
	abx := b.Lon - a.Lon
	aby := b.Lat - a.Lat
	denom := abx*abx + aby*aby
	if denom > minSegmentDenominator {
		t = clamp01(((p.Lon-a.Lon)*abx + (p.Lat-a.Lat)*aby) / denom)
	}
	point = Coordinate{Lon: a.Lon + abx*t, Lat: a.Lat + aby*t}
	dx := p.Lon - point.Lon
	dy := p.Lat - point.Lat
	return t, point, dx*dx + dy*dy
}

// Project finds the nearest point to p on the closed polyline coords, including
// the wraparound segment from the last point back to the first. Ties keep the
// lowest segment index. coords must not be empty.
func Project(coords []Coordinate, p Coordinate) Projection {
	best := Projection{Point: coords[0], Dist2: math.Inf(1)}
	n := len(coords)
	for i := 0; i < n; i++ {
		t, point, d2 := ProjectOnSegment(p, coords[i], coords[(i+1)%n])
		if d2 < best.Dist2 {
			best = Projection{Segment: i, T: t, Point: point, Dist2: d2}
		}
	}
	return best
}
