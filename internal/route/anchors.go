package route

import (
	"sort"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/shuttle"
)

// Anchor is a stop's fixed location on one direction of a route.
type Anchor struct {
	StopID  string
	Segment int
	T       float64
	Along   float64
	Snap    geo.Coordinate
}

// AnchorIndex groups anchors by segment, sorted by T inside each segment.
type AnchorIndex struct {
	bySegment [][]Anchor
	byStop    map[string]Anchor
	ordered   []Anchor
}

// BuildAnchors projects every stop onto coords. A projection landing at the
// very start of a segment is moved to the end of the previous segment so
// arrival detection never straddles a segment boundary.
func BuildAnchors(m *geo.Measure, coords []geo.Coordinate, stops []shuttle.Stop, opts Options) *AnchorIndex {
	n := len(coords)
	ix := &AnchorIndex{
		bySegment: make([][]Anchor, n),
		byStop:    make(map[string]Anchor, len(stops)),
		ordered:   make([]Anchor, 0, len(stops)),
	}
	for _, s := range stops {
		stopPoint := s.Coordinate()
		proj := geo.Project(coords, stopPoint)

		a := Anchor{
			StopID:  s.ID,
			Segment: proj.Segment,
			T:       proj.T,
			Along:   m.Normalize(m.Along(proj)),
			Snap:    proj.Point,
		}
		if a.T <= opts.BoundaryEpsilon {
			a.Segment = (a.Segment - 1 + n) % n
			a.T = 1
		}
		if geo.Distance(stopPoint, proj.Point) <= opts.SnapRadiusMeters {
			a.Snap = stopPoint
		}

		ix.bySegment[a.Segment] = append(ix.bySegment[a.Segment], a)
		ix.byStop[a.StopID] = a
		ix.ordered = append(ix.ordered, a)
	}
	for _, group := range ix.bySegment {
		sort.SliceStable(group, func(i, j int) bool { return group[i].T < group[j].T })
	}
	return ix
}

// OnSegment returns the anchors on segment i, sorted by T.
func (ix *AnchorIndex) OnSegment(i int) []Anchor {
	if ix == nil || i < 0 || i >= len(ix.bySegment) {
		return nil
	}
	return ix.bySegment[i]
}

// Next returns the first anchor on segment i strictly past progress (beyond eps).
func (ix *AnchorIndex) Next(i int, progress, eps float64) (Anchor, bool) {
	for _, a := range ix.OnSegment(i) {
		if a.T > progress+eps {
			return a, true
		}
	}
	return Anchor{}, false
}

// Along returns the along-distance of the stop's anchor.
func (ix *AnchorIndex) Along(stopID string) (float64, bool) {
	if ix == nil {
		return 0, false
	}
	a, ok := ix.byStop[stopID]
	return a.Along, ok
}

// All returns anchors in stop order.
func (ix *AnchorIndex) All() []Anchor {
	if ix == nil {
		return nil
	}
	return ix.ordered
}

func (ix *AnchorIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.ordered)
}
