// Package motion moves simulated shuttles along their route at cruise speed,
// dwelling for a random number of ticks at every stop they reach.
package motion

import (
	"math"
	"math/rand"
	"time"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/shuttle"
)

type State int

const (
	Cruising State = iota
	Dwelling
)

func (s State) String() string {
	if s == Dwelling {
		return "dwelling"
	}
	return "cruising"
}

// MotionState is where a vehicle is on its polyline and what it is doing.
// Progress is the fraction of segment Segment already covered.
type MotionState struct {
	Segment        int
	Progress       float64
	SpeedMps       float64
	BaseSpeedMps   float64
	State          State
	TicksRemaining int
}

type Vehicle struct {
	ID        string
	Label     string
	Direction string
	Motion    MotionState
	Position  geo.Coordinate
	Heading   float64
	Status    shuttle.Status
	// AtStop is the stop a dwelling vehicle is held at.
	AtStop string
}

// FleetEntry places one vehicle at a fraction of its direction's polyline.
type FleetEntry struct {
	ID            string
	Label         string
	Direction     string
	StartFraction float64
}

var DefaultFleet = []FleetEntry{
	{ID: "vehicle-1", Label: "BU-01", Direction: shuttle.Outbound, StartFraction: 0},
	{ID: "vehicle-2", Label: "BU-02", Direction: shuttle.Outbound, StartFraction: 1.0 / 3},
	{ID: "vehicle-3", Label: "BU-03", Direction: shuttle.Inbound, StartFraction: 2.0 / 3},
}

type Options struct {
	CruiseSpeedMps float64
	// SpeedJitterMps is the upper bound of the uniform jitter added to each base speed.
	SpeedJitterMps float64
	// DwellMinTicks and DwellMaxTicks bound the dwell drawn at every stop, [min, max).
	DwellMinTicks int
	DwellMaxTicks int
	// BoundaryEpsilon is the progress slack below which an anchor counts as passed.
	BoundaryEpsilon float64
}

var DefaultOptions = Options{
	CruiseSpeedMps:  8.5,
	SpeedJitterMps:  2.5,
	DwellMinTicks:   300,
	DwellMaxTicks:   600,
	BoundaryEpsilon: 1e-6,
}

// Simulator owns the motion state of a fleet. It is not safe for concurrent
// use; the tick driver serialises every call.
type Simulator struct {
	net      *route.Network
	opts     Options
	rng      *rand.Rand
	vehicles []*Vehicle
	skipped  int
}

// New creates the fleet. Entries whose direction has no usable geometry are
// skipped and counted in Skipped.
func New(net *route.Network, fleet []FleetEntry, opts Options, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Simulator{net: net, opts: opts, rng: rng}
	for _, fe := range fleet {
		dir := net.Direction(fe.Direction)
		if !dir.Available() {
			s.skipped++
			continue
		}
		n := len(dir.Coords)
		seg := int(math.Floor(float64(n)*fe.StartFraction)) % n
		if seg < 0 {
			seg += n
		}
		base := opts.CruiseSpeedMps
		if opts.SpeedJitterMps > 0 {
			base += rng.Float64() * opts.SpeedJitterMps
		}
		a, b := dir.Coords[seg], dir.Coords[(seg+1)%n]
		s.vehicles = append(s.vehicles, &Vehicle{
			ID:        fe.ID,
			Label:     fe.Label,
			Direction: dir.Name,
			Motion: MotionState{
				Segment:      seg,
				SpeedMps:     base,
				BaseSpeedMps: base,
				State:        Cruising,
			},
			Position: a,
			Heading:  geo.Bearing(a, b),
			Status:   shuttle.StatusFresh,
		})
	}
	return s
}

func (s *Simulator) Skipped() int { return s.skipped }

// Vehicles exposes the live vehicle states.
func (s *Simulator) Vehicles() []*Vehicle { return s.vehicles }

// Dwelling counts vehicles currently held at a stop.
func (s *Simulator) Dwelling() int {
	n := 0
	for _, v := range s.vehicles {
		if v.Motion.State == Dwelling {
			n++
		}
	}
	return n
}

// Step advances every vehicle by one tick of length dt.
func (s *Simulator) Step(dt time.Duration) {
	for _, v := range s.vehicles {
		s.step(v, dt)
	}
}

func (s *Simulator) step(v *Vehicle, dt time.Duration) {
	dir := s.net.Direction(v.Direction)
	if !dir.Available() {
		return
	}
	ms := &v.Motion

	if ms.State == Dwelling {
		ms.TicksRemaining--
		ms.SpeedMps = 0
		v.Status = shuttle.StatusDelayed
		if ms.TicksRemaining <= 0 {
			ms.TicksRemaining = 0
			ms.State = Cruising
			ms.SpeedMps = ms.BaseSpeedMps
			v.Status = shuttle.StatusFresh
			v.AtStop = ""
		}
		return
	}

	ms.SpeedMps = ms.BaseSpeedMps
	v.Status = shuttle.StatusFresh

	coords := dir.Coords
	n := len(coords)
	remaining := ms.SpeedMps * dt.Seconds()
	for remaining > 0 {
		segLen := math.Max(dir.Measure.SegmentLengths[ms.Segment], 1e-9)

		if a, ok := dir.Anchors.Next(ms.Segment, ms.Progress, s.opts.BoundaryEpsilon); ok {
			if (a.T-ms.Progress)*segLen <= remaining+1e-9 {
				s.arrive(v, a, coords)
				return
			}
		}

		left := (1 - ms.Progress) * segLen
		if remaining < left {
			ms.Progress += remaining / segLen
			break
		}
		remaining -= left
		ms.Segment = (ms.Segment + 1) % n
		ms.Progress = 0
	}

	a, b := coords[ms.Segment], coords[(ms.Segment+1)%n]
	v.Position = geo.Lerp(a, b, ms.Progress)
	v.Heading = geo.Bearing(a, b)
}

func (s *Simulator) arrive(v *Vehicle, a route.Anchor, coords []geo.Coordinate) {
	ms := &v.Motion
	n := len(coords)
	ms.Progress = a.T
	ms.SpeedMps = 0
	ms.State = Dwelling
	ms.TicksRemaining = s.dwellTicks()
	v.Position = a.Snap
	v.Heading = geo.Bearing(coords[ms.Segment], coords[(ms.Segment+1)%n])
	v.Status = shuttle.StatusDelayed
	v.AtStop = a.StopID
}

func (s *Simulator) dwellTicks() int {
	lo, hi := s.opts.DwellMinTicks, s.opts.DwellMaxTicks
	if hi <= lo {
		return max(lo, 1)
	}
	return lo + s.rng.Intn(hi-lo)
}

// Positions returns the current frame of every vehicle.
func (s *Simulator) Positions() []shuttle.Position {
	out := make([]shuttle.Position, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, shuttle.Position{
			VehicleID: v.ID,
			Label:     v.Label,
			Direction: v.Direction,
			Point:     v.Position,
			Heading:   v.Heading,
			SpeedMps:  v.Motion.SpeedMps,
			Status:    v.Status,
		})
	}
	return out
}

// Snapshot converts the current frame into telemetry input stamped at now.
func (s *Simulator) Snapshot(now time.Time) []shuttle.Vehicle {
	ps := s.Positions()
	out := make([]shuttle.Vehicle, len(ps))
	for i, p := range ps {
		out[i] = p.Vehicle(now)
	}
	return out
}
