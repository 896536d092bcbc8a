package replay

import (
	"time"

	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/shuttle"
)

// Metrics receives playback events. A nil Metrics is ignored.
type Metrics interface {
	GapSkipped(d time.Duration)
	Looped()
}

type SessionOptions struct {
	Rate   float64
	MaxGap time.Duration
}

var DefaultSessionOptions = SessionOptions{
	Rate:   1,
	MaxGap: 10 * time.Second,
}

type player struct {
	track  Track
	dir    *route.DirectionNetwork
	cursor *Cursor
	last   shuttle.Position
	ok     bool
}

// Session replays a set of tracks on one route network. It is not safe for
// concurrent use; the tick driver serialises every call.
type Session struct {
	opts    SessionOptions
	metrics Metrics
	players []*player
}

// NewSession staggers the tracks evenly around the loop. Tracks without
// samples or whose direction has no geometry never move and are left out of
// the emitted frames.
func NewSession(net *route.Network, tracks []Track, opts SessionOptions, m Metrics) *Session {
	s := &Session{opts: opts, metrics: m}
	for i, tr := range tracks {
		dir := net.Direction(tr.Direction)
		frac := 0.0
		if len(tracks) > 0 {
			frac = float64(i) / float64(len(tracks))
		}
		p := &player{track: tr, dir: dir}
		if dir.Available() {
			p.cursor = NewCursor(tr.Samples, dir.Measure, frac)
		} else {
			p.cursor = NewCursor(tr.Samples, nil, frac)
		}
		s.players = append(s.players, p)
	}
	return s
}

// Playable counts the tracks that can actually move.
func (s *Session) Playable() int {
	n := 0
	for _, p := range s.players {
		if p.dir.Available() && p.cursor.Len() > 0 {
			n++
		}
	}
	return n
}

// Step advances every cursor by dt of real time.
func (s *Session) Step(dt time.Duration) {
	for _, p := range s.players {
		if !p.dir.Available() {
			continue
		}
		st, ok := p.cursor.Advance(p.dir.Measure, p.dir.Coords, dt, s.opts.Rate, s.opts.MaxGap)
		if !ok {
			continue
		}
		p.ok = true
		p.last = shuttle.Position{
			VehicleID: p.track.VehicleID,
			Label:     p.track.Label,
			Direction: p.dir.Name,
			Point:     st.Placement.Coordinate,
			Heading:   st.Placement.Heading,
			SpeedMps:  st.SpeedMps(),
			Status:    shuttle.StatusFresh,
		}
		if s.metrics != nil {
			if st.GapSkipped > 0 {
				s.metrics.GapSkipped(st.GapSkipped)
			}
			if st.Looped {
				s.metrics.Looped()
			}
		}
	}
}

// Positions returns the last frame of every track that has advanced.
func (s *Session) Positions() []shuttle.Position {
	out := make([]shuttle.Position, 0, len(s.players))
	for _, p := range s.players {
		if p.ok {
			out = append(out, p.last)
		}
	}
	return out
}

func (s *Session) Snapshot(now time.Time) []shuttle.Vehicle {
	ps := s.Positions()
	out := make([]shuttle.Vehicle, len(ps))
	for i, p := range ps {
		out[i] = p.Vehicle(now)
	}
	return out
}
