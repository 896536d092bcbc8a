package sim

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"shuttle-telemetry/internal/shuttle"
)

const liveInboxSize = 64

// LiveSource replays vehicle lists received from an external feed. Offer may
// be called from any goroutine; the lists are applied on the next Step.
type LiveSource struct {
	inbox      chan []shuttle.Vehicle
	thresholds shuttle.StatusThresholds
	now        func() time.Time

	vehicles map[string]shuttle.Vehicle
}

func NewLiveSource(th shuttle.StatusThresholds) *LiveSource {
	return &LiveSource{
		inbox:      make(chan []shuttle.Vehicle, liveInboxSize),
		thresholds: th,
		now:        time.Now,
		vehicles:   make(map[string]shuttle.Vehicle),
	}
}

// Offer queues a vehicle list. Lists arriving while the inbox is full are
// dropped and false is returned.
func (s *LiveSource) Offer(vs []shuttle.Vehicle) bool {
	received := s.now()
	cp := make([]shuttle.Vehicle, 0, len(vs))
	for _, v := range vs {
		if v.ID == "" {
			continue
		}
		if v.LastUpdated.IsZero() {
			v.LastUpdated = received
		}
		v.Direction = shuttle.NormalizeDirection(v.Direction)
		cp = append(cp, v)
	}
	select {
	case s.inbox <- cp:
		return true
	default:
		log.Warn().Int("vehicles", len(cp)).Msg("live inbox full, dropping update")
		return false
	}
}

// Step applies queued updates and forgets vehicles that have gone hidden.
// Positions come from the feed, so dt is not used.
func (s *LiveSource) Step(time.Duration) {
	for {
		select {
		case vs := <-s.inbox:
			for _, v := range vs {
				if prev, ok := s.vehicles[v.ID]; ok && v.LastUpdated.Before(prev.LastUpdated) {
					continue
				}
				s.vehicles[v.ID] = v
			}
		default:
			now := s.now()
			for id, v := range s.vehicles {
				if shuttle.DeriveStatus(v.LastUpdated, now, s.thresholds) == shuttle.StatusHidden {
					delete(s.vehicles, id)
				}
			}
			return
		}
	}
}

// Snapshot returns every known vehicle with its status derived from the age
// of its last update, ordered by id.
func (s *LiveSource) Snapshot(now time.Time) []shuttle.Vehicle {
	out := make([]shuttle.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		v.Status = shuttle.DeriveStatus(v.LastUpdated, now, s.thresholds)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *LiveSource) Positions() []shuttle.Position {
	vs := s.Snapshot(s.now())
	out := make([]shuttle.Position, 0, len(vs))
	for _, v := range vs {
		if v.Status == shuttle.StatusHidden {
			continue
		}
		p := shuttle.Position{
			VehicleID: v.ID,
			Label:     v.Label,
			Direction: v.Direction,
			Point:     v.Coordinate(),
			Status:    v.Status,
		}
		if v.Heading != nil {
			p.Heading = *v.Heading
		}
		out = append(out, p)
	}
	return out
}
