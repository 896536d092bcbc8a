// Package telemetry derives smoothed speed, next-stop distance and ranked
// per-stop ETAs from vehicle position snapshots.
package telemetry

import (
	"math"
	"sort"
	"sync"
	"time"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/shuttle"
)

type Options struct {
	// PreviousWeight is the EMA weight kept from the previous smoothed speed.
	PreviousWeight float64
	// MinSpeedMps is the noise floor below which no ETA is produced.
	MinSpeedMps float64
	// AtStopRadiusMeters clamps smaller stop distances to zero.
	AtStopRadiusMeters float64
	// TopN bounds the candidate list of each stop.
	TopN int
	// PriorTTL evicts prior samples not refreshed for this long. Zero disables eviction.
	PriorTTL time.Duration
}

var DefaultOptions = Options{
	PreviousWeight:     0.7,
	MinSpeedMps:        0.3,
	AtStopRadiusMeters: 10,
	TopN:               3,
	PriorTTL:           2 * time.Minute,
}

type prior struct {
	point geo.Coordinate
	at    time.Time
	ema   *float64
}

// Engine owns the per-vehicle prior samples used for speed smoothing.
// Compute may be called from several goroutines.
type Engine struct {
	opts Options

	mu     sync.Mutex
	priors map[string]prior
}

func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts, priors: make(map[string]prior)}
}

// Reset drops every prior sample, e.g. after the route geometry changed.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.priors = make(map[string]prior)
	e.mu.Unlock()
}

// Tracked returns the number of vehicles with a prior sample.
func (e *Engine) Tracked() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.priors)
}

// Compute produces telemetry for every visible vehicle at time now and
// updates the prior samples in place.
func (e *Engine) Compute(net *route.Network, vehicles []shuttle.Vehicle, now time.Time) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := Result{
		At:         now,
		ETAsByStop: make(map[string][]StopETA),
		ByVehicle:  make(map[string]VehicleSample),
	}

	for _, v := range vehicles {
		if v.Status == shuttle.StatusHidden {
			continue
		}
		dir := net.Direction(v.Direction)
		if !dir.Available() {
			res.Unavailable++
			continue
		}
		e.computeVehicle(&res, dir, v, now)
	}

	for stopID, rows := range res.ETAsByStop {
		res.ETAsByStop[stopID] = rank(rows, e.opts.TopN)
	}
	res.Evicted = e.evict(now)
	return res
}

func (e *Engine) computeVehicle(res *Result, dir *route.DirectionNetwork, v shuttle.Vehicle, now time.Time) {
	m := dir.Measure
	total := m.Total
	pos := v.Coordinate()
	along := m.Along(geo.Project(dir.Coords, pos))

	ema := e.smoothSpeed(dir, v.ID, along, now)
	e.priors[v.ID] = prior{point: pos, at: now, ema: ema}

	sample := VehicleSample{
		VehicleID: v.ID,
		Plate:     v.Plate(),
		Direction: dir.Name,
	}
	var speedKph *float64
	if ema != nil {
		mps, kph := *ema, *ema*3.6
		sample.SpeedMps = &mps
		sample.SpeedKph = &kph
		speedKph = &kph
	}
	etaOK := v.Status == shuttle.StatusFresh && ema != nil && *ema > e.opts.MinSpeedMps

	var (
		next, prev         *shuttle.Stop
		nextDist, prevDist = math.Inf(1), math.Inf(1)
	)
	for i := range dir.Stops {
		s := &dir.Stops[i]
		stopAlong, ok := dir.Anchors.Along(s.ID)
		if !ok {
			continue
		}
		ahead := geo.ForwardDistance(total, along, stopAlong)
		if ahead < nextDist {
			nextDist, next = ahead, s
		}
		if behind := geo.ForwardDistance(total, stopAlong, along); behind < prevDist && ahead > 0 {
			prevDist, prev = behind, s
		}

		dist := e.clampAtStop(ahead)
		row := StopETA{
			StopID:         s.ID,
			VehicleID:      v.ID,
			VehicleLabel:   v.Label,
			Plate:          v.Plate(),
			DistanceMeters: dist,
			SpeedKph:       speedKph,
			Status:         v.Status,
			LastUpdated:    v.LastUpdated,
		}
		if etaOK {
			eta := dist / *ema
			mins := int(math.Max(0, math.Ceil(eta/60)))
			arrival := now.Add(time.Duration(eta * float64(time.Second)))
			row.ETASeconds = &eta
			row.ETAMinutes = &mins
			row.ArrivalTime = &arrival
		}
		res.ETAsByStop[s.ID] = append(res.ETAsByStop[s.ID], row)
	}

	if next != nil {
		dist := e.clampAtStop(nextDist)
		sample.NextStopID = next.ID
		sample.NextStopName = next.DisplayName()
		sample.DistanceToNextStopM = &dist
		if etaOK {
			eta := dist / *ema
			arrival := now.Add(time.Duration(eta * float64(time.Second)))
			sample.ETAToNextStopS = &eta
			sample.ArrivalTime = &arrival
		}
		if prev == nil {
			prev, prevDist = next, 0
		}
		sample.PrevStopID = prev.ID
		progress := 0.0
		if span := prevDist + nextDist; span > 0 {
			progress = math.Min(100, math.Max(0, prevDist/span*100))
		}
		sample.ProgressPercent = &progress
	}
	res.ByVehicle[v.ID] = sample
}

// smoothSpeed folds the distance travelled since the prior sample into the
// EMA. A first observation keeps the speed unknown.
func (e *Engine) smoothSpeed(dir *route.DirectionNetwork, id string, along float64, now time.Time) *float64 {
	p, ok := e.priors[id]
	if !ok {
		return nil
	}
	ema := p.ema
	dt := now.Sub(p.at).Seconds()
	if dt <= 0 {
		return ema
	}
	total := dir.Measure.Total
	prevAlong := dir.Measure.Along(geo.Project(dir.Coords, p.point))
	fwd := geo.ForwardDistance(total, prevAlong, along)
	// A small backwards wobble must not read as almost a full lap.
	travelled := math.Min(fwd, math.Max(0, total-fwd))
	inst := travelled / dt

	next := inst
	if ema != nil {
		w := e.opts.PreviousWeight
		next = w*(*ema) + (1-w)*inst
	}
	return &next
}

func (e *Engine) clampAtStop(d float64) float64 {
	if d <= e.opts.AtStopRadiusMeters {
		return 0
	}
	return d
}

func (e *Engine) evict(now time.Time) int {
	if e.opts.PriorTTL <= 0 {
		return 0
	}
	n := 0
	for id, p := range e.priors {
		if now.Sub(p.at) > e.opts.PriorTTL {
			delete(e.priors, id)
			n++
		}
	}
	return n
}

// rank orders candidates with a known ETA first (ascending ETA), then the
// rest by ascending distance, and keeps the first topN.
func rank(rows []StopETA, topN int) []StopETA {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Known() != b.Known() {
			return a.Known()
		}
		if a.Known() {
			return *a.ETASeconds < *b.ETASeconds
		}
		return a.DistanceMeters < b.DistanceMeters
	})
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	return rows
}
