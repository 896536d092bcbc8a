package sim

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	mmetrics "shuttle-telemetry/internal/metrics"
	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/shuttle"
	"shuttle-telemetry/internal/telemetry"
)

// Source produces vehicle positions. Every call is made from the manager
// goroutine.
type Source interface {
	Step(dt time.Duration)
	Positions() []shuttle.Position
	Snapshot(now time.Time) []shuttle.Vehicle
}

type Publisher interface {
	PublishPositions(routeID string, at time.Time, ps []shuttle.Position) error
	PublishTelemetry(routeID string, res telemetry.Result) error
	PublishFeed(routeID string, at time.Time, ps []shuttle.Position, res telemetry.Result) error
}

type dwellCounter interface {
	Dwelling() int
}

type Options struct {
	RouteID           string
	FrameInterval     time.Duration
	TelemetryInterval time.Duration
	// MaxFrameDelta caps the time a single frame may step the source.
	MaxFrameDelta time.Duration
	PublishFeed   bool
}

var DefaultOptions = Options{
	FrameInterval:     16 * time.Millisecond,
	TelemetryInterval: time.Second,
	MaxFrameDelta:     100 * time.Millisecond,
	PublishFeed:       true,
}

// Manager drives a source at the frame cadence and the telemetry engine at
// the telemetry cadence, both from a single goroutine.
type Manager struct {
	net     *route.Network
	src     Source
	pub     Publisher
	engine  *telemetry.Engine
	opts    Options
	metrics *mmetrics.Collector

	lastFrame time.Time
	positions []shuttle.Position
}

func NewManager(net *route.Network, src Source, pub Publisher, engine *telemetry.Engine, opts Options, metrics *mmetrics.Collector) *Manager {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultOptions.FrameInterval
	}
	if opts.TelemetryInterval <= 0 {
		opts.TelemetryInterval = DefaultOptions.TelemetryInterval
	}
	if opts.MaxFrameDelta <= 0 {
		opts.MaxFrameDelta = DefaultOptions.MaxFrameDelta
	}
	return &Manager{net: net, src: src, pub: pub, engine: engine, opts: opts, metrics: metrics}
}

// Run ticks until ctx is cancelled and returns ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	frames := time.NewTicker(m.opts.FrameInterval)
	defer frames.Stop()
	tele := time.NewTicker(m.opts.TelemetryInterval)
	defer tele.Stop()

	log.Info().
		Str("route", m.opts.RouteID).
		Dur("frame", m.opts.FrameInterval).
		Dur("telemetry", m.opts.TelemetryInterval).
		Msg("session started")

	m.lastFrame = time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("route", m.opts.RouteID).Msg("session stopped")
			return ctx.Err()
		case now := <-frames.C:
			m.Frame(now)
		case now := <-tele.C:
			m.Telemetry(now)
		}
	}
}

// Frame steps the source by the wall time since the previous frame, capped
// at MaxFrameDelta, and publishes the resulting positions.
func (m *Manager) Frame(now time.Time) {
	start := time.Now()
	dt := m.opts.FrameInterval
	if !m.lastFrame.IsZero() {
		dt = now.Sub(m.lastFrame)
	}
	m.lastFrame = now
	if dt > m.opts.MaxFrameDelta {
		dt = m.opts.MaxFrameDelta
	}
	if dt > 0 {
		m.src.Step(dt)
	}
	m.positions = m.src.Positions()
	if m.pub != nil {
		if err := m.pub.PublishPositions(m.opts.RouteID, now, m.positions); err != nil {
			log.Warn().Err(err).Str("route", m.opts.RouteID).Msg("publish positions")
		}
	}
	if m.metrics != nil {
		m.metrics.FrameTicks.Inc()
		m.metrics.Vehicles.Set(float64(len(m.positions)))
		if dc, ok := m.src.(dwellCounter); ok {
			m.metrics.DwellingVehicles.Set(float64(dc.Dwelling()))
		}
		m.metrics.FrameDuration.Observe(time.Since(start).Seconds())
	}
}

// Telemetry snapshots the source and runs the telemetry engine over it.
func (m *Manager) Telemetry(now time.Time) telemetry.Result {
	start := time.Now()
	res := m.engine.Compute(m.net, m.src.Snapshot(now), now)
	if m.pub != nil {
		if err := m.pub.PublishTelemetry(m.opts.RouteID, res); err != nil {
			log.Warn().Err(err).Str("route", m.opts.RouteID).Msg("publish telemetry")
		}
		if m.opts.PublishFeed {
			if err := m.pub.PublishFeed(m.opts.RouteID, now, m.positions, res); err != nil {
				log.Warn().Err(err).Str("route", m.opts.RouteID).Msg("publish feed")
			}
		}
	}
	if res.Unavailable > 0 {
		log.Debug().Int("vehicles", res.Unavailable).Msg("vehicles on a direction without geometry")
	}
	if m.metrics != nil {
		known := 0
		for _, s := range res.ByVehicle {
			if s.ETAToNextStopS != nil {
				known++
			}
		}
		m.metrics.TelemetryTicks.Inc()
		m.metrics.KnownETAs.Add(float64(known))
		m.metrics.UnknownETAs.Add(float64(len(res.ByVehicle) - known))
		m.metrics.UnavailableSamples.Add(float64(res.Unavailable))
		m.metrics.PriorsEvicted.Add(float64(res.Evicted))
		m.metrics.TrackedPriors.Set(float64(m.engine.Tracked()))
		m.metrics.TelemetryDuration.Observe(time.Since(start).Seconds())
	}
	return res
}
