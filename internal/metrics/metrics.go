package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Collector struct {
	reg *prometheus.Registry

	Vehicles         prometheus.Gauge
	DwellingVehicles prometheus.Gauge
	TrackedPriors    prometheus.Gauge

	FrameTicks         prometheus.Counter
	TelemetryTicks     prometheus.Counter
	PriorsEvicted      prometheus.Counter
	UnavailableSamples prometheus.Counter
	KnownETAs          prometheus.Counter
	UnknownETAs        prometheus.Counter

	ReplayGapSkipped prometheus.Counter // seconds of virtual time compressed
	ReplayLoops      prometheus.Counter
	ReplayRows       *prometheus.CounterVec // outcome label: kept|malformed|inaccurate

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSReceived    prometheus.Counter
	NATSConnected   prometheus.Gauge

	RouteLoads *prometheus.CounterVec // source label: db|file|embedded

	FrameDuration     prometheus.Histogram
	TelemetryDuration prometheus.Histogram
	PublishDuration   prometheus.Histogram

	SpeedMultiplier   prometheus.Gauge
	FrameInterval     prometheus.Gauge // seconds
	TelemetryInterval prometheus.Gauge // seconds
}

func NewCollector(speedMultiplier float64, frameInterval, telemetryInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Vehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_vehicles",
			Help: "Number of vehicles in the last frame.",
		}),
		DwellingVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_dwelling_vehicles",
			Help: "Number of simulated vehicles held at a stop.",
		}),
		TrackedPriors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_telemetry_tracked_vehicles",
			Help: "Vehicles with a prior sample for speed smoothing.",
		}),
		FrameTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_frame_ticks_total",
			Help: "Total position ticks.",
		}),
		TelemetryTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_telemetry_ticks_total",
			Help: "Total telemetry ticks.",
		}),
		PriorsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_telemetry_priors_evicted_total",
			Help: "Prior samples evicted after their TTL.",
		}),
		UnavailableSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_telemetry_unavailable_total",
			Help: "Vehicle samples skipped because their direction has no usable geometry.",
		}),
		KnownETAs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_eta_known_total",
			Help: "Next-stop ETAs produced.",
		}),
		UnknownETAs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_eta_unknown_total",
			Help: "Vehicle samples without a next-stop ETA.",
		}),
		ReplayGapSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_replay_gap_skipped_seconds_total",
			Help: "Virtual seconds skipped by gap compression.",
		}),
		ReplayLoops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_replay_loops_total",
			Help: "Times a replay cursor wrapped to the start of its recording.",
		}),
		ReplayRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_replay_rows_total",
			Help: "Recorded rows read, by outcome.",
		}, []string{"outcome"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_nats_received_total",
			Help: "Total vehicle messages received in live mode.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		RouteLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_route_loads_total",
			Help: "Route loads by source.",
		}, []string{"source"}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttle_frame_duration_seconds",
			Help:    "Duration of a position tick.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		TelemetryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttle_telemetry_duration_seconds",
			Help:    "Duration of a telemetry computation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttle_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_speed_multiplier",
			Help: "Replay playback rate.",
		}),
		FrameInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_frame_interval_seconds",
			Help: "Position tick interval in seconds.",
		}),
		TelemetryInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_telemetry_interval_seconds",
			Help: "Telemetry tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Vehicles, c.DwellingVehicles, c.TrackedPriors,
		c.FrameTicks, c.TelemetryTicks, c.PriorsEvicted, c.UnavailableSamples, c.KnownETAs, c.UnknownETAs,
		c.ReplayGapSkipped, c.ReplayLoops, c.ReplayRows,
		c.NATSPublished, c.NATSPublishErrs, c.NATSReceived, c.NATSConnected,
		c.RouteLoads, c.FrameDuration, c.TelemetryDuration, c.PublishDuration,
		c.SpeedMultiplier, c.FrameInterval, c.TelemetryInterval,
	)

	c.SpeedMultiplier.Set(speedMultiplier)
	c.FrameInterval.Set(frameInterval.Seconds())
	c.TelemetryInterval.Set(telemetryInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

// GapSkipped and Looped let the collector observe a replay session directly.
func (c *Collector) GapSkipped(d time.Duration) { c.ReplayGapSkipped.Add(d.Seconds()) }
func (c *Collector) Looped()                    { c.ReplayLoops.Inc() }

// ObserveTrackLoad records the row outcomes of one loaded recording.
func (c *Collector) ObserveTrackLoad(kept, malformed, inaccurate int) {
	c.ReplayRows.WithLabelValues("kept").Add(float64(kept))
	c.ReplayRows.WithLabelValues("malformed").Add(float64(malformed))
	c.ReplayRows.WithLabelValues("inaccurate").Add(float64(inaccurate))
}
