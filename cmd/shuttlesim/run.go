package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"shuttle-telemetry/internal/config"
	mmetrics "shuttle-telemetry/internal/metrics"
	"shuttle-telemetry/internal/publisher"
	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/sim"
	"shuttle-telemetry/internal/telemetry"
)

// runtime holds everything a session needs besides its source.
type runtime struct {
	cfg     *config.Config
	metrics *mmetrics.Collector
	pub     *publisher.NATSPublisher
	net     *route.Network
}

func setup(ctx context.Context) (*runtime, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	rt := &runtime{cfg: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.MetricsAddr != "" {
		rt.metrics = mmetrics.NewCollector(cfg.SpeedMultiplier, cfg.FrameInterval, cfg.TelemetryInterval)
		srv := rt.metrics.Serve(cfg.MetricsAddr)
		cleanups = append(cleanups, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	rt.pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(rt.metrics))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, rt.pub.Close)

	rt.net = loadNetwork(ctx, cfg, rt.metrics)
	return rt, cleanup, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// run drives src until ctx is cancelled.
func (rt *runtime) run(ctx context.Context, src sim.Source) error {
	engine := telemetry.NewEngine(rt.cfg.TelemetryOptions())
	mgr := sim.NewManager(rt.net, src, rt.pub, engine, sim.Options{
		RouteID:           rt.net.RouteID,
		FrameInterval:     rt.cfg.FrameInterval,
		TelemetryInterval: rt.cfg.TelemetryInterval,
		MaxFrameDelta:     sim.DefaultOptions.MaxFrameDelta,
		PublishFeed:       true,
	}, rt.metrics)

	err := mgr.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutdown complete")
		return nil
	}
	return err
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *mmetrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *mmetrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) NATSReceivedInc()               { p.c.NATSReceived.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
