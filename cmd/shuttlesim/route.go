package main

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"shuttle-telemetry/internal/config"
	"shuttle-telemetry/internal/db"
	mmetrics "shuttle-telemetry/internal/metrics"
	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/routeconfig"
	"shuttle-telemetry/internal/shuttle"
)

const routeLoadTimeout = 30 * time.Second

// loadNetwork builds the route network from the first source that loads:
// the database, then ROUTE_FILE, then the embedded campus loop.
func loadNetwork(ctx context.Context, cfg *config.Config, m *mmetrics.Collector) *route.Network {
	r, stops, source := loadRoute(ctx, cfg)
	if m != nil {
		m.RouteLoads.WithLabelValues(source).Inc()
	}
	net := route.Build(r, stops, cfg.RouteOptions())
	for _, dir := range net.Directions() {
		if dir.Available() {
			log.Info().
				Str("route", r.ID).
				Str("source", source).
				Str("direction", dir.Name).
				Int("points", len(dir.Coords)).
				Float64("length_m", dir.Measure.Total).
				Int("anchors", dir.Anchors.Len()).
				Msg("direction ready")
		} else {
			log.Warn().Str("route", r.ID).Str("direction", dir.Name).Msg("direction has no usable geometry")
		}
	}
	return net
}

func loadRoute(ctx context.Context, cfg *config.Config) (shuttle.Route, []shuttle.Stop, string) {
	if cfg.DatabaseURL != "" {
		r, stops, err := loadRouteFromDB(ctx, cfg)
		if err == nil {
			return r, stops, "db"
		}
		log.Error().Err(err).Str("route", cfg.RouteID).Msg("loading route from database, falling back")
	}
	if cfg.RouteFile != "" {
		r, stops, err := routeconfig.Load(cfg.RouteFile)
		if err == nil {
			return r, stops, "file"
		}
		log.Error().Err(err).Str("file", cfg.RouteFile).Msg("loading route file, falling back")
	}
	r, stops := routeconfig.Default()
	return r, stops, "embedded"
}

func loadRouteFromDB(ctx context.Context, cfg *config.Config) (shuttle.Route, []shuttle.Stop, error) {
	ctx, cancel := context.WithTimeout(ctx, routeLoadTimeout)
	defer cancel()

	var (
		r     shuttle.Route
		stops []shuttle.Stop
	)
	op := func() error {
		conn, imp, err := db.Connect(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			return err
		}
		defer conn.Close()
		if imp.DBName != "" {
			log.Info().Str("city", cfg.City).Str("database", imp.DBName).Time("imported_at", imp.ImportedAt).Msg("using latest import")
		}
		r, stops, err = db.FetchRoute(ctx, conn, cfg.RouteID)
		if errors.Is(err, db.ErrRouteNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		log.Warn().Err(err).Dur("retry_in", d).Msg("route database not ready")
	})
	return r, stops, err
}
