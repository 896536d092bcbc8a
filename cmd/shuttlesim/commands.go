package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"shuttle-telemetry/internal/config"
	"shuttle-telemetry/internal/motion"
	"shuttle-telemetry/internal/replay"
	"shuttle-telemetry/internal/routeconfig"
	"shuttle-telemetry/internal/shuttle"
	"shuttle-telemetry/internal/sim"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Drive a simulated fleet around the route",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Random seed for cruise speeds and dwell times (0 picks one from the clock)",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			rt, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			seed := c.Int64("seed")
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			s := motion.New(rt.net, motion.DefaultFleet, rt.cfg.MotionOptions(), rand.New(rand.NewSource(seed)))
			if s.Skipped() > 0 {
				log.Warn().Int("vehicles", s.Skipped()).Msg("vehicles skipped, their direction has no geometry")
			}
			log.Info().Int("vehicles", len(s.Vehicles())).Int64("seed", seed).Msg("simulating fleet")

			return rt.run(ctx, s)
		},
	}
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Replay recorded GPS tracks along the route",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "tracks",
				Usage: "Comma separated id:label:path recordings (defaults to REPLAY_TRACKS)",
			},
			&cli.Float64Flag{
				Name:  "rate",
				Usage: "Playback rate (defaults to SPEED_MULTIPLIER)",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			rt, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if c.IsSet("rate") {
				if c.Float64("rate") <= 0 {
					return fmt.Errorf("invalid rate: %v", c.Float64("rate"))
				}
				rt.cfg.SpeedMultiplier = c.Float64("rate")
				if rt.metrics != nil {
					rt.metrics.SpeedMultiplier.Set(rt.cfg.SpeedMultiplier)
				}
			}
			raw := rt.cfg.ReplayTracks
			if c.IsSet("tracks") {
				raw = c.String("tracks")
			}
			specs, err := replay.ParseTrackSpecs(raw)
			if err != nil {
				return err
			}
			if len(specs) == 0 {
				return errors.New("no tracks to replay: set --tracks or REPLAY_TRACKS")
			}

			tracks, err := replay.LoadTracks(ctx, specs, rt.cfg.ReplayMaxAccuracy)
			if err != nil {
				log.Error().Err(err).Msg("some tracks failed to load")
			}
			for _, tr := range tracks {
				log.Info().
					Str("vehicle", tr.VehicleID).
					Str("direction", tr.Direction).
					Int("rows", tr.Stats.Rows).
					Int("kept", tr.Stats.Kept).
					Int("malformed", tr.Stats.Malformed).
					Int("inaccurate", tr.Stats.Inaccurate).
					Msg("track loaded")
				if rt.metrics != nil {
					rt.metrics.ObserveTrackLoad(tr.Stats.Kept, tr.Stats.Malformed, tr.Stats.Inaccurate)
				}
			}

			var hooks replay.Metrics
			if rt.metrics != nil {
				hooks = rt.metrics
			}
			session := replay.NewSession(rt.net, tracks, rt.cfg.SessionOptions(), hooks)
			if session.Playable() == 0 {
				return errors.New("no playable tracks")
			}
			log.Info().Int("tracks", session.Playable()).Float64("rate", rt.cfg.SpeedMultiplier).Msg("replaying")

			return rt.run(ctx, session)
		},
	}
}

func liveCommand() *cli.Command {
	return &cli.Command{
		Name:  "live",
		Usage: "Compute telemetry for vehicle lists published by an external feed",
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			rt, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			live := sim.NewLiveSource(rt.cfg.Status)
			sub, err := rt.pub.SubscribeVehicles(rt.net.RouteID, func(vs []shuttle.Vehicle) {
				live.Offer(vs)
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			return rt.run(ctx, live)
		},
	}
}

func anchorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "anchors",
		Usage: "Print the route geometry and stop anchors",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			net := loadNetwork(c.Context, cfg, nil)
			for _, dir := range net.Directions() {
				if !dir.Available() {
					fmt.Printf("%s: unavailable\n", dir.Name)
					continue
				}
				fmt.Printf("%s: %d points, %.1f m\n", dir.Name, len(dir.Coords), dir.Measure.Total)
				fmt.Printf("polyline: %s\n", routeconfig.EncodePolyline(dir.Coords))
				pretty.Println(dir.Anchors.All())
			}
			return nil
		},
	}
}
