package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"shuttle-telemetry/internal/motion"
	"shuttle-telemetry/internal/replay"
	"shuttle-telemetry/internal/route"
	"shuttle-telemetry/internal/shuttle"
	"shuttle-telemetry/internal/telemetry"
)

type Config struct {
	// Route sources, tried in order: database, file, embedded default.
	DatabaseURL string
	City        string
	RouteID     string
	RouteFile   string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	MetricsAddr       string

	FrameInterval     time.Duration
	TelemetryInterval time.Duration
	SpeedMultiplier   float64

	ReplayTracks      string
	ReplayMaxGap      time.Duration
	ReplayMaxAccuracy float64

	CruiseSpeedMps  float64
	CruiseJitterMps float64
	DwellMinTicks   int
	DwellMaxTicks   int

	EMAPreviousWeight float64
	ETAMinSpeedMps    float64
	AtStopRadiusM     float64
	StopSnapRadiusM   float64
	ETATopN           int
	PriorTTL          time.Duration

	Status shuttle.StatusThresholds
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database is optional: without a DSN or PGDATABASE/CITY the route comes from file.
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" {
		db := os.Getenv("PGDATABASE")
		if db == "" && cfg.City != "" {
			db = "postgres"
		}
		if db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	}
	cfg.RouteID = os.Getenv("ROUTE_ID")
	if cfg.DatabaseURL != "" && cfg.RouteID == "" {
		return nil, errors.New("ROUTE_ID must be set when a database is configured")
	}
	cfg.RouteFile = os.Getenv("ROUTE_FILE")

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSSubjectPrefix = strings.TrimSuffix(getenvDefault("NATS_SUBJECT_PREFIX", "shuttle"), ".")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	var err error
	if cfg.FrameInterval, err = millis("FRAME_INTERVAL_MS", 16*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.TelemetryInterval, err = millis("TELEMETRY_INTERVAL_MS", time.Second); err != nil {
		return nil, err
	}
	if cfg.SpeedMultiplier, err = positiveFloat("SPEED_MULTIPLIER", 1); err != nil {
		return nil, err
	}

	cfg.ReplayTracks = os.Getenv("REPLAY_TRACKS")
	if cfg.ReplayMaxGap, err = seconds("REPLAY_MAX_GAP_SEC", 10*time.Second, true); err != nil {
		return nil, err
	}
	if cfg.ReplayMaxAccuracy, err = positiveFloat("REPLAY_MAX_ACCURACY_M", replay.DefaultMaxAccuracyMeters); err != nil {
		return nil, err
	}

	if cfg.CruiseSpeedMps, err = positiveFloat("CRUISE_SPEED_MPS", motion.DefaultOptions.CruiseSpeedMps); err != nil {
		return nil, err
	}
	if cfg.CruiseJitterMps, err = nonNegativeFloat("CRUISE_SPEED_JITTER_MPS", motion.DefaultOptions.SpeedJitterMps); err != nil {
		return nil, err
	}
	if cfg.DwellMinTicks, err = positiveInt("DWELL_MIN_TICKS", motion.DefaultOptions.DwellMinTicks); err != nil {
		return nil, err
	}
	if cfg.DwellMaxTicks, err = positiveInt("DWELL_MAX_TICKS", motion.DefaultOptions.DwellMaxTicks); err != nil {
		return nil, err
	}
	if cfg.DwellMaxTicks < cfg.DwellMinTicks {
		return nil, fmt.Errorf("invalid DWELL_MAX_TICKS: %d is below DWELL_MIN_TICKS %d", cfg.DwellMaxTicks, cfg.DwellMinTicks)
	}

	if cfg.EMAPreviousWeight, err = nonNegativeFloat("EMA_PREVIOUS_WEIGHT", telemetry.DefaultOptions.PreviousWeight); err != nil {
		return nil, err
	}
	if cfg.EMAPreviousWeight >= 1 {
		return nil, fmt.Errorf("invalid EMA_PREVIOUS_WEIGHT: %v (must be below 1)", cfg.EMAPreviousWeight)
	}
	if cfg.ETAMinSpeedMps, err = nonNegativeFloat("ETA_MIN_SPEED_MPS", telemetry.DefaultOptions.MinSpeedMps); err != nil {
		return nil, err
	}
	if cfg.AtStopRadiusM, err = nonNegativeFloat("AT_STOP_RADIUS_M", telemetry.DefaultOptions.AtStopRadiusMeters); err != nil {
		return nil, err
	}
	if cfg.StopSnapRadiusM, err = nonNegativeFloat("STOP_SNAP_RADIUS_M", route.DefaultOptions.SnapRadiusMeters); err != nil {
		return nil, err
	}
	if cfg.ETATopN, err = positiveInt("ETA_TOP_N", telemetry.DefaultOptions.TopN); err != nil {
		return nil, err
	}
	if cfg.PriorTTL, err = seconds("PRIOR_TTL_SEC", telemetry.DefaultOptions.PriorTTL, true); err != nil {
		return nil, err
	}

	th := shuttle.DefaultStatusThresholds
	if th.Fresh, err = seconds("STATUS_FRESH_SEC", th.Fresh, false); err != nil {
		return nil, err
	}
	if th.Delayed, err = seconds("STATUS_DELAYED_SEC", th.Delayed, false); err != nil {
		return nil, err
	}
	if th.Offline, err = seconds("STATUS_OFFLINE_SEC", th.Offline, false); err != nil {
		return nil, err
	}
	if th.Delayed < th.Fresh || th.Offline < th.Delayed {
		return nil, errors.New("status thresholds must satisfy fresh <= delayed <= offline")
	}
	cfg.Status = th

	return cfg, nil
}

func (c *Config) RouteOptions() route.Options {
	o := route.DefaultOptions
	o.SnapRadiusMeters = c.StopSnapRadiusM
	return o
}

func (c *Config) TelemetryOptions() telemetry.Options {
	return telemetry.Options{
		PreviousWeight:     c.EMAPreviousWeight,
		MinSpeedMps:        c.ETAMinSpeedMps,
		AtStopRadiusMeters: c.AtStopRadiusM,
		TopN:               c.ETATopN,
		PriorTTL:           c.PriorTTL,
	}
}

func (c *Config) MotionOptions() motion.Options {
	o := motion.DefaultOptions
	o.CruiseSpeedMps = c.CruiseSpeedMps
	o.SpeedJitterMps = c.CruiseJitterMps
	o.DwellMinTicks = c.DwellMinTicks
	o.DwellMaxTicks = c.DwellMaxTicks
	return o
}

func (c *Config) SessionOptions() replay.SessionOptions {
	return replay.SessionOptions{Rate: c.SpeedMultiplier, MaxGap: c.ReplayMaxGap}
}

func millis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// seconds parses a whole number of seconds; allowZero permits 0 to disable a feature.
func seconds(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec < 0 || (sec == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(sec) * time.Second, nil
}

func positiveFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func nonNegativeFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
