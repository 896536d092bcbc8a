// Package replay plays recorded GPS tracks back along a route polyline on a
// per-vehicle virtual clock.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sourcegraph/conc/pool"

	"shuttle-telemetry/internal/shuttle"
)

// DefaultMaxAccuracyMeters drops fixes whose reported accuracy is worse than this.
const DefaultMaxAccuracyMeters = 5.0

// Sample is one recorded GPS fix.
type Sample struct {
	SessionID string
	Point     int
	Lat       float64
	Lon       float64
	AccuracyM float64
	SpeedKph  float64
	Heading   float64
	Direction string
	At        time.Time
}

// record mirrors a CSV row. Every column is read as text so a bad cell only
// drops its own row.
type record struct {
	SessionID string `csv:"session_id"`
	PointNo   string `csv:"point_no"`
	Latitude  string `csv:"latitude"`
	Longitude string `csv:"longitude"`
	Accuracy  string `csv:"accuracy_m"`
	SpeedKmh  string `csv:"speed_kmh"`
	Heading   string `csv:"heading_deg"`
	Direction string `csv:"direction"`
	Timestamp string `csv:"timestamp"`
}

type LoadStats struct {
	Rows       int
	Kept       int
	Malformed  int
	Inaccurate int
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func (r record) sample() (Sample, error) {
	var (
		s   Sample
		err error
	)
	s.SessionID = strings.TrimSpace(r.SessionID)
	if s.Point, err = strconv.Atoi(strings.TrimSpace(r.PointNo)); err != nil {
		return s, fmt.Errorf("invalid point_no: %w", err)
	}
	floats := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"latitude", r.Latitude, &s.Lat},
		{"longitude", r.Longitude, &s.Lon},
		{"accuracy_m", r.Accuracy, &s.AccuracyM},
		{"speed_kmh", r.SpeedKmh, &s.SpeedKph},
		{"heading_deg", r.Heading, &s.Heading},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(strings.TrimSpace(f.raw), 64); err != nil {
			return s, fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}
	s.Direction = strings.TrimSpace(r.Direction)
	if s.At, err = parseTimestamp(strings.TrimSpace(r.Timestamp)); err != nil {
		return s, err
	}
	return s, nil
}

// ParseTrack reads a recorded track with a header row. Malformed rows and
// fixes less accurate than maxAccuracy are dropped and counted; only an
// unreadable stream is an error. Samples are returned in timestamp order.
func ParseTrack(r io.Reader, maxAccuracy float64) ([]Sample, LoadStats, error) {
	var stats LoadStats
	cr := csv.NewReader(r)
	// Rows with missing columns are kept by the reader and rejected below.
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []record
	if err := gocsv.UnmarshalCSV(cr, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, stats, nil
		}
		return nil, stats, fmt.Errorf("read track: %w", err)
	}

	samples := make([]Sample, 0, len(rows))
	for _, row := range rows {
		stats.Rows++
		s, err := row.sample()
		if err != nil {
			stats.Malformed++
			continue
		}
		if s.AccuracyM > maxAccuracy {
			stats.Inaccurate++
			continue
		}
		samples = append(samples, s)
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].At.Before(samples[j].At) })
	stats.Kept = len(samples)
	return samples, stats, nil
}

// TrackSpec names a recording and the vehicle it drives.
type TrackSpec struct {
	VehicleID string
	Label     string
	Path      string
	// Direction overrides the direction tag recorded in the file.
	Direction string
}

// ParseTrackSpecs reads "id:label:path" entries separated by commas. Label may
// be empty, in which case the id is used.
func ParseTrackSpecs(s string) ([]TrackSpec, error) {
	var out []TrackSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 3)
		if len(fields) != 3 || fields[0] == "" || fields[2] == "" {
			return nil, fmt.Errorf("invalid track spec %q (want id:label:path)", part)
		}
		label := fields[1]
		if label == "" {
			label = fields[0]
		}
		out = append(out, TrackSpec{VehicleID: fields[0], Label: label, Path: fields[2]})
	}
	return out, nil
}

type Track struct {
	VehicleID string
	Label     string
	Direction string
	Samples   []Sample
	Stats     LoadStats
}

func loadTrack(ctx context.Context, spec TrackSpec, maxAccuracy float64) (Track, error) {
	if err := ctx.Err(); err != nil {
		return Track{}, err
	}
	f, err := os.Open(spec.Path)
	if err != nil {
		return Track{}, fmt.Errorf("open track %s: %w", spec.VehicleID, err)
	}
	defer f.Close()

	samples, stats, err := ParseTrack(f, maxAccuracy)
	if err != nil {
		return Track{}, fmt.Errorf("track %s: %w", spec.VehicleID, err)
	}
	dir := spec.Direction
	if dir == "" && len(samples) > 0 {
		dir = samples[0].Direction
	}
	return Track{
		VehicleID: spec.VehicleID,
		Label:     spec.Label,
		Direction: shuttle.NormalizeDirection(dir),
		Samples:   samples,
		Stats:     stats,
	}, nil
}

// LoadTracks reads every recording concurrently. Tracks that fail to load are
// left out and their errors joined; the rest keep the order of specs.
func LoadTracks(ctx context.Context, specs []TrackSpec, maxAccuracy float64) ([]Track, error) {
	p := pool.NewWithResults[Track]().WithContext(ctx)
	for _, spec := range specs {
		spec := spec
		p.Go(func(ctx context.Context) (Track, error) {
			return loadTrack(ctx, spec, maxAccuracy)
		})
	}
	tracks, err := p.Wait()

	order := make(map[string]int, len(specs))
	for i, s := range specs {
		order[s.VehicleID] = i
	}
	sort.SliceStable(tracks, func(i, j int) bool { return order[tracks[i].VehicleID] < order[tracks[j].VehicleID] })
	return tracks, err
}
