package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shuttle-telemetry/internal/shuttle"
)

var ErrRouteNotFound = errors.New("route not found")

// directionName maps a GTFS direction_id to a direction tag. Importers store
// it either as 0/1 or as an enum label.
func directionName(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "inbound":
		return shuttle.Inbound
	default:
		return shuttle.Outbound
	}
}

type representativeTrip struct {
	Direction string
	ShapeID   string
	TripID    string
}

// FetchRoute assembles a route from a GTFS database: for each direction the
// most used shape of the route's trips becomes the polyline and the stop
// sequence of one trip on that shape becomes its stop list.
func FetchRoute(ctx context.Context, db *sql.DB, routeID string) (shuttle.Route, []shuttle.Stop, error) {
	r := shuttle.Route{ID: routeID}
	var short, long string
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(route_short_name, ''), COALESCE(route_long_name, '') FROM routes WHERE route_id = $1`,
		routeID).Scan(&short, &long)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, nil, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
		}
		return r, nil, fmt.Errorf("query route: %w", err)
	}
	r.Name = firstNonEmpty(long, short, routeID)

	trips, err := fetchRepresentativeTrips(ctx, db, routeID)
	if err != nil {
		return r, nil, err
	}
	if len(trips) == 0 {
		return r, nil, fmt.Errorf("%w: %s has no shaped trips", ErrRouteNotFound, routeID)
	}

	var stops []shuttle.Stop
	seen := make(map[string]bool)
	for _, t := range trips {
		coords, err := FetchShape(ctx, db, t.ShapeID)
		if err != nil {
			return r, nil, err
		}
		tripStops, err := FetchTripStops(ctx, db, t.TripID)
		if err != nil {
			return r, nil, err
		}
		dir := shuttle.Direction{Name: t.Direction, Coordinates: coords}
		// A loop trip usually ends where it started.
		inDir := make(map[string]bool, len(tripStops))
		for _, s := range tripStops {
			if inDir[s.ID] {
				continue
			}
			inDir[s.ID] = true
			dir.Stops = append(dir.Stops, shuttle.StopRef{ID: s.ID, Sequence: s.Sequence})
			if !seen[s.ID] {
				seen[s.ID] = true
				s.Direction = t.Direction
				stops = append(stops, s)
			}
		}
		r.Directions = append(r.Directions, dir)
	}
	return r, stops, nil
}

func fetchRepresentativeTrips(ctx context.Context, db *sql.DB, routeID string) ([]representativeTrip, error) {
	q := `
SELECT DISTINCT ON (dir) dir, shape_id, trip_id
FROM (
  SELECT COALESCE(direction_id::text, '0') AS dir, shape_id, trip_id,
         COUNT(*) OVER (PARTITION BY COALESCE(direction_id::text, '0'), shape_id) AS uses
  FROM trips
  WHERE route_id = $1 AND shape_id IS NOT NULL AND shape_id <> ''
) t
ORDER BY dir, uses DESC, trip_id`
	rows, err := db.QueryContext(ctx, q, routeID)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var out []representativeTrip
	taken := make(map[string]bool)
	for rows.Next() {
		var raw string
		var t representativeTrip
		if err := rows.Scan(&raw, &t.ShapeID, &t.TripID); err != nil {
			return nil, err
		}
		t.Direction = directionName(raw)
		if taken[t.Direction] {
			continue
		}
		taken[t.Direction] = true
		out = append(out, t)
	}
	return out, rows.Err()
}

// FetchTripStops returns the stops served by a trip in stop_sequence order.
func FetchTripStops(ctx context.Context, db *sql.DB, tripID string) ([]shuttle.Stop, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	cols, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon", "stop_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var latlon string
	switch {
	case cols["stop_lat"] && cols["stop_lon"]:
		latlon = `COALESCE(s.stop_lat, 0), COALESCE(s.stop_lon, 0)`
	case cols["stop_loc"]:
		latlon = `COALESCE(ST_Y(s.stop_loc::geometry), 0), COALESCE(ST_X(s.stop_loc::geometry), 0)`
	default:
		return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}
	q := `SELECT st.stop_sequence, st.stop_id, COALESCE(s.stop_name, ''), ` + latlon + `
          FROM stop_times st
          JOIN stops s ON s.stop_id = st.stop_id
          WHERE st.trip_id = $1
          ORDER BY st.stop_sequence`
	rows, err := db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var out []shuttle.Stop
	for rows.Next() {
		var s shuttle.Stop
		if err := rows.Scan(&s.Sequence, &s.ID, &s.NameTH, &s.Latitude, &s.Longitude); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
