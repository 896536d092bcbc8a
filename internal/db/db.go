package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"shuttle-telemetry/internal/geo"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchShape returns the ordered points of a GTFS shape. A closing point that
// repeats the first one is dropped since the route is treated as a loop.
func FetchShape(ctx context.Context, db *sql.DB, shapeID string) ([]geo.Coordinate, error) {
	if shapeID == "" {
		return nil, nil
	}
	// Either shape_pt_lat/lon exist, or the importer stored a PostGIS shape_pt_loc.
	cols, err := hasColumns(ctx, db, "public", "shapes", "shape_pt_lat", "shape_pt_lon", "shape_pt_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect shapes columns: %w", err)
	}
	var q string
	switch {
	case cols["shape_pt_lat"] && cols["shape_pt_lon"]:
		q = `SELECT shape_pt_lon, shape_pt_lat
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	case cols["shape_pt_loc"]:
		q = `SELECT ST_X(shape_pt_loc::geometry), ST_Y(shape_pt_loc::geometry)
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	default:
		return nil, fmt.Errorf("shapes table missing expected columns (lat/lon or shape_pt_loc)")
	}
	rows, err := db.QueryContext(ctx, q, shapeID)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()
	var pts []geo.Coordinate
	for rows.Next() {
		var c geo.Coordinate
		if err := rows.Scan(&c.Lon, &c.Lat); err != nil {
			return nil, err
		}
		pts = append(pts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return openRing(pts), nil
}

// openRing drops consecutive duplicates and a trailing copy of the first point.
func openRing(pts []geo.Coordinate) []geo.Coordinate {
	out := pts[:0:0]
	for i, p := range pts {
		if i > 0 && p == pts[i-1] {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 2 && out[len(out)-1] == out[0] {
		out = out[:len(out)-1]
	}
	return out
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
