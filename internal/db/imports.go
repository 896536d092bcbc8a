package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Import is one successful GTFS import recorded in the cluster's meta database.
type Import struct {
	DBName     string
	ImportedAt time.Time
}

// LatestImport returns the most recent import whose database name contains
// city, from public.latest_successful_imports in the meta database.
func LatestImport(ctx context.Context, meta *sql.DB, city string) (Import, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Import{}, fmt.Errorf("city is required")
	}
	q := `
SELECT db_name, imported_at
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var (
		name sql.NullString
		at   sql.NullTime
	)
	if err := meta.QueryRowContext(ctx, q, city).Scan(&name, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Import{}, fmt.Errorf("no database found for city like %q", city)
		}
		return Import{}, err
	}
	if !name.Valid || name.String == "" {
		return Import{}, fmt.Errorf("empty db_name for city like %q", city)
	}
	return Import{DBName: name.String, ImportedAt: at.Time}, nil
}

// Connect opens the route database. When city is set, the newest import for
// that city is resolved through the cluster's postgres database first and the
// DSN is pointed at it.
func Connect(ctx context.Context, dsn, city string) (*sql.DB, Import, error) {
	var imp Import
	target := dsn
	if city != "" {
		rootDSN, err := WithDBName(dsn, "postgres")
		if err != nil {
			return nil, imp, fmt.Errorf("invalid base DSN: %w", err)
		}
		meta, err := Open(rootDSN)
		if err != nil {
			return nil, imp, fmt.Errorf("open meta db: %w", err)
		}
		defer meta.Close()
		if err := Ping(ctx, meta); err != nil {
			return nil, imp, fmt.Errorf("ping meta db: %w", err)
		}
		if imp, err = LatestImport(ctx, meta, city); err != nil {
			return nil, imp, err
		}
		if target, err = WithDBName(dsn, imp.DBName); err != nil {
			return nil, imp, fmt.Errorf("compose DSN: %w", err)
		}
	}
	conn, err := Open(target)
	if err != nil {
		return nil, imp, err
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, imp, err
	}
	return conn, imp, nil
}
