package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/fanout/internal/query"
)

// ErrQueryNotFound is returned by GetQuery for unknown names.
var ErrQueryNotFound = fmt.Errorf("saved query not found")

// SaveQuery saves or updates a query spec by name.
// Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) SaveQuery(ctx context.Context, spec query.Spec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid query: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_queries (name, start_time, end_time, min_lat, min_lon, max_lat, max_lon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			min_lat = excluded.min_lat,
			min_lon = excluded.min_lon,
			max_lat = excluded.max_lat,
			max_lon = excluded.max_lon,
			updated_at = CURRENT_TIMESTAMP
	`,
		spec.Name,
		spec.TimeRange.Start.UTC().Format(time.RFC3339),
		spec.TimeRange.End.UTC().Format(time.RFC3339),
		spec.GeoBox.MinLat, spec.GeoBox.MinLon, spec.GeoBox.MaxLat, spec.GeoBox.MaxLon,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert query: %w", err)
	}

	return nil
}

// GetQuery retrieves a saved query spec by name.
func (s *SQLiteStore) GetQuery(ctx context.Context, name string) (query.Spec, error) {
	var spec query.Spec
	var start, end string

	err := s.db.QueryRowContext(ctx, `
		SELECT name, start_time, end_time, min_lat, min_lon, max_lat, max_lon
		FROM saved_queries
		WHERE name = ?
	`, name).Scan(&spec.Name, &start, &end,
		&spec.GeoBox.MinLat, &spec.GeoBox.MinLon, &spec.GeoBox.MaxLat, &spec.GeoBox.MaxLon)

	if err == sql.ErrNoRows {
		return query.Spec{}, fmt.Errorf("%w: %q", ErrQueryNotFound, name)
	}
	if err != nil {
		return query.Spec{}, fmt.Errorf("failed to query saved query: %w", err)
	}

	if spec.TimeRange.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return query.Spec{}, fmt.Errorf("failed to parse start time %q: %w", start, err)
	}
	if spec.TimeRange.End, err = time.Parse(time.RFC3339, end); err != nil {
		return query.Spec{}, fmt.Errorf("failed to parse end time %q: %w", end, err)
	}

	return spec, nil
}

// ListQueries returns all saved query specs, most recently updated first.
func (s *SQLiteStore) ListQueries(ctx context.Context) ([]query.Spec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name
		FROM saved_queries
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan query name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queries: %w", err)
	}

	specs := make([]query.Spec, 0, len(names))
	for _, name := range names {
		spec, err := s.GetQuery(ctx, name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// DeleteQuery removes a saved query by name. Deleting an unknown name is
// not an error.
func (s *SQLiteStore) DeleteQuery(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saved_queries WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete query: %w", err)
	}
	return nil
}
