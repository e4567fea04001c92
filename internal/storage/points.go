package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// defaultQueryLimit caps bounding-box results when the caller passes no limit.
const defaultQueryLimit = 1000

// ErrPointQueryFailed is returned when a point query fails.
var ErrPointQueryFailed = errors.New("point query failed")

// pointColumns is the shared select list for point queries.
// Latitude and longitude are unpacked from the geography column; weight is
// derived from category in Go, not stored.
const pointColumns = `
	id, user_id, image_url,
	ST_Y(location::geometry) AS latitude,
	ST_X(location::geometry) AS longitude,
	category, rejected, captured_at, created_at
`

// QueryBounds returns all non-rejected points inside a bounding box,
// newest first.
//
// Both edges of the box are inclusive: a point lying exactly on a boundary
// is returned. ST_Intersects against the envelope gives inclusive boundary
// semantics, unlike ST_Contains/ST_Within which exclude the boundary.
//
// A limit of 0 applies the default cap.
func (l *Ledger) QueryBounds(ctx context.Context, bounds Bounds, limit int) ([]Point, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultQueryLimit
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM points
		WHERE rejected = FALSE
		  AND ST_Intersects(location, ST_MakeEnvelope($1, $2, $3, $4, 4326)::geography)
		ORDER BY created_at DESC
		LIMIT $5
	`, pointColumns)

	rows, err := l.conn.QueryContext(ctx, query,
		bounds.MinLng, bounds.MinLat, bounds.MaxLng, bounds.MaxLat, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPointQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	return scanPoints(rows)
}

// QueryByOwner returns all of a user's points, newest first. Rejected
// tombstones are included so owners can review failed uploads.
func (l *Ledger) QueryByOwner(ctx context.Context, userID string) ([]Point, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM points
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, pointColumns)

	rows, err := l.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPointQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	return scanPoints(rows)
}

// FindByImageURL returns the point recorded for a storage object name,
// including rejected tombstones. Used by the validation worker to answer
// redelivered notifications without reprocessing.
func (l *Ledger) FindByImageURL(ctx context.Context, imageURL string) (*Point, error) {
	if imageURL == "" {
		return nil, ErrPointNotFound
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM points
		WHERE image_url = $1
	`, pointColumns)

	var (
		point    Point
		category int
	)

	err := l.conn.QueryRowContext(ctx, query, imageURL).Scan(
		&point.ID, &point.UserID, &point.ImageURL,
		&point.Latitude, &point.Longitude,
		&category, &point.Rejected, &point.CapturedAt, &point.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPointNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPointQueryFailed, err)
	}

	point.Category = Category(category)
	point.Weight = point.Category.Weight()

	return &point, nil
}

// FindPoint returns a single point by ID, scoped to its owner. A point that
// exists but belongs to another user is reported as not found.
func (l *Ledger) FindPoint(ctx context.Context, pointID, ownerID string) (*Point, error) {
	if pointID == "" || ownerID == "" {
		return nil, ErrPointNotFound
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM points
		WHERE id = $1 AND user_id = $2
	`, pointColumns)

	var (
		point    Point
		category int
	)

	err := l.conn.QueryRowContext(ctx, query, pointID, ownerID).Scan(
		&point.ID, &point.UserID, &point.ImageURL,
		&point.Latitude, &point.Longitude,
		&category, &point.Rejected, &point.CapturedAt, &point.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPointNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPointQueryFailed, err)
	}

	point.Category = Category(category)
	point.Weight = point.Category.Weight()

	return &point, nil
}

// scanPoints reads point rows into a slice, deriving weight from category.
func scanPoints(rows *sql.Rows) ([]Point, error) {
	points := make([]Point, 0)

	for rows.Next() {
		var (
			point    Point
			category int
		)

		if err := rows.Scan(
			&point.ID, &point.UserID, &point.ImageURL,
			&point.Latitude, &point.Longitude,
			&category, &point.Rejected, &point.CapturedAt, &point.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan failed: %w", ErrPointQueryFailed, err)
		}

		point.Category = Category(category)
		point.Weight = point.Category.Weight()

		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPointQueryFailed, err)
	}

	return points, nil
}
