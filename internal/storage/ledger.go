package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/snapmap-io/snapmap/internal/config"
)

// Sentinel errors for ledger operations.
var (
	// ErrLedgerCommitFailed is returned when committing a validated upload fails.
	ErrLedgerCommitFailed = errors.New("ledger commit failed")

	// ErrLedgerReverseFailed is returned when reversing a committed upload fails.
	ErrLedgerReverseFailed = errors.New("ledger reverse failed")

	// ErrInvalidCleanupInterval is returned when an invalid cleanup interval is provided.
	ErrInvalidCleanupInterval = errors.New("cleanup interval must be greater than zero")
)

// Cleanup configuration constants.
const (
	// cleanupQueryTimeout is the maximum time allowed for a single cleanup query execution.
	cleanupQueryTimeout = 30 * time.Second
	// shutdownTimeout is the maximum time to wait for cleanup goroutine to stop during Close().
	shutdownTimeout = 5 * time.Second
	// cleanupBatchSize is the maximum number of rows to delete per batch to avoid long-running locks.
	cleanupBatchSize = 10000
	// batchSleepDuration is the sleep time between batches to avoid overwhelming the database.
	batchSleepDuration = 100 * time.Millisecond
	// rejectedRetention is how long rejected tombstone rows are kept before cleanup.
	rejectedRetention = 24 * time.Hour
)

// Ledger implements atomic point persistence with aggregate user counters
// on a PostgreSQL/PostGIS backend.
//
// Guarantees:
//   - Atomicity: a point insert and its counter update land in one transaction
//   - Idempotency: the UNIQUE constraint on points.image_url makes duplicate
//     arrival notifications insert at most one point and award at most once
//   - Serialization: the owner's user row is locked FOR UPDATE, so concurrent
//     commits and reversals for the same user cannot interleave
//   - Background cleanup: rejected tombstone rows are purged after retention
type Ledger struct {
	conn            *Connection
	logger          *slog.Logger
	cleanupInterval time.Duration
	cleanupStop     chan struct{} // Signal to stop cleanup goroutine
	cleanupDone     chan struct{} // Signal cleanup has stopped
	closeOnce       sync.Once
}

// NewLedger creates a PostgreSQL-backed ledger with background tombstone cleanup.
// Returns error if connection is nil (ErrNoDatabaseConnection).
//
// The cleanup goroutine starts automatically and stops gracefully on Close().
func NewLedger(conn *Connection, cleanupInterval time.Duration) (*Ledger, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	if cleanupInterval <= 0 {
		return nil, ErrInvalidCleanupInterval
	}

	ledger := &Ledger{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	go ledger.runCleanup()

	ledger.logger.Info("Started rejected tombstone cleanup goroutine",
		slog.Duration("interval", cleanupInterval))

	return ledger, nil
}

// Close stops the cleanup goroutine gracefully.
// This method is safe to call multiple times.
//
// Note: Does NOT close the database connection, as the connection is managed
// externally via dependency injection. The caller closes the connection.
func (l *Ledger) Close() error {
	l.closeOnce.Do(func() {
		close(l.cleanupStop)

		select {
		case <-l.cleanupDone:
			l.logger.Info("Cleanup goroutine stopped gracefully")
		case <-time.After(shutdownTimeout):
			l.logger.Warn("Cleanup goroutine did not stop within timeout")
		}
	})

	return nil
}

// HealthCheck verifies the database connection is healthy and ready to serve requests.
//
// Used by readiness probes and the /ready endpoint.
func (l *Ledger) HealthCheck(ctx context.Context) error {
	if l.conn == nil {
		return ErrNoDatabaseConnection
	}

	return l.conn.HealthCheck(ctx)
}

// Commit stores a validated point and awards its owner in one transaction.
//
// Returns three values: (committed, duplicate, error)
//   - committed (first bool): true if the point was newly stored and counters updated
//   - duplicate (second bool): true if a point with the same image URL already exists
//   - error: non-nil if the operation failed
//
// Return value combinations:
//   - (true, false, nil)  → Point stored, owner counters incremented
//   - (false, true, nil)  → Duplicate delivery detected, nothing changed
//   - (false, false, err) → Operation failed
//
// Duplicate detection happens at the storage level: the insert carries
// ON CONFLICT (image_url) DO NOTHING, so two racing deliveries of the same
// notification can never both award points. Duplicates are success, not
// errors - at-least-once delivery makes them routine.
//
// A missing owner row is also not an error: the point is stored, the
// award is skipped, and a warning is logged.
func (l *Ledger) Commit(ctx context.Context, point *Point) (bool, bool, error) {
	if err := l.validatePoint(point); err != nil {
		return false, false, err
	}

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("%w: failed to begin transaction: %w", ErrLedgerCommitFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	// Lock the owner row first. This serializes all commits and reversals
	// for the same user, so counter updates cannot interleave.
	//
	// A missing owner does not abort the commit: the point is still the
	// record of a validated upload, so it is kept and only the award is
	// skipped. Failing here would redeliver the notification forever.
	ownerMissing := false

	if err := lockUserRow(ctx, tx, point.UserID); err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return false, false, err
		}

		ownerMissing = true
	}

	inserted, err := insertPoint(ctx, tx, point)
	if err != nil {
		return false, false, fmt.Errorf("%w: %w", ErrLedgerCommitFailed, err)
	}

	if !inserted {
		// Duplicate delivery. The transaction holds no changes; roll back
		// via the deferred Rollback and report success.
		l.logger.Debug("duplicate commit detected",
			slog.String("image_url", point.ImageURL),
			slog.String("user_id", point.UserID),
		)

		return false, true, nil
	}

	if ownerMissing {
		l.logger.Warn("owner not found, point kept without award",
			slog.String("image_url", point.ImageURL),
			slog.String("user_id", point.UserID),
		)
	} else {
		query := `
			UPDATE users
			SET total_points = total_points + $1,
			    total_uploads = total_uploads + 1,
			    updated_at = NOW()
			WHERE id = $2
		`

		if _, err := tx.ExecContext(ctx, query, PointsPerUpload, point.UserID); err != nil {
			return false, false, fmt.Errorf("%w: counter update failed: %w", ErrLedgerCommitFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("%w: %w", ErrLedgerCommitFailed, err)
	}

	l.logger.Info("point committed",
		slog.String("image_url", point.ImageURL),
		slog.String("user_id", point.UserID),
		slog.Int("category", int(point.Category)),
	)

	return true, false, nil
}

// RecordRejection stores a rejected tombstone for an upload that failed
// validation. Tombstones never touch user counters and are excluded from
// every query; background cleanup purges them after retention.
//
// Idempotent by image URL like Commit: redelivered rejection outcomes
// insert at most one tombstone.
func (l *Ledger) RecordRejection(ctx context.Context, point *Point) error {
	if err := l.validatePoint(point); err != nil {
		return err
	}

	query := `
		INSERT INTO points (user_id, image_url, location, category, rejected, captured_at)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, TRUE, $6)
		ON CONFLICT (image_url) DO NOTHING
	`

	_, err := l.conn.ExecContext(ctx, query,
		point.UserID, point.ImageURL, point.Longitude, point.Latitude,
		int(point.Category), point.CapturedAt)
	if err != nil {
		return fmt.Errorf("%w: tombstone insert failed: %w", ErrLedgerCommitFailed, err)
	}

	return nil
}

// Reverse deletes a committed point and withdraws its award in one transaction.
//
// Only the owner may reverse a point: a pointID belonging to another user
// returns ErrPointNotFound, indistinguishable from a missing point.
//
// Counters clamp at zero. A reversal after counters were already zeroed
// (or after a partial backfill) never drives them negative.
//
// Returns (true, nil) if the point was deleted, (false, ErrPointNotFound)
// if no matching point exists.
func (l *Ledger) Reverse(ctx context.Context, pointID, ownerID string) (bool, error) {
	if pointID == "" || ownerID == "" {
		return false, ErrPointNotFound
	}

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: failed to begin transaction: %w", ErrLedgerReverseFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := lockUserRow(ctx, tx, ownerID); err != nil {
		return false, err
	}

	var rejected bool

	query := `
		DELETE FROM points
		WHERE id = $1 AND user_id = $2
		RETURNING rejected
	`

	err = tx.QueryRowContext(ctx, query, pointID, ownerID).Scan(&rejected)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrPointNotFound
	}

	if err != nil {
		return false, fmt.Errorf("%w: delete failed: %w", ErrLedgerReverseFailed, err)
	}

	// Tombstones never awarded points, so their removal withdraws nothing.
	if !rejected {
		query = `
			UPDATE users
			SET total_points = GREATEST(total_points - $1, 0),
			    total_uploads = GREATEST(total_uploads - 1, 0),
			    updated_at = NOW()
			WHERE id = $2
		`

		if _, err := tx.ExecContext(ctx, query, PointsPerUpload, ownerID); err != nil {
			return false, fmt.Errorf("%w: counter update failed: %w", ErrLedgerReverseFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrLedgerReverseFailed, err)
	}

	l.logger.Info("point reversed",
		slog.String("point_id", pointID),
		slog.String("user_id", ownerID),
	)

	return true, nil
}

// validatePoint checks the fields Commit and RecordRejection require.
func (l *Ledger) validatePoint(point *Point) error {
	if point == nil {
		return fmt.Errorf("%w: point is nil", ErrLedgerCommitFailed)
	}

	if point.UserID == "" {
		return fmt.Errorf("%w: user ID is empty", ErrLedgerCommitFailed)
	}

	if point.ImageURL == "" {
		return fmt.Errorf("%w: image URL is empty", ErrLedgerCommitFailed)
	}

	if !point.Category.Valid() {
		return ErrInvalidCategory
	}

	return ValidateCoordinates(point.Latitude, point.Longitude)
}

// lockUserRow takes a row-level lock on the owner for the duration of the
// transaction. Two concurrent transactions touching the same user's counters
// execute strictly one after the other.
func lockUserRow(ctx context.Context, tx *sql.Tx, userID string) error {
	var id string

	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to lock user row: %w", err)
	}

	return nil
}

// insertPoint inserts an accepted point row.
// Returns (false, nil) when a point with the same image URL already exists.
func insertPoint(ctx context.Context, tx *sql.Tx, point *Point) (bool, error) {
	query := `
		INSERT INTO points (user_id, image_url, location, category, rejected, captured_at)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, FALSE, $6)
		ON CONFLICT (image_url) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, query,
		point.UserID, point.ImageURL, point.Longitude, point.Latitude,
		int(point.Category), point.CapturedAt)
	if err != nil {
		return false, fmt.Errorf("point insert failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("point insert result unavailable: %w", err)
	}

	return rows == 1, nil
}

// runCleanup periodically purges expired rejected tombstones.
// Runs until Close() signals the stop channel.
func (l *Ledger) runCleanup() {
	defer close(l.cleanupDone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.cleanupStop:
			l.logger.Info("Stopping tombstone cleanup goroutine")

			return
		case <-ticker.C:
			cleanupCtx, cleanupCancel := context.WithTimeout(ctx, cleanupQueryTimeout)
			l.cleanupRejectedTombstones(cleanupCtx)
			cleanupCancel()
		}
	}
}

// cleanupRejectedTombstones deletes rejected tombstone rows past retention in batches.
//
// Batching strategy:
//   - Deletes up to cleanupBatchSize rows per batch to avoid long-running table locks
//   - Loops until no more expired rows exist (handles large backlogs)
//   - Sleeps batchSleepDuration between batches
//   - Respects context cancellation for graceful shutdown mid-cleanup
//
// Failures are logged but don't crash the cleanup goroutine.
func (l *Ledger) cleanupRejectedTombstones(ctx context.Context) {
	startTime := time.Now()
	totalDeleted := int64(0)
	batchCount := 0

	for {
		if ctx.Err() != nil {
			l.logger.Info("Cleanup cancelled",
				slog.Int64("rows_deleted", totalDeleted),
				slog.Int("batches_completed", batchCount),
				slog.Duration("duration", time.Since(startTime)))

			return
		}

		query := `
			DELETE FROM points
			WHERE id IN (
				SELECT id
				FROM points
				WHERE rejected AND created_at < NOW() - make_interval(secs => $1)
				ORDER BY created_at ASC
				LIMIT $2
			)
		`

		result, err := l.conn.ExecContext(ctx, query, rejectedRetention.Seconds(), cleanupBatchSize)
		if err != nil {
			l.logger.Error("Failed to cleanup rejected tombstones",
				slog.String("error", err.Error()),
				slog.Int64("rows_deleted_before_error", totalDeleted),
				slog.Int("batches_completed", batchCount),
				slog.String("status", "failed"))

			return
		}

		rowsDeleted, err := result.RowsAffected()
		if err != nil {
			l.logger.Warn("Cleanup batch completed but row count unavailable",
				slog.String("error", err.Error()),
				slog.Int("batches_completed", batchCount),
				slog.String("status", "success"))

			return
		}

		totalDeleted += rowsDeleted
		batchCount++

		if rowsDeleted < cleanupBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			l.logger.Info("Cleanup cancelled between batches",
				slog.Int64("rows_deleted", totalDeleted),
				slog.Int("batches_completed", batchCount),
				slog.Duration("duration", time.Since(startTime)))

			return
		case <-time.After(batchSleepDuration):
		}
	}

	if totalDeleted > 0 {
		l.logger.Info("Tombstone cleanup completed",
			slog.Int64("rows_deleted", totalDeleted),
			slog.Int("batches_completed", batchCount),
			slog.Duration("duration", time.Since(startTime)),
			slog.String("status", "success"))
	}
}
