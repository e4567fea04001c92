package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// connection health check timeout.
const healthCheckTimeout = 5 * time.Second

var (
	// ErrNoDatabaseConnection is returned when an operation requires a database connection but none exists.
	ErrNoDatabaseConnection = errors.New("no database connection")

	// ErrConnectionFailed is returned when establishing a database connection fails.
	ErrConnectionFailed = errors.New("database connection failed")
)

// Connection wraps a PostgreSQL connection pool configured from Config.
//
// The wrapper exists so stores depend on a single injected type instead of
// a raw *sql.DB, keeping pool configuration and health checks in one place.
type Connection struct {
	db *sql.DB
}

// Connect opens a PostgreSQL connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}

	return &Connection{db: db}, nil
}

// NewConnection wraps an existing *sql.DB.
// Used by tests that manage their own database lifecycle (testcontainers).
func NewConnection(db *sql.DB) *Connection {
	return &Connection{db: db}
}

// BeginTx starts a transaction.
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if c == nil || c.db == nil {
		return nil, ErrNoDatabaseConnection
	}

	return c.db.BeginTx(ctx, opts)
}

// ExecContext executes a query without returning rows.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c == nil || c.db == nil {
		return nil, ErrNoDatabaseConnection
	}

	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c == nil || c.db == nil {
		return nil, ErrNoDatabaseConnection
	}

	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// HealthCheck verifies the connection is alive within a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return ErrNoDatabaseConnection
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return nil
}

// Close closes the underlying connection pool.
func (c *Connection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	return c.db.Close()
}
