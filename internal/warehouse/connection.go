package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Sentinel errors for warehouse connectivity. Connectivity failures are a
// global precondition of a pipeline run and are always fatal; they are kept
// distinct from per-statement failures (ErrStatement in loader.go).
var (
	// ErrNoDatabaseConnection is returned when a component needs a database
	// connection and none was provided.
	ErrNoDatabaseConnection = errors.New("no database connection available")

	// ErrConnectivity is returned when the warehouse cannot be reached or
	// authentication fails.
	ErrConnectivity = errors.New("warehouse connectivity failed")
)

const pingTimeout = 5 * time.Second

// Connection wraps a *sql.DB with pool settings from Config.
//
// The connection is a scoped resource: the pipeline driver acquires it at
// startup, owns it exclusively for the lifetime of the run, and releases it
// on every exit path. Nothing else mutates it concurrently.
type Connection struct {
	db *sql.DB
}

// NewConnection opens a pooled PostgreSQL connection and verifies it with a
// ping. A failed ping surfaces as ErrConnectivity so callers can tell
// "cannot reach the warehouse" apart from later query errors.
func NewConnection(cfg *Config) (*Connection, error) {
	if cfg == nil {
		return nil, ErrNoDatabaseConnection
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	return &Connection{db: db}, nil
}

// HealthCheck verifies the database connection is healthy and ready to serve
// statements. Returns ErrConnectivity wrapping the underlying ping error.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return ErrNoDatabaseConnection
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	return nil
}

// BeginTx starts a transaction on the underlying pool.
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, opts)
}

// ExecContext executes a statement outside any transaction.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query outside any transaction.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Close releases the connection pool. Safe to call on a nil receiver so
// cleanup paths don't need to guard.
func (c *Connection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	return c.db.Close()
}

// isConnectionError reports whether an error indicates the database became
// unreachable mid-run. Uses PostgreSQL error codes (Class 08) plus the
// standard database/sql sentinel.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08" // connection exception
	}

	return false
}
