package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/amasuba/uraics-revenue-assurance/internal/config"
	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// DB is the read-only gateway to the relational tax-administration replica.
// Query templates come from the risk catalogue or the fixed lookup set in
// this package; it never executes caller-supplied SQL.
type DB struct {
	conn           *sqlx.DB
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// Open creates a pooled connection to the relational replica and verifies
// it with a ping. A failure here is fatal at boot: the process must not
// begin serving requests without its source of truth.
func Open(ctx context.Context, cfg config.OracleConfig) (*DB, error) {
	conn, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to open database", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to ping database", err)
	}

	return &DB{
		conn:           conn,
		acquireTimeout: cfg.AcquireTimeout,
		logger:         defaultLogger(),
	}, nil
}

func defaultLogger() *slog.Logger {
	return slog.Default().With("component", "database")
}

// Close releases the connection pool. In-flight queries run to completion.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Execute runs a named-parameter query template and returns its rows as
// column-name → value mappings. Column names are normalized to lower case
// so callers are insulated from engine case conventions.
//
// Pool acquisition is bounded by the configured acquire timeout; beyond it
// the call fails fast with DB_POOL_TIMEOUT instead of queueing. A query
// that started runs to completion or failure.
func (db *DB) Execute(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	start := time.Now()

	bound, args, err := sqlx.Named(query, params)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to bind query parameters", err)
	}
	bound = db.conn.Rebind(bound)

	acquireCtx, cancel := context.WithTimeout(ctx, db.acquireTimeout)
	defer cancel()

	conn, err := db.conn.Connx(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewRetryableError(types.DB_POOL_TIMEOUT, "timed out waiting for a pooled connection")
		}
		return nil, wrapQueryError("failed to acquire connection", err)
	}
	defer conn.Close()

	rows, err := conn.QueryxContext(ctx, bound, args...)
	if err != nil {
		return nil, wrapQueryError("query execution failed", err)
	}
	defer rows.Close()

	var results []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, wrapQueryError("failed to scan row", err)
		}
		results = append(results, lowerKeys(row))
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError("result iteration failed", err)
	}

	db.logger.Debug("query executed",
		"rows", len(results),
		"duration", time.Since(start))

	return results, nil
}

// Health reports connectivity to the relational replica.
func (db *DB) Health(ctx context.Context) types.HealthStatus {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.conn.PingContext(healthCtx); err != nil {
		return types.Unhealthy("ping failed: " + err.Error())
	}
	return types.Healthy("connected")
}

// wrapQueryError classifies a driver error. Dropped connections are
// retryable for batch callers; everything else is a plain query failure.
func wrapQueryError(message string, err error) *types.ServiceError {
	if errors.Is(err, driver.ErrBadConn) {
		wrapped := types.WrapError(types.DB_CONNECTION_LOST, message, err)
		wrapped.Retryable = true
		return wrapped
	}
	return types.WrapError(types.DB_QUERY_FAILED, message, err)
}

func lowerKeys(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[strings.ToLower(k)] = v
	}
	return out
}
