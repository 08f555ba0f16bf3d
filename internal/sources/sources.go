// Package sources owns the low-level connection to one SQL backend. Each
// backend (postgres, mysql, sqlite, clickhouse, trino, ...) registers itself
// here the same way the rest of the module registers plugins: an init()
// function calling Register with a unique kind string. The higher-level
// internal/datasource package composes a registered Source with table
// metadata and a join graph to form the "Data Source" described in the
// warehouse model.
package sources

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// Source is a live connection to one backend. Every backend-specific Source
// type embeds its Config and exposes a typed accessor (e.g. PostgresPool())
// for tools that need the concrete driver handle.
type Source interface {
	SourceKind() string
}

// SourceConfig describes how to connect to a backend before the connection
// exists. Kind-specific packages implement this over a plain Go struct --
// unlike the surrounding tool ecosystem, the warehouse core never decodes
// SourceConfig from YAML itself: callers build it from their own
// already-validated configuration (see the warehouse integrity contract) and
// hand it to Initialize.
type SourceConfig interface {
	SourceConfigKind() string
	Initialize(ctx context.Context, tracer trace.Tracer) (Source, error)
}

// Rows is the minimal result-set surface the executor needs, satisfied
// directly by *database/sql.Rows and adapted from pgx.Rows for postgres, so
// the executor can fan out across every backend kind uniformly.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Queryer is implemented by every backend Source and runs one query,
// returning its rows through the common Rows surface regardless of
// whether the backend's native driver is database/sql-based or not.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// Canceller is implemented by backends with a native in-flight-query kill
// mechanism (connection-level kill by PID for PostgreSQL, by connection id
// for MySQL). Backends without one simply don't implement it; the executor
// falls back to best-effort context cancellation in that case, per the
// concurrency model.
type Canceller interface {
	// QueryCancellable runs a query on a connection dedicated to it (rather
	// than an arbitrary pooled connection) and returns both the resulting
	// rows and a token identifying that connection, so a concurrent
	// CancelInFlight(token) call is guaranteed to target this exact query.
	QueryCancellable(ctx context.Context, query string, args ...any) (rows Rows, token string, err error)
	// CancelInFlight asks the backend to abort the query identified by
	// token, where token was returned by QueryCancellable for that query.
	CancelInFlight(ctx context.Context, token string) error
}

var registry = make(map[string]bool)

// Register records that a source kind exists. It is called from each
// backend package's init() and returns false, leaving the registry
// unchanged, on duplicate registration.
func Register(kind string) bool {
	if registry[kind] {
		return false
	}
	registry[kind] = true
	return true
}

// Known reports whether kind names a registered backend. The warehouse
// integrity check uses this to reject configuration naming an unsupported
// backend before any connection is attempted.
func Known(kind string) bool {
	return registry[kind]
}

// InitConnectionSpan starts a tracing span around backend connection setup,
// named consistently across all Source implementations.
func InitConnectionSpan(ctx context.Context, tracer trace.Tracer, sourceKind, name string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, fmt.Sprintf("sources/%s/%s/connect", sourceKind, name))
}
