// Package duckdb connects the warehouse engine to an embedded DuckDB
// database, either file-backed or transient in-process. DuckDB is a
// natural fit for ad-hoc and analytical data sources that don't warrant a
// standalone server; like sqlite it has no native in-flight cancellation,
// so the executor falls back to context cancellation for it.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/sablhq/warehouse/internal/sources"
	"go.opentelemetry.io/otel/trace"
)

const SourceKind string = "duckdb"

var _ sources.SourceConfig = Config{}

func init() {
	sources.Register(SourceKind)
}

// Config names the DuckDB database file, or leaves Path empty for a
// transient in-process database.
type Config struct {
	Name string
	Path string
}

func (r Config) SourceConfigKind() string { return SourceKind }

func (r Config) Initialize(ctx context.Context, tracer trace.Tracer) (sources.Source, error) {
	//nolint:all // Reassigned ctx
	ctx, span := sources.InitConnectionSpan(ctx, tracer, SourceKind, r.Name)
	defer span.End()

	pool, err := sql.Open("duckdb", r.Path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	if err := pool.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("unable to connect successfully: %w", err)
	}

	return &Source{Config: r, Pool: pool}, nil
}

var _ sources.Source = &Source{}

type Source struct {
	Config
	Pool *sql.DB
}

func (s *Source) SourceKind() string { return SourceKind }

func (s *Source) DB() *sql.DB { return s.Pool }

// QueryContext implements sources.Queryer directly over database/sql, whose
// *sql.Rows already satisfies sources.Rows.
func (s *Source) QueryContext(ctx context.Context, query string, args ...any) (sources.Rows, error) {
	return s.Pool.QueryContext(ctx, query, args...)
}
