// Package sqlite connects the warehouse engine to a file-backed or
// in-memory SQLite database. It is commonly used for small reference data
// sources and in tests; it has no native in-flight cancellation so the
// executor falls back to context cancellation for it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sablhq/warehouse/internal/sources"
	"go.opentelemetry.io/otel/trace"
)

const SourceKind string = "sqlite"

var _ sources.SourceConfig = Config{}

func init() {
	sources.Register(SourceKind)
}

// Config names the SQLite database file, or ":memory:" for a transient
// in-process database.
type Config struct {
	Name string
	Path string
}

func (r Config) SourceConfigKind() string { return SourceKind }

func (r Config) Initialize(ctx context.Context, tracer trace.Tracer) (sources.Source, error) {
	//nolint:all // Reassigned ctx
	ctx, span := sources.InitConnectionSpan(ctx, tracer, SourceKind, r.Name)
	defer span.End()

	path := r.Path
	if path == "" {
		path = ":memory:"
	}

	pool, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	// SQLite only tolerates one writer; cap the pool so concurrent report
	// fan-out doesn't trip "database is locked".
	pool.SetMaxOpenConns(1)

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
