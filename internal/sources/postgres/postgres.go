// Package postgres connects the warehouse engine to a PostgreSQL database.
// Query cancellation uses the native pg_cancel_backend mechanism: the
// connection pool hands out a backend PID alongside every query so the
// executor can cancel it from a side connection on an explicit kill. A
// timeout cancels the query through its context only.
package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sablhq/warehouse/internal/sources"
	"go.opentelemetry.io/otel/trace"
)

const SourceKind string = "postgres"

var _ sources.SourceConfig = Config{}

func init() {
	sources.Register(SourceKind)
}

type Config struct {
	Name        string
	Host        string
	Port        string
	Database    string
	User        string
	Password    string
	QueryParams map[string]string
}

func (r Config) SourceConfigKind() string { return SourceKind }

func (r Config) Initialize(ctx context.Context, tracer trace.Tracer) (sources.Source, error) {
	//nolint:all // Reassigned ctx
	ctx, span := sources.InitConnectionSpan(ctx, tracer, SourceKind, r.Name)
	defer span.End()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?%s", r.User, r.Password, r.Host, r.Port, r.Database, ConvertParamMapToRawQuery(r.QueryParams))
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to connect successfully: %w", err)
	}

	return &Source{Config: r, Pool: pool}, nil
}

var _ sources.Source = &Source{}
var _ sources.Canceller = &Source{}

type Source struct {
	Config
	Pool *pgxpool.Pool
}

func (s *Source) SourceKind() string { return SourceKind }

func (s *Source) PostgresPool() *pgxpool.Pool { return s.Pool }

// AcquireWithPID checks out a connection and returns it along with a token
// (the backend PID, stringified) CancelInFlight can later use to kill it.
func (s *Source) AcquireWithPID(ctx context.Context) (*pgxpool.Conn, string, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("unable to acquire connection: %w", err)
	}
	pid := conn.Conn().PgConn().PID()
	return conn, strconv.FormatUint(uint64(pid), 10), nil
}

// QueryCancellable implements sources.Canceller. It checks out a connection
// dedicated to this one query and runs the query on that same connection, so
// the backend PID returned alongside it is guaranteed to still identify the
// connection actually running it.
func (s *Source) QueryCancellable(ctx context.Context, query string, args ...any) (sources.Rows, string, error) {
	conn, token, err := s.AcquireWithPID(ctx)
	if err != nil {
		return nil, "", err
	}
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		conn.Release()
		return nil, "", err
	}
	return &pgxRows{rows: rows, conn: conn}, token, nil
}

// CancelInFlight issues pg_cancel_backend for the given backend PID from a
// short-lived side connection, per the postgres dialect's native kill.
func (s *Source) CancelInFlight(ctx context.Context, token string) error {
	pid, err := strconv.ParseInt(token, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid cancellation token %q: %w", token, err)
	}
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("unable to acquire connection for cancel: %w", err)
	}
	defer conn.Release()
	_, err = conn.Exec(ctx, "SELECT pg_cancel_backend($1)", int32(pid))
	return err
}

// pgxRows adapts pgx.Rows to the sources.Rows surface: pgx exposes column
// names through FieldDescriptions rather than a Columns method, and its
// Close takes no error, so both need a thin translation.
type pgxRows struct {
	rows pgx.Rows
	conn *pgxpool.Conn
}

func (r *pgxRows) Columns() ([]string, error) {
	fields := r.rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

func (r *pgxRows) Next() bool { return r.rows.Next() }

func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }

func (r *pgxRows) Err() error { return r.rows.Err() }

func (r *pgxRows) Close() error {
	r.rows.Close()
	r.conn.Release()
	return nil
}

// ConvertParamMapToRawQuery renders a map of DSN query parameters as a
// stable-ish "k=v&k2=v2" string.
func ConvertParamMapToRawQuery(params map[string]string) string {
	vals := make([]string, 0, len(params))
	for k, v := range params {
		vals = append(vals, fmt.Sprintf("%s=%s", k, v))
	}
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += "&"
		}
		out += v
	}
	return out
}
