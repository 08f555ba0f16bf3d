// Package mysql connects the warehouse engine to a MySQL/MariaDB database.
// Cancellation uses the native CONNECTION_ID()/KILL QUERY mechanism: each
// checked-out connection reports its own connection id so the executor can
// kill it from a side connection on an explicit kill. A timeout cancels
// the query through its context only.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	dmysql "github.com/go-sql-driver/mysql"
	"github.com/sablhq/warehouse/internal/sources"
	"go.opentelemetry.io/otel/trace"
)

const SourceKind string = "mysql"

var _ sources.SourceConfig = Config{}

func init() {
	sources.Register(SourceKind)
}

type Config struct {
	Name     string
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

func (r Config) SourceConfigKind() string { return SourceKind }

func (r Config) Initialize(ctx context.Context, tracer trace.Tracer) (sources.Source, error) {
	//nolint:all // Reassigned ctx
	ctx, span := sources.InitConnectionSpan(ctx, tracer, SourceKind, r.Name)
	defer span.End()

	cfg := dmysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", r.Host, r.Port)
	cfg.User = r.User
	cfg.Passwd = r.Password
	cfg.DBName = r.Database
	cfg.ParseTime = true

	pool, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)

	if err := pool.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("unable to connect successfully: %w", err)
	}

	return &Source{Config: r, Pool: pool}, nil
}

var _ sources.Source = &Source{}
var _ sources.Canceller = &Source{}

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

// QueryCancellable implements sources.Canceller. It checks out a connection
// dedicated to this one query, reads its server-side CONNECTION_ID(), and
// runs the query on that same connection so the id returned is guaranteed to
// still identify it for a later KILL QUERY.
func (s *Source) QueryCancellable(ctx context.Context, query string, args ...any) (sources.Rows, string, error) {
	conn, err := s.Pool.Conn(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("unable to acquire connection: %w", err)
	}
	var id string
	if err := conn.QueryRowContext(ctx, "SELECT CONNECTION_ID()").Scan(&id); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("unable to read connection id: %w", err)
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		conn.Close()
		return nil, "", err
	}
	return &dedicatedRows{Rows: rows, conn: conn}, id, nil
}

// CancelInFlight issues KILL QUERY against the given connection id from a
// short-lived side connection.
func (s *Source) CancelInFlight(ctx context.Context, token string) error {
	_, err := s.Pool.ExecContext(ctx, fmt.Sprintf("KILL QUERY %s", token))
	return err
}

// dedicatedRows closes the dedicated connection QueryCancellable checked out
// once the caller is done reading rows from it.
type dedicatedRows struct {
	*sql.Rows
	conn *sql.Conn
}

func (r *dedicatedRows) Close() error {
	err := r.Rows.Close()
	if cerr := r.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
