package executor_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sablhq/warehouse/internal/datasource"
	"github.com/sablhq/warehouse/internal/executor"
	"github.com/sablhq/warehouse/internal/planner"
	"github.com/sablhq/warehouse/internal/sources"
	"github.com/sablhq/warehouse/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainSource wraps a sqlmock-backed *sql.DB as a sources.Source exposing
// only sources.Queryer, matching backends with no native in-flight kill
// (sqlite, duckdb, clickhouse, trino).
type plainSource struct {
	db *sql.DB
}

func (s *plainSource) SourceKind() string { return "mock-plain" }

func (s *plainSource) QueryContext(ctx context.Context, query string, args ...any) (sources.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

var _ sources.Source = &plainSource{}
var _ sources.Queryer = &plainSource{}

func newPlainDataSource(t *testing.T, name string) (*datasource.DataSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return datasource.New(name, 0, &plainSource{db: db}, nil, nil, nil, nil), mock
}

func TestRunSequentialCollectsAllResults(t *testing.T) {
	ds1, mock1 := newPlainDataSource(t, "ds1")
	ds2, mock2 := newPlainDataSource(t, "ds2")

	mock1.ExpectQuery("SELECT revenue FROM sales").
		WillReturnRows(sqlmock.NewRows([]string{"revenue"}).AddRow(100))
	mock2.ExpectQuery("SELECT clicks FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"clicks"}).AddRow(7))

	dataSources := map[string]*datasource.DataSource{"ds1": ds1, "ds2": ds2}
	queries := []*planner.DataSourceQuery{
		{DataSource: "ds1", SQL: "SELECT revenue FROM sales"},
		{DataSource: "ds2", SQL: "SELECT clicks FROM events"},
	}

	exec, results, err := executor.Run(context.Background(), dataSources, queries, executor.Options{Mode: executor.ModeSequential})
	require.NoError(t, err)
	require.NotNil(t, exec)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, []string{"revenue"}, results[0].Columns)
	assert.Equal(t, [][]any{{int64(100)}}, results[0].Rows)

	assert.NoError(t, results[1].Err)
	assert.Equal(t, []string{"clicks"}, results[1].Columns)
	assert.Equal(t, [][]any{{int64(7)}}, results[1].Rows)

	require.NoError(t, mock1.ExpectationsWereMet())
	require.NoError(t, mock2.ExpectationsWereMet())
}

func TestRunParallelCollectsAllResults(t *testing.T) {
	ds1, mock1 := newPlainDataSource(t, "ds1")
	ds2, mock2 := newPlainDataSource(t, "ds2")
	ds3, mock3 := newPlainDataSource(t, "ds3")

	mock1.ExpectQuery("SELECT a FROM t1").WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow(1))
	mock2.ExpectQuery("SELECT b FROM t2").WillReturnRows(sqlmock.NewRows([]string{"b"}).AddRow(2))
	mock3.ExpectQuery("SELECT c FROM t3").WillReturnRows(sqlmock.NewRows([]string{"c"}).AddRow(3))

	dataSources := map[string]*datasource.DataSource{"ds1": ds1, "ds2": ds2, "ds3": ds3}
	queries := []*planner.DataSourceQuery{
		{DataSource: "ds1", SQL: "SELECT a FROM t1"},
		{DataSource: "ds2", SQL: "SELECT b FROM t2"},
		{DataSource: "ds3", SQL: "SELECT c FROM t3"},
	}

	_, results, err := executor.Run(context.Background(), dataSources, queries, executor.Options{Mode: executor.ModeParallel, Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.NoErrorf(t, r.Err, "query %d", i)
	}
}

func TestRunUnknownDataSourceIsWarehouseIntegrityError(t *testing.T) {
	queries := []*planner.DataSourceQuery{
		{DataSource: "missing", SQL: "SELECT 1"},
	}

	_, results, err := executor.Run(context.Background(), map[string]*datasource.DataSource{}, queries, executor.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.True(t, util.Is(results[0].Err, util.KindWarehouseIntegrity))
}

func TestRunQueryErrorIsWrapped(t *testing.T) {
	ds, mock := newPlainDataSource(t, "ds1")
	mock.ExpectQuery("SELECT bad FROM t").WillReturnError(sql.ErrNoRows)

	queries := []*planner.DataSourceQuery{{DataSource: "ds1", SQL: "SELECT bad FROM t"}}
	_, results, err := executor.Run(context.Background(), map[string]*datasource.DataSource{"ds1": ds}, queries, executor.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, sql.ErrNoRows)
}

func TestRunTimeoutProducesDataSourceQueryTimeout(t *testing.T) {
	ds, mock := newPlainDataSource(t, "ds1")
	mock.ExpectQuery("SELECT slow FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(1)).
		WillDelayFor(50 * time.Millisecond)

	queries := []*planner.DataSourceQuery{{DataSource: "ds1", SQL: "SELECT slow FROM t"}}
	_, results, err := executor.Run(context.Background(), map[string]*datasource.DataSource{"ds1": ds}, queries, executor.Options{Timeout: 5 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.True(t, util.Is(results[0].Err, util.KindDataSourceQueryTimeout))
}

// cancellableSource is a sources.Canceller whose QueryCancellable blocks
// until the context is cancelled, so a concurrent Kill can be observed
// reaching it through CancelInFlight rather than just through the context.
type cancellableSource struct {
	started   chan struct{}
	token     string
	cancelled chan string
}

func (s *cancellableSource) SourceKind() string { return "mock-cancellable" }

func (s *cancellableSource) QueryCancellable(ctx context.Context, query string, args ...any) (sources.Rows, string, error) {
	close(s.started)
	<-ctx.Done()
	return nil, "", ctx.Err()
}

func (s *cancellableSource) CancelInFlight(ctx context.Context, token string) error {
	s.cancelled <- token
	return nil
}

var _ sources.Source = &cancellableSource{}
var _ sources.Canceller = &cancellableSource{}

func TestExecutionKillCancelsInFlightQueryAndUsesNativeCancel(t *testing.T) {
	src := &cancellableSource{started: make(chan struct{}), token: "pid-42", cancelled: make(chan string, 1)}
	ds := datasource.New("ds1", 0, src, nil, nil, nil, nil)

	queries := []*planner.DataSourceQuery{{DataSource: "ds1", SQL: "SELECT pg_sleep(100)"}}
	exec := executor.NewExecution()

	done := make(chan struct {
		results []*executor.Result
		err     error
	}, 1)
	go func() {
		results, err := exec.Run(context.Background(), map[string]*datasource.DataSource{"ds1": ds}, queries, executor.Options{Timeout: time.Minute})
		done <- struct {
			results []*executor.Result
			err     error
		}{results, err}
	}()

	<-src.started
	exec.Kill(context.Background())

	select {
	case token := <-src.cancelled:
		assert.Equal(t, "pid-42", token)
	case <-time.After(time.Second):
		t.Fatal("CancelInFlight was never called")
	}

	select {
	case out := <-done:
		require.Error(t, out.err)
		assert.True(t, util.Is(out.err, util.KindExecutionKilled))
		require.Len(t, out.results, 1)
		assert.True(t, util.Is(out.results[0].Err, util.KindExecutionKilled))
	case <-time.After(time.Second):
		t.Fatal("Run never returned after Kill")
	}

	// A second Kill is a no-op: it must not block or panic, and must not
	// re-deliver another cancellation token.
	exec.Kill(context.Background())
	select {
	case <-src.cancelled:
		t.Fatal("CancelInFlight should not be invoked again by a repeat Kill")
	case <-time.After(20 * time.Millisecond):
	}
}
