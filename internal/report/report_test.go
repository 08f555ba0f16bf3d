package report_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sablhq/warehouse/internal/combined"
	"github.com/sablhq/warehouse/internal/datasource"
	"github.com/sablhq/warehouse/internal/dialect"
	"github.com/sablhq/warehouse/internal/executor"
	"github.com/sablhq/warehouse/internal/field"
	"github.com/sablhq/warehouse/internal/graph"
	"github.com/sablhq/warehouse/internal/metadata"
	"github.com/sablhq/warehouse/internal/report"
	"github.com/sablhq/warehouse/internal/sources"
	"github.com/sablhq/warehouse/internal/util"
	"github.com/sablhq/warehouse/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqliteSource wraps a real *sql.DB (mattn/go-sqlite3) so the planner's
// generated SQL runs against an actual engine end to end, rather than
// against a predicted mock expectation.
type sqliteSource struct {
	db *sql.DB
}

func (s *sqliteSource) SourceKind() string { return "sqlite" }

func (s *sqliteSource) QueryContext(ctx context.Context, query string, args ...any) (sources.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

var _ sources.Source = &sqliteSource{}
var _ sources.Queryer = &sqliteSource{}

// buildSalesWarehouse mirrors the planner package's own sales/partners star
// schema fixture, backed here by a real in-memory sqlite database seeded
// with rows, so a Report can be executed end to end.
func buildSalesWarehouse(t *testing.T) (*warehouse.Warehouse, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE "main.sales" (revenue REAL, partner_id TEXT, order_date TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE "main.partners" (partner_id TEXT, partner_name TEXT)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO "main.partners" VALUES ('p1', 'Acme'), ('p2', 'Globex')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO "main.sales" VALUES (100.0, 'p1', '2024-01-01'), (50.0, 'p1', '2024-02-01'), (30.0, 'p2', '2024-01-15')`)
	require.NoError(t, err)

	store := metadata.NewStore("main")
	sales := metadata.NewTableAnnotation("main.sales", metadata.TableMetric)
	sales.AddColumn(&metadata.ColumnAnnotation{Column: "revenue", Active: true, Fields: []metadata.FieldBinding{{Field: "revenue"}}})
	sales.AddColumn(&metadata.ColumnAnnotation{Column: "partner_id", Active: true, Fields: []metadata.FieldBinding{{Field: "partner_id"}}})
	sales.AddColumn(&metadata.ColumnAnnotation{Column: "order_date", Active: true, Fields: []metadata.FieldBinding{{Field: "order_date"}}})
	partners := metadata.NewTableAnnotation("main.partners", metadata.TableDimension)
	partners.AddColumn(&metadata.ColumnAnnotation{Column: "partner_id", Active: true, Fields: []metadata.FieldBinding{{Field: "partner_id"}}})
	partners.AddColumn(&metadata.ColumnAnnotation{Column: "partner_name", Active: true, Fields: []metadata.FieldBinding{{Field: "partner_name"}}})
	require.NoError(t, store.AddTable(sales))
	require.NoError(t, store.AddTable(partners))

	g := graph.New()
	g.AddEdge("main.sales", "main.partners", []string{"partner_id"})

	fields := field.New()
	require.NoError(t, fields.AddMetric(&field.Field{Name: "revenue", Class: field.ClassMetric, Aggregation: field.AggSum}))
	require.NoError(t, fields.AddDimension(&field.Field{Name: "partner_id", Class: field.ClassDimension}))
	require.NoError(t, fields.AddDimension(&field.Field{Name: "partner_name", Class: field.ClassDimension}))
	require.NoError(t, fields.AddDimension(&field.Field{Name: "order_date", Class: field.ClassDimension}))

	dl, ok := dialect.For("sqlite")
	require.True(t, ok)

	ds := datasource.New("main", 0, &sqliteSource{db: db}, dl, store, g, fields)
	wh, err := warehouse.New([]*datasource.DataSource{ds}, nil)
	require.NoError(t, err)
	return wh, db
}

func TestReportExecuteEndToEnd(t *testing.T) {
	wh, _ := buildSalesWarehouse(t)
	r := report.New(wh, report.Request{
		Metrics:    []string{"revenue"},
		Dimensions: []string{"partner_name"},
	}, executor.Options{Mode: executor.ModeSequential})

	result, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Frame)
	require.Len(t, result.Frame.Rows, 2)
	require.Len(t, result.QuerySummaries, 1)
	assert.Equal(t, "main", result.QuerySummaries[0].DataSource)

	byPartner := map[string]float64{}
	for _, row := range result.Frame.Rows {
		name, _ := row.Get("partner_name")
		rev, _ := row.Get("revenue")
		fv, ok := rev.(float64)
		require.True(t, ok)
		byPartner[name.(string)] = fv
	}
	assert.Equal(t, 150.0, byPartner["Acme"])
	assert.Equal(t, 30.0, byPartner["Globex"])
}

func TestReportExecuteRollupTotals(t *testing.T) {
	wh, _ := buildSalesWarehouse(t)
	r := report.New(wh, report.Request{
		Metrics:    []string{"revenue"},
		Dimensions: []string{"partner_name"},
		Rollup:     "totals",
	}, executor.Options{})

	result, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Frame.Rows, 3)
	total := result.Frame.Rows[2]
	name, _ := total.Get("partner_name")
	assert.Equal(t, combined.Sentinel, name)
	rev, _ := total.Get("revenue")
	assert.Equal(t, 180.0, rev)
}

func TestReportExecuteOrderByAndLimit(t *testing.T) {
	wh, _ := buildSalesWarehouse(t)
	r := report.New(wh, report.Request{
		Metrics:    []string{"revenue"},
		Dimensions: []string{"partner_name"},
		OrderBy:    []report.OrderField{{Field: "revenue", Descending: true}},
		Limit:      1,
	}, executor.Options{})

	result, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Frame.Rows, 1)
	name, _ := result.Frame.Rows[0].Get("partner_name")
	assert.Equal(t, "Acme", name)
}

func TestReportExecuteRowFilter(t *testing.T) {
	wh, _ := buildSalesWarehouse(t)
	r := report.New(wh, report.Request{
		Metrics:    []string{"revenue"},
		Dimensions: []string{"partner_name"},
		RowFilters: []combined.RowFilter{{Field: "revenue", Op: ">", Value: 50.0}},
	}, executor.Options{})

	result, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Frame.Rows, 1)
	name, _ := result.Frame.Rows[0].Get("partner_name")
	assert.Equal(t, "Acme", name)
}

func TestReportExecuteUnknownDimensionSurfacesError(t *testing.T) {
	wh, _ := buildSalesWarehouse(t)
	r := report.New(wh, report.Request{
		Metrics:    []string{"revenue"},
		Dimensions: []string{"does_not_exist"},
	}, executor.Options{})

	_, err := r.Execute(context.Background())
	require.Error(t, err)
}

// blockingSource is a sources.Canceller whose first QueryCancellable call
// blocks until its context is cancelled -- letting a test observe
// Report.Kill reaching an in-flight query through Execute's Execution
// handle -- while every later call returns immediately, so the same
// Report can be re-executed successfully afterward, per §5's idempotent
// re-execution requirement.
type blockingSource struct {
	started chan struct{}
	calls   int
}

func (s *blockingSource) SourceKind() string { return "mock-blocking" }

func (s *blockingSource) QueryCancellable(ctx context.Context, query string, args ...any) (sources.Rows, string, error) {
	s.calls++
	if s.calls == 1 {
		close(s.started)
		<-ctx.Done()
		return nil, "", ctx.Err()
	}
	return &fakeRows{cols: []string{"revenue"}, data: [][]any{{42.0}}}, "", nil
}

func (s *blockingSource) CancelInFlight(ctx context.Context, token string) error { return nil }

var _ sources.Source = &blockingSource{}
var _ sources.Canceller = &blockingSource{}

// fakeRows is a minimal sources.Rows over an in-memory row set.
type fakeRows struct {
	cols []string
	data [][]any
	i    int
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *fakeRows) Next() bool                 { return r.i < len(r.data) }
func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i]
	r.i++
	for i, v := range row {
		ptr := dest[i].(*any)
		*ptr = v
	}
	return nil
}
func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

func buildBlockingWarehouse(t *testing.T, src sources.Source) *warehouse.Warehouse {
	t.Helper()
	store := metadata.NewStore("main")
	table := metadata.NewTableAnnotation("t", metadata.TableMetric)
	table.AddColumn(&metadata.ColumnAnnotation{Column: "revenue", Active: true, Fields: []metadata.FieldBinding{{Field: "revenue"}}})
	require.NoError(t, store.AddTable(table))

	fields := field.New()
	require.NoError(t, fields.AddMetric(&field.Field{Name: "revenue", Class: field.ClassMetric, Aggregation: field.AggSum}))

	dl, ok := dialect.For("sqlite")
	require.True(t, ok)

	ds := datasource.New("ds1", 0, src, dl, store, graph.New(), fields)
	wh, err := warehouse.New([]*datasource.DataSource{ds}, nil)
	require.NoError(t, err)
	return wh
}

func TestReportKillIsIdempotentAndReportIsReExecutable(t *testing.T) {
	src := &blockingSource{started: make(chan struct{})}
	wh := buildBlockingWarehouse(t, src)
	r := report.New(wh, report.Request{Metrics: []string{"revenue"}}, executor.Options{Timeout: time.Minute})

	done := make(chan struct {
		result *report.Result
		err    error
	}, 1)
	go func() {
		result, err := r.Execute(context.Background())
		done <- struct {
			result *report.Result
			err    error
		}{result, err}
	}()

	<-src.started
	r.Kill(context.Background())
	r.Kill(context.Background()) // second kill is a no-op

	select {
	case out := <-done:
		require.Error(t, out.err)
		assert.True(t, util.Is(out.err, util.KindExecutionKilled))
	case <-time.After(time.Second):
		t.Fatal("Execute never returned after Kill")
	}

	// Killing again once the round has finished must not panic or block --
	// there is no in-flight Execution left to target.
	r.Kill(context.Background())

	// The same Report, re-executed, must succeed: killed state never
	// outlives the round it was issued against.
	result, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Frame.Rows, 1)
	rev, _ := result.Frame.Rows[0].Get("revenue")
	assert.Equal(t, 42.0, rev)
}
