// Package report implements component H: the library's single request
// entry point described in §6.1. A Report bundles a request (metrics,
// dimensions, criteria, row filters, rollup, pivot, ordering, limit and
// ad-hoc extensions) against a Warehouse, runs the planner/executor/
// combined-result pipeline, and exposes the concurrent, idempotent kill()
// operation §4.F/§5 require.
package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sablhq/warehouse/internal/combined"
	"github.com/sablhq/warehouse/internal/datasource"
	"github.com/sablhq/warehouse/internal/executor"
	"github.com/sablhq/warehouse/internal/field"
	"github.com/sablhq/warehouse/internal/planner"
	"github.com/sablhq/warehouse/internal/warehouse"
)

// OrderField is one (field, direction) pair from the request's order_by
// list.
type OrderField struct {
	Field      string
	Descending bool
}

// Request is the immutable, per-invocation request object described in §3
// and §6.1. AdHocFields seeds request-scoped field descriptors (the
// AdHocMetric/AdHocField variant of §3's Field type) that take precedence
// over any existing global name for the lifetime of this request only;
// AdHocDataSources are additional data sources considered solely for this
// request, alongside the Warehouse's own.
type Request struct {
	Metrics          []string
	Dimensions       []string
	Criteria         []planner.Criterion
	RowFilters       []combined.RowFilter
	Rollup           string // "", "totals", "all", or a decimal depth
	Pivot            []string
	OrderBy          []OrderField
	Limit            int
	LimitFirst       bool
	AdHocFields      []*field.Field
	AdHocDataSources []*datasource.DataSource
}

// QuerySummary records one planned-and-executed DataSourceQuery's shape,
// for the ReportResult's query_summaries per §6.1.
type QuerySummary struct {
	DataSource string
	SQL        string
	Args       []any
	RowCount   int
	Err        error
}

// Result is the ReportResult described in §6.1: the final post-processed
// dataframe-like Frame, wall-clock duration, a summary of every planned
// query, and the row count of the final Frame.
type Result struct {
	Frame          *combined.Frame
	Duration       time.Duration
	QuerySummaries []QuerySummary
	RowCount       int
}

// Report is one request bound to a Warehouse. It is safe to Execute
// repeatedly (idempotent re-execution after a kill, per §5) but not safe to
// Execute concurrently with itself -- only one execution may be in flight
// at a time, matching the single `kill_requested` flag per round described
// in §5.
type Report struct {
	wh   *warehouse.Warehouse
	req  Request
	opts executor.Options

	mu   sync.Mutex
	exec *executor.Execution // the in-flight round's Execution, nil when idle
}

// New binds a Request to a Warehouse under the given execution options.
func New(wh *warehouse.Warehouse, req Request, opts executor.Options) *Report {
	return &Report{wh: wh, req: req, opts: opts}
}

// Kill asks the current in-flight execution round to stop, per §4.F/§5. It
// is safe to call concurrently with Execute, safe to call when no round is
// in flight (a no-op), and idempotent -- a second Kill while the same round
// is still winding down does nothing further.
func (r *Report) Kill(ctx context.Context) {
	r.mu.Lock()
	exec := r.exec
	r.mu.Unlock()
	if exec != nil {
		exec.Kill(ctx)
	}
}

// Execute runs the planner -> executor -> combined-result pipeline once,
// per §2's control flow. Each call starts a fresh Execution, so a Report
// that was killed mid-round is always re-executable: kill state never
// outlives the round it was issued against.
func (r *Report) Execute(ctx context.Context) (*Result, error) {
	start := timeNow()

	wh, err := r.effectiveWarehouse()
	if err != nil {
		return nil, err
	}

	queries, err := planner.Plan(wh, r.req.Metrics, r.req.Dimensions, r.req.Criteria)
	if err != nil {
		return nil, err
	}

	dataSources := make(map[string]*datasource.DataSource, len(wh.DataSources))
	for _, ds := range wh.DataSources {
		dataSources[ds.Name] = ds
	}

	exec := executor.NewExecution()
	r.mu.Lock()
	r.exec = exec
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.exec = nil
		r.mu.Unlock()
	}()

	results, runErr := exec.Run(ctx, dataSources, queries, r.opts)

	summaries := make([]QuerySummary, len(queries))
	for i, q := range queries {
		s := QuerySummary{DataSource: q.DataSource, SQL: q.SQL, Args: q.Args}
		if res := results[i]; res != nil {
			s.Err = res.Err
			s.RowCount = len(res.Rows)
		}
		summaries[i] = s
	}

	if runErr != nil {
		return &Result{Duration: timeNow().Sub(start), QuerySummaries: summaries}, runErr
	}
	for _, res := range results {
		if res != nil && res.Err != nil {
			return &Result{Duration: timeNow().Sub(start), QuerySummaries: summaries}, res.Err
		}
	}

	grain := reportGrain(queries)
	frame, err := combined.Assemble(ctx, wh.Fields, grain, r.req.Dimensions, r.req.Metrics, results)
	if err != nil {
		return nil, fmt.Errorf("assembling combined result: %w", err)
	}

	frame, err = r.postProcess(frame, wh.Fields)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frame:          frame,
		Duration:       timeNow().Sub(start),
		QuerySummaries: summaries,
		RowCount:       len(frame.Rows),
	}, nil
}

// postProcess runs §4.G steps 5-9 plus the request's ordering and limit, in
// the order the spec fixes: row filters, technicals, rollup, rounding,
// pivot -- with the request's limit applied either before rollup synthesis
// (limit_first) or after the full pipeline, per the Open Question decision
// recorded in DESIGN.md.
func (r *Report) postProcess(frame *combined.Frame, reg *field.Registry) (*combined.Frame, error) {
	frame, err := combined.ApplyRowFilters(frame, r.req.RowFilters)
	if err != nil {
		return nil, err
	}
	if err := combined.ApplyTechnicals(frame, reg); err != nil {
		return nil, err
	}

	if r.req.LimitFirst {
		frame = applyOrderAndLimit(frame, r.req.OrderBy, r.req.Limit)
	}

	frame, err = combined.ApplyRollup(frame, reg, r.req.Rollup)
	if err != nil {
		return nil, err
	}
	if err := combined.ApplyRounding(frame, reg); err != nil {
		return nil, err
	}
	if len(r.req.Pivot) > 0 {
		frame, err = combined.ApplyPivot(frame, r.req.Pivot)
		if err != nil {
			return nil, err
		}
	}

	if !r.req.LimitFirst {
		frame = applyOrderAndLimit(frame, r.req.OrderBy, r.req.Limit)
	}
	return frame, nil
}

func applyOrderAndLimit(frame *combined.Frame, orderBy []OrderField, limit int) *combined.Frame {
	if len(orderBy) > 0 {
		fields := make([]combined.SortField, len(orderBy))
		for i, o := range orderBy {
			fields[i] = combined.SortField{Field: o.Field, Descending: o.Descending}
		}
		frame = combined.ApplyOrderBy(frame, fields)
	}
	return combined.ApplyLimit(frame, limit)
}

// effectiveWarehouse returns the Warehouse to plan against for this
// request: the bound Warehouse unchanged when the request declares no
// ad-hoc extensions, or a request-scoped copy layering ad-hoc fields over
// the global registry and appending ad-hoc data sources, per §4.A's
// "ad-hoc field descriptors ... take precedence for that request only".
func (r *Report) effectiveWarehouse() (*warehouse.Warehouse, error) {
	if len(r.req.AdHocFields) == 0 && len(r.req.AdHocDataSources) == 0 {
		return r.wh, nil
	}
	fields, err := r.wh.Fields.WithAdHoc(r.req.AdHocFields)
	if err != nil {
		return nil, err
	}
	dataSources := append(append([]*datasource.DataSource{}, r.wh.DataSources...), r.req.AdHocDataSources...)
	return &warehouse.Warehouse{
		DataSources:   dataSources,
		PriorityOrder: r.wh.PriorityOrder,
		Fields:        fields,
	}, nil
}

// reportGrain reads the grain the planner computed back off its queries:
// Plan sets every DataSourceQuery's Dimensions to the same full grain
// (requested dimensions plus any criteria-only dimensions), so the first
// query's is as good as any. A metrics-less, dimension-less report plans
// exactly one dimension-table query with an empty grain.
func reportGrain(queries []*planner.DataSourceQuery) []string {
	if len(queries) == 0 {
		return nil
	}
	return queries[0].Dimensions
}

// timeNow is overridden in tests; production code always observes real
// wall-clock time.
var timeNow = time.Now
