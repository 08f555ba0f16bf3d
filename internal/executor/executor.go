// Package executor implements component G: running a planned set of
// DataSourceQuery statements against their backends. Execution is either
// sequential or bounded-worker-pool, per §4.F, with a global deadline and
// cooperative cancellation -- a native backend-side kill (pg_cancel_backend,
// MySQL KILL QUERY) where the source implements sources.Canceller, falling
// back to best-effort context cancellation otherwise.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sablhq/warehouse/internal/datasource"
	"github.com/sablhq/warehouse/internal/log"
	"github.com/sablhq/warehouse/internal/planner"
	"github.com/sablhq/warehouse/internal/sources"
	"github.com/sablhq/warehouse/internal/util"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultQueryTimeout is the global deadline applied to an execution round
// when the caller does not specify one, matching the DATASOURCE_QUERY_TIMEOUT
// ambient setting described in SPEC_FULL.md.
const DefaultQueryTimeout = 5 * time.Minute

// Mode selects how queries fan out across data sources.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Options configures one execution round.
type Options struct {
	Mode        Mode
	Concurrency int64 // worker pool size in ModeParallel; <= 0 defaults to 4
	Timeout     time.Duration
	Logger      log.Logger
}

// Result is one DataSourceQuery's outcome: either a populated row set or an
// error.
type Result struct {
	Query   *planner.DataSourceQuery
	Columns []string
	Rows    [][]any
	Err     error
}

// inFlight tracks a query's cancellation token so Kill can reach it from a
// concurrent goroutine.
type inFlight struct {
	cancel context.CancelFunc
	source sources.Source
	token  string
}

// Execution is one report's in-flight (or completed) query round. It holds
// the cooperative kill flag described in §5: kill() may be called at any
// time and is idempotent, safe to call multiple times or after completion.
type Execution struct {
	mu            sync.Mutex
	killRequested bool
	inFlight      map[*planner.DataSourceQuery]*inFlight
}

// NewExecution allocates an empty Execution. Callers that need to call Kill
// concurrently with Run create the Execution first and hold onto it, since
// Run itself blocks until every query finishes or the round is killed.
func NewExecution() *Execution {
	return &Execution{inFlight: map[*planner.DataSourceQuery]*inFlight{}}
}

// Kill requests cancellation of every query still running under this
// execution. Idempotent: calling it twice, or after the round has already
// finished, is a no-op the second time.
func (e *Execution) Kill(ctx context.Context) {
	e.mu.Lock()
	if e.killRequested {
		e.mu.Unlock()
		return
	}
	e.killRequested = true
	snapshot := make([]*inFlight, 0, len(e.inFlight))
	for _, f := range e.inFlight {
		snapshot = append(snapshot, f)
	}
	e.mu.Unlock()

	for _, f := range snapshot {
		f.cancel()
		if canceller, ok := f.source.(sources.Canceller); ok && f.token != "" {
			_ = canceller.CancelInFlight(ctx, f.token)
		}
	}
}

func (e *Execution) killed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killRequested
}

func (e *Execution) register(q *planner.DataSourceQuery, f *inFlight) {
	e.mu.Lock()
	e.inFlight[q] = f
	e.mu.Unlock()
}

func (e *Execution) unregister(q *planner.DataSourceQuery) {
	e.mu.Lock()
	delete(e.inFlight, q)
	e.mu.Unlock()
}

// Run executes every DataSourceQuery in the plan against its data source,
// per §4.F, recording each as in-flight on e so a Kill issued from another
// goroutine while Run is still blocked can reach it. Callers that need that
// concurrent kill must call NewExecution and start Run in a goroutine before
// calling Kill; re-running Run on a fresh Execution after a kill is always
// safe since each round starts from an empty inFlight set.
func (e *Execution) Run(ctx context.Context, dataSources map[string]*datasource.DataSource, queries []*planner.DataSourceQuery, opts Options) ([]*Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]*Result, len(queries))

	run := func(i int) error {
		q := queries[i]
		ds, ok := dataSources[q.DataSource]
		if !ok {
			results[i] = &Result{Query: q, Err: util.WarehouseIntegrity("unknown data source \""+q.DataSource+"\" at execution time", nil)}
			return nil
		}
		results[i] = execOne(ctx, e, ds, q, opts.Logger)
		return nil
	}

	switch opts.Mode {
	case ModeParallel:
		concurrency := opts.Concurrency
		if concurrency <= 0 {
			concurrency = 4
		}
		sem := semaphore.NewWeighted(concurrency)
		g, gctx := errgroup.WithContext(ctx)
		for i := range queries {
			i := i
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				return run(i)
			})
		}
		_ = g.Wait() // run() itself never returns an error; per-query failures live in results[i].Err
	default:
		for i := range queries {
			if err := run(i); err != nil {
				return results, err
			}
		}
	}

	if e.killed() {
		return results, util.ExecutionKilled("")
	}
	return results, nil
}

// Run is a convenience wrapper for callers with no need to Kill a round
// concurrently: it allocates a fresh Execution, runs it to completion, and
// returns it alongside the results.
func Run(ctx context.Context, dataSources map[string]*datasource.DataSource, queries []*planner.DataSourceQuery, opts Options) (*Execution, []*Result, error) {
	e := NewExecution()
	results, err := e.Run(ctx, dataSources, queries, opts)
	return e, results, err
}

// execOne runs a single DataSourceQuery, registering it as in-flight so a
// concurrent Kill can reach it, and mapping a timeout into
// DataSourceQueryTimeout for callers to distinguish from other failures.
func execOne(ctx context.Context, exec *Execution, ds *datasource.DataSource, q *planner.DataSourceQuery, logger log.Logger) *Result {
	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f := &inFlight{cancel: cancel, source: ds.Source}
	exec.register(q, f)
	defer exec.unregister(q)

	if logger != nil {
		logger.DebugContext(qctx, "executing data source query", "datasource", q.DataSource, "sql", q.SQL)
	}

	rows, token, err := runQuery(qctx, ds.Source, q.SQL, q.Args...)
	if err != nil {
		if qctx.Err() != nil {
			if exec.killed() {
				return &Result{Query: q, Err: util.ExecutionKilled("")}
			}
			return &Result{Query: q, Err: util.DataSourceQueryTimeout(q.DataSource, err)}
		}
		return &Result{Query: q, Err: fmt.Errorf("query against %q: %w", q.DataSource, err)}
	}
	f.token = token
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return &Result{Query: q, Err: err}
	}

	var out [][]any
	for rows.Next() {
		scanned := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return &Result{Query: q, Err: err}
		}
		out = append(out, scanned)
	}
	if err := rows.Err(); err != nil {
		if qctx.Err() != nil && exec.killed() {
			return &Result{Query: q, Err: util.ExecutionKilled("")}
		}
		return &Result{Query: q, Err: err}
	}

	return &Result{Query: q, Columns: cols, Rows: out}
}

// runQuery dispatches the query to the backend over whichever interface it
// implements: sources.Canceller runs it on a connection dedicated to this
// query and returns a token Kill can later target, while plain
// sources.Queryer backends run it over the shared pool with no such token
// (Kill then falls back to context cancellation for them).
func runQuery(ctx context.Context, src sources.Source, query string, args ...any) (sources.Rows, string, error) {
	if canceller, ok := src.(sources.Canceller); ok {
		return canceller.QueryCancellable(ctx, query, args...)
	}
	if queryer, ok := src.(sources.Queryer); ok {
		rows, err := queryer.QueryContext(ctx, query, args...)
		return rows, "", err
	}
	return nil, "", util.WarehouseIntegrity("data source exposes neither sources.Queryer nor sources.Canceller", nil)
}
