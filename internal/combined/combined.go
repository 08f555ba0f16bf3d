// Package combined implements the combined-result engine described as
// component G/§4.G: a per-report, embedded SQLite scratchpad that merges
// every per-data-source rowset on their shared dimension key, then projects,
// filters, rolls up, rounds and pivots the merged result into the final
// dataframe-like Frame a report returns.
package combined

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sablhq/warehouse/internal/executor"
	"github.com/sablhq/warehouse/internal/field"
)

// Row is one result row, keyed by column name in dimension-then-metric
// order -- the dataframe-like structure §4.G calls for, backed by an
// ordered map so column order survives reads, technicals and pivoting.
type Row = *orderedmap.OrderedMap[string, any]

// Frame is the in-memory tabular result of one report's combined-result
// assembly.
type Frame struct {
	Dimensions []string
	Metrics    []string
	Rows       []Row
}

// Engine owns one report's temp-table row-store: a dedicated in-memory
// SQLite connection used purely as a merge scratchpad, created fresh per
// report and dropped on every exit path, never shared across reports.
type Engine struct {
	db    *sql.DB
	table string
}

// Open creates the temp table described in §4.G step 1: a hash primary
// key, one NOT NULL column per grain dimension and one nullable column per
// leaf metric column actually produced by the planned data source queries,
// plus a secondary index on the dimension columns. leafMetrics is the union
// of every DataSourceQuery result's metric columns, not the report's
// requested (possibly formula) metric names -- those are resolved later, in
// FinalSelect, against these underlying columns.
func Open(ctx context.Context, dimensions, leafMetrics []string) (*Engine, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening combined-result store: %w", err)
	}
	table := "combined_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	cols := make([]string, 0, len(dimensions)+len(leafMetrics)+1)
	cols = append(cols, `"hash" TEXT PRIMARY KEY`)
	for _, d := range dimensions {
		cols = append(cols, quoteIdent(d)+" TEXT NOT NULL")
	}
	for _, m := range leafMetrics {
		cols = append(cols, quoteIdent(m)+" REAL")
	}
	ddl := fmt.Sprintf(`CREATE TEMP TABLE %s (%s) WITHOUT ROWID`, quoteIdent(table), strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating temp table: %w", err)
	}

	if len(dimensions) > 0 {
		idxCols := make([]string, len(dimensions))
		for i, d := range dimensions {
			idxCols[i] = quoteIdent(d)
		}
		idxDDL := fmt.Sprintf(`CREATE INDEX "%s_dims" ON %s (%s)`, table, quoteIdent(table), strings.Join(idxCols, ", "))
		if _, err := db.ExecContext(ctx, idxDDL); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating dimension index: %w", err)
		}
	}

	return &Engine{db: db, table: table}, nil
}

// Close drops the temp table and releases the connection, per §4.G step 10.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Load merges one data source's result rows into the temp table, computing
// each row's hash from its leading dimension columns and upserting via
// ON CONFLICT DO UPDATE -- the commutative merge §5 describes: rows from
// different data sources sharing a dimension key populate the union of
// metric columns regardless of load order.
func (e *Engine) Load(ctx context.Context, dimensions []string, result *executor.Result) error {
	if result == nil || result.Err != nil || len(result.Rows) == 0 {
		return nil
	}
	dimCount := len(dimensions)
	if len(result.Columns) < dimCount {
		return fmt.Errorf("result has %d columns, fewer than %d requested dimensions", len(result.Columns), dimCount)
	}
	metricCols := result.Columns[dimCount:]
	if len(metricCols) == 0 {
		return nil
	}

	insertCols := make([]string, 0, dimCount+len(metricCols)+1)
	insertCols = append(insertCols, `"hash"`)
	for _, d := range dimensions {
		insertCols = append(insertCols, quoteIdent(d))
	}
	for _, m := range metricCols {
		insertCols = append(insertCols, quoteIdent(m))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(insertCols)), ", ")
	updateSet := make([]string, 0, len(metricCols))
	for _, m := range metricCols {
		updateSet = append(updateSet, fmt.Sprintf("%s=excluded.%s", quoteIdent(m), quoteIdent(m)))
	}
	stmt := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT("hash") DO UPDATE SET %s`,
		quoteIdent(e.table), strings.Join(insertCols, ", "), placeholders, strings.Join(updateSet, ", "),
	)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()

	for _, row := range result.Rows {
		dimVals := row[:dimCount]
		args := make([]any, 0, len(insertCols))
		args = append(args, hashDims(dimVals))
		args = append(args, dimVals...)
		args = append(args, row[dimCount:]...)
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("loading row into combined store: %w", err)
		}
	}
	return tx.Commit()
}

// FinalSelect projects each requested dimension and metric -- which may be
// a strict subset of the grain the table was opened with (criteria-only
// dimensions are dropped here) and may include formula fields, rendered
// against the grain/leaf columns that are actually present in the table --
// GROUP BY hash (a grain-preserving no-op) and ORDER BY the requested
// dimensions ascending, then reads the result into a Frame, per §4.G
// steps 3-4.
func (e *Engine) FinalSelect(ctx context.Context, reg *field.Registry, dimensions, metrics []string) (*Frame, error) {
	selects := make([]string, 0, len(dimensions)+len(metrics))
	for _, d := range dimensions {
		selects = append(selects, fmt.Sprintf("%s AS %s", projection(reg, d), quoteIdent(d)))
	}
	for _, m := range metrics {
		selects = append(selects, fmt.Sprintf("%s AS %s", projection(reg, m), quoteIdent(m)))
	}

	q := fmt.Sprintf(`SELECT %s FROM %s GROUP BY "hash"`, strings.Join(selects, ", "), quoteIdent(e.table))
	if len(dimensions) > 0 {
		orderBy := make([]string, len(dimensions))
		for i, d := range dimensions {
			orderBy[i] = quoteIdent(d)
		}
		q += " ORDER BY " + strings.Join(orderBy, ", ")
	}

	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("final select: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	frame := &Frame{
		Dimensions: append([]string{}, dimensions...),
		Metrics:    append([]string{}, metrics...),
	}
	for rows.Next() {
		scanned := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := orderedmap.NewOrderedMap[string, any]()
		for i, c := range cols {
			row.Set(c, scanned[i])
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame, rows.Err()
}

// Assemble runs the create/load/final-select sequence (§4.G steps 1-4) for
// one report: it opens a fresh Engine sized to the planner's full grain
// (grainDimensions, which may include criteria-only dimensions beyond what
// the report actually requests) and the union of every data source query's
// leaf metric columns, loads every result, then projects the report's
// requested dimensions and metrics -- a subset of the grain, possibly
// formula fields rendered against those leaf columns -- and always drops
// the temp table before returning, on both the success and the error path.
func Assemble(ctx context.Context, reg *field.Registry, grainDimensions, requestedDimensions, requestedMetrics []string, results []*executor.Result) (*Frame, error) {
	leafMetrics := leafMetricColumns(grainDimensions, results)

	eng, err := Open(ctx, grainDimensions, leafMetrics)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	for _, r := range results {
		if err := eng.Load(ctx, grainDimensions, r); err != nil {
			return nil, err
		}
	}
	return eng.FinalSelect(ctx, reg, requestedDimensions, requestedMetrics)
}

// leafMetricColumns unions every result's metric columns (everything past
// the leading dimension columns), preserving first-seen order.
func leafMetricColumns(dimensions []string, results []*executor.Result) []string {
	dimCount := len(dimensions)
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		if r == nil || len(r.Columns) <= dimCount {
			continue
		}
		for _, c := range r.Columns[dimCount:] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// projection renders the SQL expression for one requested field: a
// formula's Render expression against its sibling column names if it's a
// formula field, else a plain column reference.
func projection(reg *field.Registry, name string) string {
	f, err := reg.GetField(name)
	if err != nil || !f.IsFormula() {
		return quoteIdent(name)
	}
	replacements := make(map[string]string, len(f.Formula.Tokens()))
	for _, tok := range f.Formula.Tokens() {
		replacements[tok] = quoteIdent(tok)
	}
	return "(" + f.Formula.Render(replacements) + ")"
}

func hashDims(vals []any) string {
	h := sha256.New()
	for _, v := range vals {
		fmt.Fprintf(h, "%v\x1f", v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// orderedMapNew constructs an empty Row, shared by rollup and pivot which
// both synthesize rows outside of FinalSelect's direct scan path.
func orderedMapNew() Row {
	return orderedmap.NewOrderedMap[string, any]()
}

func groupKey(row Row, dims []string) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		v, _ := row.Get(d)
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "\x1f")
}
