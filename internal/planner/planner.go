// Package planner implements component F: given a resolved set of
// metrics, dimensions and criteria, build the per-data-source SQL queries
// described in §4.E. It expands formulas to their leaves, computes the
// report's grain, validates required_grain, groups leaf metrics into
// DataSourceQuery objects via the warehouse's TableSet selection, and
// finally renders each query's SELECT/FROM/WHERE/GROUP BY text through the
// owning data source's dialect adapter.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sablhq/warehouse/internal/datasource"
	"github.com/sablhq/warehouse/internal/field"
	"github.com/sablhq/warehouse/internal/util"
	"github.com/sablhq/warehouse/internal/warehouse"
)

// Criterion is one (field, op, value(s)) triple from the report request,
// per §3/§6.2.
type Criterion struct {
	Field  string
	Op     string
	Values []any // single value for scalar ops, two for between, many for in/not in
}

// DataSourceQuery is one planned SELECT against a single data source,
// covering a subset of the report's requested metrics at the report's
// grain.
type DataSourceQuery struct {
	DataSource string
	TableSet   *datasource.TableSet
	Dimensions []string
	Metrics    []string
	SQL        string
	Args       []any
}

// Plan builds the DataSourceQuery set for a report request, per §4.E
// steps 1-6.
func Plan(wh *warehouse.Warehouse, metrics, dimensions []string, criteria []Criterion) ([]*DataSourceQuery, error) {
	leafDims, err := expandNames(wh.Fields, dimensions)
	if err != nil {
		return nil, err
	}
	leafMetrics, weighting, err := expandMetrics(wh.Fields, metrics)
	if err != nil {
		return nil, err
	}
	leafMetrics = appendUnique(leafMetrics, weighting...)

	grain := append([]string{}, leafDims...)
	for _, c := range criteria {
		f, err := wh.Fields.GetField(c.Field)
		if err != nil {
			return nil, err
		}
		if f.IsFormula() {
			return nil, util.ReportException(fmt.Sprintf("criterion field %q is a formula field; criteria must name a field bound to a single column", c.Field), nil)
		}
		if f.Class == field.ClassDimension {
			leaves, err := field.ExpandLeaves(wh.Fields, f)
			if err != nil {
				return nil, err
			}
			for _, l := range leaves {
				grain = appendUnique(grain, l.Name)
			}
		}
	}

	if err := validateRequiredGrain(wh.Fields, leafDims, grain); err != nil {
		return nil, err
	}
	if err := validateRequiredGrain(wh.Fields, leafMetrics, grain); err != nil {
		return nil, err
	}

	var queries []*DataSourceQuery
	byKey := map[string]*DataSourceQuery{}

	for _, m := range leafMetrics {
		ts, dsName, err := wh.SelectTableSet(m, grain)
		if err != nil {
			return nil, err
		}
		key := dsName + "|" + tableSetKey(ts)
		q, ok := byKey[key]
		if !ok {
			q = &DataSourceQuery{DataSource: dsName, TableSet: ts, Dimensions: grain}
			byKey[key] = q
			queries = append(queries, q)
		}
		q.Metrics = appendUnique(q.Metrics, m)
	}

	if len(leafMetrics) == 0 {
		ts, dsName, err := wh.SelectDimensionTableSet(grain)
		if err != nil {
			return nil, err
		}
		queries = append(queries, &DataSourceQuery{DataSource: dsName, TableSet: ts, Dimensions: grain})
	}

	dsByName := map[string]*datasource.DataSource{}
	for _, ds := range wh.DataSources {
		dsByName[ds.Name] = ds
	}

	for _, q := range queries {
		ds, ok := dsByName[q.DataSource]
		if !ok {
			return nil, util.WarehouseIntegrity("planner selected unknown data source \""+q.DataSource+"\"", nil)
		}
		sql, args, err := buildSQL(ds, q, wh.Fields, filterCriteria(criteria, q.Dimensions))
		if err != nil {
			return nil, err
		}
		q.SQL = sql
		q.Args = args
	}

	return queries, nil
}

func expandNames(reg *field.Registry, names []string) ([]string, error) {
	var out []string
	for _, n := range names {
		f, err := reg.GetField(n)
		if err != nil {
			return nil, err
		}
		leaves, err := field.ExpandLeaves(reg, f)
		if err != nil {
			return nil, err
		}
		for _, l := range leaves {
			out = appendUnique(out, l.Name)
		}
	}
	return out, nil
}

func expandMetrics(reg *field.Registry, names []string) (leaves []string, weighting []string, err error) {
	for _, n := range names {
		f, err := reg.GetMetric(n)
		if err != nil {
			return nil, nil, err
		}
		fLeaves, err := field.ExpandLeaves(reg, f)
		if err != nil {
			return nil, nil, err
		}
		for _, l := range fLeaves {
			leaves = appendUnique(leaves, l.Name)
			if l.WeightingMetric != "" {
				weighting = appendUnique(weighting, l.WeightingMetric)
			}
		}
		if f.WeightingMetric != "" {
			weighting = appendUnique(weighting, f.WeightingMetric)
		}
	}
	return leaves, weighting, nil
}

func validateRequiredGrain(reg *field.Registry, names []string, grain []string) error {
	grainSet := make(map[string]bool, len(grain))
	for _, g := range grain {
		grainSet[g] = true
	}
	for _, n := range names {
		f, err := reg.GetField(n)
		if err != nil {
			return err
		}
		var missing []string
		for _, req := range f.RequiredGrain {
			if !grainSet[req] {
				missing = append(missing, req)
			}
		}
		if len(missing) > 0 {
			return util.UnsupportedGrain(missing, nil)
		}
	}
	return nil
}

func appendUnique(list []string, items ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, x := range list {
		seen[x] = true
	}
	for _, x := range items {
		if !seen[x] {
			list = append(list, x)
			seen[x] = true
		}
	}
	return list
}

func tableSetKey(ts *datasource.TableSet) string {
	tables := append([]string{}, ts.Tables()...)
	sort.Strings(tables)
	return strings.Join(tables, ",")
}

func filterCriteria(all []Criterion, grain []string) []Criterion {
	grainSet := make(map[string]bool, len(grain))
	for _, g := range grain {
		grainSet[g] = true
	}
	var out []Criterion
	for _, c := range all {
		if grainSet[c.Field] {
			out = append(out, c)
		}
	}
	return out
}

// buildSQL renders the SELECT for one DataSourceQuery: projections for
// every dimension and aggregated metric expression, an outer-joined FROM
// clause along the table set's join parts, a WHERE clause translating
// criteria through the dialect's date-conversion rewrite rules, and a
// GROUP BY over the dimension positions.
func buildSQL(ds *datasource.DataSource, q *DataSourceQuery, reg *field.Registry, criteria []Criterion) (string, []any, error) {
	dl := ds.Dialect
	var selectExprs []string
	for _, d := range q.Dimensions {
		expr, err := projectExpr(ds, q.TableSet, d)
		if err != nil {
			return "", nil, err
		}
		selectExprs = append(selectExprs, expr)
	}
	for _, m := range q.Metrics {
		f, err := reg.GetMetric(m)
		if err != nil {
			return "", nil, err
		}
		expr, err := projectExpr(ds, q.TableSet, m)
		if err != nil {
			return "", nil, err
		}
		selectExprs = append(selectExprs, wrapAggregation(ds, f, expr)+" AS "+dl.QuoteIdent(m))
	}

	from, err := buildFrom(ds, q.TableSet)
	if err != nil {
		return "", nil, err
	}

	where, args, err := buildWhere(ds, q.TableSet, criteria)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectExprs, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(from)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if len(q.Dimensions) > 0 {
		positions := make([]string, len(q.Dimensions))
		for i := range q.Dimensions {
			positions[i] = fmt.Sprintf("%d", i+1)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(positions, ", "))
	}
	return sb.String(), args, nil
}

func wrapAggregation(ds *datasource.DataSource, f *field.Field, expr string) string {
	sentinel := ds.IFNullSentinel
	if sentinel == "" {
		sentinel = "0"
	}
	if f.IFNullSentinel != "" {
		sentinel = f.IFNullSentinel
	}
	inner := fmt.Sprintf("COALESCE(%s, %s)", expr, sentinel)
	switch f.Aggregation {
	case field.AggSum, "":
		return fmt.Sprintf("SUM(%s)", inner)
	case field.AggMean:
		return fmt.Sprintf("AVG(%s)", inner)
	case field.AggCount:
		return fmt.Sprintf("COUNT(%s)", expr)
	case field.AggCountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr)
	case field.AggMin:
		return fmt.Sprintf("MIN(%s)", inner)
	case field.AggMax:
		return fmt.Sprintf("MAX(%s)", inner)
	default:
		return fmt.Sprintf("SUM(%s)", inner)
	}
}

// projectExpr resolves a dimension or metric name to its SQL projection
// expression. Dimensions are looked up in the table set's FieldMap
// (populated by PossibleJoins for the requested grain); metrics are not
// part of the grain, so they resolve against the anchor table directly --
// SelectTableSet only ever anchors a table set on a table that itself
// carries the requested metric column.
func projectExpr(ds *datasource.DataSource, ts *datasource.TableSet, fieldName string) (string, error) {
	loc, ok := ts.FieldMap[fieldName]
	if !ok {
		anchor, ok := ds.Metadata.Table(ts.AnchorTable)
		if !ok {
			return "", util.WarehouseIntegrity("unknown anchor table \""+ts.AnchorTable+"\"", nil)
		}
		col, _, ok := anchor.FieldColumn(fieldName)
		if !ok {
			return "", util.WarehouseIntegrity("field \""+fieldName+"\" has no resolved column in this table set", nil)
		}
		loc = datasource.FieldLocation{Table: ts.AnchorTable, Column: col.Column}
	}
	tbl, ok := ds.Metadata.Table(loc.Table)
	if !ok {
		return "", util.WarehouseIntegrity("unknown table \""+loc.Table+"\" in field map", nil)
	}
	col, ok := tbl.Columns[loc.Column]
	if !ok {
		return "", util.WarehouseIntegrity("unknown column \""+loc.Column+"\" on table \""+loc.Table+"\"", nil)
	}
	binding, _ := col.HasField(fieldName)
	if binding.DSFormula != "" {
		return binding.DSFormula, nil
	}
	raw := qualifiedColumn(ds, loc.Table, loc.Column)
	if binding.ConversionKind != "" {
		if conv, ok := ds.Dialect.Convert(binding.ConversionKind); ok && conv.Projection != nil {
			rawCol := raw
			if binding.ConversionColumn != "" {
				rawCol = qualifiedColumn(ds, loc.Table, binding.ConversionColumn)
			}
			return conv.Projection(rawCol), nil
		}
	}
	return raw, nil
}

func qualifiedColumn(ds *datasource.DataSource, table, col string) string {
	return ds.Dialect.QuoteIdent(table) + "." + ds.Dialect.QuoteIdent(col)
}

// buildFrom outer-joins the table set's anchor and join parts. A part's ON
// clause equates its join fields against whichever already-joined table
// (anchor or an earlier part) exposes those same fields as columns -- the
// join fields are dimension names shared across the edge, and by
// construction some table already in the FROM clause carries each one.
func buildFrom(ds *datasource.DataSource, ts *datasource.TableSet) (string, error) {
	dl := ds.Dialect
	joined := []string{ts.AnchorTable}
	var sb strings.Builder
	sb.WriteString(dl.QuoteIdent(ts.AnchorTable))
	for _, part := range ts.Join {
		srcTable, err := findJoinSource(ds, joined, part.JoinFields)
		if err != nil {
			return "", err
		}
		var conds []string
		for _, jf := range part.JoinFields {
			srcCol, err := columnForField(ds, srcTable, jf)
			if err != nil {
				return "", err
			}
			dstCol, err := columnForField(ds, part.Table, jf)
			if err != nil {
				return "", err
			}
			conds = append(conds, qualifiedColumn(ds, srcTable, srcCol)+" = "+qualifiedColumn(ds, part.Table, dstCol))
		}
		sb.WriteString(" LEFT JOIN ")
		sb.WriteString(dl.QuoteIdent(part.Table))
		sb.WriteString(" ON ")
		sb.WriteString(strings.Join(conds, " AND "))
		joined = append(joined, part.Table)
	}
	return sb.String(), nil
}

func findJoinSource(ds *datasource.DataSource, joined []string, joinFields []string) (string, error) {
	for _, t := range joined {
		tbl, ok := ds.Metadata.Table(t)
		if !ok {
			continue
		}
		all := true
		for _, jf := range joinFields {
			if _, _, ok := tbl.FieldColumn(jf); !ok {
				all = false
				break
			}
		}
		if all {
			return t, nil
		}
	}
	return "", util.WarehouseIntegrity(fmt.Sprintf("no already-joined table exposes join fields %v", joinFields), nil)
}

func columnForField(ds *datasource.DataSource, table, fieldName string) (string, error) {
	tbl, ok := ds.Metadata.Table(table)
	if !ok {
		return "", util.WarehouseIntegrity("unknown table \""+table+"\"", nil)
	}
	col, _, ok := tbl.FieldColumn(fieldName)
	if !ok {
		return "", util.WarehouseIntegrity("table \""+table+"\" does not expose field \""+fieldName+"\"", nil)
	}
	return col.Column, nil
}

// buildWhere translates criteria through the dialect's date-conversion
// rewrite rules so predicates against converted fields stay SARGable,
// and renders plain operators otherwise, including §6.2's NULL handling.
func buildWhere(ds *datasource.DataSource, ts *datasource.TableSet, criteria []Criterion) (string, []any, error) {
	var clauses []string
	var args []any

	bind := func(v any) string {
		args = append(args, v)
		return ds.Dialect.Placeholder(len(args))
	}

	for _, c := range criteria {
		loc, ok := ts.FieldMap[c.Field]
		if !ok {
			return "", nil, util.WarehouseIntegrity("criterion field \""+c.Field+"\" has no resolved column", nil)
		}
		tbl, ok := ds.Metadata.Table(loc.Table)
		if !ok {
			return "", nil, util.WarehouseIntegrity("unknown table \""+loc.Table+"\"", nil)
		}
		col, ok := tbl.Columns[loc.Column]
		if !ok {
			return "", nil, util.WarehouseIntegrity("unknown column \""+loc.Column+"\"", nil)
		}
		binding, _ := col.HasField(c.Field)

		if binding.ConversionKind != "" {
			if conv, ok := ds.Dialect.Convert(binding.ConversionKind); ok && conv.Criteria != nil {
				rawColName := loc.Column
				if binding.ConversionColumn != "" {
					rawColName = binding.ConversionColumn
				}
				rawCol := qualifiedColumn(ds, loc.Table, rawColName)
				rangeClauses, err := conv.Criteria(c.Op, c.Values)
				if err != nil {
					return "", nil, util.ReportException(err.Error(), err)
				}
				var ors []string
				for _, rc := range rangeClauses {
					placeholders := make([]string, len(rc.Args))
					for i, bv := range rc.Args {
						placeholders[i] = bv.SQL(bind(bv.Value))
					}
					ors = append(ors, renderOp(rawCol, rc.Op, placeholders))
				}
				clauses = append(clauses, "("+strings.Join(ors, " AND ")+")")
				continue
			}
		}

		expr := qualifiedColumn(ds, loc.Table, loc.Column)
		if binding.DSFormula != "" {
			expr = binding.DSFormula
		}
		clause, err := renderCriterionInto(ds, expr, c, &args)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func renderOp(expr, op string, placeholders []string) string {
	switch op {
	case "between", "not between":
		neg := ""
		if op == "not between" {
			neg = "NOT "
		}
		return fmt.Sprintf("%s%s BETWEEN %s AND %s", neg, expr, placeholders[0], placeholders[1])
	default:
		return fmt.Sprintf("%s %s %s", expr, op, placeholders[0])
	}
}

// renderCriterionInto implements §6.2's operator set including
// NULL-as-value semantics: "x = null" becomes IS NULL; "x in [a, null]"
// becomes "x = a OR x IS NULL"; "not in" ANDs negated comparisons instead
// of ORing. Bind values append to the query-wide args slice so placeholder
// numbering stays correct across every criterion in the WHERE clause.
func renderCriterionInto(ds *datasource.DataSource, expr string, c Criterion, args *[]any) (string, error) {
	bind := func(v any) string {
		*args = append(*args, v)
		return ds.Dialect.Placeholder(len(*args))
	}

	switch c.Op {
	case "=", "!=", ">", ">=", "<", "<=", "like", "not like":
		if len(c.Values) != 1 {
			return "", util.ReportException(fmt.Sprintf("operator %q expects exactly one value", c.Op), nil)
		}
		if c.Values[0] == nil && (c.Op == "=" || c.Op == "!=") {
			if c.Op == "=" {
				return expr + " IS NULL", nil
			}
			return expr + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s %s %s", expr, c.Op, bind(c.Values[0])), nil
	case "between", "not between":
		if len(c.Values) != 2 {
			return "", util.ReportException("between expects exactly two values", nil)
		}
		neg := ""
		if c.Op == "not between" {
			neg = "NOT "
		}
		lo, hi := bind(c.Values[0]), bind(c.Values[1])
		return fmt.Sprintf("%s%s BETWEEN %s AND %s", neg, expr, lo, hi), nil
	case "in", "not in":
		var nonNull []any
		hasNull := false
		for _, v := range c.Values {
			if v == nil {
				hasNull = true
				continue
			}
			nonNull = append(nonNull, v)
		}
		var parts []string
		for _, v := range nonNull {
			if c.Op == "in" {
				parts = append(parts, fmt.Sprintf("%s = %s", expr, bind(v)))
			} else {
				parts = append(parts, fmt.Sprintf("%s != %s", expr, bind(v)))
			}
		}
		if hasNull {
			if c.Op == "in" {
				parts = append(parts, expr+" IS NULL")
			} else {
				parts = append(parts, expr+" IS NOT NULL")
			}
		}
		if len(parts) == 0 {
			return "1=0", nil
		}
		joiner := " OR "
		if c.Op == "not in" {
			joiner = " AND "
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	default:
		return "", util.ReportException(fmt.Sprintf("unsupported criteria operator %q", c.Op), nil)
	}
}
