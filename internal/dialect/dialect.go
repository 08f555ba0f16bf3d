// Package dialect implements the per-backend date-conversion adapter
// described in the warehouse's external interface contract: a registry
// mapping conversion field names (year, month, date, ...) to a projection
// template for SELECT and a criteria-rewrite table that keeps predicates
// against those converted fields SARGable by rewriting them into range
// predicates on the underlying column.
package dialect

import "fmt"

// BoundValue is one bind parameter of a rewritten range predicate, together
// with the SQL template that wraps it (empty Template means "use the
// placeholder verbatim").
type BoundValue struct {
	Template string // e.g. "TO_DATE(%s, 'YYYY-MM-DD')"; "" means pass the bind value through unchanged
	Value    any
}

// SQL renders this bound value's expression given the placeholder the
// caller's query builder assigned it (e.g. "$1" or "?").
func (b BoundValue) SQL(placeholder string) string {
	if b.Template == "" {
		return placeholder
	}
	return fmt.Sprintf(b.Template, placeholder)
}

// RangeClause is one AND'd comparison against the underlying raw column
// that criteria against a converted field expand into.
type RangeClause struct {
	Op   string // one of =, !=, >, >=, <, <=, between, not between
	Args []BoundValue
}

// ValueTransform turns a criteria operator and its operand(s) into the list
// of range clauses to AND together against the raw column.
type ValueTransform func(op string, values []any) ([]RangeClause, error)

// Conversion is one named date/time conversion (e.g. "year").
type Conversion struct {
	// Projection renders the SELECT expression for this conversion given
	// the raw column's SQL text (already qualified, e.g. "t1.created_at").
	Projection func(col string) string
	// Criteria rewrites a predicate against the converted field. Nil for
	// conversions that aren't legal criteria targets (e.g. quarter).
	Criteria ValueTransform
}

// Dialect is the adapter one SQL backend kind implements.
type Dialect interface {
	Name() string
	// Placeholder renders the nth (1-indexed) bind placeholder for this
	// dialect's driver, e.g. "$1" for pgx, "?" for mysql/sqlite.
	Placeholder(n int) string
	// QuoteIdent quotes a table/column identifier.
	QuoteIdent(name string) string
	// Convert looks up the named conversion (e.g. "year", "date").
	Convert(field string) (Conversion, bool)
}

var registry = make(map[string]Dialect)

// Register associates a Dialect with the source kind it applies to (the
// same kind string used in internal/sources). Panics on duplicate
// registration, matching the module's plugin convention.
func Register(kind string, d Dialect) {
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("dialect %q already registered", kind))
	}
	registry[kind] = d
}

// For returns the registered Dialect for a source kind.
func For(kind string) (Dialect, bool) {
	d, ok := registry[kind]
	return d, ok
}

// rawValue produces a pass-through BoundValue: the raw criteria value bound
// with no wrapping SQL template. It corresponds to the "raw_value" leaf
// transform shared by every dialect's conversion table.
func rawValue(v any) BoundValue { return BoundValue{Value: v} }
