// Package metadata holds the per-datasource, per-table and per-column
// annotations the warehouse needs on top of a plain SQL schema: which
// columns are bound to which fields, which tables are join anchors, and
// where primary keys and parents live. These are kept as explicit records
// owned by the Warehouse rather than attached to (or mutating) any
// SQL-library schema object.
package metadata

import (
	"fmt"

	"github.com/sablhq/warehouse/internal/util"
)

// TableKind distinguishes a fact/metric table from a dimension table.
type TableKind string

const (
	TableMetric    TableKind = "metric"
	TableDimension TableKind = "dimension"
)

// FieldBinding binds one field name to this column, optionally overriding
// the plain column reference with a ds_formula fragment evaluated in the
// data source's own SQL dialect (e.g. "{a} + {b}" against sibling columns).
type FieldBinding struct {
	Field     string
	DSFormula string // empty means "use the column directly"

	// ConversionKind names a dialect date/time conversion (e.g. "year",
	// "month") this field is derived from, when AllowTypeConversions
	// populated it automatically. Empty for a plain column binding.
	ConversionKind string
	// ConversionColumn is the raw column on the same table the conversion
	// is computed from. Defaults to the owning column's own name when
	// ConversionKind is set and this is left empty.
	ConversionColumn string
}

// ColumnAnnotation is the per-column metadata described in §3: which
// fields the column satisfies, whether it participates at all, and whether
// the planner may apply dialect date/type conversions to it.
type ColumnAnnotation struct {
	Table                string
	Column               string
	Fields               []FieldBinding
	Active               bool
	AllowTypeConversions bool
	TypeConversionPrefix string
	RequiredGrain        []string
}

// HasField reports whether this column is bound to the named field and
// returns the binding.
func (c *ColumnAnnotation) HasField(name string) (FieldBinding, bool) {
	for _, b := range c.Fields {
		if b.Field == name {
			return b, true
		}
	}
	return FieldBinding{}, false
}

// TableAnnotation is the per-table metadata described in §3.
type TableAnnotation struct {
	Name                 string // fully-qualified table name
	Kind                 TableKind
	Active               bool
	PrimaryKey           []string // dimension field names
	Parent               string   // fully-qualified ancestor table name, optional
	UseFullColumnNames   bool
	IncompleteDimensions map[string]bool // dimensions on this table that may not be joined to from elsewhere
	Columns              map[string]*ColumnAnnotation
}

// NewTableAnnotation constructs an empty table annotation ready to receive
// column annotations.
func NewTableAnnotation(name string, kind TableKind) *TableAnnotation {
	return &TableAnnotation{
		Name:                 name,
		Kind:                 kind,
		Active:               true,
		IncompleteDimensions: map[string]bool{},
		Columns:              map[string]*ColumnAnnotation{},
	}
}

// AddColumn registers a column annotation on this table.
func (t *TableAnnotation) AddColumn(col *ColumnAnnotation) {
	col.Table = t.Name
	t.Columns[col.Column] = col
}

// FieldColumn returns the column (and binding) on this table that
// satisfies the named field, if any.
func (t *TableAnnotation) FieldColumn(field string) (*ColumnAnnotation, FieldBinding, bool) {
	for _, col := range t.Columns {
		if !col.Active {
			continue
		}
		if b, ok := col.HasField(field); ok {
			return col, b, true
		}
	}
	return nil, FieldBinding{}, false
}

// Fields returns the distinct set of field names bound to any active
// column on this table.
func (t *TableAnnotation) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, col := range t.Columns {
		if !col.Active {
			continue
		}
		for _, b := range col.Fields {
			if !seen[b.Field] {
				seen[b.Field] = true
				out = append(out, b.Field)
			}
		}
	}
	return out
}

// Store is the full set of table/column annotations for one data source,
// keyed by fully-qualified table name.
type Store struct {
	DataSource string
	Tables     map[string]*TableAnnotation
}

// NewStore creates an empty annotation store for the named data source.
func NewStore(dataSource string) *Store {
	return &Store{DataSource: dataSource, Tables: map[string]*TableAnnotation{}}
}

// AddTable registers a table annotation, rejecting duplicate names. Every
// column's ds_formula fragments are swept through the §7 SQL lexer pass
// here, before the table ever becomes reachable by the planner.
func (s *Store) AddTable(t *TableAnnotation) error {
	if _, exists := s.Tables[t.Name]; exists {
		return util.WarehouseIntegrity(fmt.Sprintf("table %q already annotated on data source %q", t.Name, s.DataSource), nil)
	}
	if err := validateDSFormulas(t); err != nil {
		return err
	}
	s.Tables[t.Name] = t
	return nil
}

// validateDSFormulas rejects any column's ds_formula containing a forbidden
// DDL/DML/CTE token, per §7.
func validateDSFormulas(t *TableAnnotation) error {
	for _, col := range t.Columns {
		for _, b := range col.Fields {
			if b.DSFormula == "" {
				continue
			}
			if err := util.CheckDisallowedSQL(b.DSFormula); err != nil {
				return err
			}
		}
	}
	return nil
}

// Table looks up a table annotation by fully-qualified name.
func (s *Store) Table(name string) (*TableAnnotation, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// TablesForField returns every active table that has an active column
// bound to the named field.
func (s *Store) TablesForField(field string) []*TableAnnotation {
	var out []*TableAnnotation
	for _, t := range s.Tables {
		if !t.Active {
			continue
		}
		if _, _, ok := t.FieldColumn(field); ok {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks cross-table invariants: every primary_key field must be
// bound by an active column on the table itself, and every declared parent
// must exist.
func (s *Store) Validate() error {
	for _, t := range s.Tables {
		for _, pk := range t.PrimaryKey {
			if _, _, ok := t.FieldColumn(pk); !ok {
				return util.WarehouseIntegrity(fmt.Sprintf("table %q declares primary_key field %q but no active column binds it", t.Name, pk), nil)
			}
		}
		if t.Parent != "" {
			if _, ok := s.Tables[t.Parent]; !ok {
				return util.WarehouseIntegrity(fmt.Sprintf("table %q declares parent %q which is not an annotated table", t.Name, t.Parent), nil)
			}
		}
	}
	return nil
}
