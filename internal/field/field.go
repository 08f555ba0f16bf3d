// Package field implements the warehouse's canonical dictionary of metrics
// and dimensions: the Field Registry described as component A. A Field is
// the smallest addressable analytical quantity a report can reference; the
// planner resolves every metric, dimension and formula against a Registry
// before any SQL is built.
package field

import (
	"fmt"
	"regexp"

	"github.com/sablhq/warehouse/internal/util"
)

// Class distinguishes a metric (aggregated numeric quantity) from a
// dimension (grouping key). A name may never denote both.
type Class string

const (
	ClassMetric    Class = "metric"
	ClassDimension Class = "dimension"
)

// Aggregation is how a metric's data-source-level values are combined across
// rows within one dimension grain.
type Aggregation string

const (
	AggSum            Aggregation = "sum"
	AggMean           Aggregation = "mean"
	AggCount          Aggregation = "count"
	AggCountDistinct  Aggregation = "count_distinct"
	AggMin            Aggregation = "min"
	AggMax            Aggregation = "max"
)

var validAggregations = map[Aggregation]bool{
	AggSum: true, AggMean: true, AggCount: true, AggCountDistinct: true, AggMin: true, AggMax: true,
}

// nameRE enforces the [A-Za-z0-9_]+ naming rule shared by every field.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// MaxFormulaDepth bounds how deeply a FormulaMetric's {token} references may
// nest before expansion fails with MaxFormulaDepth, per §4.A.
const MaxFormulaDepth = 3

// Technical describes a post-aggregation windowed computation applied to a
// metric column after combined-result assembly, parsed from strings like
// "mean(5,1):group" or "cumsum".
type Technical struct {
	Type   string // rolling: mean,sum,median,min,max,std,var; boll; diff,pct_change; rank,pct_rank; cumsum,cummin,cummax
	Params []float64
	Mode   string // "group" or "all"
}

// Field is the fully resolved descriptor for one metric, dimension, formula
// field or ad-hoc field.
type Field struct {
	Name            string
	Class           Class
	SAType          string
	Aggregation     Aggregation // metrics only
	Rounding        *int
	WeightingMetric string // only valid alongside AggMean
	Technical       *Technical
	RequiredGrain   []string
	Formula         *Formula
	AdHoc           bool

	// IFNullSentinel overrides the owning data source's default IFNULL
	// fill value for this metric specifically (e.g. a ratio metric whose
	// "no data" sentinel should be NULL rather than 0). Empty means "use
	// the data source default".
	IFNullSentinel string
}

// Formula is a template referencing other field names by {token}. Formula
// resolution expands these recursively up to MaxFormulaDepth.
type Formula struct {
	Template string
}

// Validate checks invariants that hold regardless of the owning registry:
// legal name, aggregation only on metrics, weighting only with mean, and
// (per §7) that a formula field's template carries no forbidden DDL/DML/CTE
// token -- caught here, at registration time, rather than left for the
// planner to substitute unchecked into generated SQL.
func (f *Field) Validate() error {
	if !nameRE.MatchString(f.Name) {
		return util.WarehouseIntegrity(fmt.Sprintf("field name %q does not match [A-Za-z0-9_]+", f.Name), nil)
	}
	if f.Formula != nil {
		if err := util.CheckDisallowedSQL(f.Formula.Template); err != nil {
			return err
		}
	}
	if f.Class == ClassMetric {
		if f.Aggregation != "" && !validAggregations[f.Aggregation] {
			return util.WarehouseIntegrity(fmt.Sprintf("field %q has invalid aggregation %q", f.Name, f.Aggregation), nil)
		}
		if f.WeightingMetric != "" && f.Aggregation != AggMean {
			return util.WarehouseIntegrity(fmt.Sprintf("field %q declares weighting_metric but aggregation is %q, not mean", f.Name, f.Aggregation), nil)
		}
	} else {
		if f.Aggregation != "" {
			return util.WarehouseIntegrity(fmt.Sprintf("dimension %q may not declare an aggregation", f.Name), nil)
		}
		if f.WeightingMetric != "" {
			return util.WarehouseIntegrity(fmt.Sprintf("dimension %q may not declare a weighting_metric", f.Name), nil)
		}
	}
	return nil
}

// IsFormula reports whether this field is computed from other fields rather
// than bound directly to a column.
func (f *Field) IsFormula() bool { return f.Formula != nil }
