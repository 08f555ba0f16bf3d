package combined

import (
	"fmt"

	"github.com/sablhq/warehouse/internal/util"
)

// RowFilter is one (field, op, value) predicate applied to the assembled
// frame after it has been read out of the temp table, per §4.G step 5.
// Supported operators are the subset of §6.2 that make sense against
// already-materialized values: comparisons use "==" rather than SQL's "=".
type RowFilter struct {
	Field string
	Op    string
	Value any
}

// ApplyRowFilters keeps only rows matching every filter, in the order
// given. An unknown field name compares as nil against Value, matching no
// row under any operator but "!=" / "not in".
func ApplyRowFilters(frame *Frame, filters []RowFilter) (*Frame, error) {
	if len(filters) == 0 {
		return frame, nil
	}
	out := &Frame{Dimensions: frame.Dimensions, Metrics: frame.Metrics}
	for _, row := range frame.Rows {
		keep := true
		for _, f := range filters {
			ok, err := matchFilter(row, f)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

func matchFilter(row Row, f RowFilter) (bool, error) {
	v, present := row.Get(f.Field)
	switch f.Op {
	case ">", ">=", "<", "<=", "==", "!=":
		if !present {
			return f.Op == "!=", nil
		}
		return compareOp(f.Op, v, f.Value)
	case "in":
		return present && containsAny(v, f.Value), nil
	case "not in":
		return !present || !containsAny(v, f.Value), nil
	default:
		return false, util.ReportException(fmt.Sprintf("unsupported row filter operator %q", f.Op), nil)
	}
}

func compareOp(op string, a, b any) (bool, error) {
	if af, aOK := toFloat(a); aOK {
		if bf, bOK := toFloat(b); bOK {
			switch op {
			case ">":
				return af > bf, nil
			case ">=":
				return af >= bf, nil
			case "<":
				return af < bf, nil
			case "<=":
				return af <= bf, nil
			case "==":
				return af == bf, nil
			case "!=":
				return af != bf, nil
			}
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch op {
	case ">":
		return as > bs, nil
	case ">=":
		return as >= bs, nil
	case "<":
		return as < bs, nil
	case "<=":
		return as <= bs, nil
	case "==":
		return as == bs, nil
	case "!=":
		return as != bs, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", op)
	}
}

func containsAny(v any, list any) bool {
	vals, ok := list.([]any)
	if !ok {
		return false
	}
	vs := fmt.Sprintf("%v", v)
	for _, item := range vals {
		if fmt.Sprintf("%v", item) == vs {
			return true
		}
	}
	return false
}
