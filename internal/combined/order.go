package combined

import (
	"fmt"
	"sort"
)

// SortField is one (field, direction) pair from a report's order_by list.
type SortField struct {
	Field      string
	Descending bool
}

// ApplyOrderBy stable-sorts the frame's rows by the given fields in order,
// overriding FinalSelect's default ascending-by-dimension ordering.
func ApplyOrderBy(frame *Frame, order []SortField) *Frame {
	if len(order) == 0 {
		return frame
	}
	sort.SliceStable(frame.Rows, func(i, j int) bool {
		for _, o := range order {
			a, _ := frame.Rows[i].Get(o.Field)
			b, _ := frame.Rows[j].Get(o.Field)
			switch compareValues(a, b) {
			case -1:
				return !o.Descending
			case 1:
				return o.Descending
			}
		}
		return false
	})
	return frame
}

// ApplyLimit truncates the frame to its first n rows. limit <= 0 leaves the
// frame unchanged.
func ApplyLimit(frame *Frame, limit int) *Frame {
	if limit <= 0 || len(frame.Rows) <= limit {
		return frame
	}
	frame.Rows = frame.Rows[:limit]
	return frame
}

// compareValues orders two already-materialized values, preferring numeric
// comparison and falling back to string comparison, matching compareOp's
// coercion rules. Returns -1, 0 or 1.
func compareValues(a, b any) int {
	if af, aOK := toFloat(a); aOK {
		if bf, bOK := toFloat(b); bOK {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}
