package combined

import (
	"fmt"
	"sort"
	"strings"
)

// ApplyPivot unstacks the given dimension levels into columns, per §4.G
// step 9: rows are grouped by the dimensions NOT being pivoted, and each
// distinct combination of pivoted-dimension values becomes one derived
// column per metric, named "<pivot-value-combo>_<metric>".
func ApplyPivot(frame *Frame, pivotDims []string) (*Frame, error) {
	if len(pivotDims) == 0 {
		return frame, nil
	}
	pivotSet := map[string]bool{}
	for _, d := range pivotDims {
		pivotSet[d] = true
	}
	var keepDims []string
	for _, d := range frame.Dimensions {
		if !pivotSet[d] {
			keepDims = append(keepDims, d)
		}
	}
	for _, d := range pivotDims {
		found := false
		for _, fd := range frame.Dimensions {
			if fd == d {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("pivot dimension %q is not present in the frame", d)
		}
	}

	type groupEntry struct {
		keepVals []any
		row      Row
	}
	groups := map[string]*groupEntry{}
	var groupOrder []string
	seenPivotCols := map[string]bool{}
	var pivotCols []string

	for _, r := range frame.Rows {
		key := groupKey(r, keepDims)
		g, ok := groups[key]
		if !ok {
			keepVals := make([]any, len(keepDims))
			for i, d := range keepDims {
				keepVals[i], _ = r.Get(d)
			}
			g = &groupEntry{keepVals: keepVals, row: orderedMapNew()}
			for i, d := range keepDims {
				g.row.Set(d, keepVals[i])
			}
			groups[key] = g
			groupOrder = append(groupOrder, key)
		}

		label := pivotLabel(r, pivotDims)
		for _, m := range frame.Metrics {
			col := label + "_" + m
			v, _ := r.Get(m)
			g.row.Set(col, v)
			if !seenPivotCols[col] {
				seenPivotCols[col] = true
				pivotCols = append(pivotCols, col)
			}
		}
	}

	sort.Strings(pivotCols)
	out := &Frame{Dimensions: keepDims, Metrics: pivotCols}
	for _, key := range groupOrder {
		out.Rows = append(out.Rows, groups[key].row)
	}
	return out, nil
}

func pivotLabel(row Row, pivotDims []string) string {
	parts := make([]string, len(pivotDims))
	for i, d := range pivotDims {
		v, _ := row.Get(d)
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "_")
}
