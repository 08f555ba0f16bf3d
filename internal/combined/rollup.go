package combined

import (
	"fmt"
	"strconv"

	"github.com/sablhq/warehouse/internal/field"
)

// Sentinel is the rollup placeholder value described in §4.H: the maximum
// Unicode code point, chosen so sentinel rows always sort after every real
// dimension value under the final select's ascending ORDER BY.
const Sentinel = string(rune(0x10FFFF))

// ApplyRollup appends subtotal/grand-total rows to frame per the report's
// rollup request: "totals" adds one grand-total row, "all" adds one rolled
// up row for every dimension depth from 0 to len(dims)-1, and a numeric
// string N adds the single rollup at that depth.
func ApplyRollup(frame *Frame, reg *field.Registry, rollup string) (*Frame, error) {
	if rollup == "" || len(frame.Dimensions) == 0 {
		return frame, nil
	}
	switch rollup {
	case "totals":
		return appendRollupLevel(frame, reg, 0)
	case "all":
		return appendAllLevels(frame, reg)
	default:
		n, err := strconv.Atoi(rollup)
		if err != nil || n < 0 || n >= len(frame.Dimensions) {
			return nil, fmt.Errorf("invalid rollup %q", rollup)
		}
		return appendRollupLevel(frame, reg, n)
	}
}

func appendAllLevels(frame *Frame, reg *field.Registry) (*Frame, error) {
	out := frame
	for n := 0; n < len(frame.Dimensions); n++ {
		var err error
		out, err = appendRollupLevel(out, reg, n)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// appendRollupLevel groups the frame's non-rollup rows by their first n
// dimension levels, fills the remaining levels with Sentinel, aggregates
// every metric per §4.H's per-aggregation rule, and appends the resulting
// rows after the existing ones.
func appendRollupLevel(frame *Frame, reg *field.Registry, n int) (*Frame, error) {
	dims := frame.Dimensions
	buckets := map[string][]Row{}
	var order []string
	for _, row := range frame.Rows {
		if isRollupRow(row, dims) {
			continue
		}
		key := groupKey(row, dims[:n])
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], row)
	}

	out := &Frame{Dimensions: dims, Metrics: frame.Metrics, Rows: append([]Row{}, frame.Rows...)}
	for _, key := range order {
		group := buckets[key]
		agg, err := aggregateGroup(group, reg, frame.Metrics)
		if err != nil {
			return nil, err
		}
		for i, d := range dims {
			if i < n {
				v, _ := group[0].Get(d)
				agg.Set(d, v)
			} else {
				agg.Set(d, Sentinel)
			}
		}
		out.Rows = append(out.Rows, reorderRow(agg, dims, frame.Metrics))
	}
	return out, nil
}

func isRollupRow(row Row, dims []string) bool {
	for _, d := range dims {
		if v, _ := row.Get(d); v == Sentinel {
			return true
		}
	}
	return false
}

func aggregateGroup(group []Row, reg *field.Registry, metrics []string) (Row, error) {
	agg := newRow()
	for _, m := range metrics {
		f, err := reg.GetField(m)
		if err != nil {
			return nil, fmt.Errorf("rollup: resolving metric %q: %w", m, err)
		}
		switch f.Aggregation {
		case field.AggSum, field.AggCount, field.AggCountDistinct:
			agg.Set(m, reduceColumn(group, m, func(acc, v float64) float64 { return acc + v }))
		case field.AggMin:
			agg.Set(m, reduceColumn(group, m, minOf))
		case field.AggMax:
			agg.Set(m, reduceColumn(group, m, maxOf))
		case field.AggMean:
			if f.WeightingMetric != "" {
				agg.Set(m, weightedMean(group, m, f.WeightingMetric))
			} else {
				agg.Set(m, unweightedMean(group, m))
			}
		default:
			agg.Set(m, unweightedMean(group, m))
		}
	}
	return agg, nil
}

func reduceColumn(group []Row, metric string, combine func(acc, v float64) float64) float64 {
	var acc float64
	first := true
	for _, row := range group {
		v, _ := row.Get(metric)
		fv, ok := toFloat(v)
		if !ok {
			continue
		}
		if first {
			acc = fv
			first = false
			continue
		}
		acc = combine(acc, fv)
	}
	return acc
}

func minOf(acc, v float64) float64 {
	if v < acc {
		return v
	}
	return acc
}

func maxOf(acc, v float64) float64 {
	if v > acc {
		return v
	}
	return acc
}

func unweightedMean(group []Row, metric string) float64 {
	var sum float64
	var n int
	for _, row := range group {
		v, _ := row.Get(metric)
		fv, ok := toFloat(v)
		if !ok {
			continue
		}
		sum += fv
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// weightedMean computes Σ(x·w)/Σ(w), falling back to the unweighted mean
// when every weight is zero (or absent), per §4.H.
func weightedMean(group []Row, metric, weightMetric string) float64 {
	var num, denom float64
	for _, row := range group {
		v, _ := row.Get(metric)
		w, _ := row.Get(weightMetric)
		fv, ok1 := toFloat(v)
		fw, ok2 := toFloat(w)
		if !ok1 || !ok2 {
			continue
		}
		num += fv * fw
		denom += fw
	}
	if denom == 0 {
		return unweightedMean(group, metric)
	}
	return num / denom
}

func newRow() Row {
	return orderedMapNew()
}

// reorderRow rebuilds a row with dimensions then metrics in canonical
// column order, matching the order FinalSelect produces.
func reorderRow(agg Row, dims, metrics []string) Row {
	out := newRow()
	for _, d := range dims {
		v, _ := agg.Get(d)
		out.Set(d, v)
	}
	for _, m := range metrics {
		v, _ := agg.Get(m)
		out.Set(m, v)
	}
	return out
}
