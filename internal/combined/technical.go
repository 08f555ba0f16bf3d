package combined

import (
	"fmt"
	"math"
	"sort"

	"github.com/sablhq/warehouse/internal/field"
)

// ApplyTechnicals runs each metric's declared technical spec against the
// frame in place, per §4.G step 6. A bollinger technical appends its
// `<metric>_lower`/`<metric>_upper` companion columns to frame.Metrics.
func ApplyTechnicals(frame *Frame, reg *field.Registry) error {
	for _, m := range append([]string{}, frame.Metrics...) {
		f, err := reg.GetField(m)
		if err != nil || f.Technical == nil {
			continue
		}
		if err := applyTechnical(frame, m, f.Technical); err != nil {
			return fmt.Errorf("technical for metric %q: %w", m, err)
		}
	}
	return nil
}

// applyTechnical groups the frame's rows per the technical's mode -- "group"
// buckets by every dimension except the last (the second-to-last index
// level), running the window independently per bucket in row order; "all"
// (or a frame with fewer than two dimensions) runs across the whole frame.
func applyTechnical(frame *Frame, metric string, t *field.Technical) error {
	groups := groupRows(frame, t.Mode)
	for _, g := range groups {
		series := extractSeries(g, metric)
		window, minPeriods := windowParam(t), minPeriodsParam(t)

		switch t.Type {
		case "mean", "sum", "median", "min", "max", "std", "var":
			out, err := rolling(series, t.Type, window, minPeriods)
			if err != nil {
				return err
			}
			writeSeries(g, metric, out)
		case "boll":
			if err := applyBollinger(frame, g, metric, series, window, minPeriods); err != nil {
				return err
			}
		case "diff":
			writeSeries(g, metric, diffSeries(series))
		case "pct_change":
			writeSeries(g, metric, pctChange(series))
		case "rank":
			writeSeries(g, metric, rankSeries(series, false))
		case "pct_rank":
			writeSeries(g, metric, rankSeries(series, true))
		case "cumsum":
			writeSeries(g, metric, cumulative(series, func(acc, v float64) float64 { return acc + v }))
		case "cummin":
			writeSeries(g, metric, cumulative(series, math.Min))
		case "cummax":
			writeSeries(g, metric, cumulative(series, math.Max))
		default:
			return fmt.Errorf("unsupported technical type %q", t.Type)
		}
	}
	return nil
}

func groupRows(frame *Frame, mode string) [][]Row {
	if mode != "group" || len(frame.Dimensions) < 2 {
		return [][]Row{frame.Rows}
	}
	groupDims := frame.Dimensions[:len(frame.Dimensions)-1]
	buckets := map[string][]Row{}
	var order []string
	for _, row := range frame.Rows {
		key := groupKey(row, groupDims)
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], row)
	}
	out := make([][]Row, 0, len(order))
	for _, k := range order {
		out = append(out, buckets[k])
	}
	return out
}

func extractSeries(rows []Row, metric string) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		v, _ := row.Get(metric)
		out[i], _ = toFloat(v)
	}
	return out
}

func writeSeries(rows []Row, metric string, values []float64) {
	for i, row := range rows {
		if i < len(values) {
			row.Set(metric, values[i])
		}
	}
}

func windowParam(t *field.Technical) int {
	if len(t.Params) > 0 && t.Params[0] > 0 {
		return int(t.Params[0])
	}
	return 1
}

func minPeriodsParam(t *field.Technical) int {
	if len(t.Params) > 1 && t.Params[1] > 0 {
		return int(t.Params[1])
	}
	return 1
}

func rolling(series []float64, kind string, window, minPeriods int) ([]float64, error) {
	out := make([]float64, len(series))
	for i := range series {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		win := series[start : i+1]
		if len(win) < minPeriods {
			out[i] = math.NaN()
			continue
		}
		v, err := reduceWindow(win, kind)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func reduceWindow(w []float64, kind string) (float64, error) {
	switch kind {
	case "mean":
		return mean(w), nil
	case "sum":
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s, nil
	case "median":
		return median(w), nil
	case "min":
		m := w[0]
		for _, v := range w[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	case "max":
		m := w[0]
		for _, v := range w[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	case "std":
		return math.Sqrt(variance(w)), nil
	case "var":
		return variance(w), nil
	default:
		return 0, fmt.Errorf("unsupported rolling type %q", kind)
	}
}

func mean(w []float64) float64 {
	s := 0.0
	for _, v := range w {
		s += v
	}
	return s / float64(len(w))
}

func variance(w []float64) float64 {
	if len(w) < 2 {
		return 0
	}
	m := mean(w)
	s := 0.0
	for _, v := range w {
		d := v - m
		s += d * d
	}
	return s / float64(len(w)-1)
}

func median(w []float64) float64 {
	sorted := append([]float64{}, w...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func applyBollinger(frame *Frame, rows []Row, metric string, series []float64, window, minPeriods int) error {
	means, err := rolling(series, "mean", window, minPeriods)
	if err != nil {
		return err
	}
	stds, err := rolling(series, "std", window, minPeriods)
	if err != nil {
		return err
	}
	lowerCol, upperCol := metric+"_lower", metric+"_upper"
	for i, row := range rows {
		row.Set(metric, means[i])
		row.Set(lowerCol, means[i]-2*stds[i])
		row.Set(upperCol, means[i]+2*stds[i])
	}
	frame.addMetricColumn(lowerCol)
	frame.addMetricColumn(upperCol)
	return nil
}

func (f *Frame) addMetricColumn(name string) {
	for _, m := range f.Metrics {
		if m == name {
			return
		}
	}
	f.Metrics = append(f.Metrics, name)
}

func diffSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[i] - series[i-1]
	}
	return out
}

func pctChange(series []float64) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i == 0 || series[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (series[i] - series[i-1]) / series[i-1]
	}
	return out
}

// rankSeries assigns ordinal (or, if percentile is set, fractional
// percentile) ranks, averaging ranks across tied values.
func rankSeries(series []float64, percentile bool) []float64 {
	n := len(series)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return series[order[i]] < series[order[j]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && series[order[j+1]] == series[order[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avgRank
		}
		i = j + 1
	}
	if !percentile {
		return ranks
	}
	out := make([]float64, n)
	for i, r := range ranks {
		out[i] = r / float64(n)
	}
	return out
}

func cumulative(series []float64, combine func(acc, v float64) float64) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	acc := series[0]
	out[0] = acc
	for i := 1; i < len(series); i++ {
		acc = combine(acc, series[i])
		out[i] = acc
	}
	return out
}
