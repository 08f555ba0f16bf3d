package combined_test

import (
	"context"
	"testing"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/sablhq/warehouse/internal/combined"
	"github.com/sablhq/warehouse/internal/executor"
	"github.com/sablhq/warehouse/internal/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderedMapFor(day string, revenue float64) combined.Row {
	r := orderedmap.NewOrderedMap[string, any]()
	r.Set("day", day)
	r.Set("revenue", revenue)
	return r
}

func orderedMapScoreWeight(region string, score, weight float64) combined.Row {
	r := orderedmap.NewOrderedMap[string, any]()
	r.Set("region", region)
	r.Set("score", score)
	r.Set("weight", weight)
	return r
}

func orderedMapDayRegion(day, region string, revenue float64) combined.Row {
	r := orderedmap.NewOrderedMap[string, any]()
	r.Set("day", day)
	r.Set("region", region)
	r.Set("revenue", revenue)
	return r
}

func newRegistry(t *testing.T) *field.Registry {
	t.Helper()
	reg := field.New()
	require.NoError(t, reg.AddDimension(&field.Field{Name: "region", Class: field.ClassDimension}))
	require.NoError(t, reg.AddDimension(&field.Field{Name: "day", Class: field.ClassDimension}))
	require.NoError(t, reg.AddMetric(&field.Field{Name: "revenue", Class: field.ClassMetric, Aggregation: field.AggSum}))
	require.NoError(t, reg.AddMetric(&field.Field{Name: "clicks", Class: field.ClassMetric, Aggregation: field.AggSum}))
	require.NoError(t, reg.AddMetric(&field.Field{
		Name: "margin", Class: field.ClassMetric, Aggregation: field.AggMean,
		Formula: &field.Formula{Template: "{revenue} - {clicks}"},
	}))
	return reg
}

func assembleBasic(t *testing.T, reg *field.Registry) *combined.Frame {
	t.Helper()
	results := []*executor.Result{
		{
			Columns: []string{"region", "revenue"},
			Rows: [][]any{
				{"east", 100.0},
				{"west", 50.0},
			},
		},
		{
			Columns: []string{"region", "clicks"},
			Rows: [][]any{
				{"east", 10.0},
				{"west", 5.0},
			},
		},
	}
	frame, err := combined.Assemble(context.Background(), reg, []string{"region"}, []string{"region"}, []string{"revenue", "clicks"}, results)
	require.NoError(t, err)
	return frame
}

func TestAssembleMergesOnSharedDimensionKey(t *testing.T) {
	reg := newRegistry(t)
	frame := assembleBasic(t, reg)
	require.Len(t, frame.Rows, 2)

	byRegion := map[string]combined.Row{}
	for _, r := range frame.Rows {
		region, _ := r.Get("region")
		byRegion[region.(string)] = r
	}
	rev, _ := byRegion["east"].Get("revenue")
	clk, _ := byRegion["east"].Get("clicks")
	assert.Equal(t, 100.0, rev)
	assert.Equal(t, 10.0, clk)
}

func TestAssembleMergeIsOrderIndependent(t *testing.T) {
	reg := newRegistry(t)
	results := []*executor.Result{
		{Columns: []string{"region", "clicks"}, Rows: [][]any{{"east", 10.0}}},
		{Columns: []string{"region", "revenue"}, Rows: [][]any{{"east", 100.0}}},
	}
	frame, err := combined.Assemble(context.Background(), reg, []string{"region"}, []string{"region"}, []string{"revenue", "clicks"}, results)
	require.NoError(t, err)
	require.Len(t, frame.Rows, 1)
	rev, _ := frame.Rows[0].Get("revenue")
	clk, _ := frame.Rows[0].Get("clicks")
	assert.Equal(t, 100.0, rev)
	assert.Equal(t, 10.0, clk)
}

func TestApplyRowFiltersOperators(t *testing.T) {
	reg := newRegistry(t)
	frame := assembleBasic(t, reg)

	out, err := combined.ApplyRowFilters(frame, []combined.RowFilter{{Field: "revenue", Op: ">", Value: 60.0}})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	region, _ := out.Rows[0].Get("region")
	assert.Equal(t, "east", region)

	out, err = combined.ApplyRowFilters(frame, []combined.RowFilter{{Field: "region", Op: "in", Value: []any{"west"}}})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	region, _ = out.Rows[0].Get("region")
	assert.Equal(t, "west", region)

	out, err = combined.ApplyRowFilters(frame, []combined.RowFilter{{Field: "region", Op: "not in", Value: []any{"west"}}})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)

	_, err = combined.ApplyRowFilters(frame, []combined.RowFilter{{Field: "revenue", Op: "~=", Value: 1}})
	assert.Error(t, err)
}

func dayFrame(reg *field.Registry) *combined.Frame {
	_ = reg
	mk := func(day string, v float64) combined.Row {
		r := orderedMapFor(day, v)
		return r
	}
	return &combined.Frame{
		Dimensions: []string{"day"},
		Metrics:    []string{"revenue"},
		Rows:       []combined.Row{mk("1", 10), mk("2", 20), mk("3", 30)},
	}
}

func TestApplyTechnicalsRollingSum(t *testing.T) {
	reg := field.New()
	require.NoError(t, reg.AddDimension(&field.Field{Name: "day", Class: field.ClassDimension}))
	require.NoError(t, reg.AddMetric(&field.Field{
		Name: "revenue", Class: field.ClassMetric, Aggregation: field.AggSum,
		Technical: &field.Technical{Type: "sum", Params: []float64{2}, Mode: "all"},
	}))
	frame := dayFrame(reg)

	require.NoError(t, combined.ApplyTechnicals(frame, reg))
	v0, _ := frame.Rows[0].Get("revenue")
	v1, _ := frame.Rows[1].Get("revenue")
	v2, _ := frame.Rows[2].Get("revenue")
	assert.Equal(t, 10.0, v0)
	assert.Equal(t, 30.0, v1)
	assert.Equal(t, 50.0, v2)
}

func TestApplyTechnicalsCumsum(t *testing.T) {
	reg := field.New()
	require.NoError(t, reg.AddDimension(&field.Field{Name: "day", Class: field.ClassDimension}))
	require.NoError(t, reg.AddMetric(&field.Field{
		Name: "revenue", Class: field.ClassMetric, Aggregation: field.AggSum,
		Technical: &field.Technical{Type: "cumsum", Mode: "all"},
	}))
	frame := dayFrame(reg)

	require.NoError(t, combined.ApplyTechnicals(frame, reg))
	v2, _ := frame.Rows[2].Get("revenue")
	assert.Equal(t, 60.0, v2)
}

func TestApplyRollupTotals(t *testing.T) {
	reg := newRegistry(t)
	frame := assembleBasic(t, reg)

	out, err := combined.ApplyRollup(frame, reg, "totals")
	require.NoError(t, err)
	require.Len(t, out.Rows, 3)

	total := out.Rows[2]
	region, _ := total.Get("region")
	assert.Equal(t, combined.Sentinel, region)
	rev, _ := total.Get("revenue")
	assert.Equal(t, 150.0, rev)
}

func TestApplyRollupWeightedMeanFallsBackWhenWeightsZero(t *testing.T) {
	reg := field.New()
	require.NoError(t, reg.AddDimension(&field.Field{Name: "region", Class: field.ClassDimension}))
	require.NoError(t, reg.AddMetric(&field.Field{Name: "weight", Class: field.ClassMetric, Aggregation: field.AggSum}))
	require.NoError(t, reg.AddMetric(&field.Field{
		Name: "score", Class: field.ClassMetric, Aggregation: field.AggMean, WeightingMetric: "weight",
	}))

	frame := &combined.Frame{
		Dimensions: []string{"region"},
		Metrics:    []string{"score", "weight"},
		Rows: []combined.Row{
			orderedMapScoreWeight("east", 10, 0),
			orderedMapScoreWeight("east", 20, 0),
		},
	}
	out, err := combined.ApplyRollup(frame, reg, "totals")
	require.NoError(t, err)
	require.Len(t, out.Rows, 3)
	score, _ := out.Rows[2].Get("score")
	assert.Equal(t, 15.0, score)
}

func TestApplyRounding(t *testing.T) {
	reg := newRegistry(t)
	f, _ := reg.GetField("revenue")
	r := 1
	f.Rounding = &r

	frame := assembleBasic(t, reg)
	require.NoError(t, combined.ApplyRounding(frame, reg))
	rev, _ := frame.Rows[0].Get("revenue")
	assert.Equal(t, 100.0, rev)
}

func TestApplyPivotUnstacksDimension(t *testing.T) {
	reg := newRegistry(t)
	frame := &combined.Frame{
		Dimensions: []string{"day", "region"},
		Metrics:    []string{"revenue"},
		Rows: []combined.Row{
			orderedMapDayRegion("1", "east", 100),
			orderedMapDayRegion("1", "west", 50),
			orderedMapDayRegion("2", "east", 200),
		},
	}
	_ = reg

	out, err := combined.ApplyPivot(frame, []string{"region"})
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	assert.ElementsMatch(t, []string{"east_revenue", "west_revenue"}, out.Metrics)

	for _, row := range out.Rows {
		day, _ := row.Get("day")
		if day == "1" {
			east, _ := row.Get("east_revenue")
			west, _ := row.Get("west_revenue")
			assert.Equal(t, 100.0, east)
			assert.Equal(t, 50.0, west)
		}
	}
}
