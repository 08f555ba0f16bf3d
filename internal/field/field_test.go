package field_test

import (
	"testing"

	"github.com/sablhq/warehouse/internal/field"
	"github.com/sablhq/warehouse/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMetricRejectsDisallowedFormulaToken(t *testing.T) {
	reg := field.New()
	require.NoError(t, reg.AddMetric(&field.Field{Name: "revenue", Class: field.ClassMetric, Aggregation: field.AggSum}))

	err := reg.AddMetric(&field.Field{
		Name:    "evil",
		Class:   field.ClassMetric,
		Formula: &field.Formula{Template: "{revenue}; DROP TABLE main"},
	})
	require.Error(t, err)
	assert.True(t, util.Is(err, util.KindDisallowedSQL))
	assert.False(t, reg.Has("evil"))
}

func TestAddMetricAcceptsOrdinaryFormula(t *testing.T) {
	reg := field.New()
	require.NoError(t, reg.AddMetric(&field.Field{Name: "revenue", Class: field.ClassMetric, Aggregation: field.AggSum}))
	require.NoError(t, reg.AddMetric(&field.Field{Name: "clicks", Class: field.ClassMetric, Aggregation: field.AggSum}))

	err := reg.AddMetric(&field.Field{
		Name:    "margin",
		Class:   field.ClassMetric,
		Formula: &field.Formula{Template: "{revenue} - {clicks}"},
	})
	require.NoError(t, err)
	assert.True(t, reg.Has("margin"))
}
