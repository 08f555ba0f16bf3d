package graph_test

import (
	"testing"

	"github.com/sablhq/warehouse/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starGraph() *graph.Graph {
	g := graph.New()
	g.AddEdge("main.sales", "main.customers", []string{"customer_id"})
	g.AddEdge("main.sales", "main.products", []string{"product_id"})
	g.AddEdge("main.customers", "main.regions", []string{"region_id"})
	return g
}

func TestSimplePathsDirect(t *testing.T) {
	g := starGraph()
	paths, err := g.SimplePaths("main.sales", "main.customers")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"main.customers"}, paths[0].Tables())
}

func TestSimplePathsTransitive(t *testing.T) {
	g := starGraph()
	paths, err := g.SimplePaths("main.sales", "main.regions")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"main.customers", "main.regions"}, paths[0].Tables())
}

func TestSimplePathsNoRoute(t *testing.T) {
	g := starGraph()
	paths, err := g.SimplePaths("main.products", "main.regions")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSimplePathsAvoidsCycles(t *testing.T) {
	g := graph.New()
	g.AddEdge("a", "b", []string{"x"})
	g.AddEdge("b", "a", []string{"x"})
	g.AddEdge("b", "c", []string{"y"})

	paths, err := g.SimplePaths("a", "c")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"b", "c"}, paths[0].Tables())
}

func TestSimplePathsRespectsMaxLength(t *testing.T) {
	g := graph.New()
	g.MaxPathLength = 1
	g.AddEdge("a", "b", []string{"x"})
	g.AddEdge("b", "c", []string{"y"})

	paths, err := g.SimplePaths("a", "c")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestShortestPathsPrefersFewerHops(t *testing.T) {
	g := graph.New()
	g.AddEdge("a", "c", []string{"x"})
	g.AddEdge("a", "b", []string{"x"})
	g.AddEdge("b", "c", []string{"y"})

	paths, err := g.ShortestPaths("a", "c")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"c"}, paths[0].Tables())
}

func TestHasTable(t *testing.T) {
	g := starGraph()
	assert.True(t, g.HasTable("main.sales"))
	assert.True(t, g.HasTable("main.regions"))
	assert.False(t, g.HasTable("main.missing"))
}
