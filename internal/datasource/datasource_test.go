package datasource_test

import (
	"testing"

	"github.com/sablhq/warehouse/internal/datasource"
	"github.com/sablhq/warehouse/internal/graph"
	"github.com/sablhq/warehouse/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starSchema() (*metadata.Store, *graph.Graph) {
	store := metadata.NewStore("main")

	sales := metadata.NewTableAnnotation("main.sales", metadata.TableMetric)
	sales.Active = true
	sales.AddColumn(&metadata.ColumnAnnotation{Column: "revenue", Active: true, Fields: []metadata.FieldBinding{{Field: "revenue"}}})
	sales.AddColumn(&metadata.ColumnAnnotation{Column: "customer_id", Active: true, Fields: []metadata.FieldBinding{{Field: "customer_id"}}})
	sales.AddColumn(&metadata.ColumnAnnotation{Column: "product_id", Active: true, Fields: []metadata.FieldBinding{{Field: "product_id"}}})

	customers := metadata.NewTableAnnotation("main.customers", metadata.TableDimension)
	customers.AddColumn(&metadata.ColumnAnnotation{Column: "customer_id", Active: true, Fields: []metadata.FieldBinding{{Field: "customer_id"}}})
	customers.AddColumn(&metadata.ColumnAnnotation{Column: "region_id", Active: true, Fields: []metadata.FieldBinding{{Field: "region_id"}}})

	regions := metadata.NewTableAnnotation("main.regions", metadata.TableDimension)
	regions.AddColumn(&metadata.ColumnAnnotation{Column: "region_id", Active: true, Fields: []metadata.FieldBinding{{Field: "region_id"}}})
	regions.AddColumn(&metadata.ColumnAnnotation{Column: "region_name", Active: true, Fields: []metadata.FieldBinding{{Field: "region"}}})

	products := metadata.NewTableAnnotation("main.products", metadata.TableDimension)
	products.AddColumn(&metadata.ColumnAnnotation{Column: "product_id", Active: true, Fields: []metadata.FieldBinding{{Field: "product_id"}}})
	products.AddColumn(&metadata.ColumnAnnotation{Column: "product_name", Active: true, Fields: []metadata.FieldBinding{{Field: "product"}}})

	for _, t := range []*metadata.TableAnnotation{sales, customers, regions, products} {
		if err := store.AddTable(t); err != nil {
			panic(err)
		}
	}

	g := graph.New()
	g.AddEdge("main.sales", "main.customers", []string{"customer_id"})
	g.AddEdge("main.customers", "main.regions", []string{"region_id"})
	g.AddEdge("main.sales", "main.products", []string{"product_id"})

	return store, g
}

func TestPossibleJoinsZeroJoinShortcut(t *testing.T) {
	store, g := starSchema()
	ds := datasource.New("main", 0, nil, nil, store, g, nil)

	sets, err := ds.PossibleJoins("main.sales", []string{"customer_id"})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Empty(t, sets[0].Join)
	assert.Equal(t, "main.sales", sets[0].FieldMap["customer_id"].Table)
}

func TestPossibleJoinsMultiHopCover(t *testing.T) {
	store, g := starSchema()
	ds := datasource.New("main", 0, nil, nil, store, g, nil)

	sets, err := ds.PossibleJoins("main.sales", []string{"region", "product"})
	require.NoError(t, err)
	require.NotEmpty(t, sets)

	ts := sets[0]
	assert.ElementsMatch(t, []string{"main.sales", "main.products", "main.customers", "main.regions"}, ts.Tables())
	assert.Equal(t, "main.regions", ts.FieldMap["region"].Table)
	assert.Equal(t, "main.products", ts.FieldMap["product"].Table)
}

func TestPossibleJoinsNoPlanForUnreachableDimension(t *testing.T) {
	store, g := starSchema()
	ds := datasource.New("main", 0, nil, nil, store, g, nil)

	sets, err := ds.PossibleJoins("main.sales", []string{"nonexistent_dim"})
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestPossibleJoinsSingleHop(t *testing.T) {
	store, g := starSchema()
	ds := datasource.New("main", 0, nil, nil, store, g, nil)

	sets, err := ds.PossibleJoins("main.sales", []string{"product"})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"main.products"}, joinTables(sets[0]))
}

func joinTables(ts *datasource.TableSet) []string {
	out := make([]string, 0, len(ts.Join))
	for _, p := range ts.Join {
		out = append(out, p.Table)
	}
	return out
}

// incompleteRegionSchema is starSchema with main.regions marking region_id
// incomplete, and the customers->regions edge carrying a second, complete
// shared dimension (region_code) alongside it.
func incompleteRegionSchema(t *testing.T) (*metadata.Store, *graph.Graph) {
	t.Helper()
	store, _ := starSchema()
	regions, ok := store.Table("main.regions")
	require.True(t, ok)
	regions.IncompleteDimensions["region_id"] = true

	g := graph.New()
	g.AddEdge("main.sales", "main.customers", []string{"customer_id"})
	g.AddEdge("main.customers", "main.regions", []string{"region_id", "region_code"})
	g.AddEdge("main.sales", "main.products", []string{"product_id"})
	return store, g
}

func TestPossibleJoinsUsesRemainingJoinFieldWhenOneIsIncomplete(t *testing.T) {
	store, g := incompleteRegionSchema(t)
	ds := datasource.New("main", 0, nil, nil, store, g, nil)

	sets, err := ds.PossibleJoins("main.sales", []string{"region"})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Len(t, sets[0].Join, 2)
	for _, p := range sets[0].Join {
		if p.Table == "main.regions" {
			assert.Equal(t, []string{"region_code"}, p.JoinFields)
		}
	}
}

func TestPossibleJoinsRejectsEdgeWhenEveryJoinFieldIsIncomplete(t *testing.T) {
	store, g := starSchema()
	regions, ok := store.Table("main.regions")
	require.True(t, ok)
	regions.IncompleteDimensions["region_id"] = true
	ds := datasource.New("main", 0, nil, nil, store, g, nil)

	sets, err := ds.PossibleJoins("main.sales", []string{"region"})
	require.NoError(t, err)
	assert.Empty(t, sets)
}
