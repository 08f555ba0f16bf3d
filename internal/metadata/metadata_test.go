package metadata_test

import (
	"testing"

	"github.com/sablhq/warehouse/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSalesTable() *metadata.TableAnnotation {
	tbl := metadata.NewTableAnnotation("main.sales", metadata.TableMetric)
	tbl.AddColumn(&metadata.ColumnAnnotation{
		Column: "revenue",
		Fields: []metadata.FieldBinding{{Field: "revenue"}},
		Active: true,
	})
	tbl.AddColumn(&metadata.ColumnAnnotation{
		Column: "sale_date",
		Fields: []metadata.FieldBinding{{Field: "date"}},
		Active: true,
	})
	return tbl
}

func TestTableAnnotationFieldColumn(t *testing.T) {
	tbl := newSalesTable()

	col, binding, ok := tbl.FieldColumn("revenue")
	require.True(t, ok)
	assert.Equal(t, "revenue", col.Column)
	assert.Equal(t, "revenue", binding.Field)

	_, _, ok = tbl.FieldColumn("missing")
	assert.False(t, ok)
}

func TestTableAnnotationFieldColumnSkipsInactive(t *testing.T) {
	tbl := newSalesTable()
	tbl.Columns["revenue"].Active = false

	_, _, ok := tbl.FieldColumn("revenue")
	assert.False(t, ok)
}

func TestTableAnnotationFields(t *testing.T) {
	tbl := newSalesTable()
	fields := tbl.Fields()
	assert.ElementsMatch(t, []string{"revenue", "date"}, fields)
}

func TestStoreAddTableRejectsDuplicate(t *testing.T) {
	s := metadata.NewStore("main")
	require.NoError(t, s.AddTable(newSalesTable()))

	err := s.AddTable(newSalesTable())
	assert.Error(t, err)
}

func TestStoreTablesForField(t *testing.T) {
	s := metadata.NewStore("main")
	require.NoError(t, s.AddTable(newSalesTable()))

	got := s.TablesForField("revenue")
	require.Len(t, got, 1)
	assert.Equal(t, "main.sales", got[0].Name)

	assert.Empty(t, s.TablesForField("nonexistent"))
}

func TestStoreValidateRejectsUnknownParent(t *testing.T) {
	s := metadata.NewStore("main")
	tbl := newSalesTable()
	tbl.Parent = "main.missing_parent"
	require.NoError(t, s.AddTable(tbl))

	err := s.Validate()
	assert.Error(t, err)
}

func TestStoreValidateRejectsPrimaryKeyWithoutColumn(t *testing.T) {
	s := metadata.NewStore("main")
	tbl := newSalesTable()
	tbl.PrimaryKey = []string{"not_bound"}
	require.NoError(t, s.AddTable(tbl))

	err := s.Validate()
	assert.Error(t, err)
}

func TestStoreValidatePassesForWellFormedStore(t *testing.T) {
	s := metadata.NewStore("main")
	fact := newSalesTable()
	fact.PrimaryKey = []string{"date"}
	require.NoError(t, s.AddTable(fact))

	assert.NoError(t, s.Validate())
}

func TestStoreAddTableRejectsDisallowedDSFormula(t *testing.T) {
	s := metadata.NewStore("main")
	tbl := metadata.NewTableAnnotation("main.sales", metadata.TableMetric)
	tbl.AddColumn(&metadata.ColumnAnnotation{
		Column: "revenue",
		Fields: []metadata.FieldBinding{{Field: "revenue", DSFormula: "revenue; DROP TABLE main.sales"}},
		Active: true,
	})

	err := s.AddTable(tbl)
	require.Error(t, err)
	assert.Empty(t, s.Tables)
}
