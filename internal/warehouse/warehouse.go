// Package warehouse implements component E: the top-level aggregate of
// every configured DataSource, the global field registry, declaration/
// priority ordering, startup integrity checks, and TableSet selection
// (§4.D) -- choosing which data source and which join plan serves a
// requested metric or dimension-only grain.
package warehouse

import (
	"sort"

	"github.com/sablhq/warehouse/internal/datasource"
	"github.com/sablhq/warehouse/internal/field"
	"github.com/sablhq/warehouse/internal/util"
)

// Warehouse aggregates data sources in declaration order. Its field
// registry falls through to each DataSource's own registry on lookup
// miss, per §4.A.
type Warehouse struct {
	DataSources   []*datasource.DataSource
	PriorityOrder []string // DS names, highest priority first; empty means declaration order
	Fields        *field.Registry
}

// New builds a Warehouse from already-constructed data sources, in
// declaration order. Each data source's IncompleteDimensions are enforced
// per candidate join, not here: internal/datasource's PossibleJoins search
// excludes the incomplete dimension from whichever edges carry it rather
// than this constructor rejecting the whole Warehouse over one bad edge
// (a table can mark one of several shared dimensions incomplete without
// poisoning joins against the rest).
func New(dataSources []*datasource.DataSource, priorityOrder []string) (*Warehouse, error) {
	registries := make([]*field.Registry, 0, len(dataSources))
	for _, ds := range dataSources {
		registries = append(registries, ds.Fields)
	}
	return &Warehouse{
		DataSources:   dataSources,
		PriorityOrder: priorityOrder,
		Fields:        field.New(registries...),
	}, nil
}

// dsOrder returns data sources in selection order: explicit priority
// order first (for named sources), then any remaining sources in
// declaration order.
func (w *Warehouse) dsOrder() []*datasource.DataSource {
	if len(w.PriorityOrder) == 0 {
		return w.DataSources
	}
	byName := make(map[string]*datasource.DataSource, len(w.DataSources))
	for _, ds := range w.DataSources {
		byName[ds.Name] = ds
	}
	var ordered []*datasource.DataSource
	seen := map[string]bool{}
	for _, name := range w.PriorityOrder {
		if ds, ok := byName[name]; ok && !seen[name] {
			ordered = append(ordered, ds)
			seen[name] = true
		}
	}
	for _, ds := range w.DataSources {
		if !seen[ds.Name] {
			ordered = append(ordered, ds)
			seen[ds.Name] = true
		}
	}
	return ordered
}

// SelectTableSet implements §4.D for a single metric at grain G: iterate
// data sources in priority/declaration order, and within the first data
// source that can cover the grain for this metric, pick the table set
// with the fewest total tables.
func (w *Warehouse) SelectTableSet(metric string, grain []string) (*datasource.TableSet, string, error) {
	for _, ds := range w.dsOrder() {
		if !ds.Fields.Has(metric) {
			continue
		}
		var candidates []*datasource.TableSet
		for _, tbl := range ds.Metadata.Tables {
			if !tbl.Active {
				continue
			}
			if _, _, ok := tbl.FieldColumn(metric); !ok {
				continue
			}
			sets, err := ds.PossibleJoins(tbl.Name, grain)
			if err != nil {
				return nil, "", err
			}
			candidates = append(candidates, sets...)
		}
		if len(candidates) == 0 {
			continue
		}
		return fewestTables(candidates), ds.Name, nil
	}
	return nil, "", util.UnsupportedGrain(grain, nil)
}

// SelectDimensionTableSet implements §4.D's dimension-only fallback:
// iterate the requested dimensions in order, and within each, data
// sources in priority order; the first dimension/data-source pairing that
// yields a viable table set for the full grain anchors the plan.
func (w *Warehouse) SelectDimensionTableSet(dims []string) (*datasource.TableSet, string, error) {
	for _, d := range dims {
		for _, ds := range w.dsOrder() {
			tables := ds.Metadata.TablesForField(d)
			sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
			var candidates []*datasource.TableSet
			for _, tbl := range tables {
				sets, err := ds.PossibleJoins(tbl.Name, dims)
				if err != nil {
					return nil, "", err
				}
				candidates = append(candidates, sets...)
			}
			if len(candidates) > 0 {
				return fewestTables(candidates), ds.Name, nil
			}
		}
	}
	return nil, "", util.UnsupportedGrain(dims, nil)
}

func fewestTables(sets []*datasource.TableSet) *datasource.TableSet {
	best := sets[0]
	for _, s := range sets[1:] {
		if len(s.Tables()) < len(best.Tables()) {
			best = s
		}
	}
	return best
}
