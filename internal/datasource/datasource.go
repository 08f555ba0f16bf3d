// Package datasource composes a registered sources.Source with its table
// metadata and join graph into the "Data Source" described as component D:
// one SQL backend connection plus the annotation store and join graph that
// let the planner discover table sets for a requested grain.
package datasource

import (
	"sort"

	"github.com/sablhq/warehouse/internal/dialect"
	"github.com/sablhq/warehouse/internal/field"
	"github.com/sablhq/warehouse/internal/graph"
	"github.com/sablhq/warehouse/internal/metadata"
	"github.com/sablhq/warehouse/internal/sources"
	"github.com/sablhq/warehouse/internal/util"
)

// DataSource owns one backend connection plus everything the planner needs
// to build SQL against it.
type DataSource struct {
	Name     string
	Priority int // lower sorts first; ties broken by declaration order
	Source   sources.Source
	Dialect  dialect.Dialect
	Metadata *metadata.Store
	Graph    *graph.Graph
	Fields   *field.Registry

	// IFNullSentinel is the SQL literal text substituted for NULL metric
	// values before aggregation (IFNULL/COALESCE), per data source.
	// Defaults to "0" when left empty.
	IFNullSentinel string
}

// New builds a DataSource from its already-initialized parts. Priority
// defaults to the caller's declaration order when left at zero by passing
// the index explicitly.
func New(name string, priority int, src sources.Source, dlct dialect.Dialect, meta *metadata.Store, g *graph.Graph, fields *field.Registry) *DataSource {
	return &DataSource{
		Name:           name,
		Priority:       priority,
		Source:         src,
		Dialect:        dlct,
		Metadata:       meta,
		Graph:          g,
		Fields:         fields,
		IFNullSentinel: "0",
	}
}

// JoinPart is one hop of a TableSet's join, from whatever table precedes it
// (the anchor, or another JoinPart) to Table using an equality condition on
// JoinFields.
type JoinPart struct {
	Table      string
	JoinFields []string
}

// FieldLocation records which table/column on this data source satisfies a
// requested field.
type FieldLocation struct {
	Table  string
	Column string
}

// TableSet is a candidate plan fragment covering a target grain from one
// anchor table, per the glossary: anchor + join path(s) + field→column map.
type TableSet struct {
	DataSource  string
	AnchorTable string
	Join        []JoinPart
	Grain       []string
	FieldMap    map[string]FieldLocation
}

// Tables returns every table this table set touches, anchor first.
func (ts *TableSet) Tables() []string {
	out := make([]string, 0, len(ts.Join)+1)
	out = append(out, ts.AnchorTable)
	for _, p := range ts.Join {
		out = append(out, p.Table)
	}
	return out
}

type joinPath struct {
	parts []JoinPart
}

func (p joinPath) tables() map[string]bool {
	m := make(map[string]bool, len(p.parts))
	for _, part := range p.parts {
		m[part.Table] = true
	}
	return m
}

type consolidatedJoin struct {
	path      joinPath
	locations map[string]FieldLocation // dim -> location, grows via coverage expansion
}

func (c *consolidatedJoin) dims() map[string]bool {
	m := make(map[string]bool, len(c.locations))
	for d := range c.locations {
		m[d] = true
	}
	return m
}

// PossibleJoins implements §4.C: given an anchor table and a target grain
// (set of dimension names), find every minimal-cover combination of joins
// from the anchor that together expose every dimension in the grain.
func (ds *DataSource) PossibleJoins(anchor string, grain []string) ([]*TableSet, error) {
	anchorTbl, ok := ds.Metadata.Table(anchor)
	if !ok {
		return nil, util.WarehouseIntegrity("unknown anchor table \""+anchor+"\" on data source \""+ds.Name+"\"", nil)
	}

	direct := map[string]FieldLocation{}
	var missing []string
	for _, d := range grain {
		if col, _, ok := anchorTbl.FieldColumn(d); ok {
			direct[d] = FieldLocation{Table: anchor, Column: col.Column}
		} else {
			missing = append(missing, d)
		}
	}

	// Step 1: anchor already exposes the full grain -- zero-join placeholder.
	if len(missing) == 0 {
		return []*TableSet{{
			DataSource:  ds.Name,
			AnchorTable: anchor,
			Grain:       grain,
			FieldMap:    direct,
		}}, nil
	}

	// Step 2: for each missing dimension, gather every candidate join path
	// from the anchor to a table providing it.
	candidatesByDim := map[string][]consolidatedJoin{}
	for _, d := range missing {
		tables := ds.Metadata.TablesForField(d)
		var cands []consolidatedJoin
		for _, tbl := range tables {
			if tbl.Name == anchor {
				continue // already handled in direct
			}
			paths, err := ds.Graph.SimplePaths(anchor, tbl.Name)
			if err != nil {
				return nil, err
			}
			for _, p := range paths {
				cj, ok := ds.earliestBinding(anchor, p, d)
				if !ok {
					continue
				}
				cands = append(cands, cj)
			}
		}
		// Step 3: a dimension with zero candidate joins kills the whole search.
		if len(cands) == 0 {
			return nil, nil
		}
		candidatesByDim[d] = cands
	}

	// Step 4(invert): join (by its table path) -> dims covered.
	byKey := map[string]*consolidatedJoin{}
	var order []string
	for d, cands := range candidatesByDim {
		for _, c := range cands {
			key := pathKey(c.path)
			existing, ok := byKey[key]
			if !ok {
				cp := c
				byKey[key] = &cp
				order = append(order, key)
				existing = byKey[key]
			}
			for dim, loc := range c.locations {
				if dim == d {
					existing.locations[dim] = loc
				}
			}
		}
	}
	joins := make([]*consolidatedJoin, 0, len(order))
	for _, k := range order {
		joins = append(joins, byKey[k])
	}

	// Step 4(a): expand each join's coverage with any other grain dimension
	// any table along its path (or the anchor) happens to also expose.
	for _, cj := range joins {
		candidateTables := append([]string{anchor}, tablesOf(cj.path)...)
		for _, d := range grain {
			if _, ok := cj.locations[d]; ok {
				continue
			}
			for _, t := range candidateTables {
				tbl, ok := ds.Metadata.Table(t)
				if !ok {
					continue
				}
				if col, _, ok := tbl.FieldColumn(d); ok {
					cj.locations[d] = FieldLocation{Table: t, Column: col.Column}
					break
				}
			}
		}
	}

	// Step 4(b): sort by (coverage desc, table count asc).
	sort.SliceStable(joins, func(i, j int) bool {
		ci, cj := len(joins[i].locations), len(joins[j].locations)
		if ci != cj {
			return ci > cj
		}
		return len(joins[i].path.parts) < len(joins[j].path.parts)
	})

	// Step 4(c): eliminate joins whose table set is a subset of another's
	// and whose dim coverage is no better.
	filtered := make([]*consolidatedJoin, 0, len(joins))
	for i, a := range joins {
		redundant := false
		for j, b := range joins {
			if i == j {
				continue
			}
			if isProperSubset(a.path.tables(), b.path.tables()) && isSuperset(b.dims(), a.dims()) {
				redundant = true
				break
			}
		}
		if !redundant {
			filtered = append(filtered, a)
		}
	}

	grainSet := make(map[string]bool, len(grain))
	for _, d := range grain {
		grainSet[d] = true
	}

	// Step 4(d): a single join covering the whole remaining grain wins outright.
	for _, cj := range filtered {
		if isSuperset(cj.dims(), grainSet) {
			return []*TableSet{ds.buildTableSet(anchor, grain, direct, []*consolidatedJoin{cj})}, nil
		}
	}

	// Otherwise enumerate combinations of the filtered joins and keep the
	// minimal ones (by union table count) that jointly cover the grain and
	// contain no pair where one's tables subset the other's.
	combos := enumerateCombinations(filtered, grainSet)
	if len(combos) == 0 {
		return nil, nil
	}

	var results []*TableSet
	bestSize := -1
	for _, combo := range combos {
		size := unionTableCount(anchor, combo)
		if bestSize == -1 || size < bestSize {
			bestSize = size
			results = []*TableSet{ds.buildTableSet(anchor, grain, direct, combo)}
		} else if size == bestSize {
			results = append(results, ds.buildTableSet(anchor, grain, direct, combo))
		}
	}
	return results, nil
}

// earliestBinding truncates a simple path at the first table (in hop
// order) that itself exposes d as a column, per the earliest-binding rule.
// Each hop's join fields are first narrowed to the ones still usable per
// usableJoinFields; a hop left with none is never joinable, so the whole
// path is rejected rather than silently joining on nothing.
func (ds *DataSource) earliestBinding(anchor string, p graph.Path, d string) (consolidatedJoin, bool) {
	var parts []JoinPart
	for _, e := range p {
		fields, ok := ds.usableJoinFields(e)
		if !ok {
			return consolidatedJoin{}, false
		}
		parts = append(parts, JoinPart{Table: e.To, JoinFields: fields})
		tbl, ok := ds.Metadata.Table(e.To)
		if !ok {
			continue
		}
		if col, _, ok := tbl.FieldColumn(d); ok {
			return consolidatedJoin{
				path:      joinPath{parts: parts},
				locations: map[string]FieldLocation{d: {Table: e.To, Column: col.Column}},
			}, true
		}
	}
	return consolidatedJoin{}, false
}

// usableJoinFields drops any join field that the edge's target table marks
// incomplete, per the IncompleteDimensions rule: a dimension a table marks
// incomplete may never be used as the key other tables join to it through.
// A compound-key edge keeps joining on whichever of its fields remain
// usable; it is excluded entirely only once every one of its fields is
// incomplete on the target table.
func (ds *DataSource) usableJoinFields(e graph.Edge) ([]string, bool) {
	tbl, ok := ds.Metadata.Table(e.To)
	if !ok || len(tbl.IncompleteDimensions) == 0 {
		return e.JoinFields, true
	}
	usable := make([]string, 0, len(e.JoinFields))
	for _, jf := range e.JoinFields {
		if !tbl.IncompleteDimensions[jf] {
			usable = append(usable, jf)
		}
	}
	return usable, len(usable) > 0
}

func (ds *DataSource) buildTableSet(anchor string, grain []string, direct map[string]FieldLocation, combo []*consolidatedJoin) *TableSet {
	fieldMap := map[string]FieldLocation{}
	for d, loc := range direct {
		fieldMap[d] = loc
	}
	seenTables := map[string]bool{}
	var parts []JoinPart
	for _, cj := range combo {
		for _, p := range cj.path.parts {
			if seenTables[p.Table] {
				continue
			}
			seenTables[p.Table] = true
			parts = append(parts, p)
		}
		for d, loc := range cj.locations {
			fieldMap[d] = loc
		}
	}
	return &TableSet{
		DataSource:  ds.Name,
		AnchorTable: anchor,
		Join:        parts,
		Grain:       grain,
		FieldMap:    fieldMap,
	}
}

func pathKey(p joinPath) string {
	s := ""
	for _, part := range p.parts {
		s += part.Table + ">"
	}
	return s
}

func tablesOf(p joinPath) []string {
	out := make([]string, 0, len(p.parts))
	for _, part := range p.parts {
		out = append(out, part.Table)
	}
	return out
}

func isProperSubset(a, b map[string]bool) bool {
	if len(a) >= len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func isSuperset(a, b map[string]bool) bool {
	for k := range b {
		if !a[k] {
			return false
		}
	}
	return true
}

// enumerateCombinations walks the powerset of candidate joins (bounded --
// join graphs here run tens to hundreds of nodes, never thousands of
// candidate joins) and keeps combinations that jointly cover the grain and
// contain no pair whose table sets nest inside one another.
func enumerateCombinations(joins []*consolidatedJoin, grainSet map[string]bool) [][]*consolidatedJoin {
	n := len(joins)
	if n == 0 {
		return nil
	}
	var results [][]*consolidatedJoin
	for mask := 1; mask < (1 << n); mask++ {
		var combo []*consolidatedJoin
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				combo = append(combo, joins[i])
			}
		}
		if !validCombo(combo) {
			continue
		}
		covered := map[string]bool{}
		for _, cj := range combo {
			for d := range cj.locations {
				covered[d] = true
			}
		}
		if isSuperset(covered, grainSet) {
			results = append(results, combo)
		}
	}
	return results
}

func validCombo(combo []*consolidatedJoin) bool {
	for i := range combo {
		for j := range combo {
			if i == j {
				continue
			}
			ti, tj := combo[i].path.tables(), combo[j].path.tables()
			if isProperSubset(ti, tj) || (len(ti) == len(tj) && pathKey(combo[i].path) != pathKey(combo[j].path) && sameSet(ti, tj)) {
				return false
			}
		}
	}
	return true
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func unionTableCount(anchor string, combo []*consolidatedJoin) int {
	union := map[string]bool{anchor: true}
	for _, cj := range combo {
		for t := range cj.path.tables() {
			union[t] = true
		}
	}
	return len(union)
}
