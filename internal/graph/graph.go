// Package graph implements the per-data-source Join Graph described in
// §4.B: a directed graph of fully-qualified table names, with edges
// labeled by the dimension names shared across a join. Path search is a
// bounded depth-first search rather than a third-party
// all-simple-paths routine, per the redesign note in §9 -- the graphs
// involved are small (tens to hundreds of nodes), so an unindexed
// recursive walk with per-pair memoization is both simpler and fast
// enough.
package graph

import (
	"fmt"
	"sort"

	"github.com/sablhq/warehouse/internal/util"
)

// DefaultMaxPathLength bounds how many edges a single join path may
// traverse before the search gives up on that branch.
const DefaultMaxPathLength = 8

// Edge is a directed join from one table to another, labeled with the
// dimension names used as the equality condition.
type Edge struct {
	To         string
	JoinFields []string
}

// Path is an ordered sequence of edges from an anchor table to a target
// table, each hop carrying the join fields used for that hop.
type Path []Edge

// Tables returns the distinct set of table names visited along the path,
// not including the anchor itself.
func (p Path) Tables() []string {
	out := make([]string, 0, len(p))
	for _, e := range p {
		out = append(out, e.To)
	}
	return out
}

// Graph is a directed graph of tables for one data source.
type Graph struct {
	MaxPathLength int
	edges         map[string][]Edge
	memo          map[pathKey][]Path
}

type pathKey struct {
	from, to string
}

// New creates an empty join graph.
func New() *Graph {
	return &Graph{
		MaxPathLength: DefaultMaxPathLength,
		edges:         map[string][]Edge{},
		memo:          map[pathKey][]Path{},
	}
}

// AddEdge adds a directed edge from `from` to `to` labeled with the given
// join fields. Adding any edge invalidates cached path results.
func (g *Graph) AddEdge(from, to string, joinFields []string) {
	g.edges[from] = append(g.edges[from], Edge{To: to, JoinFields: joinFields})
	g.memo = map[pathKey][]Path{}
}

// Neighbors returns the outgoing edges from a table.
func (g *Graph) Neighbors(table string) []Edge {
	return g.edges[table]
}

// Edges returns every directed edge in the graph, keyed by source table.
func (g *Graph) Edges() map[string][]Edge {
	out := make(map[string][]Edge, len(g.edges))
	for t, edges := range g.edges {
		out[t] = append([]Edge(nil), edges...)
	}
	return out
}

// HasTable reports whether a table appears as a node (source or target of
// some edge) in the graph.
func (g *Graph) HasTable(table string) bool {
	if _, ok := g.edges[table]; ok {
		return true
	}
	for _, edges := range g.edges {
		for _, e := range edges {
			if e.To == table {
				return true
			}
		}
	}
	return false
}

// SimplePaths returns every simple (non-repeating) path from anchor to
// target, up to MaxPathLength edges, memoized by (anchor, target). A path
// of zero edges is never returned -- callers handle anchor == target
// themselves (§4.C step 1: an anchor already exposing the grain needs no
// join at all).
func (g *Graph) SimplePaths(anchor, target string) ([]Path, error) {
	if anchor == "" || target == "" {
		return nil, util.WarehouseIntegrity("SimplePaths requires non-empty anchor and target table names", nil)
	}
	key := pathKey{anchor, target}
	if cached, ok := g.memo[key]; ok {
		return cached, nil
	}
	limit := g.MaxPathLength
	if limit <= 0 {
		limit = DefaultMaxPathLength
	}
	visited := map[string]bool{anchor: true}
	var found []Path
	g.dfs(anchor, target, nil, visited, limit, &found)
	g.memo[key] = found
	return found, nil
}

func (g *Graph) dfs(cur, target string, path Path, visited map[string]bool, remaining int, found *[]Path) {
	if remaining == 0 {
		return
	}
	for _, e := range g.edges[cur] {
		if visited[e.To] {
			continue
		}
		next := append(append(Path{}, path...), e)
		if e.To == target {
			*found = append(*found, next)
			continue
		}
		visited[e.To] = true
		g.dfs(e.To, target, next, visited, remaining-1, found)
		delete(visited, e.To)
	}
}

// ShortestPaths filters SimplePaths down to those tied for the fewest
// hops, sorted for deterministic iteration by the joined table sequence.
func (g *Graph) ShortestPaths(anchor, target string) ([]Path, error) {
	all, err := g.SimplePaths(anchor, target)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	best := len(all[0])
	for _, p := range all[1:] {
		if len(p) < best {
			best = len(p)
		}
	}
	var out []Path
	for _, p := range all {
		if len(p) == best {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i].Tables()) < fmt.Sprint(out[j].Tables())
	})
	return out, nil
}
