// Package knowledge holds the relationship graph between schema tables:
// typed, confidence-scored column-level edges supplied by an external
// knowledge source or derived from introspected foreign keys. A Graph is
// built once and read-only afterwards.
package knowledge

import (
	"log/slog"
	"strings"

	"github.com/yourbasic/graph"

	"reconql/internal/catalog"
)

// Relationship type tags carried on edges.
const (
	TypeForeignKey = "foreign_key"
	TypeSemantic   = "semantic"
	TypeInferred   = "inferred"
)

// Edge is a directed, confidence-scored relationship between two table
// columns. Bidirectional edges are traversed in both directions.
type Edge struct {
	SourceTable   string
	SourceColumn  string
	TargetTable   string
	TargetColumn  string
	Type          string
	Confidence    float64
	Bidirectional bool
}

// Reverse returns the edge with source and target swapped.
func (e Edge) Reverse() Edge {
	return Edge{
		SourceTable:   e.TargetTable,
		SourceColumn:  e.TargetColumn,
		TargetTable:   e.SourceTable,
		TargetColumn:  e.SourceColumn,
		Type:          e.Type,
		Confidence:    e.Confidence,
		Bidirectional: e.Bidirectional,
	}
}

// Graph is an immutable adjacency view over relationship edges. Traversal
// treats every edge as undirected; the stored orientation only decides
// which column lands on which side of a join condition.
type Graph struct {
	edges []Edge
	adj   map[string][]Edge
	index map[string]int
	names []string
	g     *graph.Mutable
}

// NewGraph builds a Graph from edges. Edges with confidence outside [0,1]
// or a missing endpoint are skipped with a warning rather than aborting
// the build, matching how relationship discovery tolerates bad metadata.
func NewGraph(edges []Edge, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Graph{
		adj:   make(map[string][]Edge),
		index: make(map[string]int),
	}
	for _, e := range edges {
		if e.SourceTable == "" || e.TargetTable == "" {
			logger.Warn("skipping relationship edge with missing endpoint",
				"source", e.SourceTable, "target", e.TargetTable)
			continue
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			logger.Warn("skipping relationship edge with out-of-range confidence",
				"source", e.SourceTable, "target", e.TargetTable, "confidence", e.Confidence)
			continue
		}
		g.edges = append(g.edges, e)
		g.addVertex(e.SourceTable)
		g.addVertex(e.TargetTable)
		g.adj[key(e.SourceTable)] = append(g.adj[key(e.SourceTable)], e)
		g.adj[key(e.TargetTable)] = append(g.adj[key(e.TargetTable)], e.Reverse())
	}

	g.g = graph.New(len(g.names))
	for _, e := range g.edges {
		v := g.index[key(e.SourceTable)]
		w := g.index[key(e.TargetTable)]
		g.g.AddBothCost(v, w, 1)
	}
	return g
}

func key(table string) string { return strings.ToLower(table) }

func (g *Graph) addVertex(table string) {
	k := key(table)
	if _, ok := g.index[k]; ok {
		return
	}
	g.index[k] = len(g.names)
	g.names = append(g.names, table)
}

// Edges returns all accepted edges in registration order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Neighbors returns the edges incident to a table, each oriented so that
// its source side is the given table.
func (g *Graph) Neighbors(table string) []Edge {
	return g.adj[key(table)]
}

// EdgeBetween returns the first edge connecting two tables, oriented from
// a to b, and whether one exists.
func (g *Graph) EdgeBetween(a, b string) (Edge, bool) {
	for _, e := range g.adj[key(a)] {
		if key(e.TargetTable) == key(b) {
			return e, true
		}
	}
	return Edge{}, false
}

// Connected reports whether any chain of edges links the two tables.
// Tables unknown to the graph are connected to nothing.
func (g *Graph) Connected(a, b string) bool {
	v, okA := g.index[key(a)]
	w, okB := g.index[key(b)]
	if !okA || !okB {
		return false
	}
	if v == w {
		return true
	}
	path, _ := graph.ShortestPath(g.g, v, w)
	return len(path) > 0
}

// Components groups the graph's tables into connected components, a cheap
// health signal for how much of the schema the knowledge graph covers.
func (g *Graph) Components() [][]string {
	comps := graph.Components(g.g)
	out := make([][]string, len(comps))
	for i, comp := range comps {
		names := make([]string, len(comp))
		for j, v := range comp {
			names[j] = g.names[v]
		}
		out[i] = names
	}
	return out
}

// FromForeignKeys converts introspected foreign keys into relationship
// edges with full confidence.
func FromForeignKeys(fks []catalog.ForeignKey) []Edge {
	edges := make([]Edge, 0, len(fks))
	for _, fk := range fks {
		edges = append(edges, Edge{
			SourceTable:   fk.Table,
			SourceColumn:  fk.Column,
			TargetTable:   fk.ReferencedTable,
			TargetColumn:  fk.ReferencedColumn,
			Type:          TypeForeignKey,
			Confidence:    1.0,
			Bidirectional: true,
		})
	}
	return edges
}

// Merge concatenates edge sets, dropping exact duplicates (same endpoints
// and columns, case-insensitive). Earlier sets win on duplicates so that
// supplied knowledge-graph edges can take precedence over derived ones.
func Merge(sets ...[]Edge) []Edge {
	seen := make(map[string]struct{})
	var out []Edge
	for _, set := range sets {
		for _, e := range set {
			k := strings.ToLower(strings.Join([]string{
				e.SourceTable, e.SourceColumn, e.TargetTable, e.TargetColumn,
			}, "|"))
			rk := strings.ToLower(strings.Join([]string{
				e.TargetTable, e.TargetColumn, e.SourceTable, e.SourceColumn,
			}, "|"))
			if _, dup := seen[k]; dup {
				continue
			}
			if _, dup := seen[rk]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}
