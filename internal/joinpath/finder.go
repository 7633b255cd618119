// Package joinpath discovers how two tables can be joined. The primary
// strategy is a depth-bounded breadth-first search over the relationship
// graph; when no path exists, a single-hop join is inferred from column
// names the tables share.
package joinpath

import (
	"fmt"
	"log/slog"
	"strings"

	"reconql/internal/catalog"
	"reconql/internal/knowledge"
)

// NotFoundError reports that no graph path and no inferable shared column
// connects two tables.
type NotFoundError struct {
	Source string
	Target string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no join path between %s and %s", e.Source, e.Target)
}

const (
	// MaxHops bounds the breadth-first search so cyclic graphs terminate.
	MaxHops = 5
	// InferredConfidence is assigned to joins synthesized from shared
	// column names rather than a graph edge.
	InferredConfidence = 0.65

	confidenceWeight = 0.7
	lengthWeight     = 0.3
)

// Hop is one edge of a join path, oriented in traversal direction.
type Hop struct {
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
	Confidence  float64
}

// JoinPath is an ordered chain of hops from a source table to a target
// table. Confidence is the minimum edge confidence along the chain.
type JoinPath struct {
	SourceTable string
	TargetTable string
	Hops        []Hop
	Confidence  float64
	Inferred    bool
}

// Tables returns the tables visited in order, source first, target last.
func (p *JoinPath) Tables() []string {
	tables := make([]string, 0, len(p.Hops)+1)
	tables = append(tables, p.SourceTable)
	for _, h := range p.Hops {
		tables = append(tables, h.RightTable)
	}
	return tables
}

// Length is the number of hops, always at least 1.
func (p *JoinPath) Length() int {
	return len(p.Hops)
}

// score blends path confidence with a preference for short paths. For
// equal confidence the score strictly decreases as the path grows.
func (p *JoinPath) score() float64 {
	return p.Confidence*confidenceWeight + (1/float64(len(p.Hops)))*lengthWeight
}

// Finder searches for join paths over an immutable graph and catalog.
type Finder struct {
	graph   *knowledge.Graph
	catalog *catalog.Catalog
	maxHops int
	logger  *slog.Logger
}

// NewFinder creates a Finder. The catalog supplies column sets for the
// inferred-join fallback.
func NewFinder(g *knowledge.Graph, c *catalog.Catalog, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{graph: g, catalog: c, maxHops: MaxHops, logger: logger}
}

// FindPath returns the best join path from source to target, or nil when
// neither the graph nor shared columns offer one. It never returns an
// error; callers translate nil into their own not-found error.
func (f *Finder) FindPath(source, target string) *JoinPath {
	if source == "" || target == "" || strings.EqualFold(source, target) {
		return nil
	}
	if best := f.searchGraph(source, target); best != nil {
		return best
	}
	return f.inferJoin(source, target)
}

type partialPath struct {
	hops    []Hop
	visited map[string]bool
	minConf float64
}

// searchGraph enumerates every path within the hop bound and keeps the
// highest-scoring one. Ties go to the shorter path, then discovery order.
func (f *Finder) searchGraph(source, target string) *JoinPath {
	if !f.graph.Connected(source, target) {
		return nil
	}

	var best *JoinPath
	bestScore := -1.0

	queue := []partialPath{{
		visited: map[string]bool{strings.ToLower(source): true},
		minConf: 1.0,
	}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		last := source
		if n := len(cur.hops); n > 0 {
			last = cur.hops[n-1].RightTable
		}
		for _, e := range f.graph.Neighbors(last) {
			next := strings.ToLower(e.TargetTable)
			if cur.visited[next] {
				continue
			}
			hop := Hop{
				LeftTable:   e.SourceTable,
				LeftColumn:  e.SourceColumn,
				RightTable:  e.TargetTable,
				RightColumn: e.TargetColumn,
				Confidence:  e.Confidence,
			}
			minConf := cur.minConf
			if e.Confidence < minConf {
				minConf = e.Confidence
			}
			hops := append(append([]Hop(nil), cur.hops...), hop)

			if strings.EqualFold(e.TargetTable, target) {
				candidate := &JoinPath{
					SourceTable: source,
					TargetTable: e.TargetTable,
					Hops:        hops,
					Confidence:  minConf,
				}
				score := candidate.score()
				if score > bestScore ||
					(score == bestScore && best != nil && len(hops) < len(best.Hops)) {
					best, bestScore = candidate, score
				}
				continue
			}
			if len(hops) >= f.maxHops {
				continue
			}
			visited := make(map[string]bool, len(cur.visited)+1)
			for k := range cur.visited {
				visited[k] = true
			}
			visited[next] = true
			queue = append(queue, partialPath{hops: hops, visited: visited, minConf: minConf})
		}
	}

	if best != nil {
		f.logger.Debug("join path found",
			"source", source, "target", target,
			"hops", best.Length(), "confidence", best.Confidence)
	}
	return best
}

// identifierTokens mark columns that typically carry a business key.
var identifierTokens = []string{"material", "product", "sku", "item", "code"}

// genericNames never justify a join on their own.
var genericNames = map[string]struct{}{
	"status": {}, "date": {}, "name": {}, "type": {}, "description": {},
	"created_at": {}, "updated_at": {},
}

// inferJoin synthesizes a single-hop join from a column name both tables
// share, preferring identifier-like names over incidental overlap.
func (f *Finder) inferJoin(source, target string) *JoinPath {
	srcCols := f.catalog.ColumnNames(source)
	tgtCols := f.catalog.ColumnNames(target)
	if len(srcCols) == 0 || len(tgtCols) == 0 {
		return nil
	}

	tgtSet := make(map[string]string, len(tgtCols))
	for _, c := range tgtCols {
		tgtSet[strings.ToLower(c)] = c
	}

	bestCol, bestTgtCol, bestRank := "", "", -1
	for _, c := range srcCols {
		tgtCol, shared := tgtSet[strings.ToLower(c)]
		if !shared {
			continue
		}
		rank := rankJoinColumn(c)
		if rank > bestRank {
			bestCol, bestTgtCol, bestRank = c, tgtCol, rank
		}
	}
	if bestRank < 0 {
		return nil
	}

	f.logger.Debug("inferred join from shared column",
		"source", source, "target", target, "column", bestCol)
	return &JoinPath{
		SourceTable: source,
		TargetTable: target,
		Hops: []Hop{{
			LeftTable:   source,
			LeftColumn:  bestCol,
			RightTable:  target,
			RightColumn: bestTgtCol,
			Confidence:  InferredConfidence,
		}},
		Confidence: InferredConfidence,
		Inferred:   true,
	}
}

func rankJoinColumn(name string) int {
	lower := strings.ToLower(name)
	if _, generic := genericNames[lower]; generic {
		return 0
	}
	for _, tok := range identifierTokens {
		if strings.Contains(lower, tok) {
			return 4
		}
	}
	if strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, "_uid") || lower == "id" {
		return 3
	}
	if strings.Contains(lower, "number") || strings.Contains(lower, "ref") || strings.Contains(lower, "key") {
		return 2
	}
	return 1
}
