// Package intent converts natural-language reconciliation definitions into
// structured query intents. Parsing is strategy-based: an optional
// LLM-backed Strategy may be plugged in, with a rule-based parser as the
// guaranteed fallback.
package intent

import (
	"context"

	"reconql/internal/catalog"
	"reconql/internal/knowledge"
	"reconql/internal/resolve"
)

// Operation classifies what a definition asks for.
type Operation string

const (
	OpIn        Operation = "IN"
	OpNotIn     Operation = "NOT_IN"
	OpFilter    Operation = "FILTER"
	OpList      Operation = "LIST"
	OpAggregate Operation = "AGGREGATE"
)

// Filter is a WHERE predicate bound to the table it applies to.
type Filter struct {
	Table    string
	Column   string
	Operator string
	Value    any
}

// AdditionalColumn is a request for a column pulled in from a related
// table. The parser records the raw business term; resolution to a table
// and join path happens later.
type AdditionalColumn struct {
	ColumnName      string
	SourceTableTerm string
	Alias           string
}

// Intent is the structured form of a parsed definition.
type Intent struct {
	Operation         Operation
	SourceTable       string
	SourceTerm        string
	TargetTable       string
	TargetTerm        string
	Filters           []Filter
	AdditionalColumns []AdditionalColumn
	Limit             int
	Confidence        float64
	UsedLLM           bool
}

// SchemaContext carries the immutable schema state a parsing strategy may
// consult.
type SchemaContext struct {
	Catalog  *catalog.Catalog
	Resolver *resolve.TableResolver
	Graph    *knowledge.Graph
}

// Strategy parses a definition into an Intent. Implementations may fail;
// the engine falls back to the rule-based parser when they do.
type Strategy interface {
	Parse(ctx context.Context, definition string, sc *SchemaContext) (*Intent, error)
}

// Confidence scoring weights.
const (
	baseRuleConfidence = 0.6
	llmBonus           = 0.15
	tableResolvedBonus = 0.05
	graphEdgeBonus     = 0.1
	confidenceCap      = 0.95
)

// scoreConfidence applies the blended confidence model: a base for the
// parse path, a bonus per resolved table, and a bonus when a real graph
// edge (not an inferred join) backs the table pair.
func scoreConfidence(it *Intent, sc *SchemaContext, usedLLM bool) float64 {
	score := baseRuleConfidence
	if usedLLM {
		score += llmBonus
	}
	if it.SourceTable != "" {
		score += tableResolvedBonus
	}
	if it.TargetTable != "" {
		score += tableResolvedBonus
	}
	if it.SourceTable != "" && it.TargetTable != "" && sc != nil && sc.Graph != nil {
		if _, ok := sc.Graph.EdgeBetween(it.SourceTable, it.TargetTable); ok {
			score += graphEdgeBonus
		}
	}
	if score > confidenceCap {
		score = confidenceCap
	}
	return score
}
