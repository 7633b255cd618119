package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// stopWords are tokens that must never be treated as table references.
// They are stripped before any token is considered a table candidate.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "me": {}, "my": {}, "our": {}, "your": {},
	"i": {}, "we": {}, "you": {}, "it": {}, "this": {}, "these": {}, "those": {},
	"of": {}, "for": {}, "to": {}, "on": {}, "at": {}, "by": {},
	"show": {}, "find": {}, "list": {}, "get": {}, "give": {}, "fetch": {},
	"display": {}, "see": {}, "want": {}, "need": {},
	"all": {}, "some": {}, "any": {}, "every": {}, "each": {},
	"which": {}, "that": {}, "who": {}, "whose": {}, "where": {},
	"are": {}, "is": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"do": {}, "does": {}, "did": {}, "have": {}, "has": {}, "had": {},
	"and": {}, "or": {}, "but": {}, "please": {},
	"records": {}, "rows": {}, "entries": {}, "items": {}, "data": {},
	// Operation and connector keywords are not table candidates either.
	"in": {}, "not": {}, "from": {}, "missing": {}, "absent": {},
	"present": {}, "match": {}, "matches": {}, "against": {}, "versus": {},
	"vs": {}, "count": {}, "total": {}, "sum": {}, "average": {}, "avg": {},
	"top": {}, "first": {}, "limit": {}, "active": {}, "inactive": {},
}

// Operation phrases, checked as token subsequences. Exclusion phrases are
// checked before inclusion because "not in" contains "in".
var (
	notInPhrases = [][]string{
		{"not", "present", "in"},
		{"not", "in"},
		{"missing", "from"},
		{"absent", "from"},
	}
	inPhrases = [][]string{
		{"present", "in"},
		{"matches"},
		{"in"},
	}
	aggregateWords = map[string]struct{}{
		"count": {}, "total": {}, "sum": {}, "average": {}, "avg": {},
	}
)

var (
	// include/add/also show/with/plus <column> from <table term>
	extraColumnRe = regexp.MustCompile(
		`(?i)\b(?:include|including|add|also\s+show|with|plus)\s+([A-Za-z0-9_]+)\s+from\s+([A-Za-z0-9_][A-Za-z0-9_ ]*?)(?:\s*,|\s+\band\b|$)`)
	limitRe  = regexp.MustCompile(`(?i)\b(?:top|first|limit)\s+(\d+)\b`)
	tokenRe  = regexp.MustCompile(`[A-Za-z0-9_]+`)
	statusRe = regexp.MustCompile(`(?i)\b(active|inactive)\b`)
)

// statusColumnHints identify a plausible status/flag column on a table.
var statusColumnHints = []string{"active", "status", "flag", "state", "enabled"}

// RuleParser is the deterministic fallback parsing strategy. It never
// returns an error: unparseable input degrades to a best-effort LIST
// intent instead.
type RuleParser struct {
	logger *slog.Logger
}

// NewRuleParser creates the rule-based strategy.
func NewRuleParser(logger *slog.Logger) *RuleParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleParser{logger: logger}
}

// Parse implements Strategy. The returned error is always nil.
func (p *RuleParser) Parse(_ context.Context, definition string, sc *SchemaContext) (*Intent, error) {
	it := &Intent{Operation: OpList}

	text, extras := extractAdditionalColumns(definition)
	it.AdditionalColumns = extras

	if m := limitRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			it.Limit = n
		}
	}

	tokens := tokenize(text)
	op, opStart, opEnd := detectOperation(tokens)
	it.Operation = op

	var before, after []string
	if opStart >= 0 {
		before, after = tokens[:opStart], tokens[opEnd:]
	} else {
		before = tokens
	}

	if sc != nil && sc.Resolver != nil {
		if table, term, ok := lastTableMention(before, sc); ok {
			it.SourceTable, it.SourceTerm = table, term
		}
		if table, term, ok := firstTableMention(after, sc); ok {
			it.TargetTable, it.TargetTerm = table, term
		}
	}

	// A membership operation needs two tables. With only one resolved, the
	// definition is really a single-table listing over that table.
	if (it.Operation == OpIn || it.Operation == OpNotIn) && (it.SourceTable == "" || it.TargetTable == "") {
		if it.SourceTable == "" {
			it.SourceTable, it.SourceTerm = it.TargetTable, it.TargetTerm
		}
		it.TargetTable, it.TargetTerm = "", ""
		it.Operation = OpList
	}
	// Non-comparison definitions name their only table after the keyword
	// ("count products in RBP"); promote it to the source position.
	if it.Operation != OpIn && it.Operation != OpNotIn && it.SourceTable == "" && it.TargetTable != "" {
		it.SourceTable, it.SourceTerm = it.TargetTable, it.TargetTerm
		it.TargetTable, it.TargetTerm = "", ""
	}

	p.extractStatusFilter(text, it, sc)
	if it.Operation == OpList && len(it.Filters) > 0 && it.TargetTable == "" {
		it.Operation = OpFilter
	}

	it.Confidence = scoreConfidence(it, sc, false)
	p.logger.Debug("parsed definition",
		"operation", string(it.Operation),
		"source", it.SourceTable,
		"target", it.TargetTable,
		"filters", len(it.Filters),
		"extra_columns", len(it.AdditionalColumns),
		"confidence", it.Confidence)
	return it, nil
}

// extractStatusFilter turns "active"/"inactive" mentions into a predicate
// on whatever status-like column actually exists on the filtered table.
// The filter targets the comparison's target table when there is one,
// otherwise the source. When no plausible column exists the filter is
// dropped rather than emitted against an invented column name.
func (p *RuleParser) extractStatusFilter(text string, it *Intent, sc *SchemaContext) {
	m := statusRe.FindStringSubmatch(text)
	if m == nil || sc == nil || sc.Catalog == nil {
		return
	}
	table := it.TargetTable
	if table == "" {
		table = it.SourceTable
	}
	if table == "" {
		return
	}
	col, ok := findStatusColumn(sc, table)
	if !ok {
		p.logger.Debug("dropping status filter, no status-like column", "table", table)
		return
	}
	value := "Active"
	if strings.EqualFold(m[1], "inactive") {
		value = "Inactive"
	}
	it.Filters = append(it.Filters, Filter{
		Table:    table,
		Column:   col,
		Operator: "=",
		Value:    value,
	})
}

func findStatusColumn(sc *SchemaContext, table string) (string, bool) {
	for _, name := range sc.Catalog.ColumnNames(table) {
		lower := strings.ToLower(name)
		for _, hint := range statusColumnHints {
			if strings.Contains(lower, hint) {
				return name, true
			}
		}
	}
	return "", false
}

// extractAdditionalColumns pulls "include <col> from <table>" clauses out
// of the definition and returns the remaining text.
func extractAdditionalColumns(definition string) (string, []AdditionalColumn) {
	var extras []AdditionalColumn
	matches := extraColumnRe.FindAllStringSubmatchIndex(definition, -1)
	if matches == nil {
		return definition, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		column := definition[m[2]:m[3]]
		term := strings.TrimSpace(definition[m[4]:m[5]])
		extras = append(extras, AdditionalColumn{
			ColumnName:      column,
			SourceTableTerm: term,
			Alias:           column,
		})
		b.WriteString(definition[last:m[0]])
		last = m[1]
	}
	b.WriteString(definition[last:])
	return b.String(), extras
}

func tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	return raw
}

// detectOperation returns the operation plus the token span of the phrase
// that triggered it. Exclusion phrases win over inclusion; for inclusion
// the last occurrence splits the definition, so "products in RBP ... in
// OPS" compares RBP against OPS rather than stopping at the first "in".
func detectOperation(tokens []string) (Operation, int, int) {
	for _, phrase := range notInPhrases {
		if start := lastPhraseIndex(tokens, phrase); start >= 0 {
			return OpNotIn, start, start + len(phrase)
		}
	}
	for i, tok := range tokens {
		if _, ok := aggregateWords[tok]; ok {
			return OpAggregate, i, i + 1
		}
	}
	for _, phrase := range inPhrases {
		if start := lastPhraseIndex(tokens, phrase); start >= 0 {
			return OpIn, start, start + len(phrase)
		}
	}
	return OpList, -1, -1
}

func lastPhraseIndex(tokens, phrase []string) int {
	for start := len(tokens) - len(phrase); start >= 0; start-- {
		match := true
		for j, w := range phrase {
			if tokens[start+j] != w {
				match = false
				break
			}
		}
		if match {
			return start
		}
	}
	return -1
}

// lastTableMention scans tokens for the table reference closest to the end
// of the span; firstTableMention for the one closest to the start. Both
// prefer the longest window at a given position and never consider
// stop-word tokens as candidates.
func lastTableMention(tokens []string, sc *SchemaContext) (string, string, bool) {
	mentions := tableMentions(tokens, sc)
	if len(mentions) == 0 {
		return "", "", false
	}
	m := mentions[len(mentions)-1]
	return m.table, m.term, true
}

func firstTableMention(tokens []string, sc *SchemaContext) (string, string, bool) {
	mentions := tableMentions(tokens, sc)
	if len(mentions) == 0 {
		return "", "", false
	}
	return mentions[0].table, mentions[0].term, true
}

type mention struct {
	table string
	term  string
}

func tableMentions(tokens []string, sc *SchemaContext) []mention {
	meaningful := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		meaningful = append(meaningful, tok)
	}

	var out []mention
	for i := 0; i < len(meaningful); {
		matched := false
		for size := len(meaningful) - i; size >= 1 && !matched; size-- {
			term := strings.Join(meaningful[i:i+size], " ")
			if table, ok := sc.Resolver.Resolve(term); ok {
				out = append(out, mention{table: table, term: term})
				i += size
				matched = true
			}
		}
		if !matched {
			i++
		}
	}
	return out
}

// Parser is the two-tier parsing front: try the pluggable strategy when
// present, fall back to the rule parser on absence or failure.
type Parser struct {
	assist Strategy
	rule   *RuleParser
	logger *slog.Logger
}

// NewParser creates a Parser. assist may be nil.
func NewParser(assist Strategy, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{assist: assist, rule: NewRuleParser(logger), logger: logger}
}

// Parse never fails: if the assist strategy errors or returns nothing, the
// rule parser's best effort is used.
func (p *Parser) Parse(ctx context.Context, definition string, sc *SchemaContext) *Intent {
	if p.assist != nil {
		it, err := p.assist.Parse(ctx, definition, sc)
		if err == nil && it != nil {
			it.UsedLLM = true
			it.Confidence = scoreConfidence(it, sc, true)
			return it
		}
		if err != nil {
			p.logger.Warn("assist parser failed, using rule-based fallback", "error", err)
		}
	}
	it, _ := p.rule.Parse(ctx, definition, sc)
	return it
}
