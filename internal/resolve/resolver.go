// Package resolve maps free-text table references ("RBP", "ops excel") to
// canonical schema table names. Each catalog table contributes a generated
// alias set; matching tries exact, fuzzy, then normalized-pattern lookup.
// The alias index is built once and is safe for concurrent reads.
package resolve

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/jinzhu/inflection"
)

// FuzzyThreshold is the minimum string similarity accepted when no exact
// alias matches.
const FuzzyThreshold = 0.75

// structuralPrefixes are layer/zone tokens that carry no business meaning
// and are dropped when deriving alias tokens from a table name.
var structuralPrefixes = map[string]struct{}{
	"stg": {}, "staging": {}, "raw": {}, "ods": {}, "dw": {}, "dwh": {},
	"dim": {}, "fact": {}, "src": {}, "tbl": {}, "vw": {}, "tmp": {},
	"rpt": {}, "base": {}, "lnd": {}, "ref": {},
}

type aliasEntry struct {
	alias    string
	norm     string // alias with non-alphanumerics stripped
	table    string
	tableLen int
	order    int // catalog registration order, for deterministic ties
}

// TableResolver resolves business terms to canonical table names.
type TableResolver struct {
	entries []aliasEntry
	exact   map[string]aliasEntry
	logger  *slog.Logger
}

// NewTableResolver builds the alias index for the given canonical table
// names, in order. The order matters: it breaks ties between tables whose
// alias sets overlap.
func NewTableResolver(tables []string, logger *slog.Logger) *TableResolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &TableResolver{
		exact:  make(map[string]aliasEntry),
		logger: logger,
	}
	for i, table := range tables {
		for _, alias := range GenerateAliases(table) {
			r.add(aliasEntry{
				alias:    alias,
				norm:     normalizePattern(alias),
				table:    table,
				tableLen: len(table),
				order:    i,
			})
		}
	}
	return r
}

func (r *TableResolver) add(e aliasEntry) {
	if e.alias == "" {
		return
	}
	if prev, ok := r.exact[e.alias]; ok {
		// Shorter canonical name wins, then earlier registration.
		if e.tableLen < prev.tableLen || (e.tableLen == prev.tableLen && e.order < prev.order) {
			r.exact[e.alias] = e
		}
	} else {
		r.exact[e.alias] = e
	}
	r.entries = append(r.entries, e)
}

// GenerateAliases derives the alias set for a canonical table name:
// the lower-cased name, separator-interchanged variants, meaningful tokens
// with structural prefixes dropped, first and last tokens, token
// concatenations, and singular/plural forms of the token concatenation.
func GenerateAliases(table string) []string {
	lower := strings.ToLower(table)
	set := map[string]struct{}{lower: {}}

	add := func(a string) {
		a = strings.TrimSpace(a)
		if a != "" {
			set[a] = struct{}{}
		}
	}

	add(strings.ReplaceAll(lower, "_", " "))
	add(strings.ReplaceAll(lower, " ", "_"))
	add(strings.ReplaceAll(lower, "-", "_"))

	tokens := splitTokens(lower)
	meaningful := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		if i == 0 {
			if _, structural := structuralPrefixes[tok]; structural {
				continue
			}
		}
		meaningful = append(meaningful, tok)
	}
	if len(meaningful) == 0 {
		meaningful = tokens
	}

	if len(tokens) > 0 {
		add(tokens[len(tokens)-1])
	}

	// Cumulative token prefixes let partial references like "ops excel"
	// reach OPS_EXCEL_GPU. The single first token and the full join are the
	// first and last entries of this progression.
	for i := 1; i <= len(meaningful); i++ {
		add(strings.Join(meaningful[:i], " "))
		add(strings.Join(meaningful[:i], "_"))
		add(strings.Join(meaningful[:i], ""))
	}

	joined := strings.Join(meaningful, " ")
	add(inflection.Singular(joined))
	add(inflection.Plural(joined))

	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Resolve maps text to a canonical table name. Matching is deterministic:
// exact alias lookup first, then fuzzy similarity at or above
// FuzzyThreshold, then a comparison with all non-alphanumerics stripped.
// The second return value is false when nothing matched.
func (r *TableResolver) Resolve(text string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return "", false
	}

	if e, ok := r.exact[needle]; ok {
		return e.table, true
	}

	if e, ok := r.bestFuzzy(needle, FuzzyThreshold); ok {
		r.logger.Debug("fuzzy table match", "input", text, "table", e.table, "alias", e.alias)
		return e.table, true
	}

	if e, ok := r.bestPattern(normalizePattern(needle)); ok {
		return e.table, true
	}
	return "", false
}

// bestPattern compares alphanumeric-only forms. Exact pattern equality
// wins; failing that, a prefix relation in either direction is accepted so
// "opsexcel" still reaches "opsexcelgpu". Short patterns are ignored to
// keep prefix matching from firing on noise.
func (r *TableResolver) bestPattern(norm string) (aliasEntry, bool) {
	if len(norm) < 3 {
		return aliasEntry{}, false
	}
	var best aliasEntry
	bestRank := -1
	for _, e := range r.entries {
		if len(e.norm) < 3 {
			continue
		}
		rank := -1
		switch {
		case e.norm == norm:
			rank = 2
		case strings.HasPrefix(e.norm, norm), strings.HasPrefix(norm, e.norm):
			rank = 1
		}
		if rank < 0 {
			continue
		}
		if rank > bestRank ||
			(rank == bestRank && e.tableLen < best.tableLen) ||
			(rank == bestRank && e.tableLen == best.tableLen && e.order < best.order) {
			best, bestRank = e, rank
		}
	}
	return best, bestRank >= 0
}

// Suggest returns the canonical table whose alias set is closest to the
// text, for use in error messages. The bar is lower than Resolve's so a
// near miss still produces a hint.
func (r *TableResolver) Suggest(text string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return "", false
	}
	e, ok := r.bestFuzzy(needle, 0.5)
	if !ok {
		return "", false
	}
	return e.table, true
}

func (r *TableResolver) bestFuzzy(needle string, threshold float64) (aliasEntry, bool) {
	var best aliasEntry
	bestScore := 0.0
	found := false
	for _, e := range r.entries {
		score := similarity(needle, e.alias)
		if score < threshold {
			continue
		}
		switch {
		case !found, score > bestScore:
		case score == bestScore && e.tableLen < best.tableLen:
		case score == bestScore && e.tableLen == best.tableLen && e.order < best.order:
		default:
			continue
		}
		best, bestScore, found = e, score, true
	}
	return best, found
}

// similarity is a normalized Levenshtein ratio in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-' || r == '.'
	})
}

func normalizePattern(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
