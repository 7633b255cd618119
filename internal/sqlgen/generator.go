// Package sqlgen renders query intents into executable SQL. Comparison
// intents become two-table joins over the resolved join path, additional
// columns become deduplicated LEFT JOINs, and single-table intents go
// through squirrel directly. The dialect only affects identifier quoting;
// the logical statement is identical everywhere.
package sqlgen

import (
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"reconql/internal/catalog"
	"reconql/internal/columns"
	"reconql/internal/intent"
	"reconql/internal/joinpath"
	"reconql/internal/sqlutil"
)

// Statement is a rendered SQL statement with provenance metadata.
// FallbackSQL is the same statement with schema qualification stripped,
// used by the executor's retry; it is empty when no schema prefix was
// configured.
type Statement struct {
	SQL         string
	FallbackSQL string
	JoinColumns []string
}

// Generator renders intents for one dialect and optional schema prefix.
type Generator struct {
	dialect sqlutil.Dialect
	schema  string
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewGenerator creates a Generator. catalog may be nil; it is only needed
// for column expansion in multi-join mode.
func NewGenerator(dialect sqlutil.Dialect, schema string, c *catalog.Catalog, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{dialect: dialect, schema: schema, catalog: c, logger: logger}
}

// Generate renders the intent. For IN/NOT_IN a primary join path is
// required; resolved additional columns contribute LEFT JOINs. Every
// value is inlined as a quoted literal so the statement is self-contained
// for logging and retry.
func (g *Generator) Generate(it *intent.Intent, primary *joinpath.JoinPath, extra []columns.ResolvedColumn) (Statement, error) {
	if it.SourceTable == "" {
		return Statement{}, fmt.Errorf("intent has no source table")
	}
	switch it.Operation {
	case intent.OpIn, intent.OpNotIn:
		if primary == nil || len(primary.Hops) == 0 {
			return Statement{}, &joinpath.NotFoundError{Source: it.SourceTable, Target: it.TargetTable}
		}
		return g.comparison(it, primary, extra)
	case intent.OpAggregate:
		return g.aggregate(it)
	default:
		return g.list(it, extra)
	}
}

// comparison renders IN as an INNER JOIN and NOT_IN as a LEFT JOIN with
// an IS NULL predicate on the target's join column.
func (g *Generator) comparison(it *intent.Intent, primary *joinpath.JoinPath, extra []columns.ResolvedColumn) (Statement, error) {
	st := newState(it.SourceTable)
	lastHop := primary.Hops[len(primary.Hops)-1]
	for i, hop := range primary.Hops {
		alias := "t"
		if i < len(primary.Hops)-1 {
			alias = st.nextAlias()
		}
		st.introduce(hop.RightTable, alias)
	}

	joinWord := "INNER JOIN"
	if it.Operation == intent.OpNotIn {
		joinWord = "LEFT JOIN"
	}

	render := func(qualified bool) string {
		b := sq.Select("s.*").Options("DISTINCT").
			From(g.tableRef(it.SourceTable, "s", qualified))
		for _, hop := range primary.Hops {
			on := fmt.Sprintf("%s.%s = %s.%s",
				st.alias(hop.LeftTable), g.col(hop.LeftColumn),
				st.alias(hop.RightTable), g.col(hop.RightColumn))
			b = b.JoinClause(joinWord + " " + g.tableRef(hop.RightTable, st.alias(hop.RightTable), qualified) + " ON " + on)
		}
		b = g.appendExtraJoins(b, st, extra, qualified)

		if it.Operation == intent.OpNotIn {
			b = b.Where(sq.Expr(fmt.Sprintf("%s.%s IS NULL",
				st.alias(lastHop.RightTable), g.col(lastHop.RightColumn))))
		}
		b = g.appendFilters(b, st, it.Filters)
		if it.Limit > 0 {
			b = b.Limit(uint64(it.Limit))
		}
		sql, _, _ := b.ToSql()
		return sql
	}

	stmt := Statement{SQL: render(true), JoinColumns: joinColumns(primary)}
	if g.schema != "" {
		stmt.FallbackSQL = render(false)
	}
	g.logger.Debug("generated comparison SQL",
		"operation", string(it.Operation), "sql", stmt.SQL)
	return stmt, nil
}

// list renders LIST and FILTER intents over the source table alone.
func (g *Generator) list(it *intent.Intent, extra []columns.ResolvedColumn) (Statement, error) {
	st := newState(it.SourceTable)
	render := func(qualified bool) string {
		b := sq.Select("s.*").From(g.tableRef(it.SourceTable, "s", qualified))
		b = g.appendExtraJoins(b, st, extra, qualified)
		b = g.appendFilters(b, st, it.Filters)
		if it.Limit > 0 {
			b = b.Limit(uint64(it.Limit))
		}
		sql, _, _ := b.ToSql()
		return sql
	}
	stmt := Statement{SQL: render(true)}
	if g.schema != "" {
		stmt.FallbackSQL = render(false)
	}
	return stmt, nil
}

// aggregate renders AGGREGATE intents as a COUNT over the source table.
func (g *Generator) aggregate(it *intent.Intent) (Statement, error) {
	st := newState(it.SourceTable)
	render := func(qualified bool) string {
		b := sq.Select("COUNT(*) AS record_count").
			From(g.tableRef(it.SourceTable, "s", qualified))
		b = g.appendFilters(b, st, it.Filters)
		sql, _, _ := b.ToSql()
		return sql
	}
	stmt := Statement{SQL: render(true)}
	if g.schema != "" {
		stmt.FallbackSQL = render(false)
	}
	return stmt, nil
}

// appendExtraJoins adds one LEFT JOIN per distinct related table. A table
// already introduced (the source, the comparison target, or an earlier
// request's table) is reused rather than joined twice; its select-list
// entries still get their own aliases.
func (g *Generator) appendExtraJoins(b sq.SelectBuilder, st *aliasState, extra []columns.ResolvedColumn, qualified bool) sq.SelectBuilder {
	for _, rc := range extra {
		if rc.JoinPath == nil {
			continue
		}
		for _, hop := range rc.JoinPath.Hops {
			if st.has(hop.RightTable) {
				continue
			}
			alias := st.nextAlias()
			st.introduce(hop.RightTable, alias)
			on := fmt.Sprintf("%s.%s = %s.%s",
				st.alias(hop.LeftTable), g.col(hop.LeftColumn),
				alias, g.col(hop.RightColumn))
			b = b.LeftJoin(g.tableRef(hop.RightTable, alias, qualified) + " ON " + on)
		}
		selectAlias := st.selectAlias(rc.Alias)
		b = b.Column(fmt.Sprintf("%s.%s AS %s",
			st.alias(rc.Table), g.col(rc.Column), g.col(selectAlias)))
	}
	return b
}

// appendFilters renders filters against the alias of the table each one
// is bound to, falling back to the source alias for unknown tables.
func (g *Generator) appendFilters(b sq.SelectBuilder, st *aliasState, filters []intent.Filter) sq.SelectBuilder {
	for _, f := range filters {
		alias := st.alias(f.Table)
		if alias == "" {
			alias = "s"
		}
		b = b.Where(sq.Expr(fmt.Sprintf("%s.%s %s %s",
			alias, g.col(f.Column), f.Operator, literal(f.Value))))
	}
	return b
}

func (g *Generator) tableRef(table, alias string, qualified bool) string {
	name := g.dialect.QuoteIdentifier(table)
	if qualified && g.schema != "" {
		name = g.dialect.QuoteIdentifier(g.schema) + "." + name
	}
	return name + " " + alias
}

func (g *Generator) col(name string) string {
	return g.dialect.QuoteIdentifier(name)
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return sqlutil.QuoteString(x)
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func joinColumns(p *joinpath.JoinPath) []string {
	out := make([]string, 0, len(p.Hops))
	for _, hop := range p.Hops {
		out = append(out, fmt.Sprintf("%s.%s = %s.%s",
			hop.LeftTable, hop.LeftColumn, hop.RightTable, hop.RightColumn))
	}
	return out
}

// aliasState tracks table aliases and select-list alias collisions for
// one statement.
type aliasState struct {
	aliases map[string]string
	selects map[string]int
	counter int
}

func newState(source string) *aliasState {
	st := &aliasState{
		aliases: make(map[string]string),
		selects: make(map[string]int),
	}
	st.introduce(source, "s")
	return st
}

func (st *aliasState) introduce(table, alias string) {
	st.aliases[strings.ToLower(table)] = alias
}

func (st *aliasState) has(table string) bool {
	_, ok := st.aliases[strings.ToLower(table)]
	return ok
}

func (st *aliasState) alias(table string) string {
	return st.aliases[strings.ToLower(table)]
}

func (st *aliasState) nextAlias() string {
	st.counter++
	return fmt.Sprintf("a%d", st.counter)
}

// selectAlias deduplicates select-list aliases with a numeric suffix.
func (st *aliasState) selectAlias(want string) string {
	key := strings.ToLower(want)
	st.selects[key]++
	if n := st.selects[key]; n > 1 {
		return fmt.Sprintf("%s_%d", want, n)
	}
	return want
}
