package sqlgen

import (
	"fmt"
	"strings"
)

// JoinType selects the SQL join keyword in multi-join mode.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
)

// JoinSpec connects one new table to a previously introduced one.
type JoinSpec struct {
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
	Type        JoinType
}

// GenerateMultiJoin renders an explicit N-way join: tables in the given
// order, one JoinSpec per table after the first, each referencing only
// tables already introduced. columnSel maps a table to the columns to
// select; a missing entry selects all of the table's catalog columns.
// Select-list aliases are deduplicated across tables with a table-name
// prefix on collision.
func (g *Generator) GenerateMultiJoin(tables []string, joins []JoinSpec, columnSel map[string][]string) (Statement, error) {
	if len(tables) == 0 {
		return Statement{}, fmt.Errorf("multi-join requires at least one table")
	}
	if len(joins) != len(tables)-1 {
		return Statement{}, fmt.Errorf("multi-join over %d tables requires %d join conditions, got %d",
			len(tables), len(tables)-1, len(joins))
	}

	st := &aliasState{aliases: make(map[string]string), selects: make(map[string]int)}
	aliasFor := make([]string, len(tables))
	for i, table := range tables {
		aliasFor[i] = fmt.Sprintf("t%d", i+1)
		if st.has(table) {
			return Statement{}, fmt.Errorf("table %s listed twice in multi-join", table)
		}
		st.introduce(table, aliasFor[i])
	}

	introduced := map[string]bool{strings.ToLower(tables[0]): true}
	var joinClauses []string
	var joinCols []string
	for i, j := range joins {
		right := tables[i+1]
		if !strings.EqualFold(j.RightTable, right) {
			return Statement{}, fmt.Errorf("join %d must introduce %s, names %s", i, right, j.RightTable)
		}
		if !introduced[strings.ToLower(j.LeftTable)] {
			return Statement{}, fmt.Errorf("join %d references %s before it is introduced", i, j.LeftTable)
		}
		jt := j.Type
		if jt == "" {
			jt = JoinInner
		}
		introduced[strings.ToLower(right)] = true
		joinCols = append(joinCols, fmt.Sprintf("%s.%s = %s.%s",
			j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn))
		joinClauses = append(joinClauses, fmt.Sprintf("%s JOIN %%s ON %s.%s = %s.%s",
			jt,
			st.alias(j.LeftTable), g.col(j.LeftColumn),
			st.alias(j.RightTable), g.col(j.RightColumn)))
	}

	selectList := g.multiJoinSelectList(tables, aliasFor, columnSel, st)

	render := func(qualified bool) string {
		var b strings.Builder
		b.WriteString("SELECT ")
		b.WriteString(strings.Join(selectList, ", "))
		b.WriteString(" FROM ")
		b.WriteString(g.tableRef(tables[0], aliasFor[0], qualified))
		for i, clause := range joinClauses {
			b.WriteString(" ")
			b.WriteString(fmt.Sprintf(clause, g.tableRef(tables[i+1], aliasFor[i+1], qualified)))
		}
		return b.String()
	}

	stmt := Statement{SQL: render(true), JoinColumns: joinCols}
	if g.schema != "" {
		stmt.FallbackSQL = render(false)
	}
	g.logger.Debug("generated multi-join SQL", "tables", len(tables), "sql", stmt.SQL)
	return stmt, nil
}

// multiJoinSelectList expands each table's selection. Column names are
// counted across all selected tables first so collisions get a
// table-prefixed alias deterministically, independent of table order.
func (g *Generator) multiJoinSelectList(tables, aliasFor []string, columnSel map[string][]string, st *aliasState) []string {
	colsFor := func(table string) []string {
		if sel, ok := columnSel[table]; ok {
			return sel
		}
		if g.catalog != nil {
			return g.catalog.ColumnNames(table)
		}
		return nil
	}

	counts := make(map[string]int)
	for _, table := range tables {
		for _, c := range colsFor(table) {
			counts[strings.ToLower(c)]++
		}
	}

	var out []string
	for i, table := range tables {
		cols := colsFor(table)
		if cols == nil {
			out = append(out, aliasFor[i]+".*")
			continue
		}
		for _, c := range cols {
			if counts[strings.ToLower(c)] > 1 {
				out = append(out, fmt.Sprintf("%s.%s AS %s",
					aliasFor[i], g.col(c), g.col(table+"_"+c)))
			} else {
				out = append(out, fmt.Sprintf("%s.%s", aliasFor[i], g.col(c)))
			}
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
