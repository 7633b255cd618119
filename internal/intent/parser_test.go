package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconql/internal/catalog"
	"reconql/internal/knowledge"
	"reconql/internal/resolve"
)

func fixtureContext() *SchemaContext {
	cat := catalog.New([]catalog.Table{
		{Name: "RBP_GPU", Columns: []catalog.Column{
			{Name: "Material"}, {Name: "Active_Inactive"},
		}},
		{Name: "OPS_EXCEL_GPU", Columns: []catalog.Column{
			{Name: "PLANNING_SKU"}, {Name: "Active_Inactive"},
		}},
		{Name: "MATERIAL_MASTER", Columns: []catalog.Column{
			{Name: "MATERIAL_ID"}, {Name: "ops_planner"},
		}},
	})
	g := knowledge.NewGraph([]knowledge.Edge{
		{SourceTable: "RBP_GPU", SourceColumn: "Material", TargetTable: "OPS_EXCEL_GPU", TargetColumn: "PLANNING_SKU", Type: knowledge.TypeSemantic, Confidence: 0.95, Bidirectional: true},
	}, nil)
	return &SchemaContext{
		Catalog:  cat,
		Resolver: resolve.NewTableResolver(cat.TableNames(), nil),
		Graph:    g,
	}
}

func parse(t *testing.T, definition string) *Intent {
	t.Helper()
	it, err := NewRuleParser(nil).Parse(context.Background(), definition, fixtureContext())
	require.NoError(t, err)
	require.NotNil(t, it)
	return it
}

func TestParseNotIn(t *testing.T) {
	it := parse(t, "show me all products in RBP which are not in OPS Excel")

	assert.Equal(t, OpNotIn, it.Operation)
	assert.Equal(t, "RBP_GPU", it.SourceTable)
	assert.Equal(t, "OPS_EXCEL_GPU", it.TargetTable)
	assert.Empty(t, it.Filters)
	// base 0.6 + 0.05 source + 0.05 target + 0.1 graph edge
	assert.InDelta(t, 0.8, it.Confidence, 1e-9)
}

func TestParseInWithStatusFilter(t *testing.T) {
	it := parse(t, "show me products in RBP which are in active OPS Excel")

	assert.Equal(t, OpIn, it.Operation)
	assert.Equal(t, "RBP_GPU", it.SourceTable)
	assert.Equal(t, "OPS_EXCEL_GPU", it.TargetTable)
	require.Len(t, it.Filters, 1)
	f := it.Filters[0]
	assert.Equal(t, "OPS_EXCEL_GPU", f.Table)
	assert.Equal(t, "Active_Inactive", f.Column)
	assert.Equal(t, "=", f.Operator)
	assert.Equal(t, "Active", f.Value)
}

func TestParseInactiveFilter(t *testing.T) {
	it := parse(t, "list inactive products in RBP")

	assert.Equal(t, OpFilter, it.Operation)
	assert.Equal(t, "RBP_GPU", it.SourceTable)
	assert.Empty(t, it.TargetTable)
	require.Len(t, it.Filters, 1)
	assert.Equal(t, "Inactive", it.Filters[0].Value)
	assert.Equal(t, "RBP_GPU", it.Filters[0].Table)
}

func TestStatusFilterDroppedWithoutStatusColumn(t *testing.T) {
	it := parse(t, "show active material master")

	assert.Equal(t, "MATERIAL_MASTER", it.SourceTable)
	assert.Empty(t, it.Filters)
	assert.Equal(t, OpList, it.Operation)
}

func TestParseMissingFromPhrase(t *testing.T) {
	it := parse(t, "RBP products missing from OPS Excel")

	assert.Equal(t, OpNotIn, it.Operation)
	assert.Equal(t, "RBP_GPU", it.SourceTable)
	assert.Equal(t, "OPS_EXCEL_GPU", it.TargetTable)
}

func TestParseAggregate(t *testing.T) {
	it := parse(t, "count products in RBP")

	assert.Equal(t, OpAggregate, it.Operation)
	assert.Equal(t, "RBP_GPU", it.SourceTable)
	assert.Empty(t, it.TargetTable)
}

func TestParseLimit(t *testing.T) {
	it := parse(t, "show top 50 products in RBP")

	assert.Equal(t, 50, it.Limit)
	assert.Equal(t, "RBP_GPU", it.SourceTable)
}

func TestParseAdditionalColumns(t *testing.T) {
	it := parse(t, "show products in RBP not in OPS Excel, include ops_planner from material master")

	assert.Equal(t, OpNotIn, it.Operation)
	require.Len(t, it.AdditionalColumns, 1)
	assert.Equal(t, "ops_planner", it.AdditionalColumns[0].ColumnName)
	assert.Equal(t, "material master", it.AdditionalColumns[0].SourceTableTerm)
	assert.Equal(t, "ops_planner", it.AdditionalColumns[0].Alias)
}

func TestParseMultipleAdditionalColumnClauses(t *testing.T) {
	it := parse(t, "products in RBP not in OPS Excel, include ops_planner from material master, plus MATERIAL_ID from material master")

	require.Len(t, it.AdditionalColumns, 2)
	assert.Equal(t, "ops_planner", it.AdditionalColumns[0].ColumnName)
	assert.Equal(t, "MATERIAL_ID", it.AdditionalColumns[1].ColumnName)
}

func TestStopWordsNeverTables(t *testing.T) {
	// No permutation of pure stop words may yield a table.
	for _, definition := range []string{
		"show me all the records",
		"find all which are in",
		"get me some data please",
		"all in all",
	} {
		it := parse(t, definition)
		assert.Empty(t, it.SourceTable, "definition %q", definition)
		assert.Empty(t, it.TargetTable, "definition %q", definition)
	}
}

func TestMalformedInputDegradesToList(t *testing.T) {
	for _, definition := range []string{"", "@@@ ???", "zzz qqq vvv"} {
		it := parse(t, definition)
		assert.Equal(t, OpList, it.Operation, "definition %q", definition)
		assert.InDelta(t, 0.6, it.Confidence, 1e-9)
	}
}

func TestSingleTableMembershipDowngradesToList(t *testing.T) {
	it := parse(t, "show products in RBP")

	assert.Equal(t, OpList, it.Operation)
	assert.Equal(t, "RBP_GPU", it.SourceTable)
	assert.Empty(t, it.TargetTable)
}

type stubStrategy struct {
	intent *Intent
	err    error
}

func (s *stubStrategy) Parse(context.Context, string, *SchemaContext) (*Intent, error) {
	return s.intent, s.err
}

func TestParserAssistPath(t *testing.T) {
	sc := fixtureContext()
	assisted := &Intent{Operation: OpNotIn, SourceTable: "RBP_GPU", TargetTable: "OPS_EXCEL_GPU"}
	p := NewParser(&stubStrategy{intent: assisted}, nil)

	it := p.Parse(context.Background(), "whatever", sc)
	assert.True(t, it.UsedLLM)
	// base 0.6 + llm 0.15 + 0.05 + 0.05 + 0.1 caps at 0.95
	assert.InDelta(t, 0.95, it.Confidence, 1e-9)
}

func TestParserFallsBackOnAssistError(t *testing.T) {
	p := NewParser(&stubStrategy{err: errors.New("model unavailable")}, nil)

	it := p.Parse(context.Background(), "products in RBP not in OPS Excel", fixtureContext())
	assert.False(t, it.UsedLLM)
	assert.Equal(t, OpNotIn, it.Operation)
	assert.Equal(t, "RBP_GPU", it.SourceTable)
}

func TestParserWithoutAssist(t *testing.T) {
	p := NewParser(nil, nil)

	it := p.Parse(context.Background(), "products in RBP not in OPS Excel", fixtureContext())
	assert.Equal(t, OpNotIn, it.Operation)
}
