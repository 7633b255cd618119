package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconql/internal/columns"
	"reconql/internal/intent"
	"reconql/internal/joinpath"
	"reconql/internal/sqlutil"
)

func primaryPath() *joinpath.JoinPath {
	return &joinpath.JoinPath{
		SourceTable: "RBP_GPU",
		TargetTable: "OPS_EXCEL_GPU",
		Hops: []joinpath.Hop{{
			LeftTable: "RBP_GPU", LeftColumn: "Material",
			RightTable: "OPS_EXCEL_GPU", RightColumn: "PLANNING_SKU",
			Confidence: 0.95,
		}},
		Confidence: 0.95,
	}
}

func gen() *Generator {
	return NewGenerator(sqlutil.DialectMySQL, "", nil, nil)
}

func TestGenerateNotIn(t *testing.T) {
	it := &intent.Intent{
		Operation:   intent.OpNotIn,
		SourceTable: "RBP_GPU",
		TargetTable: "OPS_EXCEL_GPU",
	}

	stmt, err := gen().Generate(it, primaryPath(), nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT DISTINCT s.* FROM RBP_GPU s LEFT JOIN OPS_EXCEL_GPU t ON s.Material = t.PLANNING_SKU WHERE t.PLANNING_SKU IS NULL",
		stmt.SQL)
	assert.Equal(t, []string{"RBP_GPU.Material = OPS_EXCEL_GPU.PLANNING_SKU"}, stmt.JoinColumns)
	assert.Empty(t, stmt.FallbackSQL)
}

func TestGenerateInWithTargetFilter(t *testing.T) {
	it := &intent.Intent{
		Operation:   intent.OpIn,
		SourceTable: "RBP_GPU",
		TargetTable: "OPS_EXCEL_GPU",
		Filters: []intent.Filter{{
			Table: "OPS_EXCEL_GPU", Column: "Active_Inactive", Operator: "=", Value: "Active",
		}},
	}

	stmt, err := gen().Generate(it, primaryPath(), nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT DISTINCT s.* FROM RBP_GPU s INNER JOIN OPS_EXCEL_GPU t ON s.Material = t.PLANNING_SKU WHERE t.Active_Inactive = 'Active'",
		stmt.SQL)
	assert.NotContains(t, stmt.SQL, "IS NULL")
	// Filter is scoped to the target alias, never the source alias.
	assert.NotContains(t, stmt.SQL, "s.Active_Inactive")
}

func TestGenerateNotInKeepsIsNullWithFilters(t *testing.T) {
	it := &intent.Intent{
		Operation:   intent.OpNotIn,
		SourceTable: "RBP_GPU",
		TargetTable: "OPS_EXCEL_GPU",
		Filters: []intent.Filter{{
			Table: "RBP_GPU", Column: "Active_Inactive", Operator: "=", Value: "Active",
		}},
	}

	stmt, err := gen().Generate(it, primaryPath(), nil)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "LEFT JOIN")
	assert.Contains(t, stmt.SQL, "t.PLANNING_SKU IS NULL")
	assert.Contains(t, stmt.SQL, "AND s.Active_Inactive = 'Active'")
}

func TestGenerateComparisonRequiresJoinPath(t *testing.T) {
	it := &intent.Intent{
		Operation:   intent.OpNotIn,
		SourceTable: "RBP_GPU",
		TargetTable: "OPS_EXCEL_GPU",
	}

	_, err := gen().Generate(it, nil, nil)
	require.Error(t, err)
	var nfe *joinpath.NotFoundError
	assert.ErrorAs(t, err, &nfe)
}

func extraColumn(column, alias string) columns.ResolvedColumn {
	return columns.ResolvedColumn{
		Table:  "MATERIAL_MASTER",
		Column: column,
		Alias:  alias,
		JoinPath: &joinpath.JoinPath{
			SourceTable: "RBP_GPU",
			TargetTable: "MATERIAL_MASTER",
			Hops: []joinpath.Hop{{
				LeftTable: "RBP_GPU", LeftColumn: "Material",
				RightTable: "MATERIAL_MASTER", RightColumn: "MATERIAL_ID",
				Confidence: 0.9,
			}},
			Confidence: 0.9,
		},
	}
}

func TestAdditionalColumnsSingleJoinPerTable(t *testing.T) {
	it := &intent.Intent{
		Operation:   intent.OpNotIn,
		SourceTable: "RBP_GPU",
		TargetTable: "OPS_EXCEL_GPU",
	}
	extras := []columns.ResolvedColumn{
		extraColumn("ops_planner", "ops_planner"),
		extraColumn("plant", "plant"),
	}

	stmt, err := gen().Generate(it, primaryPath(), extras)
	require.NoError(t, err)
	// Two columns from the same table produce exactly one join for it.
	assert.Equal(t, 1, strings.Count(stmt.SQL, "LEFT JOIN MATERIAL_MASTER"))
	assert.Contains(t, stmt.SQL, "a1.ops_planner AS ops_planner")
	assert.Contains(t, stmt.SQL, "a1.plant AS plant")
	assert.Contains(t, stmt.SQL, "LEFT JOIN MATERIAL_MASTER a1 ON s.Material = a1.MATERIAL_ID")
}

func TestAdditionalColumnAliasCollision(t *testing.T) {
	it := &intent.Intent{Operation: intent.OpList, SourceTable: "RBP_GPU"}
	extras := []columns.ResolvedColumn{
		extraColumn("ops_planner", "planner"),
		extraColumn("plant", "planner"),
	}

	stmt, err := gen().Generate(it, nil, extras)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "AS planner")
	assert.Contains(t, stmt.SQL, "AS planner_2")
}

func TestGenerateList(t *testing.T) {
	it := &intent.Intent{Operation: intent.OpList, SourceTable: "RBP_GPU", Limit: 100}

	stmt, err := gen().Generate(it, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT s.* FROM RBP_GPU s LIMIT 100", stmt.SQL)
}

func TestGenerateFilter(t *testing.T) {
	it := &intent.Intent{
		Operation:   intent.OpFilter,
		SourceTable: "RBP_GPU",
		Filters: []intent.Filter{{
			Table: "RBP_GPU", Column: "Active_Inactive", Operator: "=", Value: "Inactive",
		}},
	}

	stmt, err := gen().Generate(it, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT s.* FROM RBP_GPU s WHERE s.Active_Inactive = 'Inactive'", stmt.SQL)
}

func TestGenerateAggregate(t *testing.T) {
	it := &intent.Intent{Operation: intent.OpAggregate, SourceTable: "RBP_GPU"}

	stmt, err := gen().Generate(it, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS record_count FROM RBP_GPU s", stmt.SQL)
}

func TestSchemaQualificationAndFallback(t *testing.T) {
	g := NewGenerator(sqlutil.DialectMySQL, "recon", nil, nil)
	it := &intent.Intent{
		Operation:   intent.OpNotIn,
		SourceTable: "RBP_GPU",
		TargetTable: "OPS_EXCEL_GPU",
	}

	stmt, err := g.Generate(it, primaryPath(), nil)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "FROM recon.RBP_GPU s")
	assert.Contains(t, stmt.SQL, "LEFT JOIN recon.OPS_EXCEL_GPU t")
	require.NotEmpty(t, stmt.FallbackSQL)
	assert.NotContains(t, stmt.FallbackSQL, "recon.")
	assert.Contains(t, stmt.FallbackSQL, "FROM RBP_GPU s")
}

func TestLiteralQuoting(t *testing.T) {
	it := &intent.Intent{
		Operation:   intent.OpFilter,
		SourceTable: "RBP_GPU",
		Filters: []intent.Filter{{
			Table: "RBP_GPU", Column: "name", Operator: "=", Value: "O'Brien",
		}},
	}

	stmt, err := gen().Generate(it, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "s.name = 'O''Brien'")
}

func TestGenerateMissingSource(t *testing.T) {
	_, err := gen().Generate(&intent.Intent{Operation: intent.OpList}, nil, nil)
	assert.Error(t, err)
}
