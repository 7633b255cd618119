package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	t.Run("plain identifiers pass through", func(t *testing.T) {
		for _, d := range []Dialect{DialectMySQL, DialectPostgres, DialectSQLServer} {
			assert.Equal(t, "RBP_GPU", d.QuoteIdentifier("RBP_GPU"))
			assert.Equal(t, "planning_sku", d.QuoteIdentifier("planning_sku"))
		}
	})

	t.Run("mysql backticks", func(t *testing.T) {
		assert.Equal(t, "`ops excel`", DialectMySQL.QuoteIdentifier("ops excel"))
		assert.Equal(t, "`weird``name`", DialectMySQL.QuoteIdentifier("weird`name"))
	})

	t.Run("postgres double quotes", func(t *testing.T) {
		assert.Equal(t, `"ops excel"`, DialectPostgres.QuoteIdentifier("ops excel"))
		assert.Equal(t, `"a""b"`, DialectPostgres.QuoteIdentifier(`a"b`))
	})

	t.Run("sqlserver brackets", func(t *testing.T) {
		assert.Equal(t, "[ops excel]", DialectSQLServer.QuoteIdentifier("ops excel"))
	})

	t.Run("leading digit forces quoting", func(t *testing.T) {
		assert.Equal(t, "`1table`", DialectMySQL.QuoteIdentifier("1table"))
	})
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, "dbo.RBP_GPU", DialectSQLServer.QuoteQualified("dbo.RBP_GPU"))
	assert.Equal(t, "`my schema`.RBP_GPU", DialectMySQL.QuoteQualified("my schema.RBP_GPU"))
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, "'Active'", QuoteString("Active"))
	assert.Equal(t, "'it''s'", QuoteString("it's"))
}
