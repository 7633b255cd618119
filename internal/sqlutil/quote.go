// Package sqlutil provides SQL identifier and literal quoting helpers.
package sqlutil

import "strings"

// Dialect selects the identifier quoting and placeholder conventions of a
// target database. It never changes the logical shape of a statement.
type Dialect string

const (
	DialectMySQL     Dialect = "mysql"
	DialectPostgres  Dialect = "postgres"
	DialectSQLServer Dialect = "sqlserver"
)

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// using the dialect's delimiter, escaping embedded delimiters by doubling.
// Identifiers consisting only of letters, digits and underscores are passed
// through unquoted so generated SQL stays readable.
func (d Dialect) QuoteIdentifier(name string) string {
	if isPlainIdentifier(name) {
		return name
	}
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case DialectSQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// QuoteQualified quotes a possibly schema-qualified name part by part.
func (d Dialect) QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isPlainIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
