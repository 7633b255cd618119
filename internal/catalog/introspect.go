package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"reconql/internal/sqlutil"
)

// DBSupplier reads schema metadata from information_schema. Both MySQL and
// Postgres expose the views it relies on; the dialect only selects the
// placeholder style.
type DBSupplier struct {
	db      *sql.DB
	schema  string
	dialect sqlutil.Dialect
	logger  *slog.Logger
}

// NewDBSupplier creates a Supplier over a live database handle. The schema
// argument names the database (MySQL) or schema (Postgres) to introspect.
func NewDBSupplier(db *sql.DB, schema string, dialect sqlutil.Dialect, logger *slog.Logger) *DBSupplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBSupplier{db: db, schema: schema, dialect: dialect, logger: logger}
}

func (s *DBSupplier) placeholder(n int) string {
	if s.dialect == sqlutil.DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ListTables returns the base tables of the configured schema in name order.
func (s *DBSupplier) ListTables(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = %s
		AND table_type = 'BASE TABLE'
		ORDER BY table_name`, s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, s.schema)
	if err != nil {
		return nil, fmt.Errorf("querying information_schema.tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("introspected tables", "schema", s.schema, "count", len(tables))
	return tables, nil
}

// ListColumns returns a table's columns in ordinal position order.
func (s *DBSupplier) ListColumns(ctx context.Context, table string) ([]Column, error) {
	query := fmt.Sprintf(`
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = %s
		AND table_name = %s
		ORDER BY ordinal_position`, s.placeholder(1), s.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, s.schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying information_schema.columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

// ForeignKey describes an introspected foreign key column mapping.
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// ListForeignKeys returns single-column foreign keys of the configured
// schema. Composite constraints contribute one entry per column pair.
func (s *DBSupplier) ListForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	query := fmt.Sprintf(`
		SELECT table_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = %s
		AND referenced_table_name IS NOT NULL
		ORDER BY table_name, ordinal_position`, s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, s.schema)
	if err != nil {
		return nil, fmt.Errorf("querying information_schema.key_column_usage: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Table, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("introspected foreign keys", "schema", s.schema, "count", len(fks))
	return fks, nil
}
