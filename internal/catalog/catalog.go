// Package catalog models the database schema consumed by the query engine:
// tables, their ordered columns, and case-insensitive lookup over both.
// A Catalog is built once and treated as immutable afterwards, so it is safe
// for unlimited concurrent reads.
package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Column describes a single table column.
type Column struct {
	Name string
	Type string
}

// Table describes a schema table with its ordered column list.
type Table struct {
	Name    string
	Columns []Column
}

// Supplier exposes schema metadata from an external source.
type Supplier interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]Column, error)
}

// Catalog is an immutable snapshot of tables and columns.
type Catalog struct {
	tables  []Table
	byName  map[string]int
	columns map[string]map[string]Column
}

// New builds a Catalog from a table list. Later duplicates of a table name
// (case-insensitive) are ignored so lookup stays deterministic.
func New(tables []Table) *Catalog {
	c := &Catalog{
		byName:  make(map[string]int, len(tables)),
		columns: make(map[string]map[string]Column, len(tables)),
	}
	for _, t := range tables {
		key := strings.ToLower(t.Name)
		if _, exists := c.byName[key]; exists {
			continue
		}
		c.byName[key] = len(c.tables)
		c.tables = append(c.tables, t)
		cols := make(map[string]Column, len(t.Columns))
		for _, col := range t.Columns {
			cols[strings.ToLower(col.Name)] = col
		}
		c.columns[key] = cols
	}
	return c
}

// Load builds a Catalog by reading the supplier's tables and columns.
func Load(ctx context.Context, s Supplier) (*Catalog, error) {
	names, err := s.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	tables := make([]Table, 0, len(names))
	for _, name := range names {
		cols, err := s.ListColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("listing columns for %s: %w", name, err)
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}
	return New(tables), nil
}

// Tables returns all tables in registration order.
func (c *Catalog) Tables() []Table {
	return c.tables
}

// TableNames returns all canonical table names in registration order.
func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.tables))
	for i, t := range c.tables {
		names[i] = t.Name
	}
	return names
}

// Table returns the table with the given name, case-insensitively.
func (c *Catalog) Table(name string) (Table, bool) {
	i, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return Table{}, false
	}
	return c.tables[i], true
}

// Column returns a column of a table, both looked up case-insensitively.
func (c *Catalog) Column(table, column string) (Column, bool) {
	cols, ok := c.columns[strings.ToLower(table)]
	if !ok {
		return Column{}, false
	}
	col, ok := cols[strings.ToLower(column)]
	return col, ok
}

// ColumnNames returns the ordered column names of a table.
func (c *Catalog) ColumnNames(table string) []string {
	t, ok := c.Table(table)
	if !ok {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// HasTable reports whether the catalog contains the table.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.byName[strings.ToLower(name)]
	return ok
}

// Len returns the number of tables.
func (c *Catalog) Len() int {
	return len(c.tables)
}
