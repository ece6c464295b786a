// The table model lives here so that the loader and every backend package can
// import it without cycles.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"rawload/internal/tabular"
)

// ErrTableNotFound is returned by DescribeTable for a missing table.
var ErrTableNotFound = errors.New("table not found")

// TableSpec describes a table to (re)create. There are no keys, indexes or
// constraints; every column is nullable.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

type ColumnSpec struct {
	Name string
	Type tabular.ColumnType
}

// TableInfo is what DescribeTable reports about an existing table.
type TableInfo struct {
	Name    string
	Columns []string
	Rows    int64
}

// SpecFromBuffer derives the table spec for a parsed buffer.
func SpecFromBuffer(table string, b *tabular.Buffer) TableSpec {
	cols := make([]ColumnSpec, len(b.Columns))
	for i, c := range b.Columns {
		cols[i] = ColumnSpec{Name: c.Name, Type: c.Type}
	}
	return TableSpec{Name: table, Columns: cols}
}

// ColumnNames returns the column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate rejects specs no backend can create: no name, no columns, empty or
// repeated column names.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("storage: table %s: column %d has no name", t.Name, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("storage: table %s: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// CheckNameLength rejects a table, schema or column name longer than maxBytes.
// Postgres truncates longer identifiers without an error, which would leave a
// table whose columns no longer match the file header.
func (t TableSpec) CheckNameLength(maxBytes int) error {
	schema, table := SplitQualifiedName(t.Name)
	for _, n := range []string{schema, table} {
		if len(n) > maxBytes {
			return fmt.Errorf("storage: table name %q is %d bytes, limit is %d", n, len(n), maxBytes)
		}
	}
	for _, c := range t.Columns {
		if len(c.Name) > maxBytes {
			return fmt.Errorf("storage: table %s: column name %q is %d bytes, limit is %d", t.Name, c.Name, len(c.Name), maxBytes)
		}
	}
	return nil
}

// CheckRows verifies every row has one cell per column.
func (t TableSpec) CheckRows(rows [][]any) error {
	for i, r := range rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("storage: table %s: row %d has %d values, want %d", t.Name, i, len(r), len(t.Columns))
		}
	}
	return nil
}

// SplitQualifiedName splits a schema-qualified name into (schema, table).
//
// Examples:
//   - "public.countries" => ("public", "countries")
//   - "countries"        => ("", "countries")
//
// Only a single dot is understood; anything else is treated as unqualified.
func SplitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
