// Package tabular holds the in-memory row/column representation of a parsed
// delimited file together with the per-column type inference used to build it.
//
// A Buffer is produced once per dataset by the CSV parser and consumed once by
// a storage backend. Cells are always one of: nil, string, int64, float64, bool.
package tabular

// ColumnType is the inferred storage class of a column.
//
// Backends map these onto concrete SQL types (e.g. Integer -> BIGINT on Postgres).
type ColumnType string

const (
	Integer ColumnType = "integer"
	Float   ColumnType = "float"
	Boolean ColumnType = "boolean"
	Text    ColumnType = "text"
)

// Column is a named, typed column of a Buffer.
type Column struct {
	Name string
	Type ColumnType
}

// Buffer is an ordered sequence of rows sharing one column set.
//
// Invariants:
//   - every row has exactly len(Columns) cells
//   - row order is file order
//   - a cell is nil or matches its column's Go type (int64, float64, bool, string)
type Buffer struct {
	Columns []Column
	Rows    [][]any
}

// ColumnNames returns the column names in order.
func (b *Buffer) ColumnNames() []string {
	out := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		out[i] = c.Name
	}
	return out
}

// Len returns the number of rows.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}
