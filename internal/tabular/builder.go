package tabular

import (
	"fmt"
	"strconv"
)

// Builder accumulates raw records and produces a typed Buffer.
//
// Records are copied on Append, so callers may reuse their slices
// (encoding/csv ReuseRecord).
//
// Not safe for concurrent use.
type Builder struct {
	names []string
	kinds []cellKind
	raw   [][]string
}

// NewBuilder starts a buffer with the given header. Names are cleaned with
// HeaderNames.
func NewBuilder(header []string) *Builder {
	names := HeaderNames(header)
	return &Builder{
		names: names,
		kinds: make([]cellKind, len(names)),
	}
}

// Width returns the number of columns.
func (b *Builder) Width() int { return len(b.names) }

// Append adds one record. The record must have exactly Width() cells.
func (b *Builder) Append(rec []string) error {
	if len(rec) != len(b.names) {
		return fmt.Errorf("record has %d fields, header has %d", len(rec), len(b.names))
	}
	row := make([]string, len(rec))
	copy(row, rec)
	for i, v := range row {
		b.kinds[i] |= classify(v)
	}
	b.raw = append(b.raw, row)
	return nil
}

// Build resolves column types and converts every cell. The Builder must not be
// used afterwards.
func (b *Builder) Build() *Buffer {
	cols := make([]Column, len(b.names))
	for i, n := range b.names {
		cols[i] = Column{Name: n, Type: resolve(b.kinds[i])}
	}

	rows := make([][]any, len(b.raw))
	for r, rec := range b.raw {
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = Convert(v, cols[i].Type)
		}
		rows[r] = row
		b.raw[r] = nil
	}
	b.raw = nil

	return &Buffer{Columns: cols, Rows: rows}
}

// HeaderNames returns the column names for a raw header record.
//
// Names are kept verbatim except:
//   - an empty name becomes "Unnamed: <index>"
//   - a repeated name gets a ".N" suffix ("a", "a.1", "a.2"); when the
//     suffixed name is itself taken the suffixing repeats on it, so
//     ["a", "a.1", "a"] becomes ["a", "a.1", "a.1.1"]
func HeaderNames(header []string) []string {
	out := make([]string, len(header))
	counts := make(map[string]int, len(header))
	for i, h := range header {
		name := h
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		cur := counts[name]
		for cur > 0 {
			counts[name] = cur + 1
			name = name + "." + strconv.Itoa(cur)
			cur = counts[name]
		}
		out[i] = name
		counts[name] = cur + 1
	}
	return out
}
