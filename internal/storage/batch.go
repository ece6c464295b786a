package storage

// BatchRows splits rows into consecutive chunks that respect an engine's bind
// parameter limit (maxParams) and, optionally, a rows-per-statement limit
// (maxRows <= 0 means unlimited).
//
// Chunks share the backing array of rows; order is preserved. A chunk always
// holds at least one row, even if a single row exceeds maxParams, so the
// engine reports the problem instead of the loader looping forever.
func BatchRows(rows [][]any, columns, maxParams, maxRows int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	if columns < 1 {
		columns = 1
	}

	per := len(rows)
	if maxParams > 0 {
		per = maxParams / columns
	}
	if maxRows > 0 && per > maxRows {
		per = maxRows
	}
	if per < 1 {
		per = 1
	}

	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
