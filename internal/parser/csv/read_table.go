package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"rawload/internal/tabular"
)

// ErrNoHeader is returned when the input holds no header record at all.
var ErrNoHeader = errors.New("csv: missing header row")

// ParseError reports a malformed record. Line is 1-based and counts physical
// lines of the decoded input.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Options controls how a delimited file is read.
type Options struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter rune

	// Encoding is a WHATWG encoding label ("utf-8", "latin1", "windows-1252",
	// "utf-16le", ...). Empty means UTF-8.
	Encoding string
}

// ReadFile opens path and reads it with ReadTable.
//
// Errors:
//   - os.Open failures are returned unwrapped (*fs.PathError), so callers can
//     tell file-access problems from parse problems.
//   - Everything else is a ParseError, ErrNoHeader, an encoding error, or
//     ctx.Err().
func ReadFile(ctx context.Context, path string, opt Options) (*tabular.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadTable(ctx, f, opt)
}

// ReadTable parses a delimited text table with a header row into a typed
// tabular.Buffer.
//
// Strictness:
//   - the first record is the header; an input without one is ErrNoHeader
//   - every following record must have exactly as many fields as the header
//   - quoting errors are fatal (no LazyQuotes)
//   - invalid UTF-8 in the decoded text is fatal
//
// Blank lines are skipped. A UTF-8 byte order mark before the header is dropped.
//
// The whole file is held in memory; the loader writes each table in one unit of
// work, so there is nothing to stream into.
func ReadTable(ctx context.Context, src io.Reader, opt Options) (*tabular.Buffer, error) {
	r, err := decodeReader(src, opt.Encoding)
	if err != nil {
		return nil, err
	}

	comma := opt.Delimiter
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = false
	// 0: the header fixes the field count for every later record.
	cr.FieldsPerRecord = 0

	hdr, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, toParseError(err, 1)
	}
	hdr = append([]string(nil), hdr...)
	if err := checkUTF8(cr, hdr); err != nil {
		return nil, err
	}

	b := tabular.NewBuilder(hdr)
	// line of the last record read; FieldPos is only valid after a successful Read.
	line, _ := cr.FieldPos(0)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, toParseError(err, line+1)
		}
		line, _ = cr.FieldPos(0)
		if err := checkUTF8(cr, rec); err != nil {
			return nil, err
		}
		if err := b.Append(rec); err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
	}

	return b.Build(), nil
}

func toParseError(err error, fallbackLine int) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: pe.Line, Err: pe.Err}
	}
	return &ParseError{Line: fallbackLine, Err: err}
}

func checkUTF8(cr *csv.Reader, rec []string) error {
	for i, v := range rec {
		if !utf8.ValidString(v) {
			line, col := cr.FieldPos(i)
			return &ParseError{Line: line, Err: fmt.Errorf("field %d (column %d): invalid UTF-8", i+1, col)}
		}
	}
	return nil
}
