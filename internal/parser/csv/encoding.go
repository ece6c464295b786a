package csv

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeReader wraps src so that it yields UTF-8 without a leading byte order
// mark.
//
// UTF-8 input is passed through untouched and validated by the parser instead
// of being decoded, since the x/text UTF-8 decoder silently replaces bad bytes
// with U+FFFD.
func decodeReader(src io.Reader, label string) (io.Reader, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return skipBOM(src), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("csv: unsupported encoding %q: %w", label, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return skipBOM(src), nil
	}
	return skipBOM(transform.NewReader(src, enc.NewDecoder())), nil
}

// skipBOM drops a UTF-8 byte order mark at the start of r. It has to happen
// before encoding/csv sees the bytes: a BOM in front of a quoted header field
// is otherwise a quoting error.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
