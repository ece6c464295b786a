package tabular

import (
	"strconv"
	"strings"
)

// cellKind is a bit set of the value classes observed in a column.
type cellKind uint8

const (
	kindNull cellKind = 1 << iota
	kindInt
	kindFloat
	kindBool
	kindText
)

// nullMarkers are the literal cell values read as SQL NULL.
var nullMarkers = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsNull reports whether a raw cell is one of the recognised null markers.
// Matching is exact; " NA " is text.
func IsNull(s string) bool {
	_, ok := nullMarkers[s]
	return ok
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	default:
		return false, false
	}
}

// looksInteger reports an optionally signed run of ASCII digits.
func looksInteger(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseDecimalFloat accepts what strconv.ParseFloat accepts minus hex floats
// and digit separators.
func parseDecimalFloat(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func classify(raw string) cellKind {
	if IsNull(raw) {
		return kindNull
	}
	s := strings.TrimSpace(raw)
	if _, ok := parseBool(s); ok {
		return kindBool
	}
	if looksInteger(s) {
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return kindInt
		}
		// out of int64 range; keep the digits
		return kindText
	}
	if _, ok := parseDecimalFloat(s); ok {
		return kindFloat
	}
	return kindText
}

// resolve picks the column type for the set of kinds seen in a column.
//
// Precedence:
//   - any text wins
//   - booleans only survive when no number was seen
//   - float absorbs integer
//   - a column with nothing but nulls is text
func resolve(k cellKind) ColumnType {
	switch {
	case k&kindText != 0:
		return Text
	case k&kindBool != 0:
		if k&(kindInt|kindFloat) != 0 {
			return Text
		}
		return Boolean
	case k&kindFloat != 0:
		return Float
	case k&kindInt != 0:
		return Integer
	default:
		return Text
	}
}

// Convert turns a raw cell into the Go value stored for a column of type t.
// The cell must already have been observed by the column's inference, so
// parse failures are not expected here; they fall back to the raw string.
func Convert(raw string, t ColumnType) any {
	if IsNull(raw) {
		return nil
	}
	switch t {
	case Integer:
		if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			return v
		}
	case Float:
		if v, ok := parseDecimalFloat(strings.TrimSpace(raw)); ok {
			return v
		}
	case Boolean:
		if v, ok := parseBool(strings.TrimSpace(raw)); ok {
			return v
		}
	}
	return raw
}

// InferType returns the column type for a set of raw cells.
func InferType(cells []string) ColumnType {
	var k cellKind
	for _, c := range cells {
		k |= classify(c)
	}
	return resolve(k)
}
