package tabular

import (
	"math"
	"reflect"
	"testing"
)

func TestInferType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cells []string
		want  ColumnType
	}{
		{"integers", []string{"1", "-2", "+3"}, Integer},
		{"integers with nulls", []string{"1", "", "NA", "3"}, Integer},
		{"float absorbs integer", []string{"1", "2.5", "3"}, Float},
		{"exponent float", []string{"1e3", "2"}, Float},
		{"infinity is float", []string{"inf", "-inf", "1.5"}, Float},
		{"booleans", []string{"True", "false", "TRUE"}, Boolean},
		{"booleans with nulls", []string{"true", "", "False"}, Boolean},
		{"boolean mixed with number is text", []string{"true", "1"}, Text},
		{"loose booleans are text", []string{"yes", "no"}, Text},
		{"text wins", []string{"1", "abc", "2.0"}, Text},
		{"all null is text", []string{"", "NULL", "nan"}, Text},
		{"empty column is text", nil, Text},
		{"int64 overflow stays text", []string{"99999999999999999999"}, Text},
		{"hex is text", []string{"0x1p-2"}, Text},
		{"digit separators are text", []string{"1_000"}, Text},
		{"hex identifiers are text", []string{"06b8999e2fba1a1fbc88172c00ba8bc7"}, Text},
		{"padded integers", []string{" 7", "8 "}, Integer},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := InferType(tt.cells); got != tt.want {
				t.Fatalf("InferType(%q) = %q, want %q", tt.cells, got, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		typ  ColumnType
		want any
	}{
		{"null marker", "NA", Integer, nil},
		{"empty", "", Text, nil},
		{"integer", "42", Integer, int64(42)},
		{"integer in float column", "42", Float, float64(42)},
		{"float", "2.5", Float, 2.5},
		{"bool", "False", Boolean, false},
		{"text keeps raw", " 007 ", Text, " 007 "},
		{"text keeps numeric looking", "01310", Text, "01310"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Convert(tt.raw, tt.typ)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Convert(%q, %s) = %#v, want %#v", tt.raw, tt.typ, got, tt.want)
			}
		})
	}

	t.Run("infinity", func(t *testing.T) {
		t.Parallel()
		got, ok := Convert("-inf", Float).(float64)
		if !ok || !math.IsInf(got, -1) {
			t.Fatalf("Convert(-inf) = %#v, want -Inf", Convert("-inf", Float))
		}
	})
}

func TestIsNull(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "NA", "N/A", "NULL", "null", "NaN", "None", "<NA>", "#N/A"} {
		if !IsNull(s) {
			t.Fatalf("IsNull(%q) = false, want true", s)
		}
	}
	for _, s := range []string{" ", "na ", "none", "0", "-"} {
		if IsNull(s) {
			t.Fatalf("IsNull(%q) = true, want false", s)
		}
	}
}
