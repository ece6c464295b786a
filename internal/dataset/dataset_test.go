package dataset

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults_NineOlistTables(t *testing.T) {
	t.Parallel()

	ds := Defaults()
	if len(ds) != 9 {
		t.Fatalf("len(Defaults()) = %d, want 9", len(ds))
	}

	want := map[string]string{
		"raw_customers":      "olist_customers_dataset.csv",
		"raw_geolocation":    "olist_geolocation_dataset.csv",
		"raw_order_items":    "olist_order_items_dataset.csv",
		"raw_order_payments": "olist_order_payments_dataset.csv",
		"raw_order_reviews":  "olist_order_reviews_dataset.csv",
		"raw_orders":         "olist_orders_dataset.csv",
		"raw_products":       "olist_products_dataset.csv",
		"raw_sellers":        "olist_sellers_dataset.csv",
		"raw_translation":    "product_category_name_translation.csv",
	}
	for _, d := range ds {
		file, ok := want[d.Table]
		if !ok {
			t.Fatalf("unexpected table %q", d.Table)
		}
		if d.Path != filepath.Join("data_csv", file) {
			t.Fatalf("%s: path = %q, want data_csv/%s", d.Table, d.Path, file)
		}
	}
	if err := Validate(ds); err != nil {
		t.Fatalf("Validate(Defaults()): %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	abs := filepath.Join(t.TempDir(), "x.csv")
	got := Resolve([]Entry{
		{Name: "a", File: "a.csv"},
		{Name: "b", File: abs, Table: "custom.b_table"},
	}, "in", "stg_")

	if got[0].Path != filepath.Join("in", "a.csv") || got[0].Table != "stg_a" {
		t.Fatalf("got[0] = %+v", got[0])
	}
	if got[1].Path != abs || got[1].Table != "custom.b_table" {
		t.Fatalf("got[1] = %+v", got[1])
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	ds := Defaults()

	all, err := Select(ds, nil)
	if err != nil || len(all) != len(ds) {
		t.Fatalf("Select(nil) = %d, %v; want all", len(all), err)
	}

	sub, err := Select(ds, []string{"sellers", " customers "})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sub) != 2 || sub[0].Name != "customers" || sub[1].Name != "sellers" {
		t.Fatalf("Select kept %+v, want customers then sellers", sub)
	}

	_, err = Select(ds, []string{"orders", "refunds", "refunds"})
	if err == nil || !strings.Contains(err.Error(), "refunds") {
		t.Fatalf("err = %v, want unknown refunds", err)
	}
	if strings.Count(err.Error(), "refunds") != 1 {
		t.Fatalf("err = %v, want refunds reported once", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []Descriptor
		wantSub string
	}{
		{"empty", nil, "no datasets"},
		{"missing name", []Descriptor{{Path: "a.csv", Table: "t"}}, "missing name"},
		{"missing file", []Descriptor{{Name: "a", Table: "t"}}, "missing file"},
		{"missing table", []Descriptor{{Name: "a", Path: "a.csv"}}, "missing table"},
		{"duplicate name", []Descriptor{
			{Name: "a", Path: "a.csv", Table: "t1"},
			{Name: "a", Path: "b.csv", Table: "t2"},
		}, "duplicate name"},
		{"duplicate table ignores case", []Descriptor{
			{Name: "a", Path: "a.csv", Table: "raw_x"},
			{Name: "b", Path: "b.csv", Table: "RAW_X"},
		}, "already used"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.in)
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantSub)
			}
		})
	}
}
