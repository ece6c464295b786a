// Package dataset defines the (source file, destination table) pairs the loader
// works through, and the fixed Olist catalog loaded by default.
package dataset

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultDir is where the source files are expected, relative to the
	// working directory.
	DefaultDir = "data_csv"

	// DefaultTablePrefix is prepended to the dataset name to form the table name.
	DefaultTablePrefix = "raw_"
)

// Descriptor pairs a source file with its destination table.
//
// Descriptors are values; nothing in the loader mutates them.
type Descriptor struct {
	Name  string
	Path  string
	Table string
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s -> %s)", d.Name, d.Path, d.Table)
}

// Entry is a catalog line before it is resolved against a directory and prefix.
type Entry struct {
	Name string
	File string
	// Table overrides prefix+Name when set.
	Table string
}

// Catalog is the Olist e-commerce dataset set, in load order.
var Catalog = []Entry{
	{Name: "customers", File: "olist_customers_dataset.csv"},
	{Name: "geolocation", File: "olist_geolocation_dataset.csv"},
	{Name: "order_items", File: "olist_order_items_dataset.csv"},
	{Name: "order_payments", File: "olist_order_payments_dataset.csv"},
	{Name: "order_reviews", File: "olist_order_reviews_dataset.csv"},
	{Name: "orders", File: "olist_orders_dataset.csv"},
	{Name: "products", File: "olist_products_dataset.csv"},
	{Name: "sellers", File: "olist_sellers_dataset.csv"},
	{Name: "translation", File: "product_category_name_translation.csv"},
}

// Resolve turns entries into descriptors. Relative files are joined to dir;
// tables default to prefix + name.
func Resolve(entries []Entry, dir, prefix string) []Descriptor {
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		path := e.File
		if path != "" && dir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		table := e.Table
		if table == "" {
			table = prefix + e.Name
		}
		out = append(out, Descriptor{Name: e.Name, Path: path, Table: table})
	}
	return out
}

// Defaults returns the nine catalog descriptors under DefaultDir with
// DefaultTablePrefix.
func Defaults() []Descriptor {
	return Resolve(Catalog, DefaultDir, DefaultTablePrefix)
}

// Select keeps the descriptors named in names, preserving the order of ds.
// An empty names list selects everything. Unknown names are an error.
func Select(ds []Descriptor, names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		return ds, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			want[n] = false
		}
	}

	out := make([]Descriptor, 0, len(want))
	for _, d := range ds {
		if _, ok := want[d.Name]; ok {
			want[d.Name] = true
			out = append(out, d)
		}
	}

	var missing []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if found, ok := want[n]; ok && !found {
			missing = append(missing, n)
			want[n] = true
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown dataset(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Validate checks that every descriptor is complete and that no two share a
// name or a destination table.
func Validate(ds []Descriptor) error {
	if len(ds) == 0 {
		return fmt.Errorf("no datasets configured")
	}
	names := make(map[string]bool, len(ds))
	tables := make(map[string]string, len(ds))
	for i, d := range ds {
		switch {
		case strings.TrimSpace(d.Name) == "":
			return fmt.Errorf("datasets[%d]: missing name", i)
		case strings.TrimSpace(d.Path) == "":
			return fmt.Errorf("dataset %s: missing file", d.Name)
		case strings.TrimSpace(d.Table) == "":
			return fmt.Errorf("dataset %s: missing table", d.Name)
		}
		if names[d.Name] {
			return fmt.Errorf("dataset %s: duplicate name", d.Name)
		}
		names[d.Name] = true

		key := strings.ToLower(d.Table)
		if other, ok := tables[key]; ok {
			return fmt.Errorf("dataset %s: table %s already used by dataset %s", d.Name, d.Table, other)
		}
		tables[key] = d.Name
	}
	return nil
}
