package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"rawload/internal/storage"
	"rawload/internal/tabular"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "load.db")
	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo.(*Repo)
}

var peopleSpec = storage.TableSpec{
	Name: "raw_people",
	Columns: []storage.ColumnSpec{
		{Name: "id", Type: tabular.Integer},
		{Name: "name", Type: tabular.Text},
	},
}

func selectAll(t *testing.T, r *Repo, table string) [][]any {
	t.Helper()

	rows, err := r.db.Query(`SELECT * FROM ` + sqlIdent(table) + ` ORDER BY rowid`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer rows.Close()

	cols, _ := rows.Columns()
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func TestReplaceTable_IDNameScenario(t *testing.T) {
	t.Parallel()

	r := openTestRepo(t)
	rows := [][]any{{int64(1), "Alice"}, {int64(2), "Bob"}, {int64(3), "Carol"}}

	n, err := r.ReplaceTable(context.Background(), peopleSpec, rows)
	if err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}

	got := selectAll(t, r, "raw_people")
	if !reflect.DeepEqual(got, rows) {
		t.Fatalf("rows = %#v, want %#v", got, rows)
	}

	info, err := r.DescribeTable(context.Background(), "raw_people")
	if err != nil {
		t.Fatalf("DescribeTable: %v", err)
	}
	if !reflect.DeepEqual(info.Columns, []string{"id", "name"}) || info.Rows != 3 {
		t.Fatalf("info = %+v, want columns [id name] and 3 rows", info)
	}
}

func TestReplaceTable_IdempotentAndDropsManualRows(t *testing.T) {
	t.Parallel()

	r := openTestRepo(t)
	ctx := context.Background()
	rows := [][]any{{int64(1), "Alice"}, {int64(2), "Bob"}}

	if _, err := r.ReplaceTable(ctx, peopleSpec, rows); err != nil {
		t.Fatalf("first ReplaceTable: %v", err)
	}
	if _, err := r.db.Exec(`INSERT INTO raw_people (id, name) VALUES (99, 'Manual')`); err != nil {
		t.Fatalf("manual insert: %v", err)
	}
	if _, err := r.ReplaceTable(ctx, peopleSpec, rows); err != nil {
		t.Fatalf("second ReplaceTable: %v", err)
	}

	got := selectAll(t, r, "raw_people")
	if !reflect.DeepEqual(got, rows) {
		t.Fatalf("after rerun rows = %#v, want %#v", got, rows)
	}
}

func TestReplaceTable_SchemaChangesOnRerun(t *testing.T) {
	t.Parallel()

	r := openTestRepo(t)
	ctx := context.Background()
	if _, err := r.ReplaceTable(ctx, peopleSpec, [][]any{{int64(1), "Alice"}}); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}

	wider := storage.TableSpec{Name: "raw_people", Columns: []storage.ColumnSpec{
		{Name: "id", Type: tabular.Text},
		{Name: "name", Type: tabular.Text},
		{Name: "city", Type: tabular.Text},
	}}
	if _, err := r.ReplaceTable(ctx, wider, [][]any{{"x1", "Dora", "Recife"}}); err != nil {
		t.Fatalf("ReplaceTable wider: %v", err)
	}

	info, err := r.DescribeTable(ctx, "raw_people")
	if err != nil {
		t.Fatalf("DescribeTable: %v", err)
	}
	if !reflect.DeepEqual(info.Columns, []string{"id", "name", "city"}) || info.Rows != 1 {
		t.Fatalf("info = %+v", info)
	}
}

func TestReplaceTable_TypesAndAwkwardNames(t *testing.T) {
	t.Parallel()

	r := openTestRepo(t)
	spec := storage.TableSpec{Name: `weird "table"`, Columns: []storage.ColumnSpec{
		{Name: "Customer ID", Type: tabular.Integer},
		{Name: `price "brl"`, Type: tabular.Float},
		{Name: "paid", Type: tabular.Boolean},
		{Name: "note", Type: tabular.Text},
	}}
	rows := [][]any{
		{int64(1), 10.5, true, nil},
		{nil, nil, false, "ok"},
	}

	if _, err := r.ReplaceTable(context.Background(), spec, rows); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}

	got := selectAll(t, r, spec.Name)
	want := [][]any{
		{int64(1), 10.5, int64(1), nil},
		{nil, nil, int64(0), "ok"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %#v, want %#v", got, want)
	}
}

func TestReplaceTable_EmptyRowsCreatesTable(t *testing.T) {
	t.Parallel()

	r := openTestRepo(t)
	n, err := r.ReplaceTable(context.Background(), peopleSpec, nil)
	if err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
	info, err := r.DescribeTable(context.Background(), "raw_people")
	if err != nil {
		t.Fatalf("DescribeTable: %v", err)
	}
	if info.Rows != 0 || len(info.Columns) != 2 {
		t.Fatalf("info = %+v", info)
	}
}

func TestReplaceTable_ManyRowsSpanBatches(t *testing.T) {
	t.Parallel()

	r := openTestRepo(t)
	const total = 40000
	rows := make([][]any, total)
	for i := range rows {
		rows[i] = []any{int64(i), "n"}
	}

	n, err := r.ReplaceTable(context.Background(), peopleSpec, rows)
	if err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	if n != total {
		t.Fatalf("n = %d, want %d", n, total)
	}

	var last int64
	if err := r.db.QueryRow(`SELECT id FROM raw_people ORDER BY rowid DESC LIMIT 1`).Scan(&last); err != nil {
		t.Fatalf("select last: %v", err)
	}
	if last != total-1 {
		t.Fatalf("last id = %d, want %d", last, total-1)
	}
}

func TestReplaceTable_RejectsBadInput(t *testing.T) {
	t.Parallel()

	r := openTestRepo(t)
	ctx := context.Background()

	if _, err := r.ReplaceTable(ctx, storage.TableSpec{Name: "t"}, nil); err == nil {
		t.Fatalf("expected error for spec without columns")
	}
	if _, err := r.ReplaceTable(ctx, peopleSpec, [][]any{{int64(1)}}); err == nil {
		t.Fatalf("expected error for short row")
	}
	if _, err := r.DescribeTable(ctx, "raw_people"); !errors.Is(err, storage.ErrTableNotFound) {
		t.Fatalf("DescribeTable err = %v, want ErrTableNotFound (nothing should have been created)", err)
	}
}

func TestReplaceTable_FailedInsertKeepsPreviousTable(t *testing.T) {
	t.Parallel()

	r := openTestRepo(t)
	ctx := context.Background()
	if _, err := r.ReplaceTable(ctx, peopleSpec, [][]any{{int64(1), "Alice"}}); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}

	// A value the driver cannot bind makes the INSERT fail after DROP/CREATE ran.
	_, err := r.ReplaceTable(ctx, peopleSpec, [][]any{{int64(2), struct{}{}}})
	if err == nil {
		t.Fatalf("expected insert error")
	}

	got := selectAll(t, r, "raw_people")
	if !reflect.DeepEqual(got, [][]any{{int64(1), "Alice"}}) {
		t.Fatalf("rows = %#v, want previous contents after rollback", got)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	got := buildCreateSQL(storage.TableSpec{Name: "raw_x", Columns: []storage.ColumnSpec{
		{Name: "a", Type: tabular.Integer},
		{Name: "b", Type: tabular.Float},
		{Name: "c", Type: tabular.Boolean},
		{Name: "d", Type: tabular.Text},
	}})
	for _, want := range []string{`CREATE TABLE "raw_x"`, `"a" INTEGER`, `"b" REAL`, `"c" INTEGER`, `"d" TEXT`} {
		if !strings.Contains(got, want) {
			t.Fatalf("create SQL missing %q: %s", want, got)
		}
	}
	if strings.Contains(got, "PRIMARY KEY") || strings.Contains(got, "NOT NULL") {
		t.Fatalf("create SQL must not declare constraints: %s", got)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	q, args, err := buildInsertSQL(peopleSpec, [][]any{{int64(1), "a"}, {int64(2), nil}})
	if err != nil {
		t.Fatalf("buildInsertSQL: %v", err)
	}
	if !strings.HasPrefix(q, `INSERT INTO "raw_people" ("id","name") VALUES (?,?),(?,?)`) {
		t.Fatalf("sql = %q", q)
	}
	if len(args) != 4 || args[3] != nil {
		t.Fatalf("args = %#v", args)
	}
}
