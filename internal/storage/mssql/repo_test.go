package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"rawload/internal/storage"
	"rawload/internal/tabular"
)

// fakeResult satisfies sql.Result for the fake transaction.
type fakeResult struct{ n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

// fakeTx records every statement and the number of bound arguments.
type fakeTx struct {
	stmts     []string
	argCounts []int
	failOn    string

	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.stmts = append(f.stmts, query)
	f.argCounts = append(f.argCounts, len(args))
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return nil, errors.New("mssql: permission denied")
	}
	// Each INSERT chunk reports one affected row per VALUES tuple.
	return fakeResult{n: int64(strings.Count(query, "),(") + 1)}, nil
}

func (f *fakeTx) Commit() error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback() error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeDB struct{ tx *fakeTx }

func (f *fakeDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not used")
}

func (f *fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	return f.tx, nil
}

func (f *fakeDB) Close() error { return nil }

func TestReplaceTable_StatementOrderAndChunking(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	repo := &Repo{db: &fakeDB{tx: tx}}

	spec := storage.TableSpec{Name: "raw_geolocation", Columns: []storage.ColumnSpec{
		{Name: "zip", Type: tabular.Integer},
		{Name: "lat", Type: tabular.Float},
		{Name: "city", Type: tabular.Text},
	}}
	rows := make([][]any, 1500)
	for i := range rows {
		rows[i] = []any{int64(i), -23.5, "sao paulo"}
	}

	n, err := repo.ReplaceTable(context.Background(), spec, rows)
	if err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	if n != 1500 {
		t.Fatalf("n = %d, want 1500", n)
	}
	if !tx.committed || tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v, want commit only", tx.committed, tx.rolledBack)
	}

	if !strings.HasPrefix(tx.stmts[0], "IF OBJECT_ID(N'[dbo].[raw_geolocation]', N'U') IS NOT NULL DROP TABLE") {
		t.Fatalf("first statement = %q, want guarded DROP", tx.stmts[0])
	}
	if !strings.HasPrefix(tx.stmts[1], "CREATE TABLE [dbo].[raw_geolocation]") {
		t.Fatalf("second statement = %q, want CREATE TABLE", tx.stmts[1])
	}

	// 3 columns -> 666 rows per chunk under 2000 parameters.
	inserts := tx.argCounts[2:]
	wantArgs := []int{666 * 3, 666 * 3, 168 * 3}
	if len(inserts) != len(wantArgs) {
		t.Fatalf("got %d insert chunks, want %d", len(inserts), len(wantArgs))
	}
	for i, got := range inserts {
		if got != wantArgs[i] {
			t.Fatalf("chunk %d args = %d, want %d", i, got, wantArgs[i])
		}
		if got > 2100 {
			t.Fatalf("chunk %d exceeds SQL Server parameter limit: %d", i, got)
		}
	}
}

func TestReplaceTable_RowLimitPerStatement(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	repo := &Repo{db: &fakeDB{tx: tx}}
	spec := storage.TableSpec{Name: "raw_x", Columns: []storage.ColumnSpec{{Name: "v", Type: tabular.Integer}}}
	rows := make([][]any, 2500)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}

	if _, err := repo.ReplaceTable(context.Background(), spec, rows); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	if got := tx.argCounts[2:]; len(got) != 3 || got[0] != 1000 || got[2] != 500 {
		t.Fatalf("insert arg counts = %v, want [1000 1000 500]", got)
	}
}

func TestReplaceTable_InsertFailureRollsBack(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{failOn: "INSERT"}
	repo := &Repo{db: &fakeDB{tx: tx}}
	spec := storage.TableSpec{Name: "raw_x", Columns: []storage.ColumnSpec{{Name: "v", Type: tabular.Text}}}

	_, err := repo.ReplaceTable(context.Background(), spec, [][]any{{"a"}})
	if err == nil || !strings.Contains(err.Error(), "insert into raw_x") {
		t.Fatalf("err = %v, want insert error", err)
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v, want rollback", tx.committed, tx.rolledBack)
	}
}

func TestBuildReplaceSQL_QualifiedSchema(t *testing.T) {
	t.Parallel()

	stmts := buildReplaceSQL(storage.TableSpec{Name: "olist.raw_orders", Columns: []storage.ColumnSpec{
		{Name: "order_id", Type: tabular.Text},
		{Name: "paid", Type: tabular.Boolean},
		{Name: "total", Type: tabular.Float},
		{Name: "items", Type: tabular.Integer},
	}})
	if len(stmts) != 3 {
		t.Fatalf("got %d statements, want 3: %q", len(stmts), stmts)
	}
	if stmts[0] != "IF SCHEMA_ID(N'olist') IS NULL EXEC(N'CREATE SCHEMA [olist]');" {
		t.Fatalf("schema statement = %q", stmts[0])
	}
	for _, want := range []string{"[order_id] NVARCHAR(MAX) NULL", "[paid] BIT NULL", "[total] FLOAT NULL", "[items] BIGINT NULL"} {
		if !strings.Contains(stmts[2], want) {
			t.Fatalf("create statement missing %q: %s", want, stmts[2])
		}
	}
}

func TestBuildInsertSQL_AtPPlaceholders(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{Name: "raw_x", Columns: []storage.ColumnSpec{{Name: "a"}, {Name: "b]"}}}
	q, args, err := buildInsertSQL(spec, [][]any{{1, 2}, {3, nil}})
	if err != nil {
		t.Fatalf("buildInsertSQL: %v", err)
	}
	if !strings.Contains(q, "INSERT INTO [dbo].[raw_x] ([a],[b]]])") {
		t.Fatalf("sql = %q", q)
	}
	if !strings.Contains(q, "(@p1,@p2),(@p3,@p4)") {
		t.Fatalf("sql = %q, want @pN placeholders", q)
	}
	if len(args) != 4 {
		t.Fatalf("args = %#v", args)
	}
}

func TestMssqlIdent(t *testing.T) {
	t.Parallel()

	if got := mssqlIdent("a]b"); got != "[a]]b]" {
		t.Fatalf("mssqlIdent = %q", got)
	}
	if got := sqlLiteral("o'hara"); got != "o''hara" {
		t.Fatalf("sqlLiteral = %q", got)
	}
}
