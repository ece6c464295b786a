package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/microsoft/go-mssqldb"

	"rawload/internal/storage"
	"rawload/internal/tabular"
)

const (
	// SQL Server accepts at most 2100 parameters per request; stay below it.
	maxParams = 2000
	// A table value constructor takes at most 1000 rows.
	maxRows = 1000
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Replace semantics:
//   - The schema is created on demand for qualified names (dbo is assumed
//     for unqualified ones).
//   - DROP and CREATE are guarded by OBJECT_ID so the statements work on every
//     supported server version.
//   - DROP, CREATE and all INSERT chunks share one transaction; SQL Server
//     DDL is transactional.
//
// Rows are inserted with multi-row INSERT ... VALUES chunks sized under the
// 2100-parameter and 1000-row limits, preserving order.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New opens a "sqlserver" database/sql handle (driver: microsoft/go-mssqldb)
// limited to one connection and validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// ReplaceTable drops and recreates spec.Name and inserts rows in one
// transaction.
func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	if err := spec.CheckRows(rows); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range buildReplaceSQL(spec) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("ddl %s: %w", spec.Name, err)
		}
	}

	var total int64
	for _, batch := range storage.BatchRows(rows, len(spec.Columns), maxParams, maxRows) {
		q, args, err := buildInsertSQL(spec, batch)
		if err != nil {
			return 0, fmt.Errorf("build insert %s: %w", spec.Name, err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(batch))
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", spec.Name, err)
	}
	return total, nil
}

// DescribeTable reads INFORMATION_SCHEMA.COLUMNS and counts rows.
func (r *Repo) DescribeTable(ctx context.Context, name string) (storage.TableInfo, error) {
	schema, table := splitTableName(name)

	rs, err := r.db.QueryContext(ctx, `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION`, schema, table)
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	defer rs.Close()

	info := storage.TableInfo{Name: name}
	for rs.Next() {
		var c string
		if err := rs.Scan(&c); err != nil {
			return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
		}
		info.Columns = append(info.Columns, c)
	}
	if err := rs.Err(); err != nil {
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	if len(info.Columns) == 0 {
		return storage.TableInfo{}, fmt.Errorf("%s: %w", name, storage.ErrTableNotFound)
	}

	cnt, err := r.db.QueryContext(ctx, "SELECT COUNT_BIG(*) FROM "+mssqlIdent(schema)+"."+mssqlIdent(table))
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("count %s: %w", name, err)
	}
	defer cnt.Close()
	if cnt.Next() {
		if err := cnt.Scan(&info.Rows); err != nil {
			return storage.TableInfo{}, fmt.Errorf("count %s: %w", name, err)
		}
	}
	return info, cnt.Err()
}

func columnType(t tabular.ColumnType) string {
	switch t {
	case tabular.Integer:
		return "BIGINT"
	case tabular.Float:
		return "FLOAT"
	case tabular.Boolean:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}

// splitTableName defaults the schema to dbo.
func splitTableName(name string) (schema, table string) {
	schema, table = storage.SplitQualifiedName(name)
	if schema == "" {
		schema = "dbo"
	}
	return schema, table
}

// buildReplaceSQL returns the DDL statements for one replace, in order.
//
// Example for "raw_orders":
//
//	IF OBJECT_ID(N'[dbo].[raw_orders]', N'U') IS NOT NULL DROP TABLE [dbo].[raw_orders];
//	CREATE TABLE [dbo].[raw_orders] ([order_id] NVARCHAR(MAX) NULL, ...);
func buildReplaceSQL(t storage.TableSpec) []string {
	schema, table := splitTableName(t.Name)
	full := mssqlIdent(schema) + "." + mssqlIdent(table)

	var out []string
	if schema != "dbo" {
		out = append(out, fmt.Sprintf(
			"IF SCHEMA_ID(N'%s') IS NULL EXEC(N'CREATE SCHEMA %s');",
			sqlLiteral(schema),
			sqlLiteral(mssqlIdent(schema)),
		))
	}
	out = append(out, fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;",
		sqlLiteral(full), full,
	))

	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = fmt.Sprintf("%s %s NULL", mssqlIdent(c.Name), columnType(c.Type))
	}
	out = append(out, fmt.Sprintf("CREATE TABLE %s (%s);", full, strings.Join(defs, ", ")))
	return out
}

// buildInsertSQL builds one INSERT ... VALUES statement for a chunk of rows
// with @pN placeholders.
func buildInsertSQL(t storage.TableSpec, rows [][]any) (string, []any, error) {
	schema, table := splitTableName(t.Name)

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = mssqlIdent(c.Name)
	}

	b := sq.Insert(mssqlIdent(schema) + "." + mssqlIdent(table)).
		Columns(cols...).
		PlaceholderFormat(sq.AtP)
	for _, row := range rows {
		b = b.Values(row...)
	}
	return b.ToSql()
}

// mssqlIdent returns a bracket-quoted identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// sqlLiteral escapes s for use inside an N'...' literal.
func sqlLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
//
// It intentionally includes only the methods this file needs.
type dbConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx used for testability.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// BeginTx begins a transaction and returns a txConn wrapper.
func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

// compile-time sanity checks (no runtime cost).
var (
	_ dbConn = (*sqlDB)(nil)
	_ txConn = (*sql.Tx)(nil)
)
