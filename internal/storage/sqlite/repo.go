package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"rawload/internal/storage"
	"rawload/internal/tabular"
)

// maxParams stays under SQLITE_MAX_VARIABLE_NUMBER (32766 since 3.32).
const maxParams = 32000

// Repo implements storage.Repository for SQLite (modernc.org/sqlite, no cgo).
//
// Key design points vs Postgres:
//   - SQLite has no BOOLEAN storage class; booleans are stored as INTEGER 0/1.
//   - DDL is transactional, so DROP + CREATE + INSERT commit or roll back
//     together.
//   - The pool is capped at one connection; the loader is sequential and a
//     ":memory:" DSN would otherwise give every connection its own database.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// ReplaceTable drops, recreates and fills spec.Name in one transaction.
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

	if _, err := tx.ExecContext(ctx, buildDropSQL(spec.Name)); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateSQL(spec)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", spec.Name, err)
	}

	var total int64
	for _, batch := range storage.BatchRows(rows, len(spec.Columns), maxParams, 0) {
		q, args, err := buildInsertSQL(spec, batch)
		if err != nil {
			return total, fmt.Errorf("build insert %s: %w", spec.Name, err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", spec.Name, err)
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

// DescribeTable reads column names from pragma_table_info and counts rows.
func (r *Repo) DescribeTable(ctx context.Context, name string) (storage.TableInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	defer rows.Close()

	info := storage.TableInfo{Name: name}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
		}
		info.Columns = append(info.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	if len(info.Columns) == 0 {
		return storage.TableInfo{}, fmt.Errorf("%s: %w", name, storage.ErrTableNotFound)
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+sqlIdent(name)).Scan(&info.Rows); err != nil {
		return storage.TableInfo{}, fmt.Errorf("count %s: %w", name, err)
	}
	return info, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(t tabular.ColumnType) string {
	switch t {
	case tabular.Integer, tabular.Boolean:
		return "INTEGER"
	case tabular.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

func buildDropSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", sqlIdent(table))
}

func buildCreateSQL(t storage.TableSpec) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), columnType(c.Type)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  "))
}

// buildInsertSQL renders one multi-row INSERT with ? placeholders.
func buildInsertSQL(t storage.TableSpec, rows [][]any) (string, []any, error) {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = sqlIdent(c.Name)
	}

	b := sq.Insert(sqlIdent(t.Name)).Columns(cols...).PlaceholderFormat(sq.Question)
	for _, row := range rows {
		b = b.Values(bindRow(row)...)
	}
	return b.ToSql()
}

// bindRow maps bools to 0/1 so they land in the INTEGER column as numbers.
func bindRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if bv, ok := v.(bool); ok {
			if bv {
				out[i] = int64(1)
			} else {
				out[i] = int64(0)
			}
			continue
		}
		out[i] = v
	}
	return out
}
