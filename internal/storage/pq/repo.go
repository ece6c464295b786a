// Package pq is a Postgres backend on database/sql and lib/pq, registered as
// kind "pq". It exists next to the pgx backend for environments that already
// standardise on database/sql drivers; rows go through COPY FROM STDIN via
// pq.CopyIn.
package pq

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"rawload/internal/storage"
	"rawload/internal/tabular"
)

type Repo struct {
	db *sql.DB
}

// maxIdentBytes is NAMEDATALEN-1; Postgres truncates longer identifiers.
const maxIdentBytes = 63

func init() {
	storage.Register("pq", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("postgres", cfg.DSN)
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

func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	if err := spec.CheckNameLength(maxIdentBytes); err != nil {
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

	if len(rows) > 0 {
		schema, table := storage.SplitQualifiedName(spec.Name)
		var copySQL string
		if schema != "" {
			copySQL = pq.CopyInSchema(schema, table, spec.ColumnNames()...)
		} else {
			copySQL = pq.CopyIn(table, spec.ColumnNames()...)
		}

		stmt, err := tx.PrepareContext(ctx, copySQL)
		if err != nil {
			return 0, fmt.Errorf("prepare copy %s: %w", spec.Name, err)
		}
		for i, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				return 0, fmt.Errorf("copy %s row %d: %w", spec.Name, i, err)
			}
		}
		// An Exec without arguments flushes the COPY buffer.
		if _, err := stmt.ExecContext(ctx); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("copy %s: %w", spec.Name, err)
		}
		if err := stmt.Close(); err != nil {
			return 0, fmt.Errorf("copy %s: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", spec.Name, err)
	}
	return int64(len(rows)), nil
}

func (r *Repo) DescribeTable(ctx context.Context, name string) (storage.TableInfo, error) {
	schema, table := storage.SplitQualifiedName(name)

	var (
		rs  *sql.Rows
		err error
	)
	if schema != "" {
		rs, err = r.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`, schema, table)
	} else {
		rs, err = r.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`, table)
	}
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

	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteTable(name)).Scan(&info.Rows); err != nil {
		return storage.TableInfo{}, fmt.Errorf("count %s: %w", name, err)
	}
	return info, nil
}

func quoteTable(name string) string {
	if schema, table := storage.SplitQualifiedName(name); schema != "" {
		return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(strings.TrimSpace(name))
}

func columnType(t tabular.ColumnType) string {
	switch t {
	case tabular.Integer:
		return "BIGINT"
	case tabular.Float:
		return "DOUBLE PRECISION"
	case tabular.Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// buildReplaceSQL returns the DDL statements run before COPY, in order.
func buildReplaceSQL(t storage.TableSpec) []string {
	var out []string
	if schema, _ := storage.SplitQualifiedName(t.Name); schema != "" {
		out = append(out, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema))
	}

	table := quoteTable(t.Name)
	out = append(out, "DROP TABLE IF EXISTS "+table)

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = pq.QuoteIdentifier(c.Name) + " " + columnType(c.Type)
	}
	out = append(out, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", ")))
	return out
}
