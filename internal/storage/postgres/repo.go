package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rawload/internal/storage"
	"rawload/internal/tabular"
)

/*
Repo implements storage.Repository for Postgres on pgx.

It provides:
  - Replace semantics in a single transaction per table:
    CREATE SCHEMA IF NOT EXISTS (qualified names), DROP TABLE IF EXISTS,
    CREATE TABLE, COPY FROM STDIN.
  - Table description from information_schema.

Postgres DDL is transactional, so a failed load leaves the previous table
untouched.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// maxIdentBytes is NAMEDATALEN-1; Postgres truncates longer identifiers.
const maxIdentBytes = 63

func init() {
	storage.Register("postgres", New)
}

// New creates a Postgres-backed Repo holding at most one connection, and
// pings it so that an unreachable server fails before any table is touched.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 1
	pcfg.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// ReplaceTable drops and recreates spec.Name and copies rows into it.
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

	schemaSQL, dropSQL, createSQL := buildReplaceSQL(spec)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if schemaSQL != "" {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return 0, fmt.Errorf("create schema for %s: %w", spec.Name, err)
		}
	}
	if _, err := tx.Exec(ctx, dropSQL); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("create table %s: %w", spec.Name, err)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, tableIdentifier(spec.Name), spec.ColumnNames(), pgx.CopyFromRows(rows))
		if err != nil {
			return 0, fmt.Errorf("copy into %s: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", spec.Name, err)
	}
	return n, nil
}

// DescribeTable looks the table up in information_schema. Unqualified names
// resolve against current_schema().
func (r *Repo) DescribeTable(ctx context.Context, name string) (storage.TableInfo, error) {
	schema, table := storage.SplitQualifiedName(name)

	rows, err := r.pool.Query(ctx, describeSQL(schema != ""), describeArgs(schema, table)...)
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	if len(cols) == 0 {
		return storage.TableInfo{}, fmt.Errorf("%s: %w", name, storage.ErrTableNotFound)
	}

	info := storage.TableInfo{Name: name, Columns: cols}
	err = r.pool.QueryRow(ctx, "SELECT count(*) FROM "+tableIdentifier(name).Sanitize()).Scan(&info.Rows)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "42P01" {
			return storage.TableInfo{}, fmt.Errorf("%s: %w", name, storage.ErrTableNotFound)
		}
		return storage.TableInfo{}, fmt.Errorf("count %s: %w", name, err)
	}
	return info, nil
}

func describeSQL(qualified bool) string {
	if qualified {
		return `SELECT column_name FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`
	}
	return `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
}

func describeArgs(schema, table string) []any {
	if schema != "" {
		return []any{schema, table}
	}
	return []any{table}
}

// pgIdent quotes a single identifier.
func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func tableIdentifier(name string) pgx.Identifier {
	if schema, table := storage.SplitQualifiedName(name); schema != "" {
		return pgx.Identifier{schema, table}
	}
	return pgx.Identifier{strings.TrimSpace(name)}
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

// buildReplaceSQL builds the DDL for one replace:
//   - CREATE SCHEMA IF NOT EXISTS when the name is schema-qualified
//   - DROP TABLE IF EXISTS
//   - CREATE TABLE with every column nullable and no constraints
//
// It is pure, so the statements can be checked without a database.
func buildReplaceSQL(t storage.TableSpec) (schemaSQL, dropSQL, createSQL string) {
	if schema, _ := storage.SplitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	table := tableIdentifier(t.Name).Sanitize()
	dropSQL = fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, table)

	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", pgIdent(c.Name), columnType(c.Type)))
	}
	createSQL = fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", table, strings.Join(parts, ",\n  "))
	return schemaSQL, dropSQL, createSQL
}
