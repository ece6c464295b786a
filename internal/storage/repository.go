package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a repository.
//
// When to use:
//   - Build a Config from the loaded application config and pass it to New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic write surface of the loader.
//
// IMPORTANT: This interface is intentionally minimal. Each backend implements
// replace semantics in its own idiomatic way (a transaction around
// DROP/CREATE/COPY on Postgres, DROP/CREATE autocommit plus an insert
// transaction on MySQL, drop+insertMany on MongoDB).
type Repository interface {
	// ReplaceTable drops the table if it exists, creates it from spec and
	// inserts rows in order. It returns the number of rows written.
	//
	// Edge cases:
	//   - rows may be empty; the table is still (re)created.
	//   - every row must have len(spec.Columns) cells.
	//
	// Errors:
	//   - Any failure leaves the previous table in place where the engine
	//     supports transactional DDL. Otherwise the table may be missing or
	//     partially filled.
	ReplaceTable(ctx context.Context, spec TableSpec, rows [][]any) (int64, error)

	// DescribeTable returns the column names (in ordinal order) and row count
	// of an existing table. Returns ErrTableNotFound when it does not exist.
	DescribeTable(ctx context.Context, name string) (TableInfo, error)

	// Close releases any backend resources (connections, clients).
	//
	// Edge cases:
	//   - Callers should treat Close as "call once".
	Close()
}

// Factory opens a Repository. Factories must verify connectivity (ping) before
// returning, so that an unreachable database is reported before any table is
// touched.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Registered reports whether kind has a factory.
func Registered(kind string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[kind]
	return ok
}
