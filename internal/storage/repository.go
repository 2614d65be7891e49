package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupportedKind is returned by New when no backend is registered for
// the requested kind.
var ErrUnsupportedKind = errors.New("storage: unsupported kind")

// Config is the minimal configuration needed to open a report sink.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic sink for profiling reports.
//
// Each backend implements these semantics in its own idiomatic way (Postgres
// CREATE TABLE IF NOT EXISTS, SQL Server OBJECT_ID guards, and so on).
type Repository interface {
	// Close releases backend resources. Callers should treat Close as
	// "call once".
	Close()

	// EnsureTable creates the table if it does not exist. It is idempotent
	// and safe to run on every invocation.
	EnsureTable(ctx context.Context, t TableSpec) error

	// InsertRows appends rows in as few statements as the backend's
	// parameter limit allows, inside one transaction. Every row must have
	// len(columns) values.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Factory opens a Repository for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
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
// Errors:
//   - Returns ErrUnsupportedKind (wrapped) if cfg.Kind is empty or unknown.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("%w: kind is empty", ErrUnsupportedKind)
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
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
