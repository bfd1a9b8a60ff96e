// Package extract interrogates a live database and produces normalized
// per-table specifications. Dialect implementations register themselves at
// init time; callers obtain one through New.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"dbmock/internal/core"
	"dbmock/internal/db"
)

var (
	// ErrUnsupportedDialect is returned by New for an unregistered dialect.
	ErrUnsupportedDialect = errors.New("unsupported dialect")
	// ErrSchemaNotFound is returned when a table vanished mid-run.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrExtractionFailed wraps transient metadata query failures.
	ErrExtractionFailed = errors.New("extraction failed")
)

// Extractor produces table specifications for one SQL dialect.
type Extractor interface {
	// ListTables returns the sorted base table names visible to the
	// connection.
	ListTables(ctx context.Context, conn *db.Conn) ([]string, error)
	// DescribeTable returns the full specification of one table.
	DescribeTable(ctx context.Context, conn *db.Conn, name string) (*core.TableSpec, error)
}

var (
	registry = make(map[core.Dialect]func() Extractor)
	mu       sync.RWMutex
)

// Register installs an extractor constructor for a dialect. Called from the
// dialect packages' init functions.
func Register(dialect core.Dialect, fn func() Extractor) {
	mu.Lock()
	defer mu.Unlock()
	registry[dialect] = fn
}

// New returns the extractor registered for the dialect.
func New(dialect core.Dialect) (Extractor, error) {
	mu.RLock()
	fn, ok := registry[dialect]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDialect, dialect)
	}
	return fn(), nil
}

// systemTables are migration bookkeeping and vendor-internal tables that are
// excluded from analysis unless the caller names them explicitly.
var systemTables = map[string]bool{
	"alembic_version":       true,
	"django_migrations":     true,
	"schema_migrations":     true,
	"flyway_schema_history": true,
	"information_schema":    true,
	"performance_schema":    true,
	"mysql":                 true,
	"sys":                   true,
	"sqlite_sequence":       true,
}

// Filter narrows which tables All extracts.
type Filter struct {
	// Include, when non-empty, is the exact set of tables to extract; the
	// system blocklist is bypassed for tables named here.
	Include []string
	// Exclude removes tables after Include is applied.
	Exclude []string
}

// All lists, filters, and describes every selected table. A table that fails
// description is logged and skipped; the error aborts only when nothing
// could be extracted at all.
func All(ctx context.Context, conn *db.Conn, filter Filter, logger *slog.Logger) (map[string]*core.TableSpec, error) {
	ex, err := New(conn.Dialect())
	if err != nil {
		return nil, err
	}

	tables, err := ex.ListTables(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("%w: listing tables: %v", ErrExtractionFailed, err)
	}

	selected := applyFilter(tables, filter)
	logger.Info("analyzing tables", "count", len(selected))

	specs := make(map[string]*core.TableSpec, len(selected))
	var lastErr error
	for _, name := range selected {
		spec, err := ex.DescribeTable(ctx, conn, name)
		if err != nil {
			logger.Warn("skipping table after extraction failure", "table", name, "error", err)
			lastErr = err
			continue
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs[name] = spec
	}

	if len(specs) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return specs, nil
}

// applyFilter resolves the include list, exclude list, and system blocklist
// into the final sorted table selection.
func applyFilter(tables []string, filter Filter) []string {
	include := make(map[string]bool, len(filter.Include))
	for _, t := range filter.Include {
		include[t] = true
	}
	exclude := make(map[string]bool, len(filter.Exclude))
	for _, t := range filter.Exclude {
		exclude[t] = true
	}

	var out []string
	for _, t := range tables {
		if exclude[t] {
			continue
		}
		if len(include) > 0 {
			if include[t] {
				out = append(out, t)
			}
			continue
		}
		if systemTables[t] {
			continue
		}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
