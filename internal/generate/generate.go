// Package generate sequences the run: it walks the insertion plan batch by
// batch, produces rows two-pass (non-FK columns first, then FK columns),
// enforces composite unique constraints, and hands finished rows to the
// insert sink.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"dbmock/internal/config"
	"dbmock/internal/core"
	"dbmock/internal/fabricate"
	"dbmock/internal/plan"
	"dbmock/internal/router"
)

// ErrCycleUnresolvable is returned when a dependency cycle contains a
// non-nullable foreign key with no existing parent rows to absorb it.
var ErrCycleUnresolvable = errors.New("dependency cycle unresolvable")

const compositeRetryBudget = 25

// Sink receives finished rows. The insert executor implements it; tests use
// an in-memory collector.
type Sink interface {
	// InsertRows writes one batch of rows for table, values ordered by
	// columns.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error
	// Flush durably completes the table's inserts. The generator calls it
	// before any dependent table starts, so every parent row a child
	// references is already in the database.
	Flush(ctx context.Context, table string) error
}

// Result summarizes a run. Its maps are guarded by mu while parallel batch
// generation is in flight.
type Result struct {
	mu        sync.Mutex
	Generated map[string]int
	Failed    map[string]error
}

func (r *Result) record(table string, rows int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Generated[table] = rows
	if err != nil {
		r.Failed[table] = err
	}
}

// Generator owns one run over a fixed specification set and plan.
type Generator struct {
	specs  map[string]*core.TableSpec
	plan   *plan.InsertionPlan
	cfg    *config.Config
	router *router.Router
	fab    *fabricate.Fabricator
	logger *slog.Logger

	// referenced marks the (table, column) pairs some foreign key points
	// at; only those feed the generated pools.
	referenced map[string]bool
}

// New wires a generator from its collaborators.
func New(specs map[string]*core.TableSpec, p *plan.InsertionPlan, cfg *config.Config,
	r *router.Router, fab *fabricate.Fabricator, logger *slog.Logger) *Generator {

	referenced := make(map[string]bool)
	for _, spec := range specs {
		for _, fk := range spec.ForeignKeys {
			for _, rc := range fk.ReferencedColumns {
				referenced[fk.ReferencedTable+"."+rc] = true
			}
		}
	}

	return &Generator{
		specs:      specs,
		plan:       p,
		cfg:        cfg,
		router:     r,
		fab:        fab,
		logger:     logger,
		referenced: referenced,
	}
}

// Run generates every selected table in plan order and streams rows into the
// sink. Per-table failures are recorded and generation continues unless
// fail_fast is set or the failure is ErrCycleUnresolvable; the cancel signal
// is honored between tables and rows.
func (g *Generator) Run(ctx context.Context, sink Sink) (*Result, error) {
	result := &Result{
		Generated: make(map[string]int),
		Failed:    make(map[string]error),
	}

	batches := g.plan.Batches()
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		g.logger.Info("processing batch", "batch", i+1, "of", len(batches), "tables", batch)

		if g.cfg.Parallel && len(batch) > 1 {
			if err := g.runParallel(ctx, batch, sink, result); err != nil {
				return result, err
			}
			continue
		}

		for _, table := range batch {
			if err := g.runTable(ctx, table, sink, result); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// runParallel generates the batch's tables concurrently. Tables in one batch
// never depend on each other, so only the pool caches are shared — and those
// are internally locked.
func (g *Generator) runParallel(ctx context.Context, batch []string, sink Sink, result *Result) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, table := range batch {
		eg.Go(func() error {
			return g.runTable(ctx, table, sink, result)
		})
	}
	return eg.Wait()
}

func (g *Generator) runTable(ctx context.Context, table string, sink Sink, result *Result) error {
	spec, ok := g.specs[table]
	if !ok {
		return nil
	}
	rows := g.cfg.RowsFor(table)
	if rows <= 0 {
		g.logger.Info("skipping table", "table", table, "reason", "no rows requested")
		return nil
	}

	n, err := g.generateTable(ctx, spec, rows, sink)
	result.record(table, n, err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Error("table generation failed", "table", table, "rows_done", n, "error", err)
		if g.cfg.FailFast || errors.Is(err, ErrCycleUnresolvable) {
			return err
		}
		return nil
	}
	g.logger.Info("table generated", "table", table, "rows", n)
	return nil
}

func (g *Generator) generateTable(ctx context.Context, spec *core.TableSpec, rows int, sink Sink) (int, error) {
	columns := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		columns[i] = c.Name
	}

	inserted := 0
	buf := make([][]any, 0, g.cfg.BatchSize)

	flushBuf := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := sink.InsertRows(ctx, spec.Name, columns, buf); err != nil {
			return err
		}
		inserted += len(buf)
		buf = buf[:0]
		return nil
	}

	for i := 1; i <= rows; i++ {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		row, err := g.generateRow(ctx, spec, i)
		if err != nil {
			return inserted, err
		}

		g.feedPools(spec, row)
		buf = append(buf, orderedValues(columns, row))

		if len(buf) >= g.cfg.BatchSize {
			if err := flushBuf(); err != nil {
				return inserted, err
			}
		}
	}

	if err := flushBuf(); err != nil {
		return inserted, err
	}
	return inserted, sink.Flush(ctx, spec.Name)
}

// generateRow builds one row in two passes and then revalidates each
// multi-column unique constraint, re-fabricating the contributing columns on
// collision.
func (g *Generator) generateRow(ctx context.Context, spec *core.TableSpec, rowIndex int) (map[string]any, error) {
	row := make(map[string]any, len(spec.Columns))

	for _, col := range spec.Columns {
		if spec.IsForeignKey(col.Name) {
			continue
		}
		v, err := g.fab.ColumnValue(ctx, spec.Name, col, rowIndex, g.pinFor(spec.Name, col.Name))
		if err != nil {
			return nil, err
		}
		row[col.Name] = v
	}

	for _, col := range spec.Columns {
		if !spec.IsForeignKey(col.Name) {
			continue
		}
		v, err := g.fkValue(ctx, spec, col, rowIndex)
		if err != nil {
			return nil, err
		}
		row[col.Name] = v
	}

	for _, uc := range spec.UniqueConstraints {
		if len(uc) < 2 {
			continue
		}
		attempt := 0
		for !g.fab.ObserveComposite(spec.Name, uc, row) {
			attempt++
			if attempt > compositeRetryBudget {
				return nil, fmt.Errorf("%w: %s (%v)", fabricate.ErrUniquenessExhausted, spec.Name, uc)
			}
			for _, name := range uc {
				col := spec.FindColumn(name)
				if col == nil {
					continue
				}
				var v any
				var err error
				if spec.IsForeignKey(name) {
					v, err = g.fkValue(ctx, spec, col, rowIndex)
				} else {
					v, err = g.fab.ColumnValue(ctx, spec.Name, col, rowIndex, g.pinFor(spec.Name, name))
				}
				if err != nil {
					return nil, err
				}
				row[name] = v
			}
		}
	}

	return row, nil
}

// fkValue resolves one foreign-key column. Pinned columns go through the
// fabricator; everything else goes through the router. Router misses inside
// a dependency cycle upgrade to ErrCycleUnresolvable for non-nullable
// columns.
func (g *Generator) fkValue(ctx context.Context, spec *core.TableSpec, col *core.ColumnSpec, rowIndex int) (any, error) {
	if pin := g.pinFor(spec.Name, col.Name); pin != nil {
		return g.fab.ColumnValue(ctx, spec.Name, col, rowIndex, pin)
	}

	fk := spec.ForeignKeyFor(col.Name)
	refColumn := fk.ReferencedColumnFor(col.Name)

	v, err := g.router.Value(ctx, fk.ReferencedTable, refColumn, col.Nullable)
	if err != nil {
		if errors.Is(err, router.ErrNoParentValues) && g.sameCycle(spec.Name, fk.ReferencedTable) {
			return nil, fmt.Errorf("%w: %s -> %s.%s", ErrCycleUnresolvable,
				spec.Name, fk.ReferencedTable, refColumn)
		}
		return nil, err
	}
	return v, nil
}

// feedPools records the row's values into the generated pools for every
// column some foreign key references.
func (g *Generator) feedPools(spec *core.TableSpec, row map[string]any) {
	for name, v := range row {
		if v == nil {
			continue
		}
		if g.referenced[spec.Name+"."+name] {
			g.router.AddGenerated(spec.Name, name, v)
		}
	}
}

func (g *Generator) pinFor(table, column string) *fabricate.Pin {
	cc := g.cfg.ColumnFor(table, column)
	if !cc.Pinned() {
		return nil
	}
	return &fabricate.Pin{Values: cc.PossibleValues, Min: cc.MinValue, Max: cc.MaxValue}
}

// sameCycle reports whether both tables sit in one detected cycle.
func (g *Generator) sameCycle(a, b string) bool {
	for _, cycle := range g.plan.Cycles {
		var hasA, hasB bool
		for _, t := range cycle {
			hasA = hasA || t == a
			hasB = hasB || t == b
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}

// ValidateFKIntegrityForSelection reports, for every table selected for
// generation, whether each referenced table that is NOT selected holds at
// least one existing value to draw from. The front-end surfaces this before
// a run starts.
func (g *Generator) ValidateFKIntegrityForSelection(ctx context.Context) (map[string]map[string]bool, error) {
	results := make(map[string]map[string]bool)
	for name, spec := range g.specs {
		if !g.cfg.SelectedForGeneration(name) {
			continue
		}
		for _, fk := range spec.ForeignKeys {
			if g.cfg.SelectedForGeneration(fk.ReferencedTable) {
				continue
			}
			refColumn := "id"
			if len(fk.ReferencedColumns) > 0 {
				refColumn = fk.ReferencedColumns[0]
			}
			ok, err := g.router.HasAnyValue(ctx, fk.ReferencedTable, refColumn)
			if err != nil {
				return nil, err
			}
			if results[name] == nil {
				results[name] = make(map[string]bool)
			}
			results[name][fk.ReferencedTable] = ok
		}
	}
	return results, nil
}

func orderedValues(columns []string, row map[string]any) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = row[c]
	}
	return out
}
