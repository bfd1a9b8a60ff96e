// Package router resolves foreign-key columns to concrete parent values. It
// owns the per-(table, column) value pools: existing rows fetched lazily from
// the live database, and rows generated earlier in the run.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoParentValues is returned when a non-nullable foreign key has no
	// source to draw from.
	ErrNoParentValues = errors.New("no parent values available")
	// ErrNoDonorValues is returned when a donor table holds no rows.
	ErrNoDonorValues = errors.New("donor table has no values")
)

// ValueSource fetches the existing distinct values of a column from the live
// database. *db.Conn satisfies it.
type ValueSource interface {
	DistinctValues(ctx context.Context, table, column string) ([]any, error)
}

// Policy tells the router how each referenced table participates in the run.
type Policy interface {
	// IsDonor reports whether the table is donor-only: existing rows feed
	// children, nothing is generated into it.
	IsDonor(table string) bool
	// SelectedForGeneration reports whether new rows are generated into
	// the table this run.
	SelectedForGeneration(table string) bool
}

// Rand is the slice-picking randomness the router needs. The fabricator's
// shared stream satisfies it.
type Rand interface {
	IntN(n int) int
}

// Router hands out foreign-key values according to the routing policy.
type Router struct {
	src            ValueSource
	policy         Policy
	preferExisting bool
	rng            Rand

	mu    sync.Mutex
	pools map[string]*pool
}

// pool holds the two value collections for one (table, column) pair. Both are
// append-only for the lifetime of the run.
type pool struct {
	mu        sync.RWMutex
	loaded    bool
	existing  []any
	generated []any
}

// New builds a router. preferExisting biases mixed-mode selection toward
// existing rows whenever any are present.
func New(src ValueSource, policy Policy, preferExisting bool, rng Rand) *Router {
	return &Router{
		src:            src,
		policy:         policy,
		preferExisting: preferExisting,
		rng:            rng,
		pools:          make(map[string]*pool),
	}
}

func (r *Router) pool(table, column string) *pool {
	key := table + "." + column
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[key]
	if !ok {
		p = &pool{}
		r.pools[key] = p
	}
	return p
}

// existing returns the existing-value collection, fetching it on first
// access.
func (r *Router) existing(ctx context.Context, table, column string) ([]any, error) {
	p := r.pool(table, column)

	p.mu.RLock()
	if p.loaded {
		values := p.existing
		p.mu.RUnlock()
		return values, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return p.existing, nil
	}
	values, err := r.src.DistinctValues(ctx, table, column)
	if err != nil {
		return nil, err
	}
	p.existing = values
	p.loaded = true
	return values, nil
}

// AddGenerated records a value emitted for table.column so later rows can
// reference it. Appends are idempotent in effect: duplicates only reweight
// uniform selection, they never break it.
func (r *Router) AddGenerated(table, column string, value any) {
	if value == nil {
		return
	}
	p := r.pool(table, column)
	p.mu.Lock()
	p.generated = append(p.generated, value)
	p.mu.Unlock()
}

// GeneratedCount returns how many values the run has recorded for
// table.column.
func (r *Router) GeneratedCount(table, column string) int {
	p := r.pool(table, column)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.generated)
}

// Value resolves one foreign-key reference to a parent value.
//
// Donor tables draw from existing rows only and fail with ErrNoDonorValues
// when empty. Tables not selected for generation draw from existing rows
// only. Otherwise the pool is the union of existing and generated values,
// with existing preferred when the router was built preferExisting. A
// nullable column with no source value yields the null sentinel (nil);
// a non-nullable one fails with ErrNoParentValues.
func (r *Router) Value(ctx context.Context, refTable, refColumn string, nullable bool) (any, error) {
	if r.policy.IsDonor(refTable) {
		existing, err := r.existing(ctx, refTable, refColumn)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			return nil, fmt.Errorf("%w: %s.%s", ErrNoDonorValues, refTable, refColumn)
		}
		return r.choose(existing), nil
	}

	existing, err := r.existing(ctx, refTable, refColumn)
	if err != nil {
		return nil, err
	}

	if !r.policy.SelectedForGeneration(refTable) {
		if len(existing) == 0 {
			if nullable {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %s.%s", ErrNoParentValues, refTable, refColumn)
		}
		return r.choose(existing), nil
	}

	if r.preferExisting && len(existing) > 0 {
		return r.choose(existing), nil
	}

	p := r.pool(refTable, refColumn)
	p.mu.RLock()
	combined := make([]any, 0, len(existing)+len(p.generated))
	combined = append(combined, existing...)
	combined = append(combined, p.generated...)
	p.mu.RUnlock()

	if len(combined) == 0 {
		if nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s.%s", ErrNoParentValues, refTable, refColumn)
	}
	return r.choose(combined), nil
}

// HasAnyValue reports whether any source currently holds a value for
// table.column. Used for pre-run foreign-key integrity validation.
func (r *Router) HasAnyValue(ctx context.Context, table, column string) (bool, error) {
	existing, err := r.existing(ctx, table, column)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return true, nil
	}
	return r.GeneratedCount(table, column) > 0, nil
}

func (r *Router) choose(values []any) any {
	return values[r.rng.IntN(len(values))]
}
