// Package fabricate produces column values that satisfy every contract an
// extracted specification declares: type range, length, nullability,
// uniqueness, enumeration, and default handling.
package fabricate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"dbmock/internal/core"
)

// ErrUniquenessExhausted is returned when the resample budget for a unique
// column or constraint runs out.
var ErrUniquenessExhausted = errors.New("uniqueness retry budget exhausted")

const (
	nullProbability    = 0.1
	defaultProbability = 0.3
	uniqueRetryBudget  = 1000
)

// MaxSource fetches the current maximum of an auto-increment column so
// generated keys continue past live data. *db.Conn satisfies it.
type MaxSource interface {
	MaxValue(ctx context.Context, table, column string) (int64, error)
}

// Pin carries caller overrides for one column: an explicit value set or a
// numeric range. Pinned columns skip type-directed fabrication.
type Pin struct {
	Values []any
	Min    *float64
	Max    *float64
}

// Rand is the mutex-guarded random stream shared by the fabricator and the
// router, so one seed drives the whole run even when tables within a batch
// generate in parallel.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *Rand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *Rand) Int64N(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int64N(n)
}

func (l *Rand) Uint64() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Uint64()
}

func (l *Rand) Uint64N(n uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Uint64N(n)
}

func (l *Rand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *Rand) Perm(n int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Perm(n)
}

// Fabricator generates values for one run. It caches auto-increment bases
// and tracks in-run uniqueness keyed by (table, column).
type Fabricator struct {
	faker  *gofakeit.Faker
	rng    *Rand
	src    MaxSource
	anchor time.Time

	mu        sync.Mutex
	autoBase  map[string]int64
	unique    map[string]map[any]struct{}
	composite map[string]map[string]struct{}
}

// New builds a fabricator. A non-zero seed makes the random stream
// reproducible; zero seeds from entropy. Date and time values are drawn
// relative to the moment New is called, so they differ between runs made at
// different times even with the same seed.
func New(seed int64, src MaxSource) *Fabricator {
	s1, s2 := uint64(seed), uint64(seed)
	if seed == 0 {
		s1, s2 = rand.Uint64(), rand.Uint64()
	}
	return &Fabricator{
		faker:     gofakeit.NewFaker(rand.NewPCG(s1+1, s2+1), true),
		rng:       &Rand{r: rand.New(rand.NewPCG(s1, s2))},
		src:       src,
		anchor:    time.Now().Truncate(time.Second),
		autoBase:  make(map[string]int64),
		unique:    make(map[string]map[any]struct{}),
		composite: make(map[string]map[string]struct{}),
	}
}

// RNG exposes the run's shared random stream for the router.
func (f *Fabricator) RNG() *Rand {
	return f.rng
}

// ColumnValue produces one value for table.column at the given 1-based row
// index. The decision order short-circuits on first match: nullability draw,
// default draw, auto-increment continuity, pinned override or type-directed
// fabrication, then unique enforcement.
func (f *Fabricator) ColumnValue(ctx context.Context, table string, col *core.ColumnSpec, rowIndex int, pin *Pin) (any, error) {
	if col.Nullable && f.chance(nullProbability) {
		return nil, nil
	}

	if col.Default != nil && f.chance(defaultProbability) {
		return coerceDefault(*col.Default, col), nil
	}

	if col.AutoIncrement {
		base, err := f.autoIncrementBase(ctx, table, col.Name)
		if err != nil {
			return nil, err
		}
		value := base + int64(rowIndex)
		f.recordUnique(table, col.Name, value)
		return value, nil
	}

	if col.PrimaryKey || col.Unique {
		return f.ensureUnique(table, col.Name, func() any {
			return f.fabricate(col, pin)
		})
	}
	return f.fabricate(col, pin), nil
}

// fabricate dispatches on the pinned override or the base type.
func (f *Fabricator) fabricate(col *core.ColumnSpec, pin *Pin) any {
	if pin != nil {
		if len(pin.Values) > 0 {
			return pin.Values[f.rng.IntN(len(pin.Values))]
		}
		if pin.Min != nil || pin.Max != nil {
			return f.pinnedNumeric(col, pin)
		}
	}
	return f.byType(col)
}

func (f *Fabricator) pinnedNumeric(col *core.ColumnSpec, pin *Pin) any {
	lo, hi := col.MinValue, col.MaxValue
	if pin.Min != nil {
		lo = math.Max(lo, *pin.Min)
	}
	if pin.Max != nil {
		hi = math.Min(hi, *pin.Max)
	}
	if col.BaseType.IsInteger() {
		return f.intBetween(int64(lo), int64(hi))
	}
	return round2(lo + f.rng.Float64()*(hi-lo))
}

func (f *Fabricator) byType(col *core.ColumnSpec) any {
	switch {
	case col.IsBoolean():
		return int64(f.rng.IntN(2))

	case col.BaseType.IsInteger():
		return f.intBetween(int64(col.MinValue), int64(col.MaxValue))

	case col.BaseType == core.TypeDecimal:
		return f.decimalValue(col)

	case col.BaseType == core.TypeFloat:
		return round2(f.rng.Float64()*2e6 - 1e6)

	case col.BaseType == core.TypeDouble:
		return round2(f.rng.Float64()*2e9 - 1e9)

	case col.BaseType == core.TypeEnum:
		if len(col.EnumValues) == 0 {
			return "default"
		}
		return col.EnumValues[f.rng.IntN(len(col.EnumValues))]

	case col.BaseType == core.TypeSet:
		return f.setValue(col.EnumValues)

	case col.BaseType == core.TypeDate:
		return f.instantWithin5y().Format("2006-01-02")

	case col.BaseType == core.TypeDateTime, col.BaseType == core.TypeTimestamp:
		return f.instantWithin5y().Format("2006-01-02 15:04:05")

	case col.BaseType == core.TypeTime:
		return fmt.Sprintf("%02d:%02d:%02d", f.rng.IntN(24), f.rng.IntN(60), f.rng.IntN(60))

	case col.BaseType == core.TypeYear:
		return f.intBetween(1901, 2155)

	case col.BaseType.IsBinary():
		return f.binaryValue(col)

	case col.BaseType == core.TypeJSON:
		return f.jsonValue(col.Name)

	case col.BaseType.IsCharacter():
		return f.stringValue(col)

	default:
		return f.faker.Word()
	}
}

// intBetween returns a uniform int64 in [min, max].
func (f *Fabricator) intBetween(min, max int64) int64 {
	if min >= max {
		return min
	}
	span := uint64(max) - uint64(min)
	if span == math.MaxUint64 {
		return int64(f.rng.Uint64())
	}
	return min + int64(f.rng.Uint64N(span+1))
}

// decimalValue composes a fixed-point string with exact precision and scale.
func (f *Fabricator) decimalValue(col *core.ColumnSpec) any {
	if col.Precision == nil {
		return round2(f.rng.Float64() * 999999.99)
	}
	scale := 0
	if col.Scale != nil {
		scale = *col.Scale
	}
	intDigits := *col.Precision - scale
	maxInt := int64(math.Pow(10, float64(intDigits))) - 1
	intPart := f.intBetween(0, maxInt)
	if scale == 0 {
		return strconv.FormatInt(intPart, 10)
	}
	fracPart := f.intBetween(0, int64(math.Pow(10, float64(scale)))-1)
	return fmt.Sprintf("%d.%0*d", intPart, scale, fracPart)
}

// setValue picks a random subset of size 1..min(3, n), comma-joined.
func (f *Fabricator) setValue(values []string) any {
	if len(values) == 0 {
		return "default"
	}
	k := 1 + f.rng.IntN(minInt(3, len(values)))
	perm := f.rng.Perm(len(values))
	picked := make([]string, 0, k)
	for _, idx := range perm[:k] {
		picked = append(picked, values[idx])
	}
	return strings.Join(picked, ",")
}

func (f *Fabricator) instantWithin5y() time.Time {
	start := f.anchor.AddDate(-5, 0, 0)
	window := f.anchor.Unix() - start.Unix()
	return time.Unix(start.Unix()+f.rng.Int64N(window+1), 0).UTC()
}

func (f *Fabricator) binaryValue(col *core.ColumnSpec) any {
	length := 16
	if col.MaxLength != nil {
		length = *col.MaxLength
	}
	length = minInt(length, 32)
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = byte(f.rng.IntN(256))
	}
	return buf
}

// jsonValue builds a small document shaped by column-name affinity.
func (f *Fabricator) jsonValue(name string) any {
	lower := strings.ToLower(name)
	var doc map[string]any
	switch {
	case strings.Contains(lower, "config") || strings.Contains(lower, "setting"):
		doc = map[string]any{
			"enabled": f.faker.Bool(),
			"timeout": f.intBetween(30, 3600),
			"retries": f.intBetween(1, 5),
			"debug":   f.faker.Bool(),
		}
	case strings.Contains(lower, "meta"):
		doc = map[string]any{
			"id":       f.intBetween(1000, 9999),
			"name":     f.faker.Name(),
			"tags":     []string{f.faker.Word(), f.faker.Word()},
			"value":    round2(f.rng.Float64() * 1000),
			"active":   f.faker.Bool(),
			"priority": []string{"low", "medium", "high", "critical"}[f.rng.IntN(4)],
		}
	default:
		doc = map[string]any{
			"status": []string{"active", "inactive", "pending"}[f.rng.IntN(3)],
			"count":  f.intBetween(0, 100),
			"data":   f.faker.Sentence(5),
		}
	}
	out, _ := json.Marshal(doc)
	return string(out)
}

// ensureUnique resamples gen until the value is new for table.column, up to
// the retry budget.
func (f *Fabricator) ensureUnique(table, column string, gen func() any) (any, error) {
	for attempt := 0; attempt < uniqueRetryBudget; attempt++ {
		value := gen()
		if f.recordUnique(table, column, value) {
			return value, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUniquenessExhausted, table, column)
}

// recordUnique adds the value to the in-run set for table.column, reporting
// false on collision.
func (f *Fabricator) recordUnique(table, column string, value any) bool {
	key := table + "." + column
	f.mu.Lock()
	defer f.mu.Unlock()
	seen, ok := f.unique[key]
	if !ok {
		seen = make(map[any]struct{})
		f.unique[key] = seen
	}
	ck := comparableKey(value)
	if _, dup := seen[ck]; dup {
		return false
	}
	seen[ck] = struct{}{}
	return true
}

// ObserveComposite records the tuple a row produces for one multi-column
// unique constraint, reporting false on collision without recording.
func (f *Fabricator) ObserveComposite(table string, columns []string, row map[string]any) bool {
	setKey := table + "|" + strings.Join(columns, ",")
	var tuple strings.Builder
	for i, c := range columns {
		if i > 0 {
			tuple.WriteByte(0x1f)
		}
		fmt.Fprintf(&tuple, "%v", row[c])
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	seen, ok := f.composite[setKey]
	if !ok {
		seen = make(map[string]struct{})
		f.composite[setKey] = seen
	}
	if _, dup := seen[tuple.String()]; dup {
		return false
	}
	seen[tuple.String()] = struct{}{}
	return true
}

// autoIncrementBase resolves max(existing) once per column, then serves the
// cached counter base.
func (f *Fabricator) autoIncrementBase(ctx context.Context, table, column string) (int64, error) {
	key := table + "." + column
	f.mu.Lock()
	base, ok := f.autoBase[key]
	f.mu.Unlock()
	if ok {
		return base, nil
	}

	base, err := f.src.MaxValue(ctx, table, column)
	if err != nil {
		return 0, fmt.Errorf("resolving auto-increment base for %s.%s: %w", table, column, err)
	}
	f.mu.Lock()
	f.autoBase[key] = base
	f.mu.Unlock()
	return base, nil
}

func (f *Fabricator) chance(p float64) bool {
	return f.rng.Float64() < p
}

// coerceDefault converts the textual default onto the column's base type.
func coerceDefault(raw string, col *core.ColumnSpec) any {
	switch {
	case col.BaseType.IsInteger():
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		return int64(0)
	case col.BaseType == core.TypeDecimal, col.BaseType == core.TypeFloat, col.BaseType == core.TypeDouble:
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			return x
		}
		return float64(0)
	default:
		return strings.Trim(raw, `'"`)
	}
}

// comparableKey folds values onto map-key-safe representations.
func comparableKey(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
