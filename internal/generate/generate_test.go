package generate

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmock/internal/config"
	"dbmock/internal/core"
	"dbmock/internal/fabricate"
	"dbmock/internal/plan"
	"dbmock/internal/router"
)

// fakeDB backs both the router's existing-value fetches and the fabricator's
// auto-increment lookups, keyed "table.column".
type fakeDB struct {
	existing map[string][]any
	max      map[string]int64
}

func (f *fakeDB) DistinctValues(ctx context.Context, table, column string) ([]any, error) {
	return f.existing[table+"."+column], nil
}

func (f *fakeDB) MaxValue(ctx context.Context, table, column string) (int64, error) {
	return f.max[table+"."+column], nil
}

// memSink collects rows in memory.
type memSink struct {
	mu      sync.Mutex
	rows    map[string][]map[string]any
	inserts map[string][]int
	flushed []string
}

func newMemSink() *memSink {
	return &memSink{
		rows:    make(map[string][]map[string]any),
		inserts: make(map[string][]int),
	}
}

func (s *memSink) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		doc := make(map[string]any, len(columns))
		for i, c := range columns {
			doc[c] = row[i]
		}
		s.rows[table] = append(s.rows[table], doc)
	}
	s.inserts[table] = append(s.inserts[table], len(rows))
	return nil
}

func (s *memSink) Flush(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = append(s.flushed, table)
	return nil
}

func col(raw, name string) *core.ColumnSpec {
	c := &core.ColumnSpec{Name: name, RawType: raw}
	core.ParseTypeString(raw).ApplyTo(c)
	return c
}

func pkCol(name string) *core.ColumnSpec {
	c := col("int", name)
	c.PrimaryKey = true
	c.AutoIncrement = true
	return c
}

func fkTo(table, refTable string, columns ...string) *core.ForeignKey {
	return &core.ForeignKey{
		ConstraintName:    "fk_" + table + "_" + refTable,
		LocalColumns:      columns,
		ReferencedTable:   refTable,
		ReferencedColumns: []string{"id"},
	}
}

func testConfig(rows map[string]int) *config.Config {
	cfg := config.Default()
	cfg.RowsPerTable = 0
	for table, n := range rows {
		cfg.Tables[table] = &config.TableConfig{RowsToGenerate: n}
	}
	return cfg
}

func newGenerator(t *testing.T, specs map[string]*core.TableSpec, cfg *config.Config, dbState *fakeDB) (*Generator, *memSink) {
	t.Helper()
	if dbState == nil {
		dbState = &fakeDB{existing: map[string][]any{}, max: map[string]int64{}}
	}
	fab := fabricate.New(99, dbState)
	rtr := router.New(dbState, cfg, cfg.PreferExistingFKValues, fab.RNG())
	p := plan.Build(specs)
	return New(specs, p, cfg, rtr, fab, slog.Default()), newMemSink()
}

func TestRunRespectsForeignKeyClosure(t *testing.T) {
	users := &core.TableSpec{
		Name:    "users",
		Columns: []*core.ColumnSpec{pkCol("id"), col("varchar(30)", "name")},
	}
	users.Columns[1].Nullable = false
	orders := &core.TableSpec{
		Name:        "orders",
		Columns:     []*core.ColumnSpec{pkCol("id"), col("int", "user_id")},
		ForeignKeys: []*core.ForeignKey{fkTo("orders", "users", "user_id")},
	}
	specs := map[string]*core.TableSpec{"users": users, "orders": orders}

	gen, sink := newGenerator(t, specs, testConfig(map[string]int{"users": 5, "orders": 20}), nil)
	result, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 5, result.Generated["users"])
	assert.Equal(t, 20, result.Generated["orders"])

	userIDs := make(map[any]bool)
	for _, row := range sink.rows["users"] {
		userIDs[row["id"]] = true
	}
	require.Len(t, userIDs, 5)
	for _, row := range sink.rows["orders"] {
		assert.True(t, userIDs[row["user_id"]], "order references unknown user %v", row["user_id"])
	}

	// Parent must be flushed before the child starts.
	require.Equal(t, []string{"users", "orders"}, sink.flushed)
}

func TestAutoIncrementContinuityAndLengthBound(t *testing.T) {
	spec := &core.TableSpec{
		Name:    "tags",
		Columns: []*core.ColumnSpec{pkCol("id"), col("varchar(3)", "name")},
	}
	dbState := &fakeDB{existing: map[string][]any{}, max: map[string]int64{"tags.id": 7}}

	gen, sink := newGenerator(t, map[string]*core.TableSpec{"tags": spec},
		testConfig(map[string]int{"tags": 2}), dbState)
	_, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)

	ids := make(map[any]bool)
	for _, row := range sink.rows["tags"] {
		ids[row["id"]] = true
		if name, ok := row["name"].(string); ok {
			assert.LessOrEqual(t, len(name), 3)
		}
	}
	assert.Equal(t, map[any]bool{int64(8): true, int64(9): true}, ids)
}

func TestChildWithEmptyParentFails(t *testing.T) {
	parent := &core.TableSpec{
		Name:    "parent",
		Columns: []*core.ColumnSpec{pkCol("id")},
	}
	childPID := col("int", "pid")
	childPID.Nullable = false
	child := &core.TableSpec{
		Name:        "child",
		Columns:     []*core.ColumnSpec{pkCol("id"), childPID},
		ForeignKeys: []*core.ForeignKey{fkTo("child", "parent", "pid")},
	}
	specs := map[string]*core.TableSpec{"parent": parent, "child": child}

	// Parent has a zero budget and no existing rows.
	gen, sink := newGenerator(t, specs, testConfig(map[string]int{"child": 1, "parent": 0}), nil)
	result, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)
	require.Contains(t, result.Failed, "child")
	assert.ErrorIs(t, result.Failed["child"], router.ErrNoParentValues)
}

func TestDonorTableRouting(t *testing.T) {
	countries := &core.TableSpec{
		Name:    "countries",
		Columns: []*core.ColumnSpec{pkCol("id")},
	}
	countryID := col("int", "country_id")
	countryID.Nullable = false
	users := &core.TableSpec{
		Name:        "users",
		Columns:     []*core.ColumnSpec{pkCol("id"), countryID},
		ForeignKeys: []*core.ForeignKey{fkTo("users", "countries", "country_id")},
	}
	specs := map[string]*core.TableSpec{"countries": countries, "users": users}

	cfg := testConfig(map[string]int{"users": 10})
	cfg.UseExistingTables = []string{"countries"}
	dbState := &fakeDB{
		existing: map[string][]any{"countries.id": {int64(1), int64(2), int64(3)}},
		max:      map[string]int64{},
	}

	gen, sink := newGenerator(t, specs, cfg, dbState)
	result, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)
	assert.Empty(t, result.Failed)

	// No rows generated into the donor, ten into the child, and every FK
	// value is one of the three donor ids.
	assert.Empty(t, sink.rows["countries"])
	require.Len(t, sink.rows["users"], 10)
	donorIDs := map[any]bool{int64(1): true, int64(2): true, int64(3): true}
	for _, row := range sink.rows["users"] {
		assert.True(t, donorIDs[row["country_id"]], "country_id %v not a donor id", row["country_id"])
	}
}

func TestEmptyDonorFailsTable(t *testing.T) {
	donor := &core.TableSpec{Name: "donor", Columns: []*core.ColumnSpec{pkCol("id")}}
	ref := col("int", "donor_id")
	ref.Nullable = true
	child := &core.TableSpec{
		Name:        "child",
		Columns:     []*core.ColumnSpec{pkCol("id"), ref},
		ForeignKeys: []*core.ForeignKey{fkTo("child", "donor", "donor_id")},
	}
	specs := map[string]*core.TableSpec{"donor": donor, "child": child}

	cfg := testConfig(map[string]int{"child": 1})
	cfg.UseExistingTables = []string{"donor"}

	gen, sink := newGenerator(t, specs, cfg, nil)
	result, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)
	require.Contains(t, result.Failed, "child")
	assert.ErrorIs(t, result.Failed["child"], router.ErrNoDonorValues)
}

func cycleSpecs(nullable bool) map[string]*core.TableSpec {
	aRef := col("int", "b_id")
	aRef.Nullable = nullable
	bRef := col("int", "a_id")
	bRef.Nullable = nullable
	a := &core.TableSpec{
		Name:        "a",
		Columns:     []*core.ColumnSpec{pkCol("id"), aRef},
		ForeignKeys: []*core.ForeignKey{fkTo("a", "b", "b_id")},
	}
	b := &core.TableSpec{
		Name:        "b",
		Columns:     []*core.ColumnSpec{pkCol("id"), bRef},
		ForeignKeys: []*core.ForeignKey{fkTo("b", "a", "a_id")},
	}
	return map[string]*core.TableSpec{"a": a, "b": b}
}

func TestCycleWithNullableFKsAbsorbsNulls(t *testing.T) {
	specs := cycleSpecs(true)
	gen, sink := newGenerator(t, specs, testConfig(map[string]int{"a": 3, "b": 3}), nil)

	result, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	assert.Len(t, sink.rows["a"], 3)
	assert.Len(t, sink.rows["b"], 3)

	// The forced-first table had nothing to reference: at least its first
	// row carries the null sentinel.
	first := sink.rows["a"][0]
	assert.Nil(t, first["b_id"])
}

func TestCycleWithNonNullableFKsFails(t *testing.T) {
	specs := cycleSpecs(false)
	gen, sink := newGenerator(t, specs, testConfig(map[string]int{"a": 1, "b": 1}), nil)

	_, err := gen.Run(context.Background(), sink)
	assert.ErrorIs(t, err, ErrCycleUnresolvable)
}

func TestBatchSizeChunking(t *testing.T) {
	spec := &core.TableSpec{
		Name:    "events",
		Columns: []*core.ColumnSpec{pkCol("id"), col("varchar(20)", "kind")},
	}
	cfg := testConfig(map[string]int{"events": 25})
	cfg.BatchSize = 10

	gen, sink := newGenerator(t, map[string]*core.TableSpec{"events": spec}, cfg, nil)
	_, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 5}, sink.inserts["events"])
	assert.Equal(t, []string{"events"}, sink.flushed)
}

func TestRecoverableFailureContinues(t *testing.T) {
	// Only two distinct values exist for a unique tinyint(1); three rows
	// exhaust the retry budget.
	flag := col("tinyint(1)", "flag")
	flag.Unique = true
	doomed := &core.TableSpec{
		Name:    "doomed",
		Columns: []*core.ColumnSpec{pkCol("id"), flag},
	}
	healthy := &core.TableSpec{
		Name:    "healthy",
		Columns: []*core.ColumnSpec{pkCol("id")},
	}
	specs := map[string]*core.TableSpec{"doomed": doomed, "healthy": healthy}

	gen, sink := newGenerator(t, specs, testConfig(map[string]int{"doomed": 3, "healthy": 2}), nil)
	result, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)
	assert.ErrorIs(t, result.Failed["doomed"], fabricate.ErrUniquenessExhausted)
	assert.Equal(t, 2, result.Generated["healthy"])
}

func TestFailFastStopsRun(t *testing.T) {
	flag := col("tinyint(1)", "flag")
	flag.Unique = true
	doomed := &core.TableSpec{
		Name:    "doomed",
		Columns: []*core.ColumnSpec{pkCol("id"), flag},
	}
	specs := map[string]*core.TableSpec{"doomed": doomed}

	cfg := testConfig(map[string]int{"doomed": 3})
	cfg.FailFast = true

	gen, sink := newGenerator(t, specs, cfg, nil)
	_, err := gen.Run(context.Background(), sink)
	assert.ErrorIs(t, err, fabricate.ErrUniquenessExhausted)
}

func TestCancelledContextStopsRun(t *testing.T) {
	spec := &core.TableSpec{
		Name:    "big",
		Columns: []*core.ColumnSpec{pkCol("id")},
	}
	gen, sink := newGenerator(t, map[string]*core.TableSpec{"big": spec},
		testConfig(map[string]int{"big": 100000}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gen.Run(ctx, sink)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompositeUniqueEnforced(t *testing.T) {
	a := col("tinyint(1)", "a")
	b := col("smallint", "b")
	spec := &core.TableSpec{
		Name:              "pairs",
		Columns:           []*core.ColumnSpec{pkCol("id"), a, b},
		UniqueConstraints: [][]string{{"a", "b"}},
	}

	gen, sink := newGenerator(t, map[string]*core.TableSpec{"pairs": spec},
		testConfig(map[string]int{"pairs": 50}), nil)
	_, err := gen.Run(context.Background(), sink)
	require.NoError(t, err)

	seen := make(map[[2]any]bool)
	for _, row := range sink.rows["pairs"] {
		key := [2]any{row["a"], row["b"]}
		assert.False(t, seen[key], "duplicate composite tuple %v", key)
		seen[key] = true
	}
}

func TestValidateFKIntegrityForSelection(t *testing.T) {
	parent := &core.TableSpec{Name: "parent", Columns: []*core.ColumnSpec{pkCol("id")}}
	ref := col("int", "parent_id")
	child := &core.TableSpec{
		Name:        "child",
		Columns:     []*core.ColumnSpec{pkCol("id"), ref},
		ForeignKeys: []*core.ForeignKey{fkTo("child", "parent", "parent_id")},
	}
	specs := map[string]*core.TableSpec{"parent": parent, "child": child}

	gen, _ := newGenerator(t, specs, testConfig(map[string]int{"child": 5, "parent": 0}), nil)
	report, err := gen.ValidateFKIntegrityForSelection(context.Background())
	require.NoError(t, err)
	assert.False(t, report["child"]["parent"])

	dbState := &fakeDB{
		existing: map[string][]any{"parent.id": {int64(1)}},
		max:      map[string]int64{},
	}
	gen2, _ := newGenerator(t, specs, testConfig(map[string]int{"child": 5, "parent": 0}), dbState)
	report, err = gen2.ValidateFKIntegrityForSelection(context.Background())
	require.NoError(t, err)
	assert.True(t, report["child"]["parent"])
}
