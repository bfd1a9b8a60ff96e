package fabricate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmock/internal/core"
)

// fakeMax serves auto-increment bases keyed "table.column" and counts
// queries.
type fakeMax struct {
	max     map[string]int64
	queries int
}

func (s *fakeMax) MaxValue(ctx context.Context, table, column string) (int64, error) {
	s.queries++
	return s.max[table+"."+column], nil
}

func newFab(seed int64) (*Fabricator, *fakeMax) {
	src := &fakeMax{max: make(map[string]int64)}
	f := New(seed, src)
	return f, src
}

func col(raw string, name string) *core.ColumnSpec {
	c := &core.ColumnSpec{Name: name, RawType: raw}
	core.ParseTypeString(raw).ApplyTo(c)
	return c
}

func TestIntegerWithinRange(t *testing.T) {
	f, _ := newFab(7)
	c := col("smallint", "qty")

	for i := 1; i <= 500; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		n, ok := v.(int64)
		require.True(t, ok, "expected int64, got %T", v)
		assert.GreaterOrEqual(t, float64(n), c.MinValue)
		assert.LessOrEqual(t, float64(n), c.MaxValue)
	}
}

func TestBooleanTinyint(t *testing.T) {
	f, _ := newFab(7)
	c := col("tinyint(1)", "active")

	for i := 1; i <= 100; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		assert.Contains(t, []int64{0, 1}, v.(int64))
	}
}

func TestEnumMembership(t *testing.T) {
	f, _ := newFab(7)
	c := col("enum('new','done')", "status")

	counts := map[string]int{}
	for i := 1; i <= 1000; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		s := v.(string)
		require.Contains(t, []string{"new", "done"}, s)
		counts[s]++
	}
	// Roughly uniform: both halves of a fair 1000-draw split stay within
	// a generous band.
	assert.Greater(t, counts["new"], 350)
	assert.Greater(t, counts["done"], 350)
}

func TestSetSubset(t *testing.T) {
	f, _ := newFab(7)
	c := col("set('a','b','c','d','e')", "flags")

	for i := 1; i <= 200; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		parts := strings.Split(v.(string), ",")
		assert.GreaterOrEqual(t, len(parts), 1)
		assert.LessOrEqual(t, len(parts), 3)
		seen := map[string]bool{}
		for _, p := range parts {
			assert.Contains(t, []string{"a", "b", "c", "d", "e"}, p)
			assert.False(t, seen[p], "duplicate member %q", p)
			seen[p] = true
		}
	}
}

func TestDecimalPrecisionAndScale(t *testing.T) {
	f, _ := newFab(7)
	c := col("decimal(6,2)", "price")

	for i := 1; i <= 200; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		s := v.(string)
		intPart, fracPart, found := strings.Cut(s, ".")
		require.True(t, found, "decimal %q has no fraction", s)
		assert.LessOrEqual(t, len(intPart), 4)
		assert.Len(t, fracPart, 2)
		_, err = strconv.ParseFloat(s, 64)
		require.NoError(t, err)
	}
}

func TestYearRange(t *testing.T) {
	f, _ := newFab(7)
	c := col("year", "built")

	for i := 1; i <= 200; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		n := v.(int64)
		assert.GreaterOrEqual(t, n, int64(1901))
		assert.LessOrEqual(t, n, int64(2155))
	}
}

func TestTemporalFormats(t *testing.T) {
	f, _ := newFab(7)

	v, err := f.ColumnValue(context.Background(), "t", col("date", "born_on"), 1, nil)
	require.NoError(t, err)
	_, err = time.Parse("2006-01-02", v.(string))
	assert.NoError(t, err)

	v, err = f.ColumnValue(context.Background(), "t", col("datetime", "seen_at"), 1, nil)
	require.NoError(t, err)
	_, err = time.Parse("2006-01-02 15:04:05", v.(string))
	assert.NoError(t, err)

	v, err = f.ColumnValue(context.Background(), "t", col("time", "opens_at"), 1, nil)
	require.NoError(t, err)
	_, err = time.Parse("15:04:05", v.(string))
	assert.NoError(t, err)
}

func TestBinaryLengthCapped(t *testing.T) {
	f, _ := newFab(7)

	v, err := f.ColumnValue(context.Background(), "t", col("varbinary(8)", "digest"), 1, nil)
	require.NoError(t, err)
	assert.Len(t, v.([]byte), 8)

	v, err = f.ColumnValue(context.Background(), "t", col("blob", "payload"), 1, nil)
	require.NoError(t, err)
	assert.Len(t, v.([]byte), 16)

	v, err = f.ColumnValue(context.Background(), "t", col("varbinary(4096)", "big"), 1, nil)
	require.NoError(t, err)
	assert.Len(t, v.([]byte), 32)
}

func TestJSONByAffinity(t *testing.T) {
	f, _ := newFab(7)

	v, err := f.ColumnValue(context.Background(), "t", col("json", "config"), 1, nil)
	require.NoError(t, err)
	assert.Contains(t, v.(string), `"timeout"`)

	v, err = f.ColumnValue(context.Background(), "t", col("json", "metadata"), 1, nil)
	require.NoError(t, err)
	assert.Contains(t, v.(string), `"priority"`)

	v, err = f.ColumnValue(context.Background(), "t", col("json", "payload"), 1, nil)
	require.NoError(t, err)
	assert.Contains(t, v.(string), `"status"`)
}

func TestEmailFitsAndKeepsShape(t *testing.T) {
	f, _ := newFab(7)
	c := col("varchar(20)", "email")

	for i := 1; i <= 100; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		s := v.(string)
		assert.LessOrEqual(t, len(s), 20)
		assert.Contains(t, s, "@")
		_, domain, _ := strings.Cut(s, "@")
		assert.Contains(t, domain, ".")
	}
}

func TestCharacterLengthBound(t *testing.T) {
	f, _ := newFab(7)
	for _, raw := range []string{"varchar(3)", "varchar(12)", "char(8)", "varchar(40)", "tinytext"} {
		for _, name := range []string{"name", "phone", "address", "website_url", "sku_code", "description", "misc"} {
			c := col(raw, name)
			limit := 255
			if c.MaxLength != nil {
				limit = *c.MaxLength
			}
			for i := 1; i <= 25; i++ {
				v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
				require.NoError(t, err)
				assert.LessOrEqual(t, len(v.(string)), limit, "type %s column %s", raw, name)
			}
		}
	}
}

func TestNullableColumnsYieldSomeNulls(t *testing.T) {
	f, _ := newFab(7)
	c := col("int", "score")
	c.Nullable = true

	nulls := 0
	for i := 1; i <= 1000; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		if v == nil {
			nulls++
		}
	}
	// 10% draw; allow a wide band.
	assert.Greater(t, nulls, 40)
	assert.Less(t, nulls, 250)
}

func TestNonNullableNeverNull(t *testing.T) {
	f, _ := newFab(7)
	c := col("int", "score")

	for i := 1; i <= 500; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		assert.NotNil(t, v)
	}
}

func TestDefaultDrawCoercion(t *testing.T) {
	f, _ := newFab(7)
	c := col("int", "retries")
	def := "3"
	c.Default = &def

	sawDefault := false
	for i := 1; i <= 500; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		if n, ok := v.(int64); ok && n == 3 {
			sawDefault = true
		}
	}
	assert.True(t, sawDefault, "default value never drawn in 500 rows")
}

func TestAutoIncrementContinuesPastExisting(t *testing.T) {
	f, src := newFab(7)
	src.max["users.id"] = 7
	c := col("int", "id")
	c.AutoIncrement = true
	c.PrimaryKey = true

	var got []int64
	for i := 1; i <= 2; i++ {
		v, err := f.ColumnValue(context.Background(), "users", c, i, nil)
		require.NoError(t, err)
		got = append(got, v.(int64))
	}
	assert.Equal(t, []int64{8, 9}, got)
	assert.Equal(t, 1, src.queries, "max must be fetched once per column")
}

func TestUniqueColumnNeverRepeats(t *testing.T) {
	f, _ := newFab(7)
	c := col("int", "account_no")
	c.Unique = true

	seen := make(map[int64]bool)
	for i := 1; i <= 300; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
		require.NoError(t, err)
		n := v.(int64)
		assert.False(t, seen[n], "duplicate unique value %d", n)
		seen[n] = true
	}
}

func TestUniquenessExhausted(t *testing.T) {
	f, _ := newFab(7)
	c := col("tinyint(1)", "flag")
	c.Unique = true

	// Only {0,1} exist; the third row cannot be unique.
	_, err := f.ColumnValue(context.Background(), "t", c, 1, nil)
	require.NoError(t, err)
	_, err = f.ColumnValue(context.Background(), "t", c, 2, nil)
	require.NoError(t, err)
	_, err = f.ColumnValue(context.Background(), "t", c, 3, nil)
	assert.ErrorIs(t, err, ErrUniquenessExhausted)
}

func TestUniquenessKeyedPerTableAndColumn(t *testing.T) {
	f, _ := newFab(7)

	// The same value may appear in different tables and columns.
	a := col("tinyint(1)", "flag")
	a.Unique = true
	b := col("tinyint(1)", "flag")
	b.Unique = true

	for i := 1; i <= 2; i++ {
		_, err := f.ColumnValue(context.Background(), "t1", a, i, nil)
		require.NoError(t, err)
		_, err = f.ColumnValue(context.Background(), "t2", b, i, nil)
		require.NoError(t, err)
	}
}

func TestPinnedValues(t *testing.T) {
	f, _ := newFab(7)
	c := col("int", "country_id")
	pin := &Pin{Values: []any{int64(1), int64(2), int64(3)}}

	for i := 1; i <= 100; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, pin)
		require.NoError(t, err)
		assert.Contains(t, pin.Values, v)
	}
}

func TestPinnedRange(t *testing.T) {
	f, _ := newFab(7)
	c := col("int", "age")
	lo, hi := 18.0, 65.0
	pin := &Pin{Min: &lo, Max: &hi}

	for i := 1; i <= 200; i++ {
		v, err := f.ColumnValue(context.Background(), "t", c, i, pin)
		require.NoError(t, err)
		n := v.(int64)
		assert.GreaterOrEqual(t, n, int64(18))
		assert.LessOrEqual(t, n, int64(65))
	}
}

func TestObserveComposite(t *testing.T) {
	f, _ := newFab(7)
	cols := []string{"a", "b"}

	assert.True(t, f.ObserveComposite("t", cols, map[string]any{"a": 1, "b": 2}))
	assert.False(t, f.ObserveComposite("t", cols, map[string]any{"a": 1, "b": 2}))
	assert.True(t, f.ObserveComposite("t", cols, map[string]any{"a": 1, "b": 3}))
	// Other tables track separately.
	assert.True(t, f.ObserveComposite("u", cols, map[string]any{"a": 1, "b": 2}))
}

func TestSeededRunsAreReproducible(t *testing.T) {
	run := func() []any {
		f, src := newFab(42)
		f.anchor = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		src.max["t.id"] = 3

		columns := []*core.ColumnSpec{
			col("int", "id"),
			col("varchar(30)", "name"),
			col("enum('a','b','c')", "kind"),
			col("decimal(8,2)", "price"),
			col("datetime", "created"),
			col("json", "meta"),
		}
		columns[0].AutoIncrement = true
		columns[0].PrimaryKey = true
		columns[1].Nullable = true

		var out []any
		for i := 1; i <= 20; i++ {
			for _, c := range columns {
				v, err := f.ColumnValue(context.Background(), "t", c, i, nil)
				require.NoError(t, err)
				out = append(out, v)
			}
		}
		return out
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, fmt.Sprintf("%v", first[i]), fmt.Sprintf("%v", second[i]), "position %d diverged", i)
	}
}
