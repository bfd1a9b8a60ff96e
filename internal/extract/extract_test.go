package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dbmock/internal/core"
)

func TestApplyFilterBlocklist(t *testing.T) {
	tables := []string{"users", "orders", "schema_migrations", "flyway_schema_history"}

	got := applyFilter(tables, Filter{})
	assert.Equal(t, []string{"orders", "users"}, got)
}

func TestApplyFilterIncludeBypassesBlocklist(t *testing.T) {
	tables := []string{"users", "orders", "schema_migrations"}

	got := applyFilter(tables, Filter{Include: []string{"schema_migrations", "users"}})
	assert.Equal(t, []string{"schema_migrations", "users"}, got)
}

func TestApplyFilterExcludeWins(t *testing.T) {
	tables := []string{"users", "orders", "audit"}

	got := applyFilter(tables, Filter{Exclude: []string{"audit"}})
	assert.Equal(t, []string{"orders", "users"}, got)

	got = applyFilter(tables, Filter{Include: []string{"users", "audit"}, Exclude: []string{"audit"}})
	assert.Equal(t, []string{"users"}, got)
}

func TestGroupUniqueConstraints(t *testing.T) {
	entries := []*core.IndexEntry{
		{Name: "PRIMARY", Column: "id", Unique: true, Sequence: 1},
		{Name: "uq_email", Column: "email", Unique: true, Sequence: 1},
		{Name: "uq_org_slug", Column: "org_id", Unique: true, Sequence: 1},
		{Name: "uq_org_slug", Column: "slug", Unique: true, Sequence: 2},
		{Name: "idx_created", Column: "created_at", Unique: false, Sequence: 1},
	}

	got := GroupUniqueConstraints(entries)
	assert.Equal(t, [][]string{{"email"}, {"org_id", "slug"}}, got)
}

func TestGroupUniqueConstraintsEmpty(t *testing.T) {
	assert.Empty(t, GroupUniqueConstraints(nil))
	assert.Empty(t, GroupUniqueConstraints([]*core.IndexEntry{
		{Name: "PRIMARY", Column: "id", Unique: true, Sequence: 1},
	}))
}

func TestNewUnknownDialect(t *testing.T) {
	_, err := New(core.Dialect("oracle"))
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}
