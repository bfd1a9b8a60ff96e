// Package db wraps the database/sql handle with the small surface the
// pipeline needs: a dialect discriminator, vendor-correct identifier quoting,
// and the two value queries the router and fabricator issue.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"dbmock/internal/core"
)

// ErrUnsupportedDialect is returned when the requested driver name is not one
// of mysql, postgresql, or sqlite.
var ErrUnsupportedDialect = errors.New("unsupported dialect")

// driverNames maps the dialect to the registered database/sql driver.
var driverNames = map[core.Dialect]string{
	core.DialectMySQL:      "mysql",
	core.DialectPostgreSQL: "pgx",
	core.DialectSQLite:     "sqlite",
}

// Conn is a live database connection tagged with its dialect.
type Conn struct {
	DB      *sql.DB
	dialect core.Dialect
}

// Open connects to the database behind dsn using the named dialect and
// verifies the connection with a ping.
func Open(ctx context.Context, dialect, dsn string) (*Conn, error) {
	d := core.Dialect(strings.ToLower(strings.TrimSpace(dialect)))
	driver, ok := driverNames[d]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", d, err)
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging %s database: %w", d, err)
	}

	return &Conn{DB: sqlDB, dialect: d}, nil
}

// New wraps an already-open handle. Open is the normal path; New exists for
// callers that manage the pool themselves.
func New(sqlDB *sql.DB, dialect core.Dialect) *Conn {
	return &Conn{DB: sqlDB, dialect: dialect}
}

// Dialect returns the connection's dialect discriminator.
func (c *Conn) Dialect() core.Dialect {
	return c.dialect
}

// Close releases the underlying pool.
func (c *Conn) Close() error {
	return c.DB.Close()
}

// QuoteIdentifier quotes a table or column name in the vendor's syntax.
func (c *Conn) QuoteIdentifier(name string) string {
	switch c.dialect {
	case core.DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// Placeholder returns the parameter marker for position i (1-based) in the
// vendor's prepared-statement syntax.
func (c *Conn) Placeholder(i int) string {
	if c.dialect == core.DialectPostgreSQL {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// DistinctValues fetches the distinct non-null values of table.column. The
// router calls this once per (table, column) to seed its existing pool.
func (c *Conn) DistinctValues(ctx context.Context, table, column string) ([]any, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL",
		c.QuoteIdentifier(column), c.QuoteIdentifier(table), c.QuoteIdentifier(column))

	rows, err := c.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching distinct values for %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, normalizeScanned(v))
	}
	return values, rows.Err()
}

// MaxValue returns COALESCE(MAX(column), 0) for an auto-increment column so
// generated keys continue past the live data.
func (c *Conn) MaxValue(ctx context.Context, table, column string) (int64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s",
		c.QuoteIdentifier(column), c.QuoteIdentifier(table))

	var max int64
	if err := c.DB.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("fetching max value for %s.%s: %w", table, column, err)
	}
	return max, nil
}

// RowCount returns COUNT(*) for the table.
func (c *Conn) RowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + c.QuoteIdentifier(table)
	if err := c.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	return n, nil
}

// normalizeScanned folds driver-specific scan results onto comparable Go
// values: []byte becomes string so pool values can live in uniqueness sets.
func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
