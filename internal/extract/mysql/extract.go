// Package mysql contains the specification extractor for MySQL and MariaDB.
// Column detail comes from DESCRIBE; constraints and indexes come from the
// INFORMATION_SCHEMA views.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-sql-driver/mysql"

	"dbmock/internal/core"
	"dbmock/internal/db"
	"dbmock/internal/extract"
)

func init() {
	extract.Register(core.DialectMySQL, New)
}

type extractor struct {
	logger *slog.Logger
}

// New returns the MySQL extractor.
func New() extract.Extractor {
	return &extractor{logger: slog.Default()}
}

const errTableMissing = 1146

func (e *extractor) ListTables(ctx context.Context, conn *db.Conn) ([]string, error) {
	rows, err := conn.DB.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extract.ErrExtractionFailed, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, rows.Err()
}

func (e *extractor) DescribeTable(ctx context.Context, conn *db.Conn, name string) (*core.TableSpec, error) {
	columns, err := e.describeColumns(ctx, conn, name)
	if err != nil {
		var merr *mysql.MySQLError
		if errors.As(err, &merr) && merr.Number == errTableMissing {
			return nil, fmt.Errorf("%w: table %q", extract.ErrSchemaNotFound, name)
		}
		return nil, fmt.Errorf("%w: describing %s: %v", extract.ErrExtractionFailed, name, err)
	}

	spec := &core.TableSpec{Name: name, Columns: columns}
	for _, col := range columns {
		if col.PrimaryKey {
			spec.PrimaryKeys = append(spec.PrimaryKeys, col.Name)
		}
	}

	spec.ForeignKeys, err = e.foreignKeys(ctx, conn, name)
	if err != nil {
		return nil, fmt.Errorf("%w: foreign keys of %s: %v", extract.ErrExtractionFailed, name, err)
	}

	spec.CheckConstraints = e.checkConstraints(ctx, conn, name)
	spec.Indexes, err = e.indexes(ctx, conn, name)
	if err != nil {
		return nil, fmt.Errorf("%w: indexes of %s: %v", extract.ErrExtractionFailed, name, err)
	}
	spec.UniqueConstraints = extract.GroupUniqueConstraints(spec.Indexes)

	spec.RowCount, err = conn.RowCount(ctx, name)
	if err != nil {
		e.logger.Warn("could not count rows", "table", name, "error", err)
	}
	return spec, nil
}
