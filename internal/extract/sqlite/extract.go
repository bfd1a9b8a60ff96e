// Package sqlite contains the specification extractor for SQLite. Everything
// comes from sqlite_master and the table_info / index_list / foreign_key_list
// pragmas; SQLite exposes no catalog view for check constraints, so those
// degrade to an empty list.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"dbmock/internal/core"
	"dbmock/internal/db"
	"dbmock/internal/extract"
)

func init() {
	extract.Register(core.DialectSQLite, New)
}

type extractor struct {
	logger *slog.Logger
}

// New returns the SQLite extractor.
func New() extract.Extractor {
	return &extractor{logger: slog.Default()}
}

func (e *extractor) ListTables(ctx context.Context, conn *db.Conn) ([]string, error) {
	rows, err := conn.DB.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table'")
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
		return nil, fmt.Errorf("%w: describing %s: %v", extract.ErrExtractionFailed, name, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table %q", extract.ErrSchemaNotFound, name)
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

	spec.Indexes, err = e.indexes(ctx, conn, name)
	if err != nil {
		return nil, fmt.Errorf("%w: indexes of %s: %v", extract.ErrExtractionFailed, name, err)
	}
	spec.UniqueConstraints = extract.GroupUniqueConstraints(spec.Indexes)
	e.markUniqueColumns(spec)

	spec.RowCount, err = conn.RowCount(ctx, name)
	if err != nil {
		e.logger.Warn("could not count rows", "table", name, "error", err)
	}
	return spec, nil
}

func (e *extractor) describeColumns(ctx context.Context, conn *db.Conn, table string) ([]*core.ColumnSpec, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", conn.QuoteIdentifier(table))
	rows, err := conn.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []*core.ColumnSpec
	for rows.Next() {
		var cid, notNull, pk int
		var colName, colType string
		var defaultVal sql.NullString
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}

		col := &core.ColumnSpec{
			Name:       colName,
			RawType:    strings.ToLower(colType),
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		}
		pt := core.ParseTypeString(colType)
		if pt.Unknown {
			e.logger.Warn("unknown column type, treating as longtext",
				"table", table, "column", colName, "type", colType)
		}
		pt.ApplyTo(col)

		// An INTEGER PRIMARY KEY aliases the rowid and auto-assigns.
		if col.PrimaryKey && col.BaseType.IsInteger() {
			col.AutoIncrement = true
		}

		if defaultVal.Valid {
			if d := normalizeDefault(defaultVal.String); d != nil {
				col.Default = d
			}
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func normalizeDefault(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToUpper(trimmed) {
	case "NULL", "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME":
		return nil
	}
	trimmed = strings.Trim(trimmed, `'"`)
	return &trimmed
}

func (e *extractor) foreignKeys(ctx context.Context, conn *db.Conn, table string) ([]*core.ForeignKey, error) {
	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", conn.QuoteIdentifier(table))
	rows, err := conn.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int]*core.ForeignKey)
	var order []int
	for rows.Next() {
		var id, seq int
		var refTable, from string
		var to, onUpdate, onDelete, match sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		fk, ok := byID[id]
		if !ok {
			fk = &core.ForeignKey{
				ConstraintName:  fmt.Sprintf("fk_%s_%d", table, id),
				ReferencedTable: refTable,
			}
			byID[id] = fk
			order = append(order, id)
		}
		refColumn := to.String
		if refColumn == "" {
			refColumn = "id"
		}
		fk.LocalColumns = append(fk.LocalColumns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fks := make([]*core.ForeignKey, 0, len(order))
	for _, id := range order {
		fks = append(fks, byID[id])
	}
	return fks, nil
}

func (e *extractor) indexes(ctx context.Context, conn *db.Conn, table string) ([]*core.IndexEntry, error) {
	query := fmt.Sprintf("PRAGMA index_list(%s)", conn.QuoteIdentifier(table))
	rows, err := conn.DB.QueryContext(ctx, query)
	if err != nil {
		e.logger.Warn("indexes unavailable", "table", table, "error", err)
		return nil, nil
	}
	defer rows.Close()

	type indexRow struct {
		name   string
		unique bool
	}
	var list []indexRow
	for rows.Next() {
		var seq, unique, partial int
		var idxName, origin string
		if err := rows.Scan(&seq, &idxName, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		// origin "pk" is the implicit primary-key index.
		if origin == "pk" {
			continue
		}
		list = append(list, indexRow{name: idxName, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var entries []*core.IndexEntry
	for _, idx := range list {
		cols, err := e.indexColumns(ctx, conn, idx.name)
		if err != nil {
			return nil, err
		}
		for seq, col := range cols {
			entries = append(entries, &core.IndexEntry{
				Name:     idx.name,
				Column:   col,
				Unique:   idx.unique,
				Sequence: seq + 1,
			})
		}
	}
	return entries, nil
}

func (e *extractor) indexColumns(ctx context.Context, conn *db.Conn, index string) ([]string, error) {
	query := fmt.Sprintf("PRAGMA index_info(%s)", conn.QuoteIdentifier(index))
	rows, err := conn.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

// markUniqueColumns raises the per-column Unique flag for single-column
// unique constraints, mirroring what DESCRIBE's key role gives us on MySQL.
func (e *extractor) markUniqueColumns(spec *core.TableSpec) {
	for _, uc := range spec.UniqueConstraints {
		if len(uc) != 1 {
			continue
		}
		if col := spec.FindColumn(uc[0]); col != nil {
			col.Unique = true
		}
	}
}
