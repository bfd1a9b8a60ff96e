package mysql

import (
	"context"
	"database/sql"

	"dbmock/internal/core"
	"dbmock/internal/db"
)

func (e *extractor) foreignKeys(ctx context.Context, conn *db.Conn, table string) ([]*core.ForeignKey, error) {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT constraint_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		  AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]*core.ForeignKey)
	var order []string
	for rows.Next() {
		var name, column, refTable, refColumn string
		if err := rows.Scan(&name, &column, &refTable, &refColumn); err != nil {
			return nil, err
		}

		fk, ok := byName[name]
		if !ok {
			fk = &core.ForeignKey{ConstraintName: name, ReferencedTable: refTable}
			byName[name] = fk
			order = append(order, name)
		}
		fk.LocalColumns = append(fk.LocalColumns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fks := make([]*core.ForeignKey, 0, len(order))
	for _, name := range order {
		fks = append(fks, byName[name])
	}
	return fks, nil
}

// checkConstraints reads CHECK clauses on servers that expose the view
// (MySQL 8.0.16+); absence degrades to an empty list with a warning.
func (e *extractor) checkConstraints(ctx context.Context, conn *db.Conn, table string) []*core.CheckConstraint {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT cc.constraint_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.table_constraints tc
			ON cc.constraint_schema = tc.constraint_schema
			AND cc.constraint_name = tc.constraint_name
		WHERE tc.table_schema = DATABASE() AND tc.table_name = ?
	`, table)
	if err != nil {
		e.logger.Warn("check constraints unavailable", "table", table, "error", err)
		return nil
	}
	defer rows.Close()

	var checks []*core.CheckConstraint
	for rows.Next() {
		var name, clause string
		if err := rows.Scan(&name, &clause); err != nil {
			return checks
		}
		checks = append(checks, &core.CheckConstraint{Name: name, Expression: clause})
	}
	return checks
}

func (e *extractor) indexes(ctx context.Context, conn *db.Conn, table string) ([]*core.IndexEntry, error) {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT index_name, column_name, non_unique, index_type, seq_in_index
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY index_name, seq_in_index
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*core.IndexEntry
	for rows.Next() {
		var name, column, indexType sql.NullString
		var nonUnique, seq int
		if err := rows.Scan(&name, &column, &nonUnique, &indexType, &seq); err != nil {
			return nil, err
		}
		entries = append(entries, &core.IndexEntry{
			Name:     name.String,
			Column:   column.String,
			Unique:   nonUnique == 0,
			Type:     indexType.String,
			Sequence: seq,
		})
	}
	return entries, rows.Err()
}
