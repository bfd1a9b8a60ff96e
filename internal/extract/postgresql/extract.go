// Package postgresql contains the specification extractor for PostgreSQL.
// Column detail, key membership, foreign keys, and check constraints come
// from information_schema; enum labels and indexes come from the pg_catalog
// tables.
package postgresql

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
	extract.Register(core.DialectPostgreSQL, New)
}

type extractor struct {
	logger *slog.Logger
}

// New returns the PostgreSQL extractor.
func New() extract.Extractor {
	return &extractor{logger: slog.Default()}
}

func (e *extractor) ListTables(ctx context.Context, conn *db.Conn) ([]string, error) {
	rows, err := conn.DB.QueryContext(ctx,
		"SELECT tablename FROM pg_tables WHERE schemaname = 'public'")
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

	if err := e.markKeyMembership(ctx, conn, spec); err != nil {
		return nil, fmt.Errorf("%w: key membership of %s: %v", extract.ErrExtractionFailed, name, err)
	}

	spec.ForeignKeys, err = e.foreignKeys(ctx, conn, name)
	if err != nil {
		return nil, fmt.Errorf("%w: foreign keys of %s: %v", extract.ErrExtractionFailed, name, err)
	}

	spec.CheckConstraints = e.checkConstraints(ctx, conn, name)

	indexes, nonPrimary, err := e.indexes(ctx, conn, name)
	if err != nil {
		return nil, fmt.Errorf("%w: indexes of %s: %v", extract.ErrExtractionFailed, name, err)
	}
	spec.Indexes = indexes
	spec.UniqueConstraints = extract.GroupUniqueConstraints(nonPrimary)

	spec.RowCount, err = conn.RowCount(ctx, name)
	if err != nil {
		e.logger.Warn("could not count rows", "table", name, "error", err)
	}
	return spec, nil
}

func (e *extractor) describeColumns(ctx context.Context, conn *db.Conn, table string) ([]*core.ColumnSpec, error) {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT column_name, data_type, udt_name,
		       character_maximum_length, numeric_precision, numeric_scale,
		       is_nullable, column_default, is_identity
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []*core.ColumnSpec
	for rows.Next() {
		var colName, dataType, udtName, nullable, identity string
		var maxLen, precision, scale sql.NullInt64
		var defaultVal sql.NullString
		if err := rows.Scan(&colName, &dataType, &udtName, &maxLen, &precision, &scale,
			&nullable, &defaultVal, &identity); err != nil {
			return nil, err
		}

		raw := canonicalType(dataType, maxLen, precision, scale)
		col := &core.ColumnSpec{
			Name:     colName,
			RawType:  raw,
			Nullable: strings.EqualFold(nullable, "YES"),
		}
		pt := core.ParseTypeString(raw)
		if dataType == "USER-DEFINED" {
			if labels := e.enumLabels(ctx, conn, udtName); len(labels) > 0 {
				pt = core.ParsedType{Base: core.TypeEnum, EnumValues: labels}
				col.RawType = core.RenderTypeString(pt)
			}
		}
		if pt.Unknown {
			e.logger.Warn("unknown column type, treating as longtext",
				"table", table, "column", colName, "type", dataType)
		}
		pt.ApplyTo(col)

		if defaultVal.Valid {
			switch {
			case strings.HasPrefix(defaultVal.String, "nextval("):
				col.AutoIncrement = true
			default:
				if d := normalizeDefault(defaultVal.String); d != nil {
					col.Default = d
				}
			}
		}
		if strings.EqualFold(identity, "YES") {
			col.AutoIncrement = true
		}

		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// canonicalType folds information_schema type spellings onto the closed base
// type vocabulary and reattaches length or precision.
func canonicalType(dataType string, maxLen, precision, scale sql.NullInt64) string {
	base := strings.ToLower(dataType)
	switch {
	case base == "character varying":
		base = "varchar"
	case base == "character":
		base = "char"
	case strings.HasPrefix(base, "timestamp"):
		base = "timestamp"
	case strings.HasPrefix(base, "time"):
		base = "time"
	case base == "double precision":
		base = "double"
	case base == "real":
		base = "float"
	case base == "numeric":
		base = "decimal"
	case base == "boolean":
		base = "bool"
	case base == "bytea":
		base = "blob"
	case base == "jsonb":
		base = "json"
	}

	switch {
	case maxLen.Valid:
		return fmt.Sprintf("%s(%d)", base, maxLen.Int64)
	case base == "decimal" && precision.Valid && scale.Valid:
		return fmt.Sprintf("%s(%d,%d)", base, precision.Int64, scale.Int64)
	}
	return base
}

func normalizeDefault(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	// Strip the ::type cast Postgres appends to literal defaults.
	if idx := strings.Index(trimmed, "::"); idx > 0 {
		trimmed = trimmed[:idx]
	}
	switch strings.ToUpper(trimmed) {
	case "NULL", "CURRENT_TIMESTAMP", "NOW()":
		return nil
	}
	trimmed = strings.Trim(trimmed, `'"`)
	return &trimmed
}

func (e *extractor) enumLabels(ctx context.Context, conn *db.Conn, udtName string) []string {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		WHERE t.typname = $1
		ORDER BY e.enumsortorder
	`, udtName)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return labels
		}
		labels = append(labels, label)
	}
	return labels
}

// markKeyMembership flags primary-key and single-column unique membership
// from information_schema.table_constraints.
func (e *extractor) markKeyMembership(ctx context.Context, conn *db.Conn, spec *core.TableSpec) error {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT tc.constraint_type, tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = 'public'
		  AND tc.table_name = $1
		  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
		ORDER BY kcu.ordinal_position
	`, spec.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	uniqueColumns := make(map[string][]string)
	for rows.Next() {
		var ctype, cname, column string
		if err := rows.Scan(&ctype, &cname, &column); err != nil {
			return err
		}
		col := spec.FindColumn(column)
		if col == nil {
			continue
		}
		if ctype == "PRIMARY KEY" {
			col.PrimaryKey = true
			spec.PrimaryKeys = append(spec.PrimaryKeys, column)
		} else {
			uniqueColumns[cname] = append(uniqueColumns[cname], column)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, cols := range uniqueColumns {
		if len(cols) == 1 {
			spec.FindColumn(cols[0]).Unique = true
		}
	}
	return nil
}

func (e *extractor) foreignKeys(ctx context.Context, conn *db.Conn, table string) ([]*core.ForeignKey, error) {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = 'public'
		  AND tc.table_name = $1
		  AND tc.constraint_type = 'FOREIGN KEY'
		ORDER BY tc.constraint_name, kcu.ordinal_position
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

func (e *extractor) checkConstraints(ctx context.Context, conn *db.Conn, table string) []*core.CheckConstraint {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT cc.constraint_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.table_constraints tc
			ON cc.constraint_name = tc.constraint_name
			AND cc.constraint_schema = tc.constraint_schema
		WHERE tc.table_schema = 'public'
		  AND tc.table_name = $1
		  AND tc.constraint_type = 'CHECK'
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
		// Postgres synthesizes NOT NULL checks; they add nothing over
		// the nullability flag.
		if strings.Contains(clause, "IS NOT NULL") {
			continue
		}
		checks = append(checks, &core.CheckConstraint{Name: name, Expression: clause})
	}
	return checks
}

// indexes returns all index entries plus the subset that excludes the
// primary-key index, which feeds composite-unique reconstruction.
func (e *extractor) indexes(ctx context.Context, conn *db.Conn, table string) ([]*core.IndexEntry, []*core.IndexEntry, error) {
	rows, err := conn.DB.QueryContext(ctx, `
		SELECT ic.relname, a.attname, ix.indisunique, ix.indisprimary, k.ord
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE t.relname = $1 AND t.relkind = 'r'
		ORDER BY ic.relname, k.ord
	`, table)
	if err != nil {
		e.logger.Warn("indexes unavailable", "table", table, "error", err)
		return nil, nil, nil
	}
	defer rows.Close()

	var all, nonPrimary []*core.IndexEntry
	for rows.Next() {
		var name, column string
		var unique, primary bool
		var seq int
		if err := rows.Scan(&name, &column, &unique, &primary, &seq); err != nil {
			return nil, nil, err
		}
		entry := &core.IndexEntry{Name: name, Column: column, Unique: unique, Sequence: seq}
		all = append(all, entry)
		if !primary {
			nonPrimary = append(nonPrimary, entry)
		}
	}
	return all, nonPrimary, rows.Err()
}
