package mysql

import (
	"context"
	"database/sql"
	"strings"

	"dbmock/internal/core"
	"dbmock/internal/db"
)

func (e *extractor) describeColumns(ctx context.Context, conn *db.Conn, table string) ([]*core.ColumnSpec, error) {
	rows, err := conn.DB.QueryContext(ctx, "DESCRIBE "+conn.QuoteIdentifier(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []*core.ColumnSpec
	for rows.Next() {
		var field, colType, null, key, defaultVal, extra sql.NullString
		if err := rows.Scan(&field, &colType, &null, &key, &defaultVal, &extra); err != nil {
			return nil, err
		}

		col := buildColumn(describeRow{
			Field:   field.String,
			Type:    colType.String,
			Null:    null.String,
			Key:     key.String,
			Default: defaultVal,
			Extra:   extra.String,
		})
		if core.ParseTypeString(colType.String).Unknown {
			e.logger.Warn("unknown column type, treating as longtext",
				"table", table, "column", field.String, "type", colType.String)
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// describeRow is one row of DESCRIBE output.
type describeRow struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default sql.NullString
	Extra   string
}

// buildColumn maps a DESCRIBE row onto a ColumnSpec: the type string is
// tokenized, the key role split into primary/unique membership, and the
// default normalized (the CURRENT_TIMESTAMP literal and the NULL token both
// collapse to no default).
func buildColumn(row describeRow) *core.ColumnSpec {
	col := &core.ColumnSpec{
		Name:          row.Field,
		RawType:       strings.ToLower(row.Type),
		Nullable:      strings.EqualFold(row.Null, "YES"),
		PrimaryKey:    strings.Contains(row.Key, "PRI"),
		Unique:        strings.Contains(row.Key, "UNI"),
		AutoIncrement: strings.Contains(strings.ToLower(row.Extra), "auto_increment"),
	}
	core.ParseTypeString(row.Type).ApplyTo(col)

	if row.Default.Valid {
		if d := normalizeDefault(row.Default.String); d != nil {
			col.Default = d
		}
	}
	return col
}

func normalizeDefault(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToUpper(trimmed) {
	case "NULL", "CURRENT_TIMESTAMP", "CURRENT_TIMESTAMP()":
		return nil
	}
	trimmed = strings.Trim(trimmed, `'"`)
	return &trimmed
}
