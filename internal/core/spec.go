// Package core contains the single source of truth for extracted database
// specifications. It provides a structured representation of tables, columns,
// and constraints that the planner, router, and fabricator operate on.
package core

import (
	"fmt"
	"math"
	"strings"
)

// Dialect identifies a supported SQL dialect.
type Dialect string

const (
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
	DialectSQLite     Dialect = "sqlite"
)

// SupportedDialects returns a slice of all supported dialect values.
func SupportedDialects() []Dialect {
	return []Dialect{DialectMySQL, DialectPostgreSQL, DialectSQLite}
}

// ValidDialect reports whether d is a recognized dialect string.
func ValidDialect(d string) bool {
	for _, supported := range SupportedDialects() {
		if strings.EqualFold(string(supported), d) {
			return true
		}
	}
	return false
}

// BaseType is the closed set of column base types the fabricator understands.
type BaseType string

const (
	TypeTinyInt    BaseType = "tinyint"
	TypeSmallInt   BaseType = "smallint"
	TypeMediumInt  BaseType = "mediumint"
	TypeInt        BaseType = "int"
	TypeBigInt     BaseType = "bigint"
	TypeDecimal    BaseType = "decimal"
	TypeFloat      BaseType = "float"
	TypeDouble     BaseType = "double"
	TypeChar       BaseType = "char"
	TypeVarChar    BaseType = "varchar"
	TypeTinyText   BaseType = "tinytext"
	TypeText       BaseType = "text"
	TypeMediumText BaseType = "mediumtext"
	TypeLongText   BaseType = "longtext"
	TypeBinary     BaseType = "binary"
	TypeVarBinary  BaseType = "varbinary"
	TypeTinyBlob   BaseType = "tinyblob"
	TypeBlob       BaseType = "blob"
	TypeMediumBlob BaseType = "mediumblob"
	TypeLongBlob   BaseType = "longblob"
	TypeDate       BaseType = "date"
	TypeTime       BaseType = "time"
	TypeDateTime   BaseType = "datetime"
	TypeTimestamp  BaseType = "timestamp"
	TypeYear       BaseType = "year"
	TypeEnum       BaseType = "enum"
	TypeSet        BaseType = "set"
	TypeJSON       BaseType = "json"
)

// IsInteger reports whether t is one of the signed integer types.
func (t BaseType) IsInteger() bool {
	switch t {
	case TypeTinyInt, TypeSmallInt, TypeMediumInt, TypeInt, TypeBigInt:
		return true
	}
	return false
}

// IsCharacter reports whether t stores character data subject to MaxLength.
func (t BaseType) IsCharacter() bool {
	switch t {
	case TypeChar, TypeVarChar, TypeTinyText, TypeText, TypeMediumText, TypeLongText:
		return true
	}
	return false
}

// IsBinary reports whether t stores raw byte sequences.
func (t BaseType) IsBinary() bool {
	switch t {
	case TypeBinary, TypeVarBinary, TypeTinyBlob, TypeBlob, TypeMediumBlob, TypeLongBlob:
		return true
	}
	return false
}

// IsTemporal reports whether t is a date or time type.
func (t BaseType) IsTemporal() bool {
	switch t {
	case TypeDate, TypeTime, TypeDateTime, TypeTimestamp, TypeYear:
		return true
	}
	return false
}

// ColumnSpec is the authoritative description of one column, assembled from
// the live catalog by the extractor.
type ColumnSpec struct {
	Name          string   `json:"name"`
	RawType       string   `json:"rawType"`
	BaseType      BaseType `json:"baseType"`
	MaxLength     *int     `json:"maxLength,omitempty"`
	Precision     *int     `json:"precision,omitempty"`
	Scale         *int     `json:"scale,omitempty"`
	Nullable      bool     `json:"nullable"`
	Default       *string  `json:"default,omitempty"`
	AutoIncrement bool     `json:"autoIncrement"`
	PrimaryKey    bool     `json:"primaryKey"`
	Unique        bool     `json:"unique"`
	Unsigned      bool     `json:"unsigned,omitempty"`
	EnumValues    []string `json:"enumValues,omitempty"`
	MinValue      float64  `json:"minValue"`
	MaxValue      float64  `json:"maxValue"`
}

// IsBoolean reports whether the column is a tinyint(1), which by MySQL
// convention carries only {0,1}.
func (c *ColumnSpec) IsBoolean() bool {
	return c.BaseType == TypeTinyInt && c.MaxLength != nil && *c.MaxLength == 1
}

// integer type extremes, signed two's complement per declared width.
var integerRanges = map[BaseType][2]float64{
	TypeTinyInt:   {-128, 127},
	TypeSmallInt:  {-32768, 32767},
	TypeMediumInt: {-8388608, 8388607},
	TypeInt:       {-2147483648, 2147483647},
	TypeBigInt:    {math.MinInt64, math.MaxInt64},
}

// DeriveRange computes MinValue/MaxValue from the base type, precision, and
// scale. Non-numeric types are left at the zero range.
func (c *ColumnSpec) DeriveRange() {
	switch {
	case c.BaseType.IsInteger():
		r := integerRanges[c.BaseType]
		c.MinValue, c.MaxValue = r[0], r[1]
		if c.Unsigned {
			c.MinValue = 0
		}
	case c.BaseType == TypeDecimal && c.Precision != nil:
		scale := 0
		if c.Scale != nil {
			scale = *c.Scale
		}
		max := math.Pow(10, float64(*c.Precision-scale)) - math.Pow(10, float64(-scale))
		c.MinValue, c.MaxValue = -max, max
		if c.Unsigned {
			c.MinValue = 0
		}
	case c.BaseType == TypeFloat:
		c.MinValue, c.MaxValue = -math.MaxFloat32, math.MaxFloat32
	case c.BaseType == TypeDouble:
		c.MinValue, c.MaxValue = -math.MaxFloat64, math.MaxFloat64
	}
}

// ForeignKey describes one foreign-key constraint. LocalColumns and
// ReferencedColumns always have the same arity.
type ForeignKey struct {
	ConstraintName    string   `json:"constraintName"`
	LocalColumns      []string `json:"localColumns"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
}

// ReferencedColumnFor returns the referenced column paired with the given
// local column, falling back to "id" when the pairing is incomplete.
func (fk *ForeignKey) ReferencedColumnFor(localColumn string) string {
	for i, lc := range fk.LocalColumns {
		if lc == localColumn && i < len(fk.ReferencedColumns) {
			return fk.ReferencedColumns[i]
		}
	}
	return "id"
}

// CheckConstraint is a named boolean expression the database enforces.
type CheckConstraint struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// IndexEntry is one (index, column) row from the catalog, kept flat so
// composite unique constraints can be reconstructed by grouping on Name.
type IndexEntry struct {
	Name     string `json:"name"`
	Column   string `json:"column"`
	Unique   bool   `json:"unique"`
	Type     string `json:"type,omitempty"`
	Sequence int    `json:"sequence"`
}

// TableSpec is the complete extracted specification of one table.
type TableSpec struct {
	Name              string             `json:"name"`
	Columns           []*ColumnSpec      `json:"columns"`
	PrimaryKeys       []string           `json:"primaryKeys"`
	UniqueConstraints [][]string         `json:"uniqueConstraints,omitempty"`
	ForeignKeys       []*ForeignKey      `json:"foreignKeys,omitempty"`
	CheckConstraints  []*CheckConstraint `json:"checkConstraints,omitempty"`
	Indexes           []*IndexEntry      `json:"indexes,omitempty"`
	RowCount          int64              `json:"rowCount"`
}

// FindColumn looks up a column by name.
func (t *TableSpec) FindColumn(name string) *ColumnSpec {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ForeignKeyFor returns the foreign key that covers the given local column,
// or nil when the column is not a foreign key.
func (t *TableSpec) ForeignKeyFor(column string) *ForeignKey {
	for _, fk := range t.ForeignKeys {
		for _, lc := range fk.LocalColumns {
			if lc == column {
				return fk
			}
		}
	}
	return nil
}

// IsForeignKey reports whether column participates in any foreign key.
func (t *TableSpec) IsForeignKey(column string) bool {
	return t.ForeignKeyFor(column) != nil
}

// Validate checks structural invariants the rest of the pipeline relies on.
func (t *TableSpec) Validate() error {
	for _, fk := range t.ForeignKeys {
		if len(fk.LocalColumns) != len(fk.ReferencedColumns) {
			return fmt.Errorf("table %s: foreign key %s has %d local columns but %d referenced columns",
				t.Name, fk.ConstraintName, len(fk.LocalColumns), len(fk.ReferencedColumns))
		}
	}
	return nil
}

// String returns a short summary of the table, for logs.
func (t *TableSpec) String() string {
	return fmt.Sprintf("Table: %s (%d cols, %d fks, %d rows)",
		t.Name, len(t.Columns), len(t.ForeignKeys), t.RowCount)
}
