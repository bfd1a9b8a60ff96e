package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParsedType is the structured form of a raw SQL type string such as
// "varchar(50)", "decimal(10,2)", or "enum('a','b')". Unknown indicates the
// base type was not recognized and the column degraded to longtext.
type ParsedType struct {
	Base       BaseType
	MaxLength  *int
	Precision  *int
	Scale      *int
	EnumValues []string
	Unsigned   bool
	Unknown    bool
}

// lengthRe matches "type(n)", precisionRe matches "type(p,s)".
var (
	lengthRe    = regexp.MustCompile(`^([a-z ]+?)\((\d+)\)$`)
	precisionRe = regexp.MustCompile(`^([a-z ]+?)\((\d+),\s*(\d+)\)$`)
	quotedValRe = regexp.MustCompile(`'((?:[^']|'')*)'|"((?:[^"]|"")*)"`)
)

// typeAliases folds vendor spellings onto the closed BaseType set before the
// exact-name lookup.
var typeAliases = map[string]BaseType{
	"integer":           TypeInt,
	"numeric":           TypeDecimal,
	"dec":               TypeDecimal,
	"fixed":             TypeDecimal,
	"real":              TypeFloat,
	"double precision":  TypeDouble,
	"character varying": TypeVarChar,
	"character":         TypeChar,
	"bytea":             TypeBlob,
	"clob":              TypeText,
}

var knownTypes = func() map[string]BaseType {
	m := make(map[string]BaseType)
	for _, t := range []BaseType{
		TypeTinyInt, TypeSmallInt, TypeMediumInt, TypeInt, TypeBigInt,
		TypeDecimal, TypeFloat, TypeDouble,
		TypeChar, TypeVarChar, TypeTinyText, TypeText, TypeMediumText, TypeLongText,
		TypeBinary, TypeVarBinary, TypeTinyBlob, TypeBlob, TypeMediumBlob, TypeLongBlob,
		TypeDate, TypeTime, TypeDateTime, TypeTimestamp, TypeYear,
		TypeEnum, TypeSet, TypeJSON,
	} {
		m[string(t)] = t
	}
	for alias, t := range typeAliases {
		m[alias] = t
	}
	return m
}()

// ParseTypeString tokenizes a raw SQL type string into its components. The
// input is lowercased first; the "unsigned", "signed", and "zerofill"
// modifiers are stripped, and only "unsigned" is recorded. Unrecognized base types degrade to longtext with
// Unknown set, never an error — the caller decides whether to warn.
//
// bool and boolean parse as tinyint(1).
func ParseTypeString(raw string) ParsedType {
	s := strings.ToLower(strings.TrimSpace(raw))

	var pt ParsedType
	for _, mod := range []string{" unsigned", " zerofill", " signed"} {
		if strings.Contains(s, mod) {
			if mod == " unsigned" {
				pt.Unsigned = true
			}
			s = strings.ReplaceAll(s, mod, "")
		}
	}
	s = strings.TrimSpace(s)

	if s == "bool" || s == "boolean" {
		one := 1
		pt.Base = TypeTinyInt
		pt.MaxLength = &one
		return pt
	}

	if rest, ok := strings.CutPrefix(s, "enum("); ok {
		pt.Base = TypeEnum
		pt.EnumValues = parseQuotedList(strings.TrimSuffix(rest, ")"))
		return pt
	}
	if rest, ok := strings.CutPrefix(s, "set("); ok {
		pt.Base = TypeSet
		pt.EnumValues = parseQuotedList(strings.TrimSuffix(rest, ")"))
		return pt
	}

	if m := precisionRe.FindStringSubmatch(s); m != nil {
		base, ok := knownTypes[strings.TrimSpace(m[1])]
		if ok && (base == TypeDecimal || base == TypeFloat || base == TypeDouble) {
			p, _ := strconv.Atoi(m[2])
			sc, _ := strconv.Atoi(m[3])
			pt.Base = base
			pt.Precision = &p
			pt.Scale = &sc
			return pt
		}
	}

	if m := lengthRe.FindStringSubmatch(s); m != nil {
		if base, ok := knownTypes[strings.TrimSpace(m[1])]; ok {
			n, _ := strconv.Atoi(m[2])
			pt.Base = base
			switch {
			case base == TypeDecimal:
				pt.Precision = &n
			case base.IsInteger() || base.IsCharacter() || base.IsBinary():
				pt.MaxLength = &n
			}
			return pt
		}
	}

	bare, _, _ := strings.Cut(s, "(")
	if base, ok := knownTypes[strings.TrimSpace(bare)]; ok {
		pt.Base = base
		return pt
	}

	pt.Base = TypeLongText
	pt.Unknown = true
	return pt
}

// parseQuotedList extracts the quoted literals of an enum/set body.
// Surrounding quotes are stripped; whitespace inside literals is preserved.
func parseQuotedList(body string) []string {
	var values []string
	for _, m := range quotedValRe.FindAllStringSubmatch(body, -1) {
		v := m[1]
		if m[2] != "" {
			v = m[2]
		}
		v = strings.ReplaceAll(v, "''", "'")
		values = append(values, v)
	}
	return values
}

// RenderTypeString produces the canonical textual form of a parsed type, the
// inverse of ParseTypeString for every supported type.
func RenderTypeString(pt ParsedType) string {
	var sb strings.Builder
	sb.WriteString(string(pt.Base))

	switch {
	case pt.Base == TypeEnum || pt.Base == TypeSet:
		sb.WriteByte('(')
		for i, v := range pt.EnumValues {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('\'')
			sb.WriteString(strings.ReplaceAll(v, "'", "''"))
			sb.WriteByte('\'')
		}
		sb.WriteByte(')')
	case pt.Precision != nil && pt.Scale != nil:
		fmt.Fprintf(&sb, "(%d,%d)", *pt.Precision, *pt.Scale)
	case pt.Precision != nil:
		fmt.Fprintf(&sb, "(%d)", *pt.Precision)
	case pt.MaxLength != nil:
		fmt.Fprintf(&sb, "(%d)", *pt.MaxLength)
	}

	if pt.Unsigned {
		sb.WriteString(" unsigned")
	}
	return sb.String()
}

// ApplyTo copies the parsed components onto a column spec and derives its
// numeric range.
func (pt ParsedType) ApplyTo(c *ColumnSpec) {
	c.BaseType = pt.Base
	c.MaxLength = pt.MaxLength
	c.Precision = pt.Precision
	c.Scale = pt.Scale
	c.EnumValues = pt.EnumValues
	c.Unsigned = pt.Unsigned
	c.DeriveRange()
}
