package fabricate

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"dbmock/internal/core"
)

// Class is the column-name affinity class that biases character fabrication
// toward a realistic format.
type Class int

const (
	ClassGeneric Class = iota
	ClassEmail
	ClassPhone
	ClassName
	ClassAddress
	ClassURL
	ClassCode
	ClassDescription
)

// Classify maps a column name onto its affinity class. Matching is
// case-insensitive substring containment; the literal primary-key column
// "id" stays generic (it is almost always numeric anyway).
func Classify(column string) Class {
	lower := strings.ToLower(column)
	switch {
	case strings.Contains(lower, "email"):
		return ClassEmail
	case strings.Contains(lower, "phone"), strings.Contains(lower, "mobile"), strings.Contains(lower, "tel"):
		return ClassPhone
	case strings.Contains(lower, "name"), strings.Contains(lower, "title"):
		return ClassName
	case strings.Contains(lower, "address"), strings.Contains(lower, "location"):
		return ClassAddress
	case strings.Contains(lower, "url"), strings.Contains(lower, "link"), strings.Contains(lower, "website"):
		return ClassURL
	case strings.Contains(lower, "comment"), strings.Contains(lower, "description"), strings.Contains(lower, "note"):
		return ClassDescription
	case (strings.Contains(lower, "code") || strings.Contains(lower, "id")) && lower != "id":
		return ClassCode
	default:
		return ClassGeneric
	}
}

// textTypeCaps bounds fabricated text by the type's intrinsic capacity when
// no declared length exists. The larger text types are capped well below
// capacity — nobody wants 4 GB of lorem ipsum per row.
var textTypeCaps = map[core.BaseType]int{
	core.TypeChar:       255,
	core.TypeVarChar:    255,
	core.TypeTinyText:   255,
	core.TypeText:       1000,
	core.TypeMediumText: 1000,
	core.TypeLongText:   1000,
}

// effectiveMaxLength resolves the byte budget for a character column.
func effectiveMaxLength(col *core.ColumnSpec) int {
	if col.MaxLength != nil {
		return *col.MaxLength
	}
	if limit, ok := textTypeCaps[col.BaseType]; ok {
		return limit
	}
	return 255
}

// stringValue fabricates a character value by affinity class, then enforces
// the length budget with the class-aware truncation rules.
func (f *Fabricator) stringValue(col *core.ColumnSpec) string {
	maxLen := effectiveMaxLength(col)
	class := Classify(col.Name)

	var value string
	switch class {
	case ClassEmail:
		value = f.faker.Email()

	case ClassPhone:
		value = f.faker.PhoneFormatted()

	case ClassName:
		switch {
		case maxLen <= 10:
			value = f.faker.FirstName()
		case maxLen <= 25:
			value = f.faker.Name()
		default:
			value = f.faker.Name() + " " + f.faker.LastName()
		}

	case ClassAddress:
		if maxLen <= 50 {
			value = f.faker.Street()
		} else {
			value = fmt.Sprintf("%s, %s, %s %s",
				f.faker.Street(), f.faker.City(), f.faker.StateAbr(), f.faker.Zip())
		}

	case ClassURL:
		value = f.faker.URL()

	case ClassCode:
		value = f.codeToken(maxLen)

	case ClassDescription:
		if maxLen <= 50 {
			value = f.faker.Sentence(5)
		} else {
			value = f.faker.Paragraph(1, 3, 8, " ")
		}

	default:
		value = f.genericToken(maxLen)
	}

	return Truncate(class, value, maxLen)
}

const upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeToken yields an identifier-looking string: short columns get an
// upper-case alphanumeric token, longer ones a UUID. The UUID is drawn from
// the fabricator's own randomness so seeded runs stay reproducible.
func (f *Fabricator) codeToken(maxLen int) string {
	if maxLen <= 10 {
		k := minInt(maxLen, 8)
		buf := make([]byte, k)
		for i := range buf {
			buf[i] = upperAlnum[f.rng.IntN(len(upperAlnum))]
		}
		return string(buf)
	}
	id, err := uuid.NewRandomFromReader(f)
	if err != nil {
		return f.faker.Word()
	}
	s := id.String()
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// Read makes the fabricator an io.Reader of deterministic bytes, feeding
// uuid.NewRandomFromReader.
func (f *Fabricator) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(f.rng.IntN(256))
	}
	return len(p), nil
}

// genericToken produces a length-appropriate filler string.
func (f *Fabricator) genericToken(maxLen int) string {
	switch {
	case maxLen <= 5:
		k := 1 + f.rng.IntN(maxLen)
		buf := make([]byte, k)
		for i := range buf {
			buf[i] = byte('a' + f.rng.IntN(26))
		}
		return string(buf)
	case maxLen <= 20:
		return f.faker.Word()
	case maxLen <= 50:
		return f.faker.Sentence(4)
	default:
		return f.faker.Paragraph(1, 2, 10, " ")
	}
}
