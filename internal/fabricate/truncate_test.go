package fabricate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateBound(t *testing.T) {
	classes := []Class{
		ClassGeneric, ClassEmail, ClassPhone, ClassName,
		ClassAddress, ClassURL, ClassCode, ClassDescription,
	}
	inputs := []string{
		"charlesworth.brigitte@internationalgroup.info",
		"1-555-028-9384 x7441",
		"Bartholomew Montgomery Featherstonehaugh",
		"48591 Lake Parkway Suite 392, Port Jerrold, WV 20993",
		"https://www.leadingedge-metrics.example/api/v2/items",
		"a quick brown fox jumps over the lazy dog repeatedly",
	}

	for _, class := range classes {
		for _, in := range inputs {
			for _, max := range []int{3, 8, 15, 30, 200} {
				got := Truncate(class, in, max)
				assert.LessOrEqual(t, len(got), max, "class %d input %q max %d", class, in, max)
			}
		}
	}
}

func TestTruncateIdempotent(t *testing.T) {
	cases := []struct {
		class Class
		in    string
		max   int
	}{
		{ClassEmail, "charlesworth.brigitte@internationalgroup.info", 20},
		{ClassEmail, "short@ex.io", 8},
		{ClassPhone, "1-555-028-9384 x7441", 10},
		{ClassPhone, "+1 (555) 028-9384", 7},
		{ClassName, "Bartholomew Montgomery Featherstonehaugh", 18},
		{ClassAddress, "48591 Lake Parkway Suite 392, Port Jerrold", 25},
		{ClassURL, "https://www.example.org/very/long/path", 23},
		{ClassGeneric, "plain filler text value", 9},
	}

	for _, tc := range cases {
		once := Truncate(tc.class, tc.in, tc.max)
		twice := Truncate(tc.class, once, tc.max)
		assert.Equal(t, once, twice, "class %d input %q", tc.class, tc.in)
	}
}

func TestTruncatePhoneKeepsTrailingDigits(t *testing.T) {
	got := Truncate(ClassPhone, "1-555-028-9384 x7441", 10)
	assert.Equal(t, "5550289384", got)

	got = Truncate(ClassPhone, "1-555-028-9384", 4)
	assert.Equal(t, "9384", got)
}

func TestTruncateEmailPreservesDomain(t *testing.T) {
	got := Truncate(ClassEmail, "averylongmailboxname@ex.io", 12)
	assert.Equal(t, "averyl@ex.io", got)
	assert.True(t, strings.HasSuffix(got, "@ex.io"))

	// Domain longer than the budget keeps the TLD-carrying tail.
	got = Truncate(ClassEmail, "bob@subdomain.enterprise-example.com", 14)
	assert.Contains(t, got, "@")
	assert.Contains(t, got, ".")
	assert.LessOrEqual(t, len(got), 14)
}

func TestTruncateURLKeepsSchemeAndHost(t *testing.T) {
	got := Truncate(ClassURL, "https://www.example.org/deep/path?q=1", 23)
	assert.Equal(t, "https://www.example.org", got)
}

func TestTruncateNameCollapsesToFirstAndLast(t *testing.T) {
	got := Truncate(ClassName, "Anna Maria Louisa Rossi", 10)
	assert.Equal(t, "Anna Rossi", got)

	got = Truncate(ClassName, "Anna Featherstonehaugh", 6)
	assert.Equal(t, "Anna", got)
}

func TestTruncateZeroBudget(t *testing.T) {
	assert.Equal(t, "", Truncate(ClassGeneric, "anything", 0))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		column string
		want   Class
	}{
		{"email", ClassEmail},
		{"contact_email", ClassEmail},
		{"phone", ClassPhone},
		{"mobile_number", ClassPhone},
		{"first_name", ClassName},
		{"title", ClassName},
		{"shipping_address", ClassAddress},
		{"location", ClassAddress},
		{"website_url", ClassURL},
		{"permalink", ClassURL},
		{"sku_code", ClassCode},
		{"external_id", ClassCode},
		{"id", ClassGeneric},
		{"description", ClassDescription},
		{"comment", ClassDescription},
		{"payload", ClassGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.column))
		})
	}
}
