// Package money parses and renders peso amounts as two-place decimals.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Parse reads a localized amount such as "7.000", "1.000,50" or "7,5".
// With both separators the rightmost one is the decimal mark; a lone "." is
// grouping and a lone "," is decimal. The result is rounded to cents.
func Parse(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimRight(b.String(), ".,")
	if clean == "" {
		return decimal.Decimal{}, false
	}

	lastDot := strings.LastIndexByte(clean, '.')
	lastComma := strings.LastIndexByte(clean, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalMark, grouping := ",", "."
		if lastDot > lastComma {
			decimalMark, grouping = ".", ","
		}
		clean = strings.ReplaceAll(clean, grouping, "")
		clean = strings.Replace(clean, decimalMark, ".", 1)
	case lastDot >= 0:
		clean = strings.ReplaceAll(clean, ".", "")
	case lastComma >= 0:
		clean = strings.Replace(clean, ",", ".", 1)
	}
	if strings.Count(clean, ".") > 1 || strings.Trim(clean, ".") == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d.Round(2), true
}

// Format renders two decimals with comma thousands grouping, e.g. 7,000.00.
func Format(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
