package mailwatch

import (
	"regexp"

	"github.com/quailyquaily/chipdesk/internal/money"
	"github.com/shopspring/decimal"
)

var creditedPattern = regexp.MustCompile(`(?i)(?:acreditad[oa]s?|credited)\s*\$?\s*([\d.,]+)`)

// ParseAmount reads a localized amount; see money.Parse.
func ParseAmount(s string) (decimal.Decimal, bool) {
	return money.Parse(s)
}

// ExtractAmount finds the first credited-amount notice in body.
func ExtractAmount(body string) (decimal.Decimal, bool) {
	m := creditedPattern.FindStringSubmatch(body)
	if len(m) < 2 {
		return decimal.Decimal{}, false
	}
	return ParseAmount(m[1])
}
