package notify

import (
	"github.com/quailyquaily/chipdesk/internal/money"
	"github.com/shopspring/decimal"
)

// IncomeAlert is the operator alert for a newly recorded transaction.
func IncomeAlert(alias string, amount decimal.Decimal) string {
	return "Income detected on " + alias + ": $" + FormatAmount(amount)
}

// FormatAmount renders two decimals with comma grouping, e.g. 7,000.00.
func FormatAmount(d decimal.Decimal) string {
	return money.Format(d)
}
