package shared

import "github.com/shopspring/decimal"

// Monetary values carry two fractional digits, percentages up to three.
// Rounding is half away from zero and happens at the point a discounted
// price is computed, never on accumulated sums.
const (
	MoneyScale   = 2
	PercentScale = 3
)

// RoundMoney rounds to the monetary scale, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundPercent rounds to the percentage scale, half away from zero.
func RoundPercent(d decimal.Decimal) decimal.Decimal {
	return d.Round(PercentScale)
}

// ApplyDiscount returns the unit price after a percentage discount, rounded
// per line before any accumulation.
func ApplyDiscount(price, percent decimal.Decimal) decimal.Decimal {
	if percent.IsZero() {
		return RoundMoney(price)
	}
	factor := decimal.NewFromInt(1).Sub(percent.Div(decimal.NewFromInt(100)))
	return RoundMoney(price.Mul(factor))
}
