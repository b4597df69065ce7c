package reports

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AccountBalance is the aggregation row every report builder consumes:
// total debits and credits for one account over the requested date range.
type AccountBalance struct {
	Code   string
	Name   string
	Type   string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Net returns debit minus credit.
func (b AccountBalance) Net() decimal.Decimal {
	return b.Debit.Sub(b.Credit)
}

// Closing returns the balance in the account's natural sign: debit-normal
// for assets and expenses, credit-normal for the rest.
func (b AccountBalance) Closing() decimal.Decimal {
	switch strings.ToLower(b.Type) {
	case "asset", "expense":
		return b.Debit.Sub(b.Credit)
	default:
		return b.Credit.Sub(b.Debit)
	}
}
