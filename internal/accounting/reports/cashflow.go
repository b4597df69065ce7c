package reports

import "github.com/shopspring/decimal"

// CashFlow reports cash movement on the cash and bank accounts over a
// period: opening balance (everything before the period) plus period
// inflow and outflow equals the closing balance.
type CashFlow struct {
	Opening decimal.Decimal `json:"opening"`
	In      decimal.Decimal `json:"in"`
	Out     decimal.Decimal `json:"out"`
	Closing decimal.Decimal `json:"closing"`
}

// BuildCashFlow assembles the statement from the pre-period balance on cash
// accounts and the in-period debit/credit totals.
func BuildCashFlow(opening, periodDebit, periodCredit decimal.Decimal) CashFlow {
	return CashFlow{
		Opening: opening,
		In:      periodDebit,
		Out:     periodCredit,
		Closing: opening.Add(periodDebit).Sub(periodCredit),
	}
}
