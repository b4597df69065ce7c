package reports

import (
	"sort"

	"github.com/shopspring/decimal"
)

// VATMonthlyRow is one month of VAT position: output tax collected on sales
// (credit-normal) minus input tax paid on purchases (debit-normal).
type VATMonthlyRow struct {
	Month  string          `json:"month"` // YYYY-MM
	Output decimal.Decimal `json:"output"`
	Input  decimal.Decimal `json:"input"`
	Net    decimal.Decimal `json:"net"`
}

// MonthlyTaxTotals carries raw debit/credit totals per month per side.
type MonthlyTaxTotals struct {
	Month        string
	OutputDebit  decimal.Decimal
	OutputCredit decimal.Decimal
	InputDebit   decimal.Decimal
	InputCredit  decimal.Decimal
}

// BuildVATMonthly nets output against input tax per month.
func BuildVATMonthly(totals []MonthlyTaxTotals) []VATMonthlyRow {
	rows := make([]VATMonthlyRow, 0, len(totals))
	for _, t := range totals {
		output := t.OutputCredit.Sub(t.OutputDebit)
		input := t.InputDebit.Sub(t.InputCredit)
		rows = append(rows, VATMonthlyRow{
			Month:  t.Month,
			Output: output,
			Input:  input,
			Net:    output.Sub(input),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month < rows[j].Month })
	return rows
}
