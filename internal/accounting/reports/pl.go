package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/accounting/accounts"
)

// ProfitAndLossAccount represents a revenue or expense account summary.
type ProfitAndLossAccount struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string                 `json:"label"`
	Accounts []ProfitAndLossAccount `json:"accounts"`
	Total    decimal.Decimal        `json:"total"`
}

// ProfitAndLoss contains the structured output for the report. Cost of
// goods sold is split from operating expenses so gross profit is visible.
type ProfitAndLoss struct {
	Revenue          ProfitAndLossSection `json:"revenue"`
	CostOfGoodsSold  ProfitAndLossSection `json:"cost_of_goods_sold"`
	OperatingExpense ProfitAndLossSection `json:"operating_expense"`
	GrossProfit      decimal.Decimal      `json:"gross_profit"`
	NetProfit        decimal.Decimal      `json:"net_profit"`
}

// BuildProfitAndLoss aggregates balances into revenue, COGS, and expense
// sections. Revenue accounts are credit-normal and therefore inverted.
func BuildProfitAndLoss(balances []AccountBalance) ProfitAndLoss {
	revenue := ProfitAndLossSection{Label: "Revenue"}
	cogs := ProfitAndLossSection{Label: "Cost of Goods Sold"}
	expense := ProfitAndLossSection{Label: "Operating Expense"}

	for _, b := range balances {
		switch strings.ToLower(b.Type) {
		case "revenue":
			row := ProfitAndLossAccount{Code: b.Code, Name: b.Name, Amount: b.Credit.Sub(b.Debit)}
			revenue.Accounts = append(revenue.Accounts, row)
			revenue.Total = revenue.Total.Add(row.Amount)
		case "expense":
			row := ProfitAndLossAccount{Code: b.Code, Name: b.Name, Amount: b.Debit.Sub(b.Credit)}
			if b.Code == accounts.CodeCOGS || strings.HasPrefix(b.Code, accounts.CodeCOGS+".") {
				cogs.Accounts = append(cogs.Accounts, row)
				cogs.Total = cogs.Total.Add(row.Amount)
			} else {
				expense.Accounts = append(expense.Accounts, row)
				expense.Total = expense.Total.Add(row.Amount)
			}
		}
	}

	for _, section := range []*ProfitAndLossSection{&revenue, &cogs, &expense} {
		accs := section.Accounts
		sort.Slice(accs, func(i, j int) bool { return accs[i].Code < accs[j].Code })
	}

	gross := revenue.Total.Sub(cogs.Total)
	return ProfitAndLoss{
		Revenue:          revenue,
		CostOfGoodsSold:  cogs,
		OperatingExpense: expense,
		GrossProfit:      gross,
		NetProfit:        gross.Sub(expense.Total),
	}
}
