package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet is the structured response for the balance sheet report.
// CurrentEarnings carries the not-yet-closed net income so the statement
// ties out: Assets - (Liabilities + Equity + CurrentEarnings) == 0.
type BalanceSheet struct {
	Assets          BalanceSheetSection `json:"assets"`
	Liabilities     BalanceSheetSection `json:"liabilities"`
	Equity          BalanceSheetSection `json:"equity"`
	CurrentEarnings decimal.Decimal     `json:"current_earnings"`
	OutOfBalance    decimal.Decimal     `json:"out_of_balance"`
}

// BuildBalanceSheet aggregates balances as of a date. The input must cover
// every account type: revenue and expense rows feed CurrentEarnings.
func BuildBalanceSheet(balances []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}
	earnings := decimal.Zero

	for _, b := range balances {
		row := BalanceSheetAccount{Code: b.Code, Name: b.Name, Balance: b.Closing()}
		switch strings.ToLower(b.Type) {
		case "asset":
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case "liability":
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case "equity":
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		case "revenue":
			earnings = earnings.Add(b.Credit.Sub(b.Debit))
		case "expense":
			earnings = earnings.Sub(b.Debit.Sub(b.Credit))
		}
	}

	for _, section := range []*BalanceSheetSection{&assets, &liabilities, &equity} {
		accs := section.Accounts
		sort.Slice(accs, func(i, j int) bool { return accs[i].Code < accs[j].Code })
	}

	outOfBalance := assets.Total.Sub(liabilities.Total.Add(equity.Total).Add(earnings))
	return BalanceSheet{
		Assets:          assets,
		Liabilities:     liabilities,
		Equity:          equity,
		CurrentEarnings: earnings,
		OutOfBalance:    outOfBalance,
	}
}
