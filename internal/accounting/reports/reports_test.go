package reports

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestBuildProfitAndLoss(t *testing.T) {
	balances := []AccountBalance{
		{Code: "4100", Name: "Sales", Type: "revenue", Credit: d(1200000)},
		{Code: "5100", Name: "COGS", Type: "expense", Debit: d(700000)},
		{Code: "6100", Name: "Rent", Type: "expense", Debit: d(150000)},
		{Code: "6200", Name: "Salaries", Type: "expense", Debit: d(200000)},
	}

	pl := BuildProfitAndLoss(balances)
	require.True(t, pl.Revenue.Total.Equal(d(1200000)))
	require.True(t, pl.CostOfGoodsSold.Total.Equal(d(700000)))
	require.True(t, pl.GrossProfit.Equal(d(500000)))
	require.True(t, pl.OperatingExpense.Total.Equal(d(350000)))
	require.True(t, pl.NetProfit.Equal(d(150000)))
}

func TestBuildProfitAndLossInvertsRevenue(t *testing.T) {
	pl := BuildProfitAndLoss([]AccountBalance{
		{Code: "4100", Name: "Sales", Type: "revenue", Debit: d(50000), Credit: d(150000)},
	})
	require.True(t, pl.Revenue.Total.Equal(d(100000)))
}

func TestBuildBalanceSheetTieOut(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1101", Name: "Cash", Type: "asset", Debit: d(900000), Credit: d(200000)},
		{Code: "1103", Name: "AR", Type: "asset", Debit: d(300000), Credit: d(100000)},
		{Code: "2100", Name: "AP", Type: "liability", Credit: d(250000)},
		{Code: "3100", Name: "Capital", Type: "equity", Credit: d(400000)},
		{Code: "4100", Name: "Sales", Type: "revenue", Credit: d(500000)},
		{Code: "5100", Name: "COGS", Type: "expense", Debit: d(250000)},
	}
	bs := BuildBalanceSheet(balances)
	require.True(t, bs.Assets.Total.Equal(d(900000)))
	require.True(t, bs.CurrentEarnings.Equal(d(250000)))
	require.True(t, bs.OutOfBalance.IsZero(), "assets must equal liabilities+equity+earnings, off by %s", bs.OutOfBalance)
}

// Random balanced journals must always produce a balance sheet that ties
// out, because every posting keeps debits equal to credits.
func TestBalanceSheetTieOutRandomFixtures(t *testing.T) {
	chart := []AccountBalance{
		{Code: "1101", Name: "Cash", Type: "asset"},
		{Code: "1103", Name: "AR", Type: "asset"},
		{Code: "1201", Name: "Inventory", Type: "asset"},
		{Code: "2100", Name: "AP", Type: "liability"},
		{Code: "2201", Name: "VAT Out", Type: "liability"},
		{Code: "3100", Name: "Capital", Type: "equity"},
		{Code: "4100", Name: "Sales", Type: "revenue"},
		{Code: "5100", Name: "COGS", Type: "expense"},
		{Code: "6100", Name: "Rent", Type: "expense"},
	}

	rng := rand.New(rand.NewSource(1))
	for journal := 0; journal < 500; journal++ {
		amount := decimal.NewFromInt(rng.Int63n(1_000_000) + 1)
		di := rng.Intn(len(chart))
		ci := rng.Intn(len(chart))
		chart[di].Debit = chart[di].Debit.Add(amount)
		chart[ci].Credit = chart[ci].Credit.Add(amount)
	}

	bs := BuildBalanceSheet(chart)
	require.True(t, bs.OutOfBalance.IsZero(), "random fixture out of balance by %s", bs.OutOfBalance)
}

func TestBuildCashFlow(t *testing.T) {
	cf := BuildCashFlow(d(100000), d(40000), d(25000))
	require.True(t, cf.Closing.Equal(d(115000)))
}

func TestBuildVATMonthly(t *testing.T) {
	rows := BuildVATMonthly([]MonthlyTaxTotals{
		{Month: "2026-02", OutputCredit: d(22000), InputDebit: d(5000)},
		{Month: "2026-01", OutputCredit: d(11000), OutputDebit: d(1000), InputDebit: d(3000), InputCredit: d(500)},
	})
	require.Len(t, rows, 2)
	require.Equal(t, "2026-01", rows[0].Month)
	require.True(t, rows[0].Output.Equal(d(10000)))
	require.True(t, rows[0].Input.Equal(d(2500)))
	require.True(t, rows[0].Net.Equal(d(7500)))
	require.True(t, rows[1].Net.Equal(d(17000)))
}
