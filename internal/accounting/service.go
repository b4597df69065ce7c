// Package accounting derives financial reports from the journal store.
package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/accounting/accounts"
	"github.com/tokoflow/tokoflow/internal/accounting/reports"
	"github.com/tokoflow/tokoflow/internal/platform/cache"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// BalanceQuery parameterises the account balance primitive underlying
// every report.
type BalanceQuery struct {
	Type   string
	Codes  []string
	From   *time.Time
	To     *time.Time
	Invert bool
}

// Service exposes the report engine.
type Service struct {
	repo  Repository
	cache *cache.Cache
}

// NewService builds Service. cache may be nil.
func NewService(repo Repository, c *cache.Cache) *Service {
	return &Service{repo: repo, cache: c}
}

// AccountBalance sums debit-credit (or the inversion) for the matching
// accounts over the date window.
func (s *Service) AccountBalance(ctx context.Context, q BalanceQuery) (decimal.Decimal, error) {
	if q.Type == "" && len(q.Codes) == 0 {
		return decimal.Zero, fmt.Errorf("%w: account type or codes required", shared.ErrValidation)
	}
	var types []string
	if q.Type != "" {
		types = []string{q.Type}
	}
	debit, credit, err := s.repo.SumByFilter(ctx, BalanceFilter{
		Types: types,
		Codes: q.Codes,
		From:  q.From,
		To:    q.To,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if q.Invert {
		return credit.Sub(debit), nil
	}
	return debit.Sub(credit), nil
}

// ProfitAndLoss builds the P&L over the date range.
func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (reports.ProfitAndLoss, error) {
	var pl reports.ProfitAndLoss
	err := s.cached(ctx, keyFor("pnl", from, to), &pl, func(ctx context.Context) (interface{}, error) {
		balances, err := s.repo.AccountBalances(ctx, &from, &to)
		if err != nil {
			return nil, err
		}
		return reports.BuildProfitAndLoss(balances), nil
	})
	return pl, err
}

// BalanceSheet builds the statement of financial position as of a date.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (reports.BalanceSheet, error) {
	var bs reports.BalanceSheet
	err := s.cached(ctx, keyFor("bs", time.Time{}, asOf), &bs, func(ctx context.Context) (interface{}, error) {
		balances, err := s.repo.AccountBalances(ctx, nil, &asOf)
		if err != nil {
			return nil, err
		}
		return reports.BuildBalanceSheet(balances), nil
	})
	return bs, err
}

// CashFlow builds the cash movement report on cash and bank accounts.
func (s *Service) CashFlow(ctx context.Context, from, to time.Time) (reports.CashFlow, error) {
	var cf reports.CashFlow
	err := s.cached(ctx, keyFor("cashflow", from, to), &cf, func(ctx context.Context) (interface{}, error) {
		opening, debit, credit, err := s.repo.CashTotals(ctx, accounts.CashCodes, from, to)
		if err != nil {
			return nil, err
		}
		return reports.BuildCashFlow(opening, debit, credit), nil
	})
	return cf, err
}

// VATMonthly nets output tax against input tax per calendar month.
func (s *Service) VATMonthly(ctx context.Context, from, to time.Time) ([]reports.VATMonthlyRow, error) {
	var rows []reports.VATMonthlyRow
	err := s.cached(ctx, keyFor("vat", from, to), &rows, func(ctx context.Context) (interface{}, error) {
		totals, err := s.repo.MonthlyTax(ctx, accounts.CodeVATOutput, accounts.CodeVATInput, from, to)
		if err != nil {
			return nil, err
		}
		return reports.BuildVATMonthly(totals), nil
	})
	return rows, err
}

func (s *Service) cached(ctx context.Context, keyParts []string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	key, err := s.cache.BuildKey(ctx, keyParts...)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func keyFor(kind string, from, to time.Time) []string {
	return []string{"report", kind, from.Format("2006-01-02"), to.Format("2006-01-02")}
}
