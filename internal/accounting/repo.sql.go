package accounting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/accounting/reports"
)

// Repository aggregates journal lines for the report engine.
type Repository interface {
	AccountBalances(ctx context.Context, from, to *time.Time) ([]reports.AccountBalance, error)
	SumByFilter(ctx context.Context, filter BalanceFilter) (debit, credit decimal.Decimal, err error)
	CashTotals(ctx context.Context, codes []string, from, to time.Time) (opening, periodDebit, periodCredit decimal.Decimal, err error)
	MonthlyTax(ctx context.Context, outputCode, inputCode string, from, to time.Time) ([]reports.MonthlyTaxTotals, error)
}

// BalanceFilter scopes the balance primitive by account type or explicit
// codes plus an optional date window.
type BalanceFilter struct {
	Types []string
	Codes []string
	From  *time.Time
	To    *time.Time
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed aggregation repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) AccountBalances(ctx context.Context, from, to *time.Time) ([]reports.AccountBalance, error) {
	rows, err := r.db.Query(ctx, `
SELECT a.code, a.name, a.type,
       COALESCE(SUM(l.debit), 0)  AS debit,
       COALESCE(SUM(l.credit), 0) AS credit
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journals j ON j.id = l.journal_id
    AND ($1::timestamptz IS NULL OR j.date >= $1)
    AND ($2::timestamptz IS NULL OR j.date <= $2)
WHERE l.journal_id IS NULL OR j.id IS NOT NULL
GROUP BY a.code, a.name, a.type
ORDER BY a.code`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []reports.AccountBalance
	for rows.Next() {
		var b reports.AccountBalance
		if err := rows.Scan(&b.Code, &b.Name, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) SumByFilter(ctx context.Context, filter BalanceFilter) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := r.db.QueryRow(ctx, `
SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journals j ON j.id = l.journal_id
JOIN accounts a ON a.id = l.account_id
WHERE (cardinality($1::text[]) = 0 OR a.type = ANY($1))
  AND (cardinality($2::text[]) = 0 OR a.code = ANY($2))
  AND ($3::timestamptz IS NULL OR j.date >= $3)
  AND ($4::timestamptz IS NULL OR j.date <= $4)`,
		filter.Types, filter.Codes, filter.From, filter.To).Scan(&debit, &credit)
	return debit, credit, err
}

func (r *repository) CashTotals(ctx context.Context, codes []string, from, to time.Time) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	var opening, periodDebit, periodCredit decimal.Decimal
	err := r.db.QueryRow(ctx, `
SELECT
    COALESCE(SUM(CASE WHEN j.date <  $2 THEN l.debit - l.credit ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN j.date >= $2 AND j.date <= $3 THEN l.debit  ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN j.date >= $2 AND j.date <= $3 THEN l.credit ELSE 0 END), 0)
FROM journal_lines l
JOIN journals j ON j.id = l.journal_id
JOIN accounts a ON a.id = l.account_id
WHERE a.code = ANY($1)`, codes, from, to).Scan(&opening, &periodDebit, &periodCredit)
	return opening, periodDebit, periodCredit, err
}

func (r *repository) MonthlyTax(ctx context.Context, outputCode, inputCode string, from, to time.Time) ([]reports.MonthlyTaxTotals, error) {
	rows, err := r.db.Query(ctx, `
SELECT to_char(date_trunc('month', j.date), 'YYYY-MM') AS month,
       COALESCE(SUM(CASE WHEN a.code = $1 THEN l.debit  ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN a.code = $1 THEN l.credit ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN a.code = $2 THEN l.debit  ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN a.code = $2 THEN l.credit ELSE 0 END), 0)
FROM journal_lines l
JOIN journals j ON j.id = l.journal_id
JOIN accounts a ON a.id = l.account_id
WHERE a.code IN ($1, $2) AND j.date >= $3 AND j.date <= $4
GROUP BY 1
ORDER BY 1`, outputCode, inputCode, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []reports.MonthlyTaxTotals
	for rows.Next() {
		var t reports.MonthlyTaxTotals
		if err := rows.Scan(&t.Month, &t.OutputDebit, &t.OutputCredit, &t.InputDebit, &t.InputCredit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
