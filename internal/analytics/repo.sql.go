package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoflow/tokoflow/internal/accounting/accounts"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed analytics repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// OpenBalancesByReference groups the open balance per source document.
// Receivables are debit-normal on the AR accounts; payables credit-normal
// on AP. Rows that net to zero (settled documents) are filtered out.
func (r *repository) OpenBalancesByReference(ctx context.Context, asOf time.Time, receivable bool) ([]AgingRow, error) {
	codes := accounts.ReceivableCodes
	balanceExpr := `SUM(l.debit - l.credit)`
	if !receivable {
		codes = []string{accounts.CodeAPTrade}
		balanceExpr = `SUM(l.credit - l.debit)`
	}
	rows, err := r.db.Query(ctx, `
SELECT j.reference_type, j.reference_id, MIN(j.date) AS oldest, `+balanceExpr+` AS balance
FROM journal_lines l
JOIN journals j ON j.id = l.journal_id
JOIN accounts a ON a.id = l.account_id
WHERE a.code = ANY($1) AND j.date <= $2
GROUP BY j.reference_type, j.reference_id
HAVING `+balanceExpr+` <> 0
ORDER BY oldest ASC`, codes, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgingRow
	for rows.Next() {
		var row AgingRow
		if err := rows.Scan(&row.ReferenceType, &row.ReferenceID, &row.OldestDate, &row.Amount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repository) OpenBackordersByProduct(ctx context.Context) ([]BackorderRow, error) {
	rows, err := r.db.Query(ctx, `
SELECT p.id, p.sku,
       COUNT(DISTINCT b.order_id),
       COALESCE(SUM(b.qty_pending), 0),
       COALESCE((SELECT SUM(oa.allocated_qty) FROM order_allocations oa
                 WHERE oa.product_id = p.id AND oa.order_id IN (SELECT order_id FROM backorders WHERE product_id = p.id AND status = 'waiting_stock')), 0)
FROM backorders b
JOIN products p ON p.id = b.product_id
WHERE b.status = 'waiting_stock'
GROUP BY p.id, p.sku
ORDER BY 4 DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BackorderRow
	for rows.Next() {
		var row BackorderRow
		if err := rows.Scan(&row.ProductID, &row.SKU, &row.Orders, &row.QtyPending, &row.QtyAllocated); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
