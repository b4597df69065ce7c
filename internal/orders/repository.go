package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoflow/tokoflow/internal/platform/db"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// Repository encapsulates DB operations for orders and their issues.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter, page shared.Pagination) ([]Order, int, error)
	ListItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	ListOpenByCustomer(ctx context.Context, customerID int64) ([]Order, error)
	// ListStalePending returns IDs of orders still pending since before
	// the cutoff, oldest first. The reaper handles each one separately.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
	GetOpenIssue(ctx context.Context, orderID int64) (OrderIssue, error)
	ListOverdueIssues(ctx context.Context, now time.Time) ([]OrderIssue, error)
}

// ListFilter narrows order listings.
type ListFilter struct {
	Statuses   []string
	CustomerID int64
	From       time.Time
	To         time.Time
}

// TxRepository is the transactional surface of order mutation flows.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error)
	InsertOrder(ctx context.Context, o Order) (Order, error)
	InsertItems(ctx context.Context, items []OrderItem) error
	UpdateStatus(ctx context.Context, orderID int64, status Status) error
	SetCourier(ctx context.Context, orderID, courierID int64) error
	GetOpenIssueForUpdate(ctx context.Context, orderID int64) (OrderIssue, error)
	InsertIssue(ctx context.Context, issue OrderIssue) (OrderIssue, error)
	ResolveIssue(ctx context.Context, issueID int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, customer_id, channel, status, total_amount, discount_amount, courier_id, parent_order_id, stock_released, COALESCE(cancel_reason, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.Channel, &o.Status, &o.TotalAmount, &o.DiscountAmount,
		&o.CourierID, &o.ParentOrderID, &o.StockReleased, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: order", shared.ErrNotFound)
		}
		return Order{}, err
	}
	return o, nil
}

func (r *repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (r *repository) ListOrders(ctx context.Context, filter ListFilter, page shared.Pagination) ([]Order, int, error) {
	filters := []shared.Filter{shared.StatusFilter{Column: "status", Values: filter.Statuses}}
	if filter.CustomerID != 0 {
		filters = append(filters, shared.EqFilter{Column: "customer_id", Value: filter.CustomerID})
	}
	if !filter.From.IsZero() || !filter.To.IsZero() {
		rangeFilter := shared.DateRangeFilter{Column: "created_at"}
		if !filter.From.IsZero() {
			rangeFilter.From = &filter.From
		}
		if !filter.To.IsZero() {
			rangeFilter.To = &filter.To
		}
		filters = append(filters, rangeFilter)
	}
	where, args := shared.NewQuerySpec(filters...).Where()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PerPage, (page.Page-1)*page.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

const itemColumns = `id, order_id, product_id, qty, price_at_purchase, cost_at_purchase, discount_percent`

func (r *repository) ListItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id=$1 ORDER BY product_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]OrderItem, error) {
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.PriceAtPurchase, &it.CostAtPurchase, &it.DiscountPercent); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) ListOpenByCustomer(ctx context.Context, customerID int64) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE customer_id=$1 AND status NOT IN ('completed', 'canceled', 'expired')
		ORDER BY created_at ASC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM orders
		WHERE status='pending' AND created_at < $1
		ORDER BY created_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const issueColumns = `id, order_id, issue_type, COALESCE(note, ''), status='open', due_at, resolved_at, created_at`

func scanIssue(row pgx.Row) (OrderIssue, error) {
	var i OrderIssue
	err := row.Scan(&i.ID, &i.OrderID, &i.Type, &i.Note, &i.Open, &i.DueAt, &i.ResolvedAt, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderIssue{}, fmt.Errorf("%w: order issue", shared.ErrNotFound)
		}
		return OrderIssue{}, err
	}
	return i, nil
}

func (r *repository) GetOpenIssue(ctx context.Context, orderID int64) (OrderIssue, error) {
	return scanIssue(r.db.QueryRow(ctx, `
		SELECT `+issueColumns+` FROM order_issues
		WHERE order_id=$1 AND status='open'`, orderID))
}

func (r *repository) ListOverdueIssues(ctx context.Context, now time.Time) ([]OrderIssue, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+issueColumns+` FROM order_issues
		WHERE status='open' AND due_at < $1
		ORDER BY due_at ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderIssue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
}

func (t *txRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO orders (customer_id, channel, status, total_amount, discount_amount, courier_id, parent_order_id, stock_released, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW(), NOW())
		RETURNING `+orderColumns,
		o.CustomerID, o.Channel, o.Status, o.TotalAmount, o.DiscountAmount, o.CourierID, o.ParentOrderID)
	return scanOrder(row)
}

func (t *txRepository) InsertItems(ctx context.Context, items []OrderItem) error {
	for _, it := range items {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, qty, price_at_purchase, cost_at_purchase, discount_percent)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			it.OrderID, it.ProductID, it.Qty, it.PriceAtPurchase, it.CostAtPurchase, it.DiscountPercent)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, orderID int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, orderID, status)
	return err
}

func (t *txRepository) SetCourier(ctx context.Context, orderID, courierID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET courier_id=$2, updated_at=NOW() WHERE id=$1`, orderID, courierID)
	return err
}

func (t *txRepository) GetOpenIssueForUpdate(ctx context.Context, orderID int64) (OrderIssue, error) {
	return scanIssue(t.tx.QueryRow(ctx, `
		SELECT `+issueColumns+` FROM order_issues
		WHERE order_id=$1 AND status='open' FOR UPDATE`, orderID))
}

func (t *txRepository) InsertIssue(ctx context.Context, issue OrderIssue) (OrderIssue, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO order_issues (order_id, issue_type, note, status, due_at, created_at)
		VALUES ($1, $2, $3, 'open', $4, NOW())
		RETURNING `+issueColumns,
		issue.OrderID, issue.Type, issue.Note, issue.DueAt)
	return scanIssue(row)
}

func (t *txRepository) ResolveIssue(ctx context.Context, issueID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE order_issues SET status='resolved', resolved_at=$2
		WHERE id=$1 AND status='open'`, issueID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: issue already resolved", shared.ErrPreconditionFailed)
	}
	return nil
}
