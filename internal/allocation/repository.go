package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoflow/tokoflow/internal/inventory"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/platform/db"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// Repository encapsulates DB operations for the allocation engine.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAllocations(ctx context.Context, orderID int64) ([]OrderAllocation, error)
	ListBackorders(ctx context.Context, orderID int64) ([]Backorder, error)
	// ListWaitingOrderIDs returns IDs of orders with an open backorder on
	// the product, oldest first.
	ListWaitingOrderIDs(ctx context.Context, productID int64) ([]int64, error)
}

// TxRepository is the transactional surface of one allocation pass. The
// order row is locked first, then product rows in ascending ID order so
// concurrent passes cannot deadlock.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, orderID int64) (orders.Order, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]orders.OrderItem, error)
	ListAllocations(ctx context.Context, orderID int64) ([]OrderAllocation, error)
	ListBackorders(ctx context.Context, orderID int64) ([]Backorder, error)
	GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error)
	UpdateProductCounters(ctx context.Context, productID, stockQty, allocatedQty int64) error
	InsertStockMutation(ctx context.Context, m inventory.StockMutation) error
	UpsertAllocation(ctx context.Context, orderID, productID, qtyDelta int64) (OrderAllocation, error)
	UpsertBackorder(ctx context.Context, orderID, productID, qtyPending int64) (Backorder, error)
	CancelWaitingBackorders(ctx context.Context, orderID int64) (int64, error)
	MarkAllocationsShipped(ctx context.Context, orderID int64) (int64, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status orders.Status) error
	SetCourier(ctx context.Context, orderID, courierID int64) error
	SetCancelReason(ctx context.Context, orderID int64, reason string) error
	SetStockReleased(ctx context.Context, orderID int64) error
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

const allocationColumns = `id, order_id, product_id, allocated_qty, status, created_at, updated_at`

func scanAllocations(rows pgx.Rows) ([]OrderAllocation, error) {
	defer rows.Close()
	var out []OrderAllocation
	for rows.Next() {
		var a OrderAllocation
		if err := rows.Scan(&a.ID, &a.OrderID, &a.ProductID, &a.AllocatedQty, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) ListAllocations(ctx context.Context, orderID int64) ([]OrderAllocation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+allocationColumns+` FROM order_allocations WHERE order_id=$1 ORDER BY product_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return scanAllocations(rows)
}

const backorderColumns = `id, order_id, product_id, qty_pending, status, created_at, updated_at`

func scanBackorders(rows pgx.Rows) ([]Backorder, error) {
	defer rows.Close()
	var out []Backorder
	for rows.Next() {
		var b Backorder
		if err := rows.Scan(&b.ID, &b.OrderID, &b.ProductID, &b.QtyPending, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) ListBackorders(ctx context.Context, orderID int64) ([]Backorder, error) {
	rows, err := r.db.Query(ctx, `SELECT `+backorderColumns+` FROM backorders WHERE order_id=$1 ORDER BY product_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return scanBackorders(rows)
}

func (r *repository) ListWaitingOrderIDs(ctx context.Context, productID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT order_id FROM backorders
		WHERE product_id=$1 AND status='waiting_stock' AND qty_pending > 0
		ORDER BY created_at ASC, order_id ASC`, productID)
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

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (orders.Order, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, customer_id, channel, status, total_amount, discount_amount, courier_id,
		       parent_order_id, stock_released, COALESCE(cancel_reason, ''), created_at, updated_at
		FROM orders WHERE id=$1 FOR UPDATE`, orderID)
	var o orders.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.Channel, &o.Status, &o.TotalAmount, &o.DiscountAmount,
		&o.CourierID, &o.ParentOrderID, &o.StockReleased, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.Order{}, fmt.Errorf("%w: order", shared.ErrNotFound)
		}
		return orders.Order{}, err
	}
	return o, nil
}

func (t *txRepository) ListOrderItems(ctx context.Context, orderID int64) ([]orders.OrderItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, product_id, qty, price_at_purchase, cost_at_purchase, discount_percent
		FROM order_items WHERE order_id=$1 ORDER BY product_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []orders.OrderItem
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.PriceAtPurchase, &it.CostAtPurchase, &it.DiscountPercent); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (t *txRepository) ListAllocations(ctx context.Context, orderID int64) ([]OrderAllocation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+allocationColumns+` FROM order_allocations WHERE order_id=$1 ORDER BY product_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return scanAllocations(rows)
}

func (t *txRepository) ListBackorders(ctx context.Context, orderID int64) ([]Backorder, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+backorderColumns+` FROM backorders WHERE order_id=$1 ORDER BY product_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return scanBackorders(rows)
}

func (t *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, sku, name, stock_quantity, allocated_quantity, min_stock, price, base_price, created_at, updated_at
		FROM products WHERE id=$1 FOR UPDATE`, productID)
	var p inventory.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.StockQuantity, &p.AllocatedQuantity, &p.MinStock, &p.Price, &p.BasePrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.Product{}, fmt.Errorf("%w: product", shared.ErrNotFound)
		}
		return inventory.Product{}, err
	}
	return p, nil
}

func (t *txRepository) UpdateProductCounters(ctx context.Context, productID, stockQty, allocatedQty int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE products SET stock_quantity=$2, allocated_quantity=$3, updated_at=NOW()
		WHERE id=$1`, productID, stockQty, allocatedQty)
	return err
}

func (t *txRepository) InsertStockMutation(ctx context.Context, m inventory.StockMutation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_mutations (product_id, type, qty, reference_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		m.ProductID, m.Type, m.Qty, m.ReferenceID, m.Note)
	return err
}

func (t *txRepository) UpsertAllocation(ctx context.Context, orderID, productID, qtyDelta int64) (OrderAllocation, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO order_allocations (order_id, product_id, allocated_qty, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', NOW(), NOW())
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET allocated_qty = order_allocations.allocated_qty + EXCLUDED.allocated_qty, updated_at = NOW()
		RETURNING `+allocationColumns, orderID, productID, qtyDelta)
	var a OrderAllocation
	if err := row.Scan(&a.ID, &a.OrderID, &a.ProductID, &a.AllocatedQty, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return OrderAllocation{}, err
	}
	return a, nil
}

func (t *txRepository) UpsertBackorder(ctx context.Context, orderID, productID, qtyPending int64) (Backorder, error) {
	status := BackorderWaiting
	if qtyPending == 0 {
		status = BackorderFulfilled
	}
	row := t.tx.QueryRow(ctx, `
		INSERT INTO backorders (order_id, product_id, qty_pending, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET qty_pending = EXCLUDED.qty_pending, status = EXCLUDED.status, updated_at = NOW()
		RETURNING `+backorderColumns, orderID, productID, qtyPending, status)
	var b Backorder
	if err := row.Scan(&b.ID, &b.OrderID, &b.ProductID, &b.QtyPending, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return Backorder{}, err
	}
	return b, nil
}

func (t *txRepository) CancelWaitingBackorders(ctx context.Context, orderID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE backorders SET status='canceled', updated_at=NOW()
		WHERE order_id=$1 AND status='waiting_stock'`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) MarkAllocationsShipped(ctx context.Context, orderID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE order_allocations SET status='shipped', updated_at=NOW()
		WHERE order_id=$1 AND status='pending'`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status orders.Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, orderID, status)
	return err
}

func (t *txRepository) SetCourier(ctx context.Context, orderID, courierID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET courier_id=$2, updated_at=NOW() WHERE id=$1`, orderID, courierID)
	return err
}

func (t *txRepository) SetCancelReason(ctx context.Context, orderID int64, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET cancel_reason=$2, updated_at=NOW() WHERE id=$1`, orderID, reason)
	return err
}

func (t *txRepository) SetStockReleased(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET stock_released=TRUE, updated_at=NOW() WHERE id=$1`, orderID)
	return err
}
