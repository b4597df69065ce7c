package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoflow/tokoflow/internal/platform/db"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// Repository encapsulates DB operations for inventory.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductBySKU(ctx context.Context, sku string) (Product, error)
	ListProducts(ctx context.Context, search string, page shared.Pagination) ([]Product, int, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	ListMutations(ctx context.Context, productID int64, limit int) ([]StockMutation, error)
	SumMutations(ctx context.Context, productID int64) (int64, error)
}

// TxRepository exposes the operations valid inside a stock transaction.
// Every read-then-write against a product goes through GetProductForUpdate
// so concurrent movements serialize on the row lock.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (Product, error)
	UpdateProductCounters(ctx context.Context, productID, stockQty, allocatedQty int64) error
	InsertMutation(ctx context.Context, m StockMutation) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, sku, name, stock_quantity, allocated_quantity, min_stock, price, base_price, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.StockQuantity, &p.AllocatedQuantity, &p.MinStock, &p.Price, &p.BasePrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: product", shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (r *repository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku=$1`, sku))
}

func (r *repository) ListProducts(ctx context.Context, search string, page shared.Pagination) ([]Product, int, error) {
	spec := shared.NewQuerySpec(shared.SearchFilter{Columns: []string{"sku", "name"}, Term: search})
	where, args := spec.Where()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PerPage, (page.Page-1)*page.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY sku ASC LIMIT $%d OFFSET $%d`, productColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.StockQuantity, &p.AllocatedQuantity, &p.MinStock, &p.Price, &p.BasePrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO products (sku, name, stock_quantity, allocated_quantity, min_stock, price, base_price)
VALUES ($1,$2,0,0,$3,$4,$5) RETURNING `+productColumns,
		p.SKU, p.Name, p.MinStock, p.Price, p.BasePrice)
	return scanProduct(row)
}

func (r *repository) ListMutations(ctx context.Context, productID int64, limit int) ([]StockMutation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, product_id, type, qty, reference_id, note, created_at
FROM stock_mutations WHERE product_id=$1 ORDER BY id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockMutation
	for rows.Next() {
		var m StockMutation
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Qty, &m.ReferenceID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SumMutations returns the signed running sum of the mutation log, used by
// the consistency check against the denormalized counters.
func (r *repository) SumMutations(ctx context.Context, productID int64) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx, `
SELECT COALESCE(SUM(CASE WHEN type = 'out' THEN -qty ELSE qty END), 0)
FROM stock_mutations WHERE product_id=$1`, productID).Scan(&sum)
	return sum, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, productID))
}

func (r *txRepository) UpdateProductCounters(ctx context.Context, productID, stockQty, allocatedQty int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE products SET stock_quantity=$2, allocated_quantity=$3, updated_at=NOW() WHERE id=$1`, productID, stockQty, allocatedQty)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: product", shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) InsertMutation(ctx context.Context, m StockMutation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_mutations (product_id, type, qty, reference_id, note)
VALUES ($1,$2,$3,$4,$5)`, m.ProductID, m.Type, m.Qty, m.ReferenceID, m.Note)
	return err
}
