package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// Repository encapsulates DB operations for customers.
type Repository interface {
	Insert(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, c Customer) (Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	GetByPhone(ctx context.Context, phone string) (Customer, error)
	List(ctx context.Context, search string, page shared.Pagination) ([]Customer, int, error)
	SetBanned(ctx context.Context, id int64, reason string, at time.Time) error
	ClearBan(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const customerColumns = `id, name, phone, COALESCE(email, ''), COALESCE(address, ''), banned, COALESCE(ban_reason, ''), banned_at, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Banned, &c.BanReason, &c.BannedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, fmt.Errorf("%w: customer", shared.ErrNotFound)
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) Insert(ctx context.Context, c Customer) (Customer, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO customers (name, phone, email, address, banned, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), FALSE, NOW(), NOW())
		RETURNING `+customerColumns, c.Name, c.Phone, c.Email, c.Address)
	return scanCustomer(row)
}

func (r *repository) Update(ctx context.Context, c Customer) (Customer, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE customers SET name=$2, phone=$3, email=NULLIF($4, ''), address=NULLIF($5, ''), updated_at=NOW()
		WHERE id=$1
		RETURNING `+customerColumns, c.ID, c.Name, c.Phone, c.Email, c.Address)
	return scanCustomer(row)
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id))
}

func (r *repository) GetByPhone(ctx context.Context, phone string) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE phone=$1`, phone))
}

func (r *repository) List(ctx context.Context, search string, page shared.Pagination) ([]Customer, int, error) {
	where, args := shared.NewQuerySpec(
		shared.SearchFilter{Columns: []string{"name", "phone"}, Term: search},
	).Where()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PerPage, (page.Page-1)*page.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM customers %s ORDER BY name ASC LIMIT $%d OFFSET $%d`,
		customerColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) SetBanned(ctx context.Context, id int64, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE customers SET banned=TRUE, ban_reason=$2, banned_at=$3, updated_at=NOW()
		WHERE id=$1 AND banned=FALSE`, id, reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer already banned or missing", shared.ErrPreconditionFailed)
	}
	return nil
}

func (r *repository) ClearBan(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE customers SET banned=FALSE, ban_reason=NULL, banned_at=NULL, updated_at=NOW()
		WHERE id=$1`, id)
	return err
}
