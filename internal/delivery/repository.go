package delivery

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists remittance records.
type Repository interface {
	InsertRemittance(ctx context.Context, r Remittance) (Remittance, error)
	ListRemittances(ctx context.Context, driverID int64, from, to time.Time) ([]Remittance, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const remittanceColumns = `id, reference, driver_id, total, order_count, remitted_at`

func scanRemittance(row pgx.Row) (Remittance, error) {
	var r Remittance
	if err := row.Scan(&r.ID, &r.Reference, &r.DriverID, &r.Total, &r.OrderCount, &r.RemittedAt); err != nil {
		return Remittance{}, err
	}
	return r, nil
}

func (r *repository) InsertRemittance(ctx context.Context, rem Remittance) (Remittance, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO cod_remittances (reference, driver_id, total, order_count, remitted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+remittanceColumns,
		rem.Reference, rem.DriverID, rem.Total, rem.OrderCount, rem.RemittedAt)
	return scanRemittance(row)
}

func (r *repository) ListRemittances(ctx context.Context, driverID int64, from, to time.Time) ([]Remittance, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+remittanceColumns+` FROM cod_remittances
		WHERE driver_id=$1 AND remitted_at BETWEEN $2 AND $3
		ORDER BY remitted_at DESC`, driverID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Remittance
	for rows.Next() {
		rem, err := scanRemittance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}
