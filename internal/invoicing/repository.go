package invoicing

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

// Repository encapsulates DB operations for invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	GetByOrder(ctx context.Context, orderID int64) (Invoice, error)
	SetPaymentProof(ctx context.Context, id int64, url string) error
	ClearProof(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// TxRepository is the transactional surface of issuance and settlement.
// GetForUpdate locks the invoice row so concurrent settlements serialize
// on it.
type TxRepository interface {
	Insert(ctx context.Context, inv Invoice) (Invoice, error)
	GetForUpdate(ctx context.Context, id int64) (Invoice, error)
	SetJournal(ctx context.Context, id, journalID int64) error
	// MarkPaid flips the invoice to paid only while it still holds the
	// expected status.
	MarkPaid(ctx context.Context, id int64, expect PaymentStatus, journalID int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const invoiceColumns = `id, order_id, number, payment_status, payment_method, tax_mode_snapshot, subtotal, tax_amount, total, COALESCE(payment_proof_url, ''), COALESCE(journal_id, 0), issued_at, paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.OrderID, &inv.Number, &inv.PaymentStatus, &inv.PaymentMethod,
		&inv.TaxModeSnapshot, &inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.PaymentProofURL,
		&inv.JournalID, &inv.IssuedAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w: invoice", shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
}

func (r *repository) GetByOrder(ctx context.Context, orderID int64) (Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id=$1`, orderID))
}

func (r *repository) SetPaymentProof(ctx context.Context, id int64, url string) error {
	_, err := r.db.Exec(ctx, `UPDATE invoices SET payment_proof_url=$2, updated_at=NOW() WHERE id=$1`, id, url)
	return err
}

func (r *repository) ClearProof(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE invoices SET payment_proof_url=NULL, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, id)
	return err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Insert(ctx context.Context, inv Invoice) (Invoice, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (order_id, number, payment_status, payment_method, tax_mode_snapshot, subtotal, tax_amount, total, journal_id, issued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0), $10, NOW(), NOW())
		RETURNING `+invoiceColumns,
		inv.OrderID, inv.Number, inv.PaymentStatus, inv.PaymentMethod, inv.TaxModeSnapshot,
		inv.Subtotal, inv.TaxAmount, inv.Total, inv.JournalID, inv.IssuedAt)
	return scanInvoice(row)
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepository) SetJournal(ctx context.Context, id, journalID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET journal_id=$2, updated_at=NOW() WHERE id=$1`, id, journalID)
	return err
}

func (t *txRepository) MarkPaid(ctx context.Context, id int64, expect PaymentStatus, journalID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices SET payment_status='paid', paid_at=$2, journal_id=COALESCE(NULLIF($3, 0), journal_id), updated_at=NOW()
		WHERE id=$1 AND payment_status=$4`, id, at, journalID, expect)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %d is no longer %s", shared.ErrConcurrencyConflict, id, expect)
	}
	return nil
}
