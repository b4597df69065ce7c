package journals

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

// Repository encapsulates DB operations for journals.
type Repository interface {
	List(ctx context.Context, from, to *time.Time) ([]Journal, error)
	Get(ctx context.Context, id int64) (Journal, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	ResolveActiveAccount(ctx context.Context, code string) (int64, error)
	InsertJournal(ctx context.Context, in PostingInput) (Journal, error)
	InsertJournalLines(ctx context.Context, journalID int64, lines []resolvedLine) error
	GetJournalWithLines(ctx context.Context, journalID int64) (Journal, error)
}

type resolvedLine struct {
	PostingLineInput
	AccountID int64
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const journalColumns = `id, number, date, reference_type, reference_id, description, posted_by, created_at`

func (r *repository) List(ctx context.Context, from, to *time.Time) ([]Journal, error) {
	spec := shared.NewQuerySpec(shared.DateRangeFilter{Column: "date", From: from, To: to})
	where, args := spec.Where()
	rows, err := r.db.Query(ctx, `SELECT `+journalColumns+` FROM journals `+where+` ORDER BY number DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Journal
	for rows.Next() {
		var j Journal
		if err := rows.Scan(&j.ID, &j.Number, &j.Date, &j.ReferenceType, &j.ReferenceID, &j.Description, &j.PostedBy, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Journal, error) {
	var journal Journal
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournalWithLines(ctx, id)
		if err != nil {
			return err
		}
		journal = j
		return nil
	})
	return journal, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) ResolveActiveAccount(ctx context.Context, code string) (int64, error) {
	var id int64
	var active bool
	err := r.tx.QueryRow(ctx, `SELECT id, is_active FROM accounts WHERE code=$1`, code).Scan(&id, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: account %s", shared.ErrNotFound, code)
		}
		return 0, err
	}
	if !active {
		return 0, fmt.Errorf("%w (%s)", ErrInactiveAccount, code)
	}
	return id, nil
}

func (r *txRepository) InsertJournal(ctx context.Context, in PostingInput) (Journal, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journals (date, reference_type, reference_id, description, posted_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id, number, created_at`,
		in.Date, in.ReferenceType, in.ReferenceID, in.Description, in.PostedBy)
	journal := Journal{
		Date:          in.Date,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Description:   in.Description,
		PostedBy:      in.PostedBy,
	}
	if err := row.Scan(&journal.ID, &journal.Number, &journal.CreatedAt); err != nil {
		return Journal{}, err
	}
	return journal, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, journalID int64, lines []resolvedLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (journal_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4)`, journalID, line.AccountID, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, journalID int64) (Journal, error) {
	var j Journal
	err := r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE id=$1`, journalID).
		Scan(&j.ID, &j.Number, &j.Date, &j.ReferenceType, &j.ReferenceID, &j.Description, &j.PostedBy, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, fmt.Errorf("%w: journal %d", shared.ErrNotFound, journalID)
		}
		return Journal{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.journal_id, l.account_id, a.code, l.debit, l.credit, l.created_at
FROM journal_lines l JOIN accounts a ON a.id = l.account_id WHERE l.journal_id=$1 ORDER BY l.id ASC`, journalID)
	if err != nil {
		return Journal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.AccountCode, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return Journal{}, err
		}
		j.TotalDebit = j.TotalDebit.Add(line.Debit)
		j.TotalCredit = j.TotalCredit.Add(line.Credit)
		j.Lines = append(j.Lines, line)
	}
	return j, rows.Err()
}
