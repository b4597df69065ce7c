package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates derived report caches after a posting commits.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service coordinates journal postings. All writes are atomic: either the
// header and every line commit together, or nothing does.
type Service struct {
	repo  Repository
	audit AuditPort
	cache CacheBumper
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, cache CacheBumper) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns journal headers, optionally bounded by date.
func (s *Service) List(ctx context.Context, from, to *time.Time) ([]Journal, error) {
	return s.repo.List(ctx, from, to)
}

// Get fetches a journal with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Journal, error) {
	return s.repo.Get(ctx, id)
}

// Post writes a balanced journal. Unbalanced input is rejected before any
// write; account resolution and inserts share one transaction so report
// readers never observe a journal with only some lines.
func (s *Service) Post(ctx context.Context, input PostingInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	var journal Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		resolved := make([]resolvedLine, 0, len(input.Lines))
		for _, line := range input.Lines {
			accountID, err := tx.ResolveActiveAccount(ctx, line.AccountCode)
			if err != nil {
				return err
			}
			resolved = append(resolved, resolvedLine{PostingLineInput: line, AccountID: accountID})
		}
		inserted, err := tx.InsertJournal(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, resolved); err != nil {
			return err
		}
		full, err := tx.GetJournalWithLines(ctx, inserted.ID)
		if err != nil {
			return err
		}
		journal = full
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.PostedBy,
			Action:   "journal.post",
			Entity:   "journal",
			EntityID: fmt.Sprintf("%d", journal.ID),
			Meta: map[string]any{
				"number":         journal.Number,
				"reference_type": input.ReferenceType,
				"reference_id":   input.ReferenceID,
			},
			At: s.now(),
		})
	}
	return journal, nil
}

// Reverse posts a new journal with debits and credits swapped. The original
// journal is left untouched.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (Journal, error) {
	if input.JournalID == 0 {
		return Journal{}, fmt.Errorf("%w: journal id required", shared.ErrValidation)
	}
	original, err := s.repo.Get(ctx, input.JournalID)
	if err != nil {
		return Journal{}, err
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	memo := input.Memo
	if memo == "" {
		memo = fmt.Sprintf("Reversal of journal %d", original.Number)
	}
	lines := make([]PostingLineInput, 0, len(original.Lines))
	for _, line := range original.Lines {
		lines = append(lines, PostingLineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return s.Post(ctx, PostingInput{
		Date:          date,
		ReferenceType: original.ReferenceType + ":reversal",
		ReferenceID:   original.ReferenceID,
		Description:   memo,
		PostedBy:      input.ActorID,
		Lines:         lines,
	})
}
