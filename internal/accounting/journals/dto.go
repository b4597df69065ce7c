package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// ErrUnbalancedJournal rejects postings whose debits and credits differ.
var ErrUnbalancedJournal = fmt.Errorf("%w: journal debits do not equal credits", shared.ErrValidation)

// ErrInactiveAccount rejects lines referencing a retired account.
var ErrInactiveAccount = fmt.Errorf("%w: account is inactive", shared.ErrPreconditionFailed)

// PostingLineInput is one requested journal line, addressed by account code.
type PostingLineInput struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// PostingInput describes a journal to be posted atomically.
type PostingInput struct {
	Date          time.Time          `json:"date" validate:"required"`
	ReferenceType string             `json:"reference_type" validate:"required"`
	ReferenceID   string             `json:"reference_id" validate:"required"`
	Description   string             `json:"description"`
	PostedBy      int64              `json:"posted_by"`
	Lines         []PostingLineInput `json:"lines" validate:"required,min=2,dive"`
}

// Validate checks structural rules including the double-entry balance.
func (in PostingInput) Validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: journal date required", shared.ErrValidation)
	}
	if in.ReferenceType == "" || in.ReferenceID == "" {
		return fmt.Errorf("%w: journal reference required", shared.ErrValidation)
	}
	if len(in.Lines) < 2 {
		return fmt.Errorf("%w: a journal needs at least two lines", shared.ErrValidation)
	}
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account code", shared.ErrValidation, i+1)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d amounts must be non-negative", shared.ErrValidation, i+1)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d sets both debit and credit", shared.ErrValidation, i+1)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d has no amount", shared.ErrValidation, i+1)
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	if !totalDebit.Equal(totalCredit) {
		return errors.Join(ErrUnbalancedJournal, fmt.Errorf("debit %s vs credit %s", totalDebit.StringFixed(2), totalCredit.StringFixed(2)))
	}
	return nil
}

// ReverseInput requests a reversing journal for a committed one.
type ReverseInput struct {
	JournalID int64  `json:"journal_id" validate:"required,gt=0"`
	Date      time.Time `json:"date"`
	ActorID   int64  `json:"actor_id"`
	Memo      string `json:"memo"`
}
