package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// Journal is a dated transaction header. Journals are append-only: once
// committed they are never mutated, a correction is posted as a new
// reversing journal.
type Journal struct {
	ID            int64           `json:"id"`
	Number        int64           `json:"number"`
	Date          time.Time       `json:"date"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Description   string          `json:"description"`
	PostedBy      int64           `json:"posted_by"`
	CreatedAt     time.Time       `json:"created_at"`
	Lines         []JournalLine   `json:"lines,omitempty"`
	TotalDebit    decimal.Decimal `json:"total_debit"`
	TotalCredit   decimal.Decimal `json:"total_credit"`
}

// JournalLine carries a debit or credit against one account. Both amounts
// are stored non-negative; exactly one of them is positive.
type JournalLine struct {
	ID          int64           `json:"id"`
	JournalID   int64           `json:"journal_id"`
	AccountID   int64           `json:"account_id"`
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	CreatedAt   time.Time       `json:"created_at"`
}
