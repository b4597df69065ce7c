package accounts

import "time"

// AccountType classifies a chart-of-accounts node.
type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeRevenue   AccountType = "revenue"
	TypeExpense   AccountType = "expense"
)

// Valid reports whether the type is one of the five classifications.
func (t AccountType) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense:
		return true
	}
	return false
}

// Account is a chart-of-accounts node. ParentID forms a tree used for
// report rollups; journal lines may only reference active accounts.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	IsActive  bool        `json:"is_active"`
	ParentID  *int64      `json:"parent_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Well-known account codes referenced by posting rules and reports.
const (
	CodeCash         = "1101"
	CodeBank         = "1102"
	CodeARTrade      = "1103"
	CodeARCOD        = "1104"
	CodeAROther      = "1105"
	CodeInventory    = "1201"
	CodeAPTrade      = "2100"
	CodeVATOutput    = "2201"
	CodeVATInput     = "2202"
	CodeSalesRevenue = "4100"
	CodeCOGS         = "5100"
)

// ReceivableCodes lists the accounts aggregated for AR aging.
var ReceivableCodes = []string{CodeARTrade, CodeARCOD, CodeAROther}

// CashCodes lists the accounts treated as cash for the cash flow report.
var CashCodes = []string{CodeCash, CodeBank}
