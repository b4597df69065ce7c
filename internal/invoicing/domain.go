package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the invoice settlement state.
type PaymentStatus string

const (
	PaymentDraft      PaymentStatus = "draft"
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentPaid       PaymentStatus = "paid"
	PaymentCODPending PaymentStatus = "cod_pending"
)

// PaymentMethod is how the customer settles.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
	MethodCOD      PaymentMethod = "cod"
)

// TaxMode is the seller's tax registration at issuance time. PKP sellers
// add output VAT; the rate is frozen on the invoice.
type TaxMode string

const (
	TaxModePKP    TaxMode = "pkp"
	TaxModeNonPKP TaxMode = "non_pkp"
)

// VATRatePercent is the output VAT rate applied under pkp.
var VATRatePercent = decimal.RequireFromString("11")

// Invoice is the billing document for one order. Amounts and tax mode
// are frozen at issuance; catalog or tax-setting changes later never
// touch an issued invoice.
type Invoice struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	Number          string          `json:"number"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	TaxModeSnapshot TaxMode         `json:"tax_mode_snapshot"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
	PaymentProofURL string          `json:"payment_proof_url,omitempty"`
	JournalID       int64           `json:"journal_id,omitempty"`
	IssuedAt        time.Time       `json:"issued_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Deletable reports whether lifecycle guards allow removing the invoice.
func (i Invoice) Deletable() bool {
	return i.PaymentStatus == PaymentDraft || i.PaymentStatus == PaymentUnpaid
}
