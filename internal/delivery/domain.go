package delivery

import (
	"time"

	"github.com/shopspring/decimal"
)

// Remittance is one driver's COD hand-over: the cash collected for a set
// of delivered orders, settled in a single visit to the cashier.
type Remittance struct {
	ID         int64           `json:"id"`
	Reference  string          `json:"reference"`
	DriverID   int64           `json:"driver_id"`
	Total      decimal.Decimal `json:"total"`
	OrderCount int             `json:"order_count"`
	RemittedAt time.Time       `json:"remitted_at"`
}

// RemittanceResult reports the outcome per order.
type RemittanceResult struct {
	Remittance Remittance `json:"remittance"`
	SettledIDs []int64    `json:"settled_order_ids"`
	FailedIDs  []int64    `json:"failed_order_ids,omitempty"`
}
