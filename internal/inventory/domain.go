package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// MutationType enumerates supported stock movements.
type MutationType string

const (
	// MutationTypeIn represents received stock.
	MutationTypeIn MutationType = "in"
	// MutationTypeOut represents stock leaving the sellable pool, including
	// reservations made by the allocation engine.
	MutationTypeOut MutationType = "out"
	// MutationTypeAdjustment is a signed manual correction.
	MutationTypeAdjustment MutationType = "adjustment"
	// MutationTypeInitial seeds the opening quantity.
	MutationTypeInitial MutationType = "initial"
)

// Product is an inventory item. StockQuantity counts units available for
// new allocation; AllocatedQuantity counts units reserved against open
// orders. The mutation log tracks StockQuantity: reserving stock writes
// an out mutation, releasing it writes an in mutation.
type Product struct {
	ID                int64           `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	StockQuantity     int64           `json:"stock_quantity"`
	AllocatedQuantity int64           `json:"allocated_quantity"`
	MinStock          int64           `json:"min_stock"`
	Price             decimal.Decimal `json:"price"`
	BasePrice         decimal.Decimal `json:"base_price"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StockMutation is one entry in the append-only inventory log. Qty is
// stored positive except for adjustments, which carry their sign.
type StockMutation struct {
	ID          int64        `json:"id"`
	ProductID   int64        `json:"product_id"`
	Type        MutationType `json:"type"`
	Qty         int64        `json:"qty"`
	ReferenceID string       `json:"reference_id"`
	Note        string       `json:"note"`
	CreatedAt   time.Time    `json:"created_at"`
}

// SignedQty returns the effect of the mutation on available stock.
func (m StockMutation) SignedQty() int64 {
	switch m.Type {
	case MutationTypeOut:
		return -m.Qty
	default:
		return m.Qty
	}
}

// ErrNegativeStock triggered when a movement would push available stock
// below zero.
var ErrNegativeStock = fmt.Errorf("%w: stock would go negative", shared.ErrIntegrityViolation)

// ErrInvalidQuantity indicates a zero or wrongly-signed quantity.
var ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)

// InboundInput describes a stock receipt.
type InboundInput struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Qty         int64  `json:"qty" validate:"required,gt=0"`
	ReferenceID string `json:"reference_id"`
	Note        string `json:"note"`
	ActorID     int64  `json:"-"`
}

// AdjustmentInput describes a signed manual correction.
type AdjustmentInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       int64  `json:"qty" validate:"required"`
	Note      string `json:"note" validate:"required"`
	ActorID   int64  `json:"-"`
}
