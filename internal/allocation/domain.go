package allocation

import (
	"time"

	"github.com/tokoflow/tokoflow/internal/orders"
)

// AllocationStatus tracks the reservation lifecycle of one order+product
// pair. Pending reservations pin AllocatedQuantity on the product;
// shipping draws the reservation down and closes the row.
type AllocationStatus string

const (
	AllocationPending AllocationStatus = "pending"
	AllocationShipped AllocationStatus = "shipped"
)

// OrderAllocation is the reservation record: how many units of a product
// are held against an order. At most one row per order+product.
type OrderAllocation struct {
	ID           int64            `json:"id"`
	OrderID      int64            `json:"order_id"`
	ProductID    int64            `json:"product_id"`
	AllocatedQty int64            `json:"allocated_qty"`
	Status       AllocationStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// BackorderStatus tracks an unfulfilled remainder.
type BackorderStatus string

const (
	BackorderWaiting   BackorderStatus = "waiting_stock"
	BackorderFulfilled BackorderStatus = "fulfilled"
	BackorderCanceled  BackorderStatus = "canceled"
)

// Backorder records the shortage left after allocation. QtyPending is
// rewritten on every re-allocation pass; it reaches zero only via
// fulfillment or cancellation.
type Backorder struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	QtyPending int64           `json:"qty_pending"`
	Status     BackorderStatus `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Result is the outcome of one allocation pass.
type Result struct {
	OrderID     int64             `json:"order_id"`
	Status      orders.Status     `json:"status"`
	Allocations []OrderAllocation `json:"allocations"`
	Backorders  []Backorder       `json:"backorders"`
}

// FullyAllocated reports whether no shortage remains.
func (r Result) FullyAllocated() bool {
	for _, b := range r.Backorders {
		if b.Status == BackorderWaiting && b.QtyPending > 0 {
			return false
		}
	}
	return true
}

// ReleasedLine reports stock returned to the sellable pool for one
// product during a release.
type ReleasedLine struct {
	ProductID int64 `json:"product_id"`
	Qty       int64 `json:"qty"`
}
