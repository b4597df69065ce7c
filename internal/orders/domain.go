package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending            Status = "pending"
	StatusWaitingInvoice     Status = "waiting_invoice"
	StatusWaitingPayment     Status = "waiting_payment"
	StatusReadyToShip        Status = "ready_to_ship"
	StatusAllocated          Status = "allocated"
	StatusPartiallyFulfilled Status = "partially_fulfilled"
	StatusDebtPending        Status = "debt_pending"
	StatusProcessing         Status = "processing"
	StatusShipped            Status = "shipped"
	StatusDelivered          Status = "delivered"
	StatusCompleted          Status = "completed"
	StatusCanceled           Status = "canceled"
	StatusExpired            Status = "expired"
	StatusHold               Status = "hold"
)

// Channel identifies how the order was placed.
type Channel string

const (
	ChannelPOS      Channel = "pos"
	ChannelWeb      Channel = "web"
	ChannelWhatsApp Channel = "whatsapp"
)

// transitions is the forward edge set of the lifecycle graph. Cancel,
// expire and hold edges are handled separately because they fan in from
// many states.
var transitions = map[Status][]Status{
	StatusPending:            {StatusAllocated, StatusPartiallyFulfilled},
	StatusAllocated:          {StatusWaitingInvoice},
	StatusPartiallyFulfilled: {StatusAllocated, StatusWaitingInvoice},
	StatusWaitingInvoice:     {StatusWaitingPayment, StatusReadyToShip, StatusDebtPending},
	StatusWaitingPayment:     {StatusReadyToShip},
	StatusDebtPending:        {StatusWaitingPayment, StatusReadyToShip},
	StatusReadyToShip:        {StatusProcessing, StatusShipped},
	StatusProcessing:         {StatusShipped},
	StatusShipped:            {StatusDelivered},
	StatusDelivered:          {StatusCompleted},
	StatusHold:               {StatusPending, StatusAllocated, StatusPartiallyFulfilled, StatusProcessing},
}

// cancelable holds every state an order may be canceled from. Shipped
// and later states cannot be canceled, only held.
var cancelable = map[Status]bool{
	StatusPending:            true,
	StatusWaitingInvoice:     true,
	StatusReadyToShip:        true,
	StatusAllocated:          true,
	StatusPartiallyFulfilled: true,
	StatusDebtPending:        true,
	StatusProcessing:         true,
	StatusHold:               true,
}

// holdable excludes terminal states and states already on hold.
var holdable = map[Status]bool{
	StatusPending:            true,
	StatusWaitingInvoice:     true,
	StatusWaitingPayment:     true,
	StatusReadyToShip:        true,
	StatusAllocated:          true,
	StatusPartiallyFulfilled: true,
	StatusDebtPending:        true,
	StatusProcessing:         true,
	StatusShipped:            true,
	StatusDelivered:          true,
}

// CanTransition reports whether the lifecycle graph permits from -> to.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusCanceled, StatusExpired:
		return cancelable[from]
	case StatusHold:
		return holdable[from]
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancelable reports whether an order in the given state may still be
// canceled.
func Cancelable(s Status) bool { return cancelable[s] }

// IsTerminal reports whether the state admits no further transitions.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusExpired
}

// InvalidTransitionError names both states so callers can render a
// precise conflict message.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return shared.ErrPreconditionFailed }

// Order is the sales order aggregate root.
type Order struct {
	ID             int64           `json:"id"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	Channel        Channel         `json:"channel"`
	Status         Status          `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CourierID      *int64          `json:"courier_id,omitempty"`
	ParentOrderID  *int64          `json:"parent_order_id,omitempty"`
	StockReleased  bool            `json:"stock_released"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderItem snapshots price and cost at purchase time so later price
// changes never rewrite history.
type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Qty             int64           `json:"qty"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
	CostAtPurchase  decimal.Decimal `json:"cost_at_purchase"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// IssueType classifies an order issue.
type IssueType string

const (
	IssueShortage    IssueType = "shortage"
	IssueMissingItem IssueType = "missing_item"
	IssueDamaged     IssueType = "damaged"
)

// IssueSLA is how long an open issue may stay unresolved before it is
// flagged overdue.
const IssueSLA = 48 * time.Hour

// OrderIssue tracks a problem raised against an order while it is on
// hold. At most one issue per order may be open at a time.
type OrderIssue struct {
	ID         int64      `json:"id"`
	OrderID    int64      `json:"order_id"`
	Type       IssueType  `json:"type"`
	Note       string     `json:"note"`
	Open       bool       `json:"open"`
	DueAt      time.Time  `json:"due_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Overdue reports whether the issue has blown its resolution window.
func (i OrderIssue) Overdue(now time.Time) bool {
	return i.Open && now.After(i.DueAt)
}
