package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/inventory"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// PendingTTL is how long an order may sit pending before the reaper
// expires it.
const PendingTTL = 30 * 24 * time.Hour

// AllocationEngine is the slice of the allocation subsystem the state
// machine needs. Releasing reserved stock while canceling, and drawing
// reservations down while shipping, must happen in the engine's
// transaction together with the status flip.
type AllocationEngine interface {
	ReleaseOnCancel(ctx context.Context, orderID int64, target Status, reason string) error
	Ship(ctx context.Context, orderID, courierID int64) error
}

// ProductCatalog resolves products at checkout so item prices can be
// snapshotted.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service drives the order lifecycle.
type Service struct {
	repo    Repository
	engine  AllocationEngine
	catalog ProductCatalog
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, engine AllocationEngine, catalog ProductCatalog, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, catalog: catalog, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput is a checkout request.
type CreateInput struct {
	CustomerID *int64            `json:"customer_id"`
	Channel    Channel           `json:"channel" validate:"required,oneof=pos web whatsapp"`
	Items      []CreateItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreateItemInput is one requested line.
type CreateItemInput struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Qty             int64           `json:"qty" validate:"required,gt=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// Create opens a pending order, snapshotting unit price and cost per
// line so later catalog changes never rewrite history. Discounts round
// per line, half away from zero.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, []OrderItem, error) {
	if len(input.Items) == 0 {
		return Order{}, nil, fmt.Errorf("%w: order needs at least one item", shared.ErrValidation)
	}

	var (
		items []OrderItem
		total decimal.Decimal
	)
	for _, in := range input.Items {
		if in.Qty <= 0 {
			return Order{}, nil, fmt.Errorf("%w: qty must be positive for product %d", shared.ErrValidation, in.ProductID)
		}
		if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return Order{}, nil, fmt.Errorf("%w: discount_percent out of range for product %d", shared.ErrValidation, in.ProductID)
		}
		product, err := s.catalog.GetProduct(ctx, in.ProductID)
		if err != nil {
			return Order{}, nil, err
		}
		unitPrice := shared.ApplyDiscount(product.Price, shared.RoundPercent(in.DiscountPercent))
		items = append(items, OrderItem{
			ProductID:       in.ProductID,
			Qty:             in.Qty,
			PriceAtPurchase: unitPrice,
			CostAtPurchase:  product.BasePrice,
			DiscountPercent: shared.RoundPercent(in.DiscountPercent),
		})
		total = total.Add(unitPrice.Mul(decimal.NewFromInt(in.Qty)))
	}

	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.InsertOrder(ctx, Order{
			CustomerID:  input.CustomerID,
			Channel:     input.Channel,
			Status:      StatusPending,
			TotalAmount: total,
		})
		if err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = o.ID
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return Order{}, nil, err
	}
	s.recordAudit(ctx, created.ID, "create", map[string]any{"channel": input.Channel, "total": total})
	return created, items, nil
}

// Get returns the order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, []OrderItem, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	return order, items, nil
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]Order, int, error) {
	return s.repo.ListOrders(ctx, filter, page)
}

// TransitionInput carries the optional extras a transition may need.
type TransitionInput struct {
	Reason    string    `json:"reason"`
	CourierID int64     `json:"courier_id"`
	IssueType IssueType `json:"issue_type"`
	Note      string    `json:"note"`
}

// Transition moves the order to the target status on behalf of the
// actor. Allocated and partially_fulfilled are allocation outcomes and
// cannot be set by hand. Cancel, expire and ship delegate to the
// allocation engine so stock movement and the status flip commit
// together.
func (s *Service) Transition(ctx context.Context, orderID int64, target Status, actor shared.Actor, extra TransitionInput) (Order, error) {
	if target == StatusAllocated || target == StatusPartiallyFulfilled {
		return Order{}, fmt.Errorf("%w: %s is set by the allocation engine, not by hand",
			shared.ErrPreconditionFailed, target)
	}
	if err := authorizeTransition(actor, target); err != nil {
		return Order{}, err
	}

	if target == StatusCanceled || target == StatusExpired {
		if err := s.engine.ReleaseOnCancel(ctx, orderID, target, extra.Reason); err != nil {
			return Order{}, err
		}
		s.recordAudit(ctx, orderID, "transition", map[string]any{"to": target, "reason": extra.Reason})
		return s.repo.GetOrder(ctx, orderID)
	}
	if target == StatusShipped {
		if err := s.engine.Ship(ctx, orderID, extra.CourierID); err != nil {
			return Order{}, err
		}
		s.recordAudit(ctx, orderID, "transition", map[string]any{"to": target, "courier_id": extra.CourierID})
		return s.repo.GetOrder(ctx, orderID)
	}

	var result Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == target {
			// Concurrent admins pressing the same button.
			result = order
			return nil
		}
		if !CanTransition(order.Status, target) {
			return &InvalidTransitionError{From: order.Status, To: target}
		}
		if target == StatusHold {
			if err := s.openIssue(ctx, tx, order, extra); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, orderID, target); err != nil {
			return err
		}
		order.Status = target
		result = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, orderID, "transition", map[string]any{"to": target})
	return result, nil
}

// openIssue records the problem putting the order on hold. At most one
// open issue per order.
func (s *Service) openIssue(ctx context.Context, tx TxRepository, order Order, extra TransitionInput) error {
	if _, err := tx.GetOpenIssueForUpdate(ctx, order.ID); err == nil {
		return fmt.Errorf("%w: order %d already has an open issue", shared.ErrPreconditionFailed, order.ID)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	issueType := extra.IssueType
	if issueType == "" {
		issueType = IssueShortage
	}
	_, err := tx.InsertIssue(ctx, OrderIssue{
		OrderID: order.ID,
		Type:    issueType,
		Note:    extra.Note,
		DueAt:   s.now().Add(IssueSLA),
	})
	return err
}

// AssignCourier attaches a driver to an order before shipping. Allowed
// from ready_to_ship and processing.
func (s *Service) AssignCourier(ctx context.Context, orderID, courierID int64, actor shared.Actor) (Order, error) {
	if actor.Role != shared.RoleSuperAdmin && actor.Role != shared.RoleAdminGudang {
		return Order{}, fmt.Errorf("%w: role %s may not assign couriers", shared.ErrForbidden, actor.Role)
	}
	var result Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusReadyToShip && order.Status != StatusProcessing {
			return fmt.Errorf("%w: order %d in status %s cannot take a courier",
				shared.ErrPreconditionFailed, orderID, order.Status)
		}
		if err := tx.SetCourier(ctx, orderID, courierID); err != nil {
			return err
		}
		order.CourierID = &courierID
		result = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, orderID, "assign_courier", map[string]any{"courier_id": courierID})
	return result, nil
}

// ResolveIssue closes the order's open issue.
func (s *Service) ResolveIssue(ctx context.Context, orderID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issue, err := tx.GetOpenIssueForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return tx.ResolveIssue(ctx, issue.ID, s.now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, orderID, "resolve_issue", nil)
	return nil
}

// OverdueIssues lists open issues past their SLA.
func (s *Service) OverdueIssues(ctx context.Context) ([]OrderIssue, error) {
	return s.repo.ListOverdueIssues(ctx, s.now())
}

// ExpireStale expires orders stuck pending past the TTL. Each order is
// released and expired in its own engine transaction so one failure
// cannot strand the rest, and no order is ever expired with stock still
// reserved.
func (s *Service) ExpireStale(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	ids, err := s.repo.ListStalePending(ctx, s.now().Add(-PendingTTL), batchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		if err := s.engine.ReleaseOnCancel(ctx, id, StatusExpired, "expired after 30 days pending"); err != nil {
			s.logger.Warn("reaper skipped order", slog.Int64("order_id", id), slog.Any("error", err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expired stale orders", slog.Int("count", expired))
	}
	return expired, nil
}

// CancelOpenByCustomer cancels every open order of a banned customer,
// releasing reserved stock per order. A failing order is logged and
// skipped so the ban still lands on the rest.
func (s *Service) CancelOpenByCustomer(ctx context.Context, customerID int64, reason string) (int, error) {
	open, err := s.repo.ListOpenByCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	canceled := 0
	for _, o := range open {
		if !Cancelable(o.Status) {
			s.logger.Warn("ban cascade cannot cancel order",
				slog.Int64("order_id", o.ID), slog.String("status", string(o.Status)))
			continue
		}
		if err := s.engine.ReleaseOnCancel(ctx, o.ID, StatusCanceled, reason); err != nil {
			s.logger.Warn("ban cascade failed on order", slog.Int64("order_id", o.ID), slog.Any("error", err))
			continue
		}
		canceled++
	}
	return canceled, nil
}

func (s *Service) recordAudit(ctx context.Context, orderID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Entity:   "order",
		EntityID: strconv.FormatInt(orderID, 10),
		Action:   action,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
