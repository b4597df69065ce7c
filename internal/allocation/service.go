package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/tokoflow/tokoflow/internal/inventory"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service is the allocation engine. All stock reservation and release
// flows go through here so the order, allocation and product rows are
// always mutated inside one transaction.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// txAttempts bounds automatic retries of a serialization or deadlock
// failure. Product rows are the contention hot spot, so the retry lives
// here rather than at the HTTP seam.
const txAttempts = 3

// withRetry re-runs the transaction on a concurrency conflict. The
// callback must be safe to re-run from scratch; every WithTx pass starts
// on a fresh snapshot.
func (s *Service) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if err == nil || !shared.Retryable(err) {
			return err
		}
		if attempt < txAttempts {
			s.logger.Warn("retrying allocation transaction",
				slog.Int("attempt", attempt), slog.Any("error", err))
		}
	}
	return err
}

// Allocate reserves stock for the order's outstanding demand. It is
// re-entrant: already-allocated quantities are never reserved twice, and
// calling it on a fully allocated order is a no-op. Product rows are
// locked in ascending ID order.
func (s *Service) Allocate(ctx context.Context, orderID int64) (Result, error) {
	var result Result
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case orders.StatusPending, orders.StatusPartiallyFulfilled:
		case orders.StatusAllocated:
			// Nothing left to reserve.
			result, err = s.snapshot(ctx, tx, order)
			return err
		default:
			return fmt.Errorf("%w: order %d in status %s is not eligible for allocation",
				shared.ErrPreconditionFailed, orderID, order.Status)
		}

		items, err := tx.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: order %d has no items", shared.ErrPreconditionFailed, orderID)
		}

		demand := make(map[int64]int64)
		for _, it := range items {
			demand[it.ProductID] += it.Qty
		}
		productIDs := make([]int64, 0, len(demand))
		for id := range demand {
			productIDs = append(productIDs, id)
		}
		sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

		existing, err := tx.ListAllocations(ctx, orderID)
		if err != nil {
			return err
		}
		allocated := make(map[int64]OrderAllocation, len(existing))
		for _, a := range existing {
			allocated[a.ProductID] = a
		}
		previousBackorders, err := tx.ListBackorders(ctx, orderID)
		if err != nil {
			return err
		}
		waiting := make(map[int64]bool, len(previousBackorders))
		for _, b := range previousBackorders {
			waiting[b.ProductID] = b.Status == BackorderWaiting
		}

		var totalAllocated int64
		shortage := false
		result = Result{OrderID: orderID}

		for _, productID := range productIDs {
			already := allocated[productID].AllocatedQty
			remaining := demand[productID] - already

			granted := int64(0)
			if remaining > 0 {
				product, err := tx.GetProductForUpdate(ctx, productID)
				if err != nil {
					return err
				}
				granted = min(remaining, product.StockQuantity)
				if granted > 0 {
					if err := tx.UpdateProductCounters(ctx, productID, product.StockQuantity-granted, product.AllocatedQuantity+granted); err != nil {
						return err
					}
					if err := tx.InsertStockMutation(ctx, inventory.StockMutation{
						ProductID:   productID,
						Type:        inventory.MutationTypeOut,
						Qty:         granted,
						ReferenceID: fmt.Sprintf("allocation:%d", orderID),
					}); err != nil {
						return err
					}
					row, err := tx.UpsertAllocation(ctx, orderID, productID, granted)
					if err != nil {
						return err
					}
					allocated[productID] = row
				}
			}

			left := remaining - granted
			switch {
			case left > 0:
				shortage = true
				row, err := tx.UpsertBackorder(ctx, orderID, productID, left)
				if err != nil {
					return err
				}
				result.Backorders = append(result.Backorders, row)
			case waiting[productID]:
				// Previously short, now covered.
				row, err := tx.UpsertBackorder(ctx, orderID, productID, 0)
				if err != nil {
					return err
				}
				result.Backorders = append(result.Backorders, row)
			}

			if a, ok := allocated[productID]; ok {
				result.Allocations = append(result.Allocations, a)
				totalAllocated += a.AllocatedQty
			}
		}

		next := order.Status
		switch {
		case totalAllocated == 0:
			// Zero granted: the order stays where it is.
		case shortage:
			next = orders.StatusPartiallyFulfilled
		default:
			next = orders.StatusAllocated
		}
		if next != order.Status {
			if err := tx.UpdateOrderStatus(ctx, orderID, next); err != nil {
				return err
			}
		}
		result.Status = next
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, "order", orderID, "allocate", map[string]any{"status": result.Status})
	return result, nil
}

// Release returns all reserved units on the order to the sellable pool.
// Guarded by the order's stock_released flag, so a second call is a
// no-op. Missing products are skipped with a warning rather than failing
// the whole release.
func (s *Service) Release(ctx context.Context, orderID int64) ([]ReleasedLine, error) {
	var released []ReleasedLine
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.StockReleased {
			return nil
		}
		var e error
		released, e = s.releaseLocked(ctx, tx, orderID)
		return e
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "order", orderID, "release", map[string]any{"lines": len(released)})
	return released, nil
}

// releaseLocked walks the order's allocations and hands the units back.
// Caller must hold the order row lock and have checked stock_released.
func (s *Service) releaseLocked(ctx context.Context, tx TxRepository, orderID int64) ([]ReleasedLine, error) {
	allocations, err := tx.ListAllocations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var released []ReleasedLine
	for _, a := range allocations {
		if a.Status != AllocationPending || a.AllocatedQty <= 0 {
			continue
		}
		product, err := tx.GetProductForUpdate(ctx, a.ProductID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				s.logger.Warn("release skipping missing product",
					slog.Int64("order_id", orderID), slog.Int64("product_id", a.ProductID))
				continue
			}
			return nil, err
		}
		newAllocated := product.AllocatedQuantity - a.AllocatedQty
		if newAllocated < 0 {
			newAllocated = 0
		}
		if err := tx.UpdateProductCounters(ctx, a.ProductID, product.StockQuantity+a.AllocatedQty, newAllocated); err != nil {
			return nil, err
		}
		if err := tx.InsertStockMutation(ctx, inventory.StockMutation{
			ProductID:   a.ProductID,
			Type:        inventory.MutationTypeIn,
			Qty:         a.AllocatedQty,
			ReferenceID: fmt.Sprintf("release:%d", orderID),
		}); err != nil {
			return nil, err
		}
		released = append(released, ReleasedLine{ProductID: a.ProductID, Qty: a.AllocatedQty})
	}
	if err := tx.SetStockReleased(ctx, orderID); err != nil {
		return nil, err
	}
	return released, nil
}

// ReleaseOnCancel releases reserved stock and moves the order to the
// terminal state in one transaction, so a cancel or ban can never leave
// stock reserved against a dead order. Target must be canceled or
// expired.
func (s *Service) ReleaseOnCancel(ctx context.Context, orderID int64, target orders.Status, reason string) error {
	if target != orders.StatusCanceled && target != orders.StatusExpired {
		return fmt.Errorf("%w: %s is not a cancel state", shared.ErrValidation, target)
	}
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == target {
			return nil
		}
		if !orders.Cancelable(order.Status) {
			return &orders.InvalidTransitionError{From: order.Status, To: target}
		}
		if !order.StockReleased {
			if _, err := s.releaseLocked(ctx, tx, orderID); err != nil {
				return err
			}
		}
		if _, err := tx.CancelWaitingBackorders(ctx, orderID); err != nil {
			return err
		}
		if reason != "" {
			if err := tx.SetCancelReason(ctx, orderID, reason); err != nil {
				return err
			}
		}
		return tx.UpdateOrderStatus(ctx, orderID, target)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "order", orderID, "cancel_release", map[string]any{"target": target, "reason": reason})
	return nil
}

// Ship moves the order to shipped and draws the reservations down: each
// pending allocation is marked shipped and its units leave
// AllocatedQuantity, all in one transaction with the status flip.
// Available stock is untouched; the units left it when they were
// reserved. Orders placed outside the POS must carry a driver.
func (s *Service) Ship(ctx context.Context, orderID, courierID int64) error {
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == orders.StatusShipped {
			return nil
		}
		if !orders.CanTransition(order.Status, orders.StatusShipped) {
			return &orders.InvalidTransitionError{From: order.Status, To: orders.StatusShipped}
		}
		switch {
		case courierID != 0:
			if err := tx.SetCourier(ctx, orderID, courierID); err != nil {
				return err
			}
		case order.Channel != orders.ChannelPOS && order.CourierID == nil:
			return fmt.Errorf("%w: driver required for shipped", shared.ErrPreconditionFailed)
		}
		allocations, err := tx.ListAllocations(ctx, orderID)
		if err != nil {
			return err
		}
		for _, a := range allocations {
			if a.Status != AllocationPending || a.AllocatedQty <= 0 {
				continue
			}
			product, err := tx.GetProductForUpdate(ctx, a.ProductID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					s.logger.Warn("ship skipping missing product",
						slog.Int64("order_id", orderID), slog.Int64("product_id", a.ProductID))
					continue
				}
				return err
			}
			newAllocated := product.AllocatedQuantity - a.AllocatedQty
			if newAllocated < 0 {
				newAllocated = 0
			}
			if err := tx.UpdateProductCounters(ctx, a.ProductID, product.StockQuantity, newAllocated); err != nil {
				return err
			}
		}
		if _, err := tx.MarkAllocationsShipped(ctx, orderID); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, orderID, orders.StatusShipped)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "order", orderID, "ship", map[string]any{"courier_id": courierID})
	return nil
}

// CancelBackorder forfeits the unfulfilled remainder of an order while
// keeping whatever was already reserved. Valid only while a shortage
// remains and the order is still cancelable.
func (s *Service) CancelBackorder(ctx context.Context, orderID int64, reason string) error {
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !orders.Cancelable(order.Status) {
			return fmt.Errorf("%w: order %d in status %s cannot cancel backorders",
				shared.ErrPreconditionFailed, orderID, order.Status)
		}
		items, err := tx.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		allocations, err := tx.ListAllocations(ctx, orderID)
		if err != nil {
			return err
		}
		var requested, reserved int64
		for _, it := range items {
			requested += it.Qty
		}
		for _, a := range allocations {
			reserved += a.AllocatedQty
		}
		if requested-reserved <= 0 {
			return fmt.Errorf("%w: order %d has no outstanding backorder", shared.ErrPreconditionFailed, orderID)
		}
		n, err := tx.CancelWaitingBackorders(ctx, orderID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: order %d has no waiting backorder", shared.ErrPreconditionFailed, orderID)
		}
		return tx.SetCancelReason(ctx, orderID, reason)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "order", orderID, "cancel_backorder", map[string]any{"reason": reason})
	return nil
}

// FulfillFromInbound re-runs allocation for orders waiting on the
// product, oldest first. Called after an inbound receipt commits. Each
// order gets its own transaction; one failing order does not block the
// rest.
func (s *Service) FulfillFromInbound(ctx context.Context, productID int64) error {
	orderIDs, err := s.repo.ListWaitingOrderIDs(ctx, productID)
	if err != nil {
		return err
	}
	for _, orderID := range orderIDs {
		if _, err := s.Allocate(ctx, orderID); err != nil {
			s.logger.Warn("backorder fulfillment skipped order",
				slog.Int64("order_id", orderID), slog.Int64("product_id", productID), slog.Any("error", err))
		}
	}
	return nil
}

// Backorders lists the order's backorder rows.
func (s *Service) Backorders(ctx context.Context, orderID int64) ([]Backorder, error) {
	return s.repo.ListBackorders(ctx, orderID)
}

// Allocations lists the order's reservation rows.
func (s *Service) Allocations(ctx context.Context, orderID int64) ([]OrderAllocation, error) {
	return s.repo.ListAllocations(ctx, orderID)
}

func (s *Service) snapshot(ctx context.Context, tx TxRepository, order orders.Order) (Result, error) {
	allocations, err := tx.ListAllocations(ctx, order.ID)
	if err != nil {
		return Result{}, err
	}
	backorders, err := tx.ListBackorders(ctx, order.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{OrderID: order.ID, Status: order.Status, Allocations: allocations, Backorders: backorders}, nil
}

func (s *Service) recordAudit(ctx context.Context, entity string, entityID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Action:   action,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
