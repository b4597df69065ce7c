package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/invoicing"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// OrderGateway is the slice of the order state machine the courier flow
// needs.
type OrderGateway interface {
	Get(ctx context.Context, id int64) (orders.Order, []orders.OrderItem, error)
	Transition(ctx context.Context, orderID int64, target orders.Status, actor shared.Actor, extra orders.TransitionInput) (orders.Order, error)
	AssignCourier(ctx context.Context, orderID, courierID int64, actor shared.Actor) (orders.Order, error)
}

// InvoiceSettler settles COD invoices.
type InvoiceSettler interface {
	GetByOrder(ctx context.Context, orderID int64) (invoicing.Invoice, error)
	SettleCOD(ctx context.Context, orderID int64, actor shared.Actor) (invoicing.Invoice, error)
}

// Service handles driver assignment, delivery confirmation and COD
// remittance.
type Service struct {
	repo     Repository
	gateway  OrderGateway
	invoices InvoiceSettler
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, gateway OrderGateway, invoices InvoiceSettler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, gateway: gateway, invoices: invoices, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Assign attaches the driver to the order.
func (s *Service) Assign(ctx context.Context, orderID, driverID int64, actor shared.Actor) (orders.Order, error) {
	return s.gateway.AssignCourier(ctx, orderID, driverID, actor)
}

// ConfirmDelivered records the hand-over to the customer. A driver may
// only confirm orders assigned to them.
func (s *Service) ConfirmDelivered(ctx context.Context, orderID int64, actor shared.Actor) (orders.Order, error) {
	order, _, err := s.gateway.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if actor.Role == shared.RoleDriver {
		if order.CourierID == nil || *order.CourierID != actor.ID {
			return orders.Order{}, fmt.Errorf("%w: order %d is not assigned to driver %d",
				shared.ErrForbidden, orderID, actor.ID)
		}
	}
	return s.gateway.Transition(ctx, orderID, orders.StatusDelivered, actor, orders.TransitionInput{})
}

// RemitCOD settles the cash a driver collected. Per order: must be
// delivered, assigned to the driver, and carry a cod_pending invoice.
// One bad order is skipped and reported, not fatal.
func (s *Service) RemitCOD(ctx context.Context, driverID int64, orderIDs []int64, actor shared.Actor) (RemittanceResult, error) {
	if actor.Role != shared.RoleSuperAdmin && actor.Role != shared.RoleAdminFinance && actor.Role != shared.RoleKasir {
		return RemittanceResult{}, fmt.Errorf("%w: role %s may not accept remittances", shared.ErrForbidden, actor.Role)
	}
	if len(orderIDs) == 0 {
		return RemittanceResult{}, fmt.Errorf("%w: no orders in remittance", shared.ErrValidation)
	}

	var result RemittanceResult
	total := decimal.Zero
	for _, orderID := range orderIDs {
		order, _, err := s.gateway.Get(ctx, orderID)
		if err != nil {
			s.logger.Warn("remittance skipped order", slog.Int64("order_id", orderID), slog.Any("error", err))
			result.FailedIDs = append(result.FailedIDs, orderID)
			continue
		}
		if order.Status != orders.StatusDelivered || order.CourierID == nil || *order.CourierID != driverID {
			s.logger.Warn("remittance order not eligible",
				slog.Int64("order_id", orderID), slog.String("status", string(order.Status)))
			result.FailedIDs = append(result.FailedIDs, orderID)
			continue
		}
		invoice, err := s.invoices.SettleCOD(ctx, orderID, actor)
		if err != nil {
			s.logger.Warn("remittance settle failed", slog.Int64("order_id", orderID), slog.Any("error", err))
			result.FailedIDs = append(result.FailedIDs, orderID)
			continue
		}
		if _, err := s.gateway.Transition(ctx, orderID, orders.StatusCompleted, actor, orders.TransitionInput{}); err != nil {
			s.logger.Warn("remittance completion failed", slog.Int64("order_id", orderID), slog.Any("error", err))
		}
		total = total.Add(invoice.Total)
		result.SettledIDs = append(result.SettledIDs, orderID)
	}

	if len(result.SettledIDs) == 0 {
		return RemittanceResult{}, fmt.Errorf("%w: no eligible COD orders in remittance", shared.ErrPreconditionFailed)
	}

	remittance, err := s.repo.InsertRemittance(ctx, Remittance{
		Reference:  uuid.NewString(),
		DriverID:   driverID,
		Total:      total,
		OrderCount: len(result.SettledIDs),
		RemittedAt: s.now(),
	})
	if err != nil {
		return RemittanceResult{}, err
	}
	result.Remittance = remittance
	return result, nil
}

// Remittances lists a driver's past hand-overs.
func (s *Service) Remittances(ctx context.Context, driverID int64, from, to time.Time) ([]Remittance, error) {
	return s.repo.ListRemittances(ctx, driverID, from, to)
}
