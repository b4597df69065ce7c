package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tokoflow/tokoflow/internal/invoicing"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/shared"
)

type memoryRepo struct {
	remittances []Remittance
}

func (r *memoryRepo) InsertRemittance(ctx context.Context, rem Remittance) (Remittance, error) {
	rem.ID = int64(len(r.remittances) + 1)
	r.remittances = append(r.remittances, rem)
	return rem, nil
}

func (r *memoryRepo) ListRemittances(ctx context.Context, driverID int64, from, to time.Time) ([]Remittance, error) {
	return r.remittances, nil
}

type fakeGateway struct {
	orders map[int64]orders.Order
}

func (g *fakeGateway) Get(ctx context.Context, id int64) (orders.Order, []orders.OrderItem, error) {
	o, ok := g.orders[id]
	if !ok {
		return orders.Order{}, nil, shared.ErrNotFound
	}
	return o, nil, nil
}

func (g *fakeGateway) Transition(ctx context.Context, orderID int64, target orders.Status, actor shared.Actor, extra orders.TransitionInput) (orders.Order, error) {
	o := g.orders[orderID]
	if !orders.CanTransition(o.Status, target) {
		return orders.Order{}, &orders.InvalidTransitionError{From: o.Status, To: target}
	}
	o.Status = target
	g.orders[orderID] = o
	return o, nil
}

func (g *fakeGateway) AssignCourier(ctx context.Context, orderID, courierID int64, actor shared.Actor) (orders.Order, error) {
	o := g.orders[orderID]
	o.CourierID = &courierID
	g.orders[orderID] = o
	return o, nil
}

type fakeSettler struct {
	invoices map[int64]invoicing.Invoice
}

func (s *fakeSettler) GetByOrder(ctx context.Context, orderID int64) (invoicing.Invoice, error) {
	inv, ok := s.invoices[orderID]
	if !ok {
		return invoicing.Invoice{}, shared.ErrNotFound
	}
	return inv, nil
}

func (s *fakeSettler) SettleCOD(ctx context.Context, orderID int64, actor shared.Actor) (invoicing.Invoice, error) {
	inv, ok := s.invoices[orderID]
	if !ok {
		return invoicing.Invoice{}, shared.ErrNotFound
	}
	if inv.PaymentStatus != invoicing.PaymentCODPending {
		return invoicing.Invoice{}, shared.ErrPreconditionFailed
	}
	inv.PaymentStatus = invoicing.PaymentPaid
	s.invoices[orderID] = inv
	return inv, nil
}

func driverPtr(id int64) *int64 { return &id }

var kasir = shared.Actor{ID: 2, Role: shared.RoleKasir}

func TestConfirmDeliveredChecksAssignment(t *testing.T) {
	gateway := &fakeGateway{orders: map[int64]orders.Order{
		1: {ID: 1, Status: orders.StatusShipped, CourierID: driverPtr(9)},
	}}
	svc := NewService(&memoryRepo{}, gateway, &fakeSettler{}, nil)
	ctx := context.Background()

	_, err := svc.ConfirmDelivered(ctx, 1, shared.Actor{ID: 8, Role: shared.RoleDriver})
	require.ErrorIs(t, err, shared.ErrForbidden)

	order, err := svc.ConfirmDelivered(ctx, 1, shared.Actor{ID: 9, Role: shared.RoleDriver})
	require.NoError(t, err)
	require.Equal(t, orders.StatusDelivered, order.Status)
}

func TestRemitCODSettlesAndCompletes(t *testing.T) {
	gateway := &fakeGateway{orders: map[int64]orders.Order{
		1: {ID: 1, Status: orders.StatusDelivered, CourierID: driverPtr(9)},
		2: {ID: 2, Status: orders.StatusDelivered, CourierID: driverPtr(9)},
		3: {ID: 3, Status: orders.StatusShipped, CourierID: driverPtr(9)}, // not delivered yet
	}}
	settler := &fakeSettler{invoices: map[int64]invoicing.Invoice{
		1: {ID: 1, OrderID: 1, PaymentStatus: invoicing.PaymentCODPending, Total: decimal.RequireFromString("50000")},
		2: {ID: 2, OrderID: 2, PaymentStatus: invoicing.PaymentCODPending, Total: decimal.RequireFromString("25000")},
	}}
	repo := &memoryRepo{}
	svc := NewService(repo, gateway, settler, nil)

	result, err := svc.RemitCOD(context.Background(), 9, []int64{1, 2, 3}, kasir)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, result.SettledIDs)
	require.Equal(t, []int64{3}, result.FailedIDs)
	require.True(t, result.Remittance.Total.Equal(decimal.RequireFromString("75000")))
	require.Equal(t, 2, result.Remittance.OrderCount)
	require.Equal(t, orders.StatusCompleted, gateway.orders[1].Status)
	require.Equal(t, invoicing.PaymentPaid, settler.invoices[1].PaymentStatus)
	require.Len(t, repo.remittances, 1)
}

func TestRemitCODRejectsWrongDriver(t *testing.T) {
	gateway := &fakeGateway{orders: map[int64]orders.Order{
		1: {ID: 1, Status: orders.StatusDelivered, CourierID: driverPtr(7)},
	}}
	settler := &fakeSettler{invoices: map[int64]invoicing.Invoice{
		1: {ID: 1, OrderID: 1, PaymentStatus: invoicing.PaymentCODPending, Total: decimal.RequireFromString("50000")},
	}}
	svc := NewService(&memoryRepo{}, gateway, settler, nil)

	_, err := svc.RemitCOD(context.Background(), 9, []int64{1}, kasir)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed, "no eligible orders means the remittance fails")
}

func TestRemitCODRoleGate(t *testing.T) {
	svc := NewService(&memoryRepo{}, &fakeGateway{}, &fakeSettler{}, nil)
	_, err := svc.RemitCOD(context.Background(), 9, []int64{1}, shared.Actor{ID: 9, Role: shared.RoleDriver})
	require.ErrorIs(t, err, shared.ErrForbidden)
}
