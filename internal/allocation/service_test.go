package allocation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokoflow/tokoflow/internal/inventory"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/shared"
)

type allocationKey struct {
	orderID   int64
	productID int64
}

// memoryRepo emulates the row-lock semantics with a single mutex: every
// transaction runs serialized, the way concurrent allocations serialize
// on the product row lock.
type memoryRepo struct {
	mu          sync.Mutex
	orders      map[int64]orders.Order
	items       map[int64][]orders.OrderItem
	products    map[int64]inventory.Product
	allocations map[allocationKey]OrderAllocation
	backorders  map[allocationKey]Backorder
	mutations   []inventory.StockMutation
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:      make(map[int64]orders.Order),
		items:       make(map[int64][]orders.OrderItem),
		products:    make(map[int64]inventory.Product),
		allocations: make(map[allocationKey]OrderAllocation),
		backorders:  make(map[allocationKey]Backorder),
	}
}

func (r *memoryRepo) addOrder(o orders.Order, items ...orders.OrderItem) {
	r.orders[o.ID] = o
	r.items[o.ID] = items
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) clone() *memoryRepo {
	snap := newMemoryRepo()
	for k, v := range r.orders {
		snap.orders[k] = v
	}
	for k, v := range r.items {
		snap.items[k] = v
	}
	for k, v := range r.products {
		snap.products[k] = v
	}
	for k, v := range r.allocations {
		snap.allocations[k] = v
	}
	for k, v := range r.backorders {
		snap.backorders[k] = v
	}
	snap.mutations = append([]inventory.StockMutation(nil), r.mutations...)
	snap.nextID = r.nextID
	return snap
}

func (r *memoryRepo) restore(snap *memoryRepo) {
	r.orders = snap.orders
	r.items = snap.items
	r.products = snap.products
	r.allocations = snap.allocations
	r.backorders = snap.backorders
	r.mutations = snap.mutations
	r.nextID = snap.nextID
}

func (r *memoryRepo) listAllocations(orderID int64) []OrderAllocation {
	var out []OrderAllocation
	for k, a := range r.allocations {
		if k.orderID == orderID {
			out = append(out, a)
		}
	}
	return out
}

func (r *memoryRepo) listBackorders(orderID int64) []Backorder {
	var out []Backorder
	for k, b := range r.backorders {
		if k.orderID == orderID {
			out = append(out, b)
		}
	}
	return out
}

func (r *memoryRepo) ListAllocations(ctx context.Context, orderID int64) ([]OrderAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listAllocations(orderID), nil
}

func (r *memoryRepo) ListBackorders(ctx context.Context, orderID int64) ([]Backorder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listBackorders(orderID), nil
}

func (r *memoryRepo) ListWaitingOrderIDs(ctx context.Context, productID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for k, b := range r.backorders {
		if k.productID == productID && b.Status == BackorderWaiting && b.QtyPending > 0 {
			ids = append(ids, k.orderID)
		}
	}
	return ids, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, orderID int64) (orders.Order, error) {
	o, ok := t.repo.orders[orderID]
	if !ok {
		return orders.Order{}, shared.ErrNotFound
	}
	return o, nil
}

func (t *memoryTx) ListOrderItems(ctx context.Context, orderID int64) ([]orders.OrderItem, error) {
	return t.repo.items[orderID], nil
}

func (t *memoryTx) ListAllocations(ctx context.Context, orderID int64) ([]OrderAllocation, error) {
	return t.repo.listAllocations(orderID), nil
}

func (t *memoryTx) ListBackorders(ctx context.Context, orderID int64) ([]Backorder, error) {
	return t.repo.listBackorders(orderID), nil
}

func (t *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error) {
	p, ok := t.repo.products[productID]
	if !ok {
		return inventory.Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (t *memoryTx) UpdateProductCounters(ctx context.Context, productID, stockQty, allocatedQty int64) error {
	p := t.repo.products[productID]
	p.StockQuantity = stockQty
	p.AllocatedQuantity = allocatedQty
	t.repo.products[productID] = p
	return nil
}

func (t *memoryTx) InsertStockMutation(ctx context.Context, m inventory.StockMutation) error {
	t.repo.nextID++
	m.ID = t.repo.nextID
	t.repo.mutations = append(t.repo.mutations, m)
	return nil
}

func (t *memoryTx) UpsertAllocation(ctx context.Context, orderID, productID, qtyDelta int64) (OrderAllocation, error) {
	key := allocationKey{orderID, productID}
	a, ok := t.repo.allocations[key]
	if !ok {
		t.repo.nextID++
		a = OrderAllocation{ID: t.repo.nextID, OrderID: orderID, ProductID: productID, Status: AllocationPending}
	}
	a.AllocatedQty += qtyDelta
	t.repo.allocations[key] = a
	return a, nil
}

func (t *memoryTx) UpsertBackorder(ctx context.Context, orderID, productID, qtyPending int64) (Backorder, error) {
	key := allocationKey{orderID, productID}
	b, ok := t.repo.backorders[key]
	if !ok {
		t.repo.nextID++
		b = Backorder{ID: t.repo.nextID, OrderID: orderID, ProductID: productID}
	}
	b.QtyPending = qtyPending
	b.Status = BackorderWaiting
	if qtyPending == 0 {
		b.Status = BackorderFulfilled
	}
	t.repo.backorders[key] = b
	return b, nil
}

func (t *memoryTx) CancelWaitingBackorders(ctx context.Context, orderID int64) (int64, error) {
	var n int64
	for k, b := range t.repo.backorders {
		if k.orderID == orderID && b.Status == BackorderWaiting {
			b.Status = BackorderCanceled
			t.repo.backorders[k] = b
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) MarkAllocationsShipped(ctx context.Context, orderID int64) (int64, error) {
	var n int64
	for k, a := range t.repo.allocations {
		if k.orderID == orderID && a.Status == AllocationPending {
			a.Status = AllocationShipped
			t.repo.allocations[k] = a
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) UpdateOrderStatus(ctx context.Context, orderID int64, status orders.Status) error {
	o := t.repo.orders[orderID]
	o.Status = status
	t.repo.orders[orderID] = o
	return nil
}

func (t *memoryTx) SetCourier(ctx context.Context, orderID, courierID int64) error {
	o := t.repo.orders[orderID]
	o.CourierID = &courierID
	t.repo.orders[orderID] = o
	return nil
}

func (t *memoryTx) SetCancelReason(ctx context.Context, orderID int64, reason string) error {
	o := t.repo.orders[orderID]
	o.CancelReason = reason
	t.repo.orders[orderID] = o
	return nil
}

func (t *memoryTx) SetStockReleased(ctx context.Context, orderID int64) error {
	o := t.repo.orders[orderID]
	o.StockReleased = true
	t.repo.orders[orderID] = o
	return nil
}

func TestAllocateFullStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 10}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 4})
	svc := NewService(repo, nil, nil)

	result, err := svc.Allocate(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, orders.StatusAllocated, result.Status)
	require.Len(t, result.Allocations, 1)
	require.EqualValues(t, 4, result.Allocations[0].AllocatedQty)
	require.Empty(t, result.Backorders)

	p := repo.products[1]
	require.EqualValues(t, 6, p.StockQuantity)
	require.EqualValues(t, 4, p.AllocatedQuantity)
	require.Len(t, repo.mutations, 1)
	require.Equal(t, inventory.MutationTypeOut, repo.mutations[0].Type)
	require.Equal(t, "allocation:100", repo.mutations[0].ReferenceID)
}

func TestAllocatePartialCreatesBackorder(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 6}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 10})
	svc := NewService(repo, nil, nil)

	result, err := svc.Allocate(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPartiallyFulfilled, result.Status)
	require.EqualValues(t, 6, result.Allocations[0].AllocatedQty)
	require.Len(t, result.Backorders, 1)
	require.EqualValues(t, 4, result.Backorders[0].QtyPending)
	require.Equal(t, BackorderWaiting, result.Backorders[0].Status)
	require.Zero(t, repo.products[1].StockQuantity)
}

func TestAllocateZeroStockStaysPending(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 0}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 3})
	svc := NewService(repo, nil, nil)

	result, err := svc.Allocate(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, result.Status)
	require.Empty(t, result.Allocations)
	require.EqualValues(t, 3, result.Backorders[0].QtyPending)
}

func TestAllocateIdempotentOnFullyAllocated(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 10}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 4})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, 100)
	require.NoError(t, err)
	result, err := svc.Allocate(ctx, 100)
	require.NoError(t, err)

	require.Equal(t, orders.StatusAllocated, result.Status)
	require.EqualValues(t, 4, result.Allocations[0].AllocatedQty, "must not double-reserve")
	require.EqualValues(t, 6, repo.products[1].StockQuantity)
	require.Len(t, repo.mutations, 1)
}

func TestReallocateAfterInboundFulfillsBackorder(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 6}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 10})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, 100)
	require.NoError(t, err)

	// Stock arrives.
	p := repo.products[1]
	p.StockQuantity += 20
	repo.products[1] = p

	require.NoError(t, svc.FulfillFromInbound(ctx, 1))

	require.Equal(t, orders.StatusAllocated, repo.orders[100].Status)
	got := repo.listBackorders(100)
	require.Len(t, got, 1)
	require.Equal(t, BackorderFulfilled, got[0].Status)
	require.Zero(t, got[0].QtyPending)
	require.EqualValues(t, 10, repo.products[1].AllocatedQuantity)
	require.EqualValues(t, 16, repo.products[1].StockQuantity)
}

func TestConcurrentAllocationNeverOversells(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 8}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 5})
	repo.addOrder(orders.Order{ID: 200, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 200, ProductID: 1, Qty: 5})
	svc := NewService(repo, nil, nil)

	var wg sync.WaitGroup
	for _, orderID := range []int64{100, 200} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.Allocate(context.Background(), id)
			require.NoError(t, err)
		}(orderID)
	}
	wg.Wait()

	var total int64
	for _, a := range repo.allocations {
		total += a.AllocatedQty
	}
	require.EqualValues(t, 8, total, "winner takes 5, loser gets the remaining 3")
	require.Zero(t, repo.products[1].StockQuantity)
	require.EqualValues(t, 8, repo.products[1].AllocatedQuantity)
}

func TestReleaseIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 10}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 4})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, 100)
	require.NoError(t, err)

	released, err := svc.Release(ctx, 100)
	require.NoError(t, err)
	require.Len(t, released, 1)
	require.EqualValues(t, 10, repo.products[1].StockQuantity)
	require.Zero(t, repo.products[1].AllocatedQuantity)

	released, err = svc.Release(ctx, 100)
	require.NoError(t, err)
	require.Empty(t, released, "second release must be a guarded no-op")
	require.EqualValues(t, 10, repo.products[1].StockQuantity)
}

func TestReleaseSkipsMissingProduct(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 5}
	repo.products[2] = inventory.Product{ID: 2, StockQuantity: 5}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 2},
		orders.OrderItem{OrderID: 100, ProductID: 2, Qty: 2})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, 100)
	require.NoError(t, err)

	delete(repo.products, 1)

	released, err := svc.Release(ctx, 100)
	require.NoError(t, err)
	require.Len(t, released, 1)
	require.EqualValues(t, 2, released[0].ProductID)
	require.True(t, repo.orders[100].StockReleased)
}

func TestReleaseOnCancelReleasesAndCancelsAtomically(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 6}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 10})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, 100)
	require.NoError(t, err)

	require.NoError(t, svc.ReleaseOnCancel(ctx, 100, orders.StatusCanceled, "customer changed mind"))

	o := repo.orders[100]
	require.Equal(t, orders.StatusCanceled, o.Status)
	require.True(t, o.StockReleased)
	require.Equal(t, "customer changed mind", o.CancelReason)
	require.EqualValues(t, 6, repo.products[1].StockQuantity)
	require.Equal(t, BackorderCanceled, repo.listBackorders(100)[0].Status)
}

func TestReleaseOnCancelRejectsShippedOrder(t *testing.T) {
	repo := newMemoryRepo()
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusShipped})
	svc := NewService(repo, nil, nil)

	err := svc.ReleaseOnCancel(context.Background(), 100, orders.StatusCanceled, "")
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
	var invalid *orders.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, orders.StatusShipped, invalid.From)
}

func TestCancelBackorderKeepsAllocatedStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 6}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 10})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, 100)
	require.NoError(t, err)

	require.NoError(t, svc.CancelBackorder(ctx, 100, "supplier discontinued"))

	require.Equal(t, BackorderCanceled, repo.listBackorders(100)[0].Status)
	require.EqualValues(t, 6, repo.products[1].AllocatedQuantity, "allocated stock stays reserved")
	require.Equal(t, "supplier discontinued", repo.orders[100].CancelReason)

	err = svc.CancelBackorder(ctx, 100, "again")
	require.ErrorIs(t, err, shared.ErrPreconditionFailed, "no shortage left after first cancel")
}

func TestAllocateRejectsIneligibleStatus(t *testing.T) {
	repo := newMemoryRepo()
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusShipped})
	svc := NewService(repo, nil, nil)

	_, err := svc.Allocate(context.Background(), 100)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

// shipReady allocates the order and walks it to ready_to_ship the way
// the billing flow would.
func shipReady(t *testing.T, svc *Service, repo *memoryRepo, orderID int64) {
	t.Helper()
	_, err := svc.Allocate(context.Background(), orderID)
	require.NoError(t, err)
	o := repo.orders[orderID]
	o.Status = orders.StatusReadyToShip
	repo.orders[orderID] = o
}

func TestShipDrawsDownReservations(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 10}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending, Channel: orders.ChannelPOS},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 4})
	svc := NewService(repo, nil, nil)
	shipReady(t, svc, repo, 100)

	require.NoError(t, svc.Ship(context.Background(), 100, 0))

	require.Equal(t, orders.StatusShipped, repo.orders[100].Status)
	require.Equal(t, AllocationShipped, repo.listAllocations(100)[0].Status)
	p := repo.products[1]
	require.EqualValues(t, 6, p.StockQuantity, "available stock is untouched by shipping")
	require.Zero(t, p.AllocatedQuantity, "shipped units leave the reservation counter")
	require.Len(t, repo.mutations, 1, "shipping writes no stock mutation")
}

func TestShipRequiresCourierForNonPOS(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 10}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending, Channel: orders.ChannelWeb},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 4})
	svc := NewService(repo, nil, nil)
	shipReady(t, svc, repo, 100)
	ctx := context.Background()

	err := svc.Ship(ctx, 100, 0)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
	require.Equal(t, orders.StatusReadyToShip, repo.orders[100].Status)
	require.EqualValues(t, 4, repo.products[1].AllocatedQuantity, "failed ship keeps the reservation")

	require.NoError(t, svc.Ship(ctx, 100, 77))
	require.Equal(t, orders.StatusShipped, repo.orders[100].Status)
	require.EqualValues(t, 77, *repo.orders[100].CourierID)
}

func TestShipIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = inventory.Product{ID: 1, StockQuantity: 10}
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending, Channel: orders.ChannelPOS},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 4})
	svc := NewService(repo, nil, nil)
	shipReady(t, svc, repo, 100)
	ctx := context.Background()

	require.NoError(t, svc.Ship(ctx, 100, 0))
	require.NoError(t, svc.Ship(ctx, 100, 0))
	require.Zero(t, repo.products[1].AllocatedQuantity, "second ship must not draw down twice")
}

func TestShipRejectsUnshippableStatus(t *testing.T) {
	repo := newMemoryRepo()
	repo.addOrder(orders.Order{ID: 100, Status: orders.StatusPending, Channel: orders.ChannelPOS})
	svc := NewService(repo, nil, nil)

	err := svc.Ship(context.Background(), 100, 0)
	var invalid *orders.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, orders.StatusPending, invalid.From)
}

// flakyRepo fails the first transactions with a serialization conflict,
// the way contended product rows do under RepeatableRead.
type flakyRepo struct {
	*memoryRepo
	failures int
}

func (r *flakyRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.failures > 0 {
		r.failures--
		return fmt.Errorf("%w: could not serialize access", shared.ErrConcurrencyConflict)
	}
	return r.memoryRepo.WithTx(ctx, fn)
}

func TestAllocateRetriesSerializationFailures(t *testing.T) {
	inner := newMemoryRepo()
	inner.products[1] = inventory.Product{ID: 1, StockQuantity: 10}
	inner.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 4})
	repo := &flakyRepo{memoryRepo: inner, failures: 2}
	svc := NewService(repo, nil, nil)

	result, err := svc.Allocate(context.Background(), 100)
	require.NoError(t, err, "two conflicts fit inside the retry budget")
	require.Equal(t, orders.StatusAllocated, result.Status)
}

func TestAllocateGivesUpAfterRetryBudget(t *testing.T) {
	inner := newMemoryRepo()
	inner.products[1] = inventory.Product{ID: 1, StockQuantity: 10}
	inner.addOrder(orders.Order{ID: 100, Status: orders.StatusPending},
		orders.OrderItem{OrderID: 100, ProductID: 1, Qty: 4})
	repo := &flakyRepo{memoryRepo: inner, failures: txAttempts}
	svc := NewService(repo, nil, nil)

	_, err := svc.Allocate(context.Background(), 100)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.Zero(t, inner.products[1].AllocatedQuantity)
}
