package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokoflow/tokoflow/internal/shared"
)

type memoryRepo struct {
	products  map[int64]Product
	mutations []StockMutation
	nextID    int64
}

func newMemoryRepo(products ...Product) *memoryRepo {
	repo := &memoryRepo{products: make(map[int64]Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	products := make(map[int64]Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	mutations := len(r.mutations)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products = products
		r.mutations = r.mutations[:mutations]
		return err
	}
	return nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	if p, ok := r.products[id]; ok {
		return p, nil
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) ListProducts(ctx context.Context, search string, page shared.Pagination) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) ListMutations(ctx context.Context, productID int64, limit int) ([]StockMutation, error) {
	var out []StockMutation
	for _, m := range r.mutations {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) SumMutations(ctx context.Context, productID int64) (int64, error) {
	var sum int64
	for _, m := range r.mutations {
		if m.ProductID == productID {
			sum += m.SignedQty()
		}
	}
	return sum, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	return tx.repo.GetProduct(ctx, productID)
}

func (tx *memoryTx) UpdateProductCounters(ctx context.Context, productID, stockQty, allocatedQty int64) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.StockQuantity = stockQty
	p.AllocatedQuantity = allocatedQty
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) InsertMutation(ctx context.Context, m StockMutation) error {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.mutations = append(tx.repo.mutations, m)
	return nil
}

func TestInitialThenInboundKeepsLogConsistent(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "SKU-1"})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetInitialStock(ctx, 1, 10, 7))
	require.NoError(t, svc.PostInbound(ctx, InboundInput{ProductID: 1, Qty: 5, Note: "GRN#1"}))

	p, err := svc.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 15, p.StockQuantity)

	drift, err := svc.CheckConsistency(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, drift)
}

func TestConsistencyUnaffectedByOpenAllocation(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "SKU-1"})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetInitialStock(ctx, 1, 10, 7))

	// Reserve 6 of 10 the way the allocation engine does: stock down,
	// allocated up, one out mutation.
	p := repo.products[1]
	p.StockQuantity -= 6
	p.AllocatedQuantity += 6
	repo.products[1] = p
	repo.mutations = append(repo.mutations, StockMutation{
		ProductID: 1, Type: MutationTypeOut, Qty: 6, ReferenceID: "allocation:100",
	})

	drift, err := svc.CheckConsistency(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, drift, "reserved units are not drift")

	// Release the reservation: counters and log move back together.
	p = repo.products[1]
	p.StockQuantity += 6
	p.AllocatedQuantity -= 6
	repo.products[1] = p
	repo.mutations = append(repo.mutations, StockMutation{
		ProductID: 1, Type: MutationTypeIn, Qty: 6, ReferenceID: "release:100",
	})

	drift, err = svc.CheckConsistency(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, drift)
}

func TestConsistencyDetectsCounterDrift(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "SKU-1"})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetInitialStock(ctx, 1, 10, 7))

	// A counter write without a matching log entry.
	p := repo.products[1]
	p.StockQuantity += 3
	repo.products[1] = p

	drift, err := svc.CheckConsistency(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, drift)
}

func TestSetInitialStockOnlyOnce(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "SKU-1"})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetInitialStock(ctx, 1, 10, 7))
	err := svc.SetInitialStock(ctx, 1, 20, 7)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

func TestNegativeAdjustmentGuard(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "SKU-1", StockQuantity: 3})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.PostAdjustment(ctx, AdjustmentInput{ProductID: 1, Qty: -3, Note: "shrinkage"}))

	err := svc.PostAdjustment(ctx, AdjustmentInput{ProductID: 1, Qty: -1, Note: "shrinkage"})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.ErrorIs(t, err, shared.ErrIntegrityViolation)

	p, _ := svc.GetProduct(ctx, 1)
	require.Zero(t, p.StockQuantity, "failed movement must not change stock")
}

type recordingFulfiller struct {
	calls []int64
}

func (f *recordingFulfiller) FulfillFromInbound(ctx context.Context, productID int64) error {
	f.calls = append(f.calls, productID)
	return nil
}

func TestInboundTriggersBackorderFulfillment(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 9, SKU: "SKU-9"})
	fulfiller := &recordingFulfiller{}
	svc := NewService(repo, nil, fulfiller)

	require.NoError(t, svc.PostInbound(context.Background(), InboundInput{ProductID: 9, Qty: 2}))
	require.Equal(t, []int64{9}, fulfiller.calls)
}
