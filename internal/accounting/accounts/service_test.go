package accounts

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokoflow/tokoflow/internal/shared"
)

type memoryRepo struct {
	accounts map[int64]Account
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]Account), nextID: 1}
}

func (r *memoryRepo) GetByCode(_ context.Context, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: account %s", shared.ErrNotFound, code)
}

func (r *memoryRepo) GetByID(_ context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: account %d", shared.ErrNotFound, id)
	}
	return a, nil
}

func (r *memoryRepo) List(_ context.Context, activeOnly bool) ([]Account, error) {
	var out []Account
	for id := int64(1); id < r.nextID; id++ {
		a, ok := r.accounts[id]
		if !ok {
			continue
		}
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) ListChildren(_ context.Context, parentID int64) ([]Account, error) {
	var out []Account
	for id := int64(1); id < r.nextID; id++ {
		a, ok := r.accounts[id]
		if !ok || a.ParentID == nil || *a.ParentID != parentID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) Create(_ context.Context, account Account) (Account, error) {
	for _, existing := range r.accounts {
		if existing.Code == account.Code {
			return Account{}, fmt.Errorf("%w: account code %s already exists", shared.ErrValidation, account.Code)
		}
	}
	account.ID = r.nextID
	r.nextID++
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryRepo) SetActive(_ context.Context, id int64, active bool) error {
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %d", shared.ErrNotFound, id)
	}
	a.IsActive = active
	r.accounts[id] = a
	return nil
}

func seedAccount(t *testing.T, svc *Service, code, name string, typ AccountType, parentID *int64) Account {
	t.Helper()
	account, err := svc.Create(context.Background(), Account{Code: code, Name: name, Type: typ, ParentID: parentID})
	require.NoError(t, err)
	return account
}

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Account{Name: "Kas", Type: TypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, Account{Code: "1101", Type: TypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, Account{Code: "1101", Name: "Kas", Type: AccountType("goodwill")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo())
	seedAccount(t, svc, "1101", "Kas", TypeAsset, nil)

	_, err := svc.Create(context.Background(), Account{Code: "1101", Name: "Kas Kecil", Type: TypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRequiresMatchingParentType(t *testing.T) {
	svc := NewService(newMemoryRepo())
	parent := seedAccount(t, svc, "1100", "Aset Lancar", TypeAsset, nil)

	_, err := svc.Create(context.Background(), Account{Code: "4101", Name: "Penjualan", Type: TypeRevenue, ParentID: &parent.ID})
	require.ErrorIs(t, err, shared.ErrValidation)

	child, err := svc.Create(context.Background(), Account{Code: "1101", Name: "Kas", Type: TypeAsset, ParentID: &parent.ID})
	require.NoError(t, err)
	require.True(t, child.IsActive)
	require.Equal(t, parent.ID, *child.ParentID)
}

func TestDeactivateGuardsActiveChildren(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()
	parent := seedAccount(t, svc, "1100", "Aset Lancar", TypeAsset, nil)
	child := seedAccount(t, svc, "1101", "Kas", TypeAsset, &parent.ID)

	err := svc.Deactivate(ctx, parent.ID)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	require.NoError(t, svc.Deactivate(ctx, child.ID))
	require.NoError(t, svc.Deactivate(ctx, parent.ID))

	got, err := svc.Get(ctx, "1100")
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestTreeBuildsForestSortedByCode(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()
	assets := seedAccount(t, svc, "1100", "Aset Lancar", TypeAsset, nil)
	revenue := seedAccount(t, svc, "4000", "Pendapatan", TypeRevenue, nil)
	seedAccount(t, svc, "1102", "Bank", TypeAsset, &assets.ID)
	seedAccount(t, svc, "1101", "Kas", TypeAsset, &assets.ID)

	tree, err := svc.Tree(ctx, false)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	require.Equal(t, assets.Code, tree[0].Account.Code)
	require.Equal(t, revenue.Code, tree[1].Account.Code)
	require.Len(t, tree[0].Children, 2)
	require.Equal(t, "1101", tree[0].Children[0].Account.Code)
	require.Equal(t, "1102", tree[0].Children[1].Account.Code)
	require.Empty(t, tree[1].Children)
}

func TestTreeActiveOnlyDropsRetiredLeaves(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()
	assets := seedAccount(t, svc, "1100", "Aset Lancar", TypeAsset, nil)
	retired := seedAccount(t, svc, "1109", "Kas Lama", TypeAsset, &assets.ID)
	require.NoError(t, svc.Deactivate(ctx, retired.ID))

	tree, err := svc.Tree(ctx, true)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Empty(t, tree[0].Children)
}
