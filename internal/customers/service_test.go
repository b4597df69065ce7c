package customers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokoflow/tokoflow/internal/shared"
)

type memoryRepo struct {
	customers map[int64]Customer
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: make(map[int64]Customer)}
}

func (r *memoryRepo) Insert(ctx context.Context, c Customer) (Customer, error) {
	r.nextID++
	c.ID = r.nextID
	r.customers[c.ID] = c
	return c, nil
}

func (r *memoryRepo) Update(ctx context.Context, c Customer) (Customer, error) {
	existing, ok := r.customers[c.ID]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	existing.Name, existing.Phone, existing.Email, existing.Address = c.Name, c.Phone, c.Email, c.Address
	r.customers[c.ID] = existing
	return existing, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Customer, error) {
	if c, ok := r.customers[id]; ok {
		return c, nil
	}
	return Customer{}, shared.ErrNotFound
}

func (r *memoryRepo) GetByPhone(ctx context.Context, phone string) (Customer, error) {
	for _, c := range r.customers {
		if c.Phone == phone {
			return c, nil
		}
	}
	return Customer{}, shared.ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, search string, page shared.Pagination) ([]Customer, int, error) {
	var out []Customer
	for _, c := range r.customers {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (r *memoryRepo) SetBanned(ctx context.Context, id int64, reason string, at time.Time) error {
	c, ok := r.customers[id]
	if !ok || c.Banned {
		return shared.ErrPreconditionFailed
	}
	c.Banned = true
	c.BanReason = reason
	c.BannedAt = &at
	r.customers[id] = c
	return nil
}

func (r *memoryRepo) ClearBan(ctx context.Context, id int64) error {
	c := r.customers[id]
	c.Banned = false
	c.BanReason = ""
	c.BannedAt = nil
	r.customers[id] = c
	return nil
}

type fakeCanceler struct {
	calls   []int64
	reasons []string
	ret     int
	err     error
}

func (f *fakeCanceler) CancelOpenByCustomer(ctx context.Context, customerID int64, reason string) (int, error) {
	f.calls = append(f.calls, customerID)
	f.reasons = append(f.reasons, reason)
	return f.ret, f.err
}

var admin = shared.Actor{ID: 1, Role: shared.RoleSuperAdmin}

func TestBanCancelsOpenOrders(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[5] = Customer{ID: 5, Name: "Budi", Phone: "0811"}
	canceler := &fakeCanceler{ret: 3}
	svc := NewService(repo, canceler, nil, nil)

	canceled, err := svc.Ban(context.Background(), 5, admin, "chargeback fraud")
	require.NoError(t, err)
	require.Equal(t, 3, canceled)
	require.True(t, repo.customers[5].Banned)
	require.Equal(t, "chargeback fraud", repo.customers[5].BanReason)
	require.Equal(t, []int64{5}, canceler.calls)
	require.Contains(t, canceler.reasons[0], "chargeback fraud")
}

func TestBanHoldsEvenWhenCascadeFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[5] = Customer{ID: 5, Name: "Budi", Phone: "0811"}
	canceler := &fakeCanceler{err: fmt.Errorf("db down")}
	svc := NewService(repo, canceler, nil, nil)

	_, err := svc.Ban(context.Background(), 5, admin, "fraud")
	require.NoError(t, err, "the ban itself must land")
	require.True(t, repo.customers[5].Banned)
}

func TestBanGuards(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[5] = Customer{ID: 5, Banned: true}
	svc := NewService(repo, &fakeCanceler{}, nil, nil)
	ctx := context.Background()

	_, err := svc.Ban(ctx, 5, admin, "again")
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	_, err = svc.Ban(ctx, 5, shared.Actor{ID: 2, Role: shared.RoleKasir}, "x")
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Ban(ctx, 5, admin, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Ban(ctx, 404, admin, "ghost")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUnban(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[5] = Customer{ID: 5, Banned: true, BanReason: "fraud"}
	svc := NewService(repo, &fakeCanceler{}, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Unban(ctx, 5, admin))
	require.False(t, repo.customers[5].Banned)

	err := svc.Unban(ctx, 5, admin)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}
