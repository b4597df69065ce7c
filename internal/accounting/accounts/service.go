package accounts

import (
	"context"
	"fmt"
	"sort"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// Service coordinates chart-of-accounts operations.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get fetches a single account by code.
func (s *Service) Get(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// Create validates and inserts a new account node.
func (s *Service) Create(ctx context.Context, account Account) (Account, error) {
	if account.Code == "" || account.Name == "" {
		return Account{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	if !account.Type.Valid() {
		return Account{}, fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, account.Type)
	}
	if account.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *account.ParentID)
		if err != nil {
			return Account{}, err
		}
		if parent.Type != account.Type {
			return Account{}, fmt.Errorf("%w: parent %s has type %s, child must match", shared.ErrValidation, parent.Code, parent.Type)
		}
	}
	account.IsActive = true
	return s.repo.Create(ctx, account)
}

// Deactivate retires an account; existing journal lines keep referencing it
// but new postings are refused by the journals service.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	children, err := s.repo.ListChildren(ctx, id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.IsActive {
			return fmt.Errorf("%w: account has active children", shared.ErrPreconditionFailed)
		}
	}
	return s.repo.SetActive(ctx, id, false)
}

// TreeNode is an account plus its children, used for the chart listing.
type TreeNode struct {
	Account  Account    `json:"account"`
	Children []TreeNode `json:"children,omitempty"`
}

// Tree assembles the full chart as a forest of root accounts.
func (s *Service) Tree(ctx context.Context, activeOnly bool) ([]TreeNode, error) {
	all, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	byParent := make(map[int64][]Account)
	var roots []Account
	for _, a := range all {
		if a.ParentID == nil {
			roots = append(roots, a)
			continue
		}
		byParent[*a.ParentID] = append(byParent[*a.ParentID], a)
	}
	var build func(a Account) TreeNode
	build = func(a Account) TreeNode {
		node := TreeNode{Account: a}
		kids := byParent[a.ID]
		sort.Slice(kids, func(i, j int) bool { return kids[i].Code < kids[j].Code })
		for _, k := range kids {
			node.Children = append(node.Children, build(k))
		}
		return node
	}
	out := make([]TreeNode, 0, len(roots))
	for _, root := range roots {
		out = append(out, build(root))
	}
	return out, nil
}
