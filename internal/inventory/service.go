package inventory

import (
	"context"
	"fmt"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BackorderFulfiller re-offers received stock to waiting backorders. It is
// invoked after the inbound transaction commits, never inside it.
type BackorderFulfiller interface {
	FulfillFromInbound(ctx context.Context, productID int64) error
}

// Service coordinates inventory movements.
type Service struct {
	repo      Repository
	audit     AuditPort
	fulfiller BackorderFulfiller
}

// NewService builds Service. fulfiller may be nil.
func NewService(repo Repository, audit AuditPort, fulfiller BackorderFulfiller) *Service {
	return &Service{repo: repo, audit: audit, fulfiller: fulfiller}
}

// SetBackorderFulfiller wires the allocation engine after construction,
// breaking the otherwise circular dependency between the two services.
func (s *Service) SetBackorderFulfiller(f BackorderFulfiller) {
	s.fulfiller = f
}

// GetProduct fetches a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts lists products with an optional search term.
func (s *Service) ListProducts(ctx context.Context, search string, page shared.Pagination) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, search, page)
}

// CreateProduct registers a new product with zero stock; opening quantity
// arrives via an initial mutation so the log stays complete.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.SKU == "" || p.Name == "" {
		return Product{}, fmt.Errorf("%w: sku and name required", shared.ErrValidation)
	}
	if p.Price.IsNegative() || p.BasePrice.IsNegative() {
		return Product{}, fmt.Errorf("%w: prices must be non-negative", shared.ErrValidation)
	}
	return s.repo.CreateProduct(ctx, p)
}

// SetInitialStock seeds the opening quantity exactly once per product.
func (s *Service) SetInitialStock(ctx context.Context, productID, qty, actorID int64) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	existing, err := s.repo.SumMutations(ctx, productID)
	if err != nil {
		return err
	}
	if existing != 0 {
		return fmt.Errorf("%w: product already has stock history", shared.ErrPreconditionFailed)
	}
	return s.postMovement(ctx, movementParams{
		ProductID: productID,
		Type:      MutationTypeInitial,
		Qty:       qty,
		Note:      "initial stock",
		ActorID:   actorID,
	})
}

// PostInbound records received stock and offers it to waiting backorders.
func (s *Service) PostInbound(ctx context.Context, input InboundInput) error {
	if input.Qty <= 0 {
		return ErrInvalidQuantity
	}
	err := s.postMovement(ctx, movementParams{
		ProductID:   input.ProductID,
		Type:        MutationTypeIn,
		Qty:         input.Qty,
		ReferenceID: input.ReferenceID,
		Note:        input.Note,
		ActorID:     input.ActorID,
	})
	if err != nil {
		return err
	}
	if s.fulfiller != nil {
		if err := s.fulfiller.FulfillFromInbound(ctx, input.ProductID); err != nil {
			// inbound already committed; fulfillment failure is reported
			// but does not undo the receipt
			return fmt.Errorf("inventory: backorder fulfillment: %w", err)
		}
	}
	return nil
}

// PostAdjustment records a signed manual correction.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) error {
	if input.Qty == 0 {
		return ErrInvalidQuantity
	}
	if input.Note == "" {
		return fmt.Errorf("%w: adjustment requires a note", shared.ErrValidation)
	}
	return s.postMovement(ctx, movementParams{
		ProductID: input.ProductID,
		Type:      MutationTypeAdjustment,
		Qty:       input.Qty,
		Note:      input.Note,
		ActorID:   input.ActorID,
	})
}

// ListMutations returns the newest entries of the mutation log.
func (s *Service) ListMutations(ctx context.Context, productID int64, limit int) ([]StockMutation, error) {
	return s.repo.ListMutations(ctx, productID, limit)
}

// CheckConsistency verifies the running sum of the mutation log equals
// the available-stock counter. Allocations move units from StockQuantity
// to AllocatedQuantity with an out mutation, so the log tracks
// StockQuantity alone. Returns the drift (zero when consistent).
func (s *Service) CheckConsistency(ctx context.Context, productID int64) (int64, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	sum, err := s.repo.SumMutations(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.StockQuantity - sum, nil
}

type movementParams struct {
	ProductID   int64
	Type        MutationType
	Qty         int64
	ReferenceID string
	Note        string
	ActorID     int64
}

func (s *Service) postMovement(ctx context.Context, params movementParams) error {
	if params.ProductID == 0 {
		return fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, params.ProductID)
		if err != nil {
			return err
		}
		newStock := product.StockQuantity + params.Qty
		if params.Type == MutationTypeOut {
			newStock = product.StockQuantity - params.Qty
		}
		if newStock < 0 {
			return ErrNegativeStock
		}
		if err := tx.UpdateProductCounters(ctx, product.ID, newStock, product.AllocatedQuantity); err != nil {
			return err
		}
		qty := params.Qty
		return tx.InsertMutation(ctx, StockMutation{
			ProductID:   params.ProductID,
			Type:        params.Type,
			Qty:         qty,
			ReferenceID: params.ReferenceID,
			Note:        params.Note,
		})
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  params.ActorID,
			Action:   fmt.Sprintf("inventory:%s", params.Type),
			Entity:   "stock_mutation",
			EntityID: fmt.Sprintf("%d", params.ProductID),
			Meta: map[string]any{
				"product_id": params.ProductID,
				"qty":        params.Qty,
				"note":       params.Note,
			},
		})
	}
	return nil
}
