package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// OrderCanceler cancels every open order of a customer, releasing the
// reserved stock order by order.
type OrderCanceler interface {
	CancelOpenByCustomer(ctx context.Context, customerID int64, reason string) (int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service manages customer records and the ban cascade.
type Service struct {
	repo     Repository
	canceler OrderCanceler
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, canceler OrderCanceler, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, canceler: canceler, audit: audit, logger: logger, now: time.Now}
}

// CreateInput is a new customer record.
type CreateInput struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
}

// Create registers a customer. Phone numbers are unique.
func (s *Service) Create(ctx context.Context, input CreateInput) (Customer, error) {
	if input.Name == "" || input.Phone == "" {
		return Customer{}, fmt.Errorf("%w: name and phone required", shared.ErrValidation)
	}
	return s.repo.Insert(ctx, Customer{
		Name: input.Name, Phone: input.Phone, Email: input.Email, Address: input.Address,
	})
}

// Update rewrites the customer's contact fields.
func (s *Service) Update(ctx context.Context, id int64, input CreateInput) (Customer, error) {
	if input.Name == "" || input.Phone == "" {
		return Customer{}, fmt.Errorf("%w: name and phone required", shared.ErrValidation)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Customer{}, err
	}
	return s.repo.Update(ctx, Customer{
		ID: id, Name: input.Name, Phone: input.Phone, Email: input.Email, Address: input.Address,
	})
}

// Get returns the customer.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns customers matching the search term.
func (s *Service) List(ctx context.Context, search string, page shared.Pagination) ([]Customer, int, error) {
	return s.repo.List(ctx, search, page)
}

// Ban flags the customer and cancels all their open orders, releasing
// reserved stock. The ban lands even when individual orders fail to
// cancel; those are logged and left for the operator.
func (s *Service) Ban(ctx context.Context, customerID int64, actor shared.Actor, reason string) (int, error) {
	if actor.Role != shared.RoleSuperAdmin && actor.Role != shared.RoleAdminFinance {
		return 0, fmt.Errorf("%w: role %s may not ban customers", shared.ErrForbidden, actor.Role)
	}
	if reason == "" {
		return 0, fmt.Errorf("%w: ban reason required", shared.ErrValidation)
	}
	customer, err := s.repo.Get(ctx, customerID)
	if err != nil {
		return 0, err
	}
	if customer.Banned {
		return 0, fmt.Errorf("%w: customer %d already banned", shared.ErrPreconditionFailed, customerID)
	}

	if err := s.repo.SetBanned(ctx, customerID, reason, s.now()); err != nil {
		return 0, err
	}
	canceled, err := s.canceler.CancelOpenByCustomer(ctx, customerID, fmt.Sprintf("customer banned: %s", reason))
	if err != nil {
		// The ban holds; the stuck orders need manual cancellation.
		s.logger.Error("ban cascade incomplete", slog.Int64("customer_id", customerID), slog.Any("error", err))
	}

	s.recordAudit(ctx, customerID, "ban", map[string]any{"reason": reason, "orders_canceled": canceled})
	return canceled, nil
}

// Unban lifts the flag. Canceled orders stay canceled.
func (s *Service) Unban(ctx context.Context, customerID int64, actor shared.Actor) error {
	if actor.Role != shared.RoleSuperAdmin && actor.Role != shared.RoleAdminFinance {
		return fmt.Errorf("%w: role %s may not unban customers", shared.ErrForbidden, actor.Role)
	}
	customer, err := s.repo.Get(ctx, customerID)
	if err != nil {
		return err
	}
	if !customer.Banned {
		return fmt.Errorf("%w: customer %d is not banned", shared.ErrPreconditionFailed, customerID)
	}
	if err := s.repo.ClearBan(ctx, customerID); err != nil {
		return err
	}
	s.recordAudit(ctx, customerID, "unban", nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, customerID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Entity:   "customer",
		EntityID: strconv.FormatInt(customerID, 10),
		Action:   action,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
