package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/accounting/accounts"
	"github.com/tokoflow/tokoflow/internal/accounting/journals"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// JournalPoster is the slice of the ledger the billing flow needs.
type JournalPoster interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.Journal, error)
	Reverse(ctx context.Context, input journals.ReverseInput) (journals.Journal, error)
}

// OrderGateway drives order state from billing events.
type OrderGateway interface {
	Get(ctx context.Context, id int64) (orders.Order, []orders.OrderItem, error)
	Transition(ctx context.Context, orderID int64, target orders.Status, actor shared.Actor, extra orders.TransitionInput) (orders.Order, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service issues invoices and settles payments, posting the matching
// ledger journals.
type Service struct {
	repo    Repository
	ledger  JournalPoster
	gateway OrderGateway
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, ledger JournalPoster, gateway OrderGateway, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, gateway: gateway, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueInput describes an issuance request.
type IssueInput struct {
	OrderID int64         `json:"order_id" validate:"required,gt=0"`
	Method  PaymentMethod `json:"payment_method" validate:"required,oneof=cash transfer cod"`
	TaxMode TaxMode       `json:"tax_mode" validate:"required,oneof=pkp non_pkp"`
}

// Issue creates the invoice for an at-least-partially-allocated order,
// freezing amounts and tax mode, and posts the revenue journal. The
// invoice row and its journal link commit together: a failed posting
// rolls the invoice back instead of stranding a journal. Cash settles
// immediately; transfer waits for proof verification; COD waits for
// driver remittance.
func (s *Service) Issue(ctx context.Context, input IssueInput, actor shared.Actor) (Invoice, error) {
	if _, err := s.repo.GetByOrder(ctx, input.OrderID); err == nil {
		return Invoice{}, fmt.Errorf("%w: order %d already has an invoice", shared.ErrPreconditionFailed, input.OrderID)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Invoice{}, err
	}

	order, items, err := s.gateway.Get(ctx, input.OrderID)
	if err != nil {
		return Invoice{}, err
	}
	if order.Status != orders.StatusAllocated && order.Status != orders.StatusPartiallyFulfilled {
		return Invoice{}, fmt.Errorf("%w: order %d must be at least partially allocated, is %s",
			shared.ErrPreconditionFailed, order.ID, order.Status)
	}

	now := s.now()
	subtotal := shared.RoundMoney(order.TotalAmount)
	tax := decimal.Zero
	if input.TaxMode == TaxModePKP {
		tax = shared.RoundMoney(subtotal.Mul(VATRatePercent).Div(decimal.NewFromInt(100)))
	}
	total := subtotal.Add(tax)
	cogs := decimal.Zero
	for _, it := range items {
		cogs = cogs.Add(it.CostAtPurchase.Mul(decimal.NewFromInt(it.Qty)))
	}
	cogs = shared.RoundMoney(cogs)

	number := fmt.Sprintf("INV/%s/%06d", now.Format("20060102"), order.ID)
	receivable := accounts.CodeARTrade
	if input.Method == MethodCOD {
		receivable = accounts.CodeARCOD
	}

	lines := []journals.PostingLineInput{
		{AccountCode: receivable, Debit: total},
		{AccountCode: accounts.CodeSalesRevenue, Credit: subtotal},
	}
	if tax.IsPositive() {
		lines = append(lines, journals.PostingLineInput{AccountCode: accounts.CodeVATOutput, Credit: tax})
	}
	if cogs.IsPositive() {
		lines = append(lines,
			journals.PostingLineInput{AccountCode: accounts.CodeCOGS, Debit: cogs},
			journals.PostingLineInput{AccountCode: accounts.CodeInventory, Credit: cogs},
		)
	}
	status := PaymentUnpaid
	if input.Method == MethodCOD {
		status = PaymentCODPending
	}
	var invoice Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.Insert(ctx, Invoice{
			OrderID:         order.ID,
			Number:          number,
			PaymentStatus:   status,
			PaymentMethod:   input.Method,
			TaxModeSnapshot: input.TaxMode,
			Subtotal:        subtotal,
			TaxAmount:       tax,
			Total:           total,
			IssuedAt:        now,
		})
		if err != nil {
			return err
		}
		journal, err := s.ledger.Post(ctx, journals.PostingInput{
			Date:          now,
			ReferenceType: "invoice",
			ReferenceID:   number,
			Description:   fmt.Sprintf("invoice %s for order %d", number, order.ID),
			PostedBy:      actor.ID,
			Lines:         lines,
		})
		if err != nil {
			return err
		}
		if err := tx.SetJournal(ctx, inv.ID, journal.ID); err != nil {
			s.reverseOrphanJournal(ctx, journal.ID, number, actor)
			return err
		}
		inv.JournalID = journal.ID
		invoice = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	if _, err := s.gateway.Transition(ctx, order.ID, orders.StatusWaitingInvoice, actor, orders.TransitionInput{}); err != nil {
		return Invoice{}, err
	}
	next := orders.StatusWaitingPayment
	if input.Method != MethodTransfer {
		// Cash and COD skip the payment-proof wait.
		next = orders.StatusReadyToShip
	}
	if _, err := s.gateway.Transition(ctx, order.ID, next, actor, orders.TransitionInput{}); err != nil {
		return Invoice{}, err
	}

	if input.Method == MethodCash {
		invoice, err = s.settle(ctx, invoice.ID, PaymentUnpaid, accounts.CodeCash, actor)
		if err != nil {
			return Invoice{}, err
		}
	}

	s.recordAudit(ctx, invoice.ID, "issue", map[string]any{"number": number, "total": total})
	return invoice, nil
}

// Get returns the invoice.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

// GetByOrder returns the order's invoice.
func (s *Service) GetByOrder(ctx context.Context, orderID int64) (Invoice, error) {
	return s.repo.GetByOrder(ctx, orderID)
}

// SubmitProof attaches the customer's transfer receipt.
func (s *Service) SubmitProof(ctx context.Context, invoiceID int64, url string) error {
	if url == "" {
		return fmt.Errorf("%w: proof url required", shared.ErrValidation)
	}
	invoice, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice.PaymentStatus != PaymentUnpaid {
		return fmt.Errorf("%w: invoice %s is %s", shared.ErrPreconditionFailed, invoice.Number, invoice.PaymentStatus)
	}
	return s.repo.SetPaymentProof(ctx, invoiceID, url)
}

// VerifyPayment approves or rejects a submitted transfer proof. Approval
// posts the bank journal and moves the order to ready_to_ship; rejection
// clears the proof and leaves the order waiting.
func (s *Service) VerifyPayment(ctx context.Context, invoiceID int64, approve bool, actor shared.Actor) (Invoice, error) {
	if actor.Role != shared.RoleSuperAdmin && actor.Role != shared.RoleAdminFinance {
		return Invoice{}, fmt.Errorf("%w: role %s may not verify payments", shared.ErrForbidden, actor.Role)
	}
	invoice, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if invoice.PaymentStatus != PaymentUnpaid {
		return Invoice{}, fmt.Errorf("%w: invoice %s is %s", shared.ErrPreconditionFailed, invoice.Number, invoice.PaymentStatus)
	}
	if invoice.PaymentProofURL == "" {
		return Invoice{}, fmt.Errorf("%w: invoice %s has no payment proof", shared.ErrPreconditionFailed, invoice.Number)
	}

	if !approve {
		if err := s.repo.ClearProof(ctx, invoiceID); err != nil {
			return Invoice{}, err
		}
		s.recordAudit(ctx, invoiceID, "reject_payment", nil)
		return s.repo.Get(ctx, invoiceID)
	}

	invoice, err = s.settle(ctx, invoice.ID, PaymentUnpaid, accounts.CodeBank, actor)
	if err != nil {
		return Invoice{}, err
	}
	if _, err := s.gateway.Transition(ctx, invoice.OrderID, orders.StatusReadyToShip, actor, orders.TransitionInput{}); err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, invoiceID, "approve_payment", nil)
	return invoice, nil
}

// SettleCOD marks a cod_pending invoice paid out of a driver remittance
// and posts the cash journal.
func (s *Service) SettleCOD(ctx context.Context, orderID int64, actor shared.Actor) (Invoice, error) {
	invoice, err := s.repo.GetByOrder(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}
	if invoice.PaymentStatus != PaymentCODPending {
		return Invoice{}, fmt.Errorf("%w: invoice %s is %s, not cod_pending",
			shared.ErrPreconditionFailed, invoice.Number, invoice.PaymentStatus)
	}
	invoice, err = s.settle(ctx, invoice.ID, PaymentCODPending, accounts.CodeCash, actor)
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, invoice.ID, "settle_cod", nil)
	return invoice, nil
}

// settle locks the invoice row, posts the payment journal against its
// receivable and flips it to paid, all in one transaction. The row lock
// plus the status predicate on the paid update serialize concurrent
// settlements: the loser re-reads the new status and fails the
// precondition instead of posting a second cash journal.
func (s *Service) settle(ctx context.Context, invoiceID int64, expect PaymentStatus, cashCode string, actor shared.Actor) (Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.PaymentStatus != expect {
			return fmt.Errorf("%w: invoice %s is %s", shared.ErrPreconditionFailed, invoice.Number, invoice.PaymentStatus)
		}
		receivable := accounts.CodeARTrade
		if invoice.PaymentMethod == MethodCOD {
			receivable = accounts.CodeARCOD
		}
		now := s.now()
		journal, err := s.ledger.Post(ctx, journals.PostingInput{
			Date:          now,
			ReferenceType: "invoice_payment",
			ReferenceID:   invoice.Number,
			Description:   fmt.Sprintf("payment for %s", invoice.Number),
			PostedBy:      actor.ID,
			Lines: []journals.PostingLineInput{
				{AccountCode: cashCode, Debit: invoice.Total},
				{AccountCode: receivable, Credit: invoice.Total},
			},
		})
		if err != nil {
			return err
		}
		if err := tx.MarkPaid(ctx, invoice.ID, expect, journal.ID, now); err != nil {
			s.reverseOrphanJournal(ctx, journal.ID, invoice.Number, actor)
			return err
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return s.repo.Get(ctx, invoiceID)
}

// reverseOrphanJournal compensates a posting whose invoice write failed
// after the journal committed. Best effort; a failure here is logged for
// manual follow-up.
func (s *Service) reverseOrphanJournal(ctx context.Context, journalID int64, number string, actor shared.Actor) {
	if _, err := s.ledger.Reverse(ctx, journals.ReverseInput{
		JournalID: journalID,
		Date:      s.now(),
		ActorID:   actor.ID,
		Memo:      fmt.Sprintf("orphaned posting for %s", number),
	}); err != nil {
		s.logger.Error("reverse orphaned journal",
			slog.Int64("journal_id", journalID), slog.Any("error", err))
	}
}

// Delete removes an unsettled invoice, reversing its issuance journal.
// Paid and cod_pending invoices are immutable history.
func (s *Service) Delete(ctx context.Context, invoiceID int64, actor shared.Actor) error {
	invoice, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if !invoice.Deletable() {
		return fmt.Errorf("%w: invoice %s is %s and cannot be deleted",
			shared.ErrPreconditionFailed, invoice.Number, invoice.PaymentStatus)
	}
	if invoice.JournalID != 0 {
		if _, err := s.ledger.Reverse(ctx, journals.ReverseInput{
			JournalID: invoice.JournalID,
			Date:      s.now(),
			ActorID:   actor.ID,
			Memo:      fmt.Sprintf("void %s", invoice.Number),
		}); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, invoiceID); err != nil {
		return err
	}
	s.recordAudit(ctx, invoiceID, "delete", map[string]any{"number": invoice.Number})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, invoiceID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
		Action:   action,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
