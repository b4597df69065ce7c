package invoicing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tokoflow/tokoflow/internal/accounting/accounts"
	"github.com/tokoflow/tokoflow/internal/accounting/journals"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// memoryRepo serializes transactions with a mutex the way concurrent
// settlements serialize on the invoice row lock.
type memoryRepo struct {
	mu       sync.Mutex
	invoices map[int64]Invoice
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[int64]Invoice)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[int64]Invoice, len(r.invoices))
	for k, v := range r.invoices {
		snap[k] = v
	}
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.invoices = snap
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.invoices[id]; ok {
		return inv, nil
	}
	return Invoice{}, shared.ErrNotFound
}

func (r *memoryRepo) GetByOrder(ctx context.Context, orderID int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.OrderID == orderID {
			return inv, nil
		}
	}
	return Invoice{}, shared.ErrNotFound
}

func (r *memoryRepo) SetPaymentProof(ctx context.Context, id int64, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := r.invoices[id]
	inv.PaymentProofURL = url
	r.invoices[id] = inv
	return nil
}

func (r *memoryRepo) ClearProof(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := r.invoices[id]
	inv.PaymentProofURL = ""
	r.invoices[id] = inv
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.invoices, id)
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Insert(ctx context.Context, inv Invoice) (Invoice, error) {
	t.repo.nextID++
	inv.ID = t.repo.nextID
	t.repo.invoices[inv.ID] = inv
	return inv, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	if inv, ok := t.repo.invoices[id]; ok {
		return inv, nil
	}
	return Invoice{}, shared.ErrNotFound
}

func (t *memoryTx) SetJournal(ctx context.Context, id, journalID int64) error {
	inv := t.repo.invoices[id]
	inv.JournalID = journalID
	t.repo.invoices[id] = inv
	return nil
}

func (t *memoryTx) MarkPaid(ctx context.Context, id int64, expect PaymentStatus, journalID int64, at time.Time) error {
	inv := t.repo.invoices[id]
	if inv.PaymentStatus != expect {
		return shared.ErrConcurrencyConflict
	}
	inv.PaymentStatus = PaymentPaid
	inv.PaidAt = &at
	inv.JournalID = journalID
	t.repo.invoices[id] = inv
	return nil
}

type fakeLedger struct {
	posted    []journals.PostingInput
	reversed  []int64
	nextID    int64
	failPosts int
}

func (l *fakeLedger) Post(ctx context.Context, input journals.PostingInput) (journals.Journal, error) {
	if err := input.Validate(); err != nil {
		return journals.Journal{}, err
	}
	if l.failPosts > 0 {
		l.failPosts--
		return journals.Journal{}, fmt.Errorf("ledger unavailable")
	}
	l.posted = append(l.posted, input)
	l.nextID++
	return journals.Journal{ID: l.nextID}, nil
}

func (l *fakeLedger) Reverse(ctx context.Context, input journals.ReverseInput) (journals.Journal, error) {
	l.reversed = append(l.reversed, input.JournalID)
	l.nextID++
	return journals.Journal{ID: l.nextID}, nil
}

type fakeGateway struct {
	order       orders.Order
	items       []orders.OrderItem
	transitions []orders.Status
}

func (g *fakeGateway) Get(ctx context.Context, id int64) (orders.Order, []orders.OrderItem, error) {
	if g.order.ID != id {
		return orders.Order{}, nil, shared.ErrNotFound
	}
	return g.order, g.items, nil
}

func (g *fakeGateway) Transition(ctx context.Context, orderID int64, target orders.Status, actor shared.Actor, extra orders.TransitionInput) (orders.Order, error) {
	g.transitions = append(g.transitions, target)
	g.order.Status = target
	return g.order, nil
}

func lineAmount(t *testing.T, input journals.PostingInput, code string) (debit, credit decimal.Decimal) {
	t.Helper()
	for _, l := range input.Lines {
		if l.AccountCode == code {
			return l.Debit, l.Credit
		}
	}
	t.Fatalf("no line for account %s", code)
	return decimal.Zero, decimal.Zero
}

func newTestService(status orders.Status) (*Service, *memoryRepo, *fakeLedger, *fakeGateway) {
	repo := newMemoryRepo()
	ledger := &fakeLedger{}
	gateway := &fakeGateway{
		order: orders.Order{ID: 7, Status: status, TotalAmount: decimal.RequireFromString("100000")},
		items: []orders.OrderItem{
			{OrderID: 7, ProductID: 1, Qty: 2, PriceAtPurchase: decimal.RequireFromString("50000"), CostAtPurchase: decimal.RequireFromString("30000")},
		},
	}
	svc := NewService(repo, ledger, gateway, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) })
	return svc, repo, ledger, gateway
}

var finance = shared.Actor{ID: 3, Role: shared.RoleAdminFinance}

func TestIssueTransferWithPKPVAT(t *testing.T) {
	svc, _, ledger, gateway := newTestService(orders.StatusAllocated)

	invoice, err := svc.Issue(context.Background(), IssueInput{OrderID: 7, Method: MethodTransfer, TaxMode: TaxModePKP}, finance)
	require.NoError(t, err)

	require.Equal(t, PaymentUnpaid, invoice.PaymentStatus)
	require.Equal(t, TaxModePKP, invoice.TaxModeSnapshot)
	require.True(t, invoice.TaxAmount.Equal(decimal.RequireFromString("11000")), invoice.TaxAmount.String())
	require.True(t, invoice.Total.Equal(decimal.RequireFromString("111000")))

	require.Len(t, ledger.posted, 1)
	issueJournal := ledger.posted[0]
	arDebit, _ := lineAmount(t, issueJournal, accounts.CodeARTrade)
	require.True(t, arDebit.Equal(decimal.RequireFromString("111000")))
	_, revCredit := lineAmount(t, issueJournal, accounts.CodeSalesRevenue)
	require.True(t, revCredit.Equal(decimal.RequireFromString("100000")))
	_, vatCredit := lineAmount(t, issueJournal, accounts.CodeVATOutput)
	require.True(t, vatCredit.Equal(decimal.RequireFromString("11000")))
	cogsDebit, _ := lineAmount(t, issueJournal, accounts.CodeCOGS)
	require.True(t, cogsDebit.Equal(decimal.RequireFromString("60000")))

	require.Equal(t, []orders.Status{orders.StatusWaitingInvoice, orders.StatusWaitingPayment}, gateway.transitions)
}

func TestIssueNonPKPHasNoVATLine(t *testing.T) {
	svc, _, ledger, _ := newTestService(orders.StatusAllocated)

	invoice, err := svc.Issue(context.Background(), IssueInput{OrderID: 7, Method: MethodTransfer, TaxMode: TaxModeNonPKP}, finance)
	require.NoError(t, err)
	require.True(t, invoice.TaxAmount.IsZero())
	require.True(t, invoice.Total.Equal(invoice.Subtotal))
	for _, l := range ledger.posted[0].Lines {
		require.NotEqual(t, accounts.CodeVATOutput, l.AccountCode)
	}
}

func TestIssueCashSettlesImmediately(t *testing.T) {
	svc, _, ledger, gateway := newTestService(orders.StatusAllocated)

	invoice, err := svc.Issue(context.Background(), IssueInput{OrderID: 7, Method: MethodCash, TaxMode: TaxModeNonPKP},
		shared.Actor{ID: 4, Role: shared.RoleKasir})
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, invoice.PaymentStatus)
	require.Equal(t, []orders.Status{orders.StatusWaitingInvoice, orders.StatusReadyToShip}, gateway.transitions)

	require.Len(t, ledger.posted, 2)
	cashDebit, _ := lineAmount(t, ledger.posted[1], accounts.CodeCash)
	require.True(t, cashDebit.Equal(invoice.Total))
}

func TestIssueCODWaitsForRemittance(t *testing.T) {
	svc, _, ledger, _ := newTestService(orders.StatusPartiallyFulfilled)

	invoice, err := svc.Issue(context.Background(), IssueInput{OrderID: 7, Method: MethodCOD, TaxMode: TaxModeNonPKP}, finance)
	require.NoError(t, err)
	require.Equal(t, PaymentCODPending, invoice.PaymentStatus)

	arDebit, _ := lineAmount(t, ledger.posted[0], accounts.CodeARCOD)
	require.True(t, arDebit.Equal(invoice.Total), "COD books against the COD receivable")

	settled, err := svc.SettleCOD(context.Background(), 7, finance)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, settled.PaymentStatus)
	cashDebit, _ := lineAmount(t, ledger.posted[1], accounts.CodeCash)
	require.True(t, cashDebit.Equal(invoice.Total))

	_, err = svc.SettleCOD(context.Background(), 7, finance)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

func TestIssueRollsBackInvoiceWhenPostingFails(t *testing.T) {
	svc, repo, ledger, _ := newTestService(orders.StatusAllocated)
	ledger.failPosts = 1

	_, err := svc.Issue(context.Background(), IssueInput{OrderID: 7, Method: MethodTransfer, TaxMode: TaxModeNonPKP}, finance)
	require.Error(t, err)

	_, err = repo.GetByOrder(context.Background(), 7)
	require.ErrorIs(t, err, shared.ErrNotFound, "failed posting must not leave an invoice behind")
	require.Empty(t, ledger.posted)
}

func TestConcurrentCODSettlementPostsOneCashJournal(t *testing.T) {
	svc, _, ledger, _ := newTestService(orders.StatusAllocated)
	ctx := context.Background()
	_, err := svc.Issue(ctx, IssueInput{OrderID: 7, Method: MethodCOD, TaxMode: TaxModeNonPKP}, finance)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SettleCOD(ctx, 7, finance)
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, shared.ErrPreconditionFailed)
			failed++
		}
	}
	require.Equal(t, 1, failed, "exactly one settlement wins")
	require.Len(t, ledger.posted, 2, "issuance plus a single payment journal")
}

func TestIssueRequiresAllocation(t *testing.T) {
	svc, _, _, _ := newTestService(orders.StatusPending)
	_, err := svc.Issue(context.Background(), IssueInput{OrderID: 7, Method: MethodCash, TaxMode: TaxModeNonPKP}, finance)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

func TestIssueRejectsSecondInvoice(t *testing.T) {
	svc, _, _, gateway := newTestService(orders.StatusAllocated)
	ctx := context.Background()
	_, err := svc.Issue(ctx, IssueInput{OrderID: 7, Method: MethodTransfer, TaxMode: TaxModeNonPKP}, finance)
	require.NoError(t, err)

	gateway.order.Status = orders.StatusAllocated
	_, err = svc.Issue(ctx, IssueInput{OrderID: 7, Method: MethodTransfer, TaxMode: TaxModeNonPKP}, finance)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

func TestVerifyPaymentFlow(t *testing.T) {
	svc, _, ledger, gateway := newTestService(orders.StatusAllocated)
	ctx := context.Background()
	invoice, err := svc.Issue(ctx, IssueInput{OrderID: 7, Method: MethodTransfer, TaxMode: TaxModeNonPKP}, finance)
	require.NoError(t, err)

	// No proof yet.
	_, err = svc.VerifyPayment(ctx, invoice.ID, true, finance)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	require.NoError(t, svc.SubmitProof(ctx, invoice.ID, "https://cdn.example.com/proof.jpg"))

	// Reject keeps it unpaid and clears the proof.
	rejected, err := svc.VerifyPayment(ctx, invoice.ID, false, finance)
	require.NoError(t, err)
	require.Equal(t, PaymentUnpaid, rejected.PaymentStatus)
	require.Empty(t, rejected.PaymentProofURL)

	require.NoError(t, svc.SubmitProof(ctx, invoice.ID, "https://cdn.example.com/proof2.jpg"))
	approved, err := svc.VerifyPayment(ctx, invoice.ID, true, finance)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, approved.PaymentStatus)
	require.Equal(t, orders.StatusReadyToShip, gateway.order.Status)

	bankDebit, _ := lineAmount(t, ledger.posted[len(ledger.posted)-1], accounts.CodeBank)
	require.True(t, bankDebit.Equal(approved.Total))
}

func TestVerifyPaymentRequiresFinanceRole(t *testing.T) {
	svc, repo, _, _ := newTestService(orders.StatusAllocated)
	repo.invoices[1] = Invoice{ID: 1, PaymentStatus: PaymentUnpaid, PaymentProofURL: "https://x/p.jpg"}

	_, err := svc.VerifyPayment(context.Background(), 1, true, shared.Actor{ID: 9, Role: shared.RoleDriver})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestDeleteGuards(t *testing.T) {
	svc, repo, ledger, _ := newTestService(orders.StatusAllocated)
	ctx := context.Background()

	repo.invoices[1] = Invoice{ID: 1, Number: "INV/1", PaymentStatus: PaymentPaid}
	repo.invoices[2] = Invoice{ID: 2, Number: "INV/2", PaymentStatus: PaymentCODPending}
	repo.invoices[3] = Invoice{ID: 3, Number: "INV/3", PaymentStatus: PaymentUnpaid, JournalID: 42}
	repo.nextID = 3

	require.ErrorIs(t, svc.Delete(ctx, 1, finance), shared.ErrPreconditionFailed)
	require.ErrorIs(t, svc.Delete(ctx, 2, finance), shared.ErrPreconditionFailed)

	require.NoError(t, svc.Delete(ctx, 3, finance))
	require.Equal(t, []int64{42}, ledger.reversed, "issuance journal is reversed, not edited")
	_, err := svc.Get(ctx, 3)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
