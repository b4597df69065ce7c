package accounting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/accounting/accounts"
	"github.com/tokoflow/tokoflow/internal/accounting/journals"
	"github.com/tokoflow/tokoflow/internal/analytics"
	"github.com/tokoflow/tokoflow/internal/platform/httpx"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// Handler exposes the chart of accounts, ledger and report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	accounts  *accounts.Service
	journals  *journals.Service
	analytics *analytics.Service
	validate  *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, accountsSvc *accounts.Service, journalSvc *journals.Service, analyticsSvc *analytics.Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		accounts:  accountsSvc,
		journals:  journalSvc,
		analytics: analyticsSvc,
		validate:  validator.New(),
	}
}

// MountRoutes attaches accounting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{code}", h.getAccount)
	r.Post("/accounts/{id}/deactivate", h.deactivateAccount)
	r.Get("/journals", h.listJournals)
	r.Get("/journals/{id}", h.getJournal)
	r.Post("/journals", h.postJournal)
	r.Post("/journals/{id}/reverse", h.reverseJournal)
	r.Get("/reports/{kind}", h.getReport)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	tree, err := h.accounts.Tree(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tree)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

type createAccountInput struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=asset liability equity revenue expense"`
	ParentID *int64 `json:"parent_id"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var input createAccountInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.accounts.Create(r.Context(), accounts.Account{
		Code:     input.Code,
		Name:     input.Name,
		Type:     accounts.AccountType(input.Type),
		ParentID: input.ParentID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	if err := h.accounts.Deactivate(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) listJournals(w http.ResponseWriter, r *http.Request) {
	from := parseDate(r.URL.Query().Get("from"))
	to := parseDate(r.URL.Query().Get("to"))
	entries, err := h.journals.List(r.Context(), from, to)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid journal id")
		return
	}
	journal, err := h.journals.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, journal)
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var input journals.PostingInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		input.PostedBy = actor.ID
	}
	journal, err := h.journals.Post(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journal)
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid journal id")
		return
	}
	var input journals.ReverseInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	input.JournalID = id
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		input.ActorID = actor.ID
	}
	reversal, err := h.journals.Reverse(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

// taxSummary wraps the monthly VAT rows with range totals.
type taxSummary struct {
	Rows        []interface{}   `json:"rows"`
	TotalOutput decimal.Decimal `json:"total_output"`
	TotalInput  decimal.Decimal `json:"total_input"`
	TotalNet    decimal.Decimal `json:"total_net"`
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	from, to := reportRange(r)

	var payload any
	var err error
	switch kind {
	case "pnl":
		payload, err = h.service.ProfitAndLoss(r.Context(), from, to)
	case "balance_sheet":
		payload, err = h.service.BalanceSheet(r.Context(), to)
	case "cash_flow":
		payload, err = h.service.CashFlow(r.Context(), from, to)
	case "vat_monthly":
		payload, err = h.service.VATMonthly(r.Context(), from, to)
	case "tax_summary":
		rows, verr := h.service.VATMonthly(r.Context(), from, to)
		if verr != nil {
			err = verr
			break
		}
		summary := taxSummary{}
		for _, row := range rows {
			summary.Rows = append(summary.Rows, row)
			summary.TotalOutput = summary.TotalOutput.Add(row.Output)
			summary.TotalInput = summary.TotalInput.Add(row.Input)
			summary.TotalNet = summary.TotalNet.Add(row.Net)
		}
		payload = summary
	case "ap_aging":
		payload, err = h.analytics.GetAPAging(r.Context(), to)
	case "ar_aging":
		payload, err = h.analytics.GetARAging(r.Context(), to)
	case "backorder_report":
		payload, err = h.analytics.GetBackorderReport(r.Context())
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown report kind "+kind)
		return
	}
	if err != nil {
		h.logger.Error("build report", slog.String("kind", kind), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payload)
}

func reportRange(r *http.Request) (time.Time, time.Time) {
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now
	if t := parseDate(r.URL.Query().Get("from")); t != nil {
		from = *t
	}
	if t := parseDate(r.URL.Query().Get("to")); t != nil {
		to = *t
	}
	return from, to
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}
