package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tokoflow/tokoflow/internal/platform/httpx"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// Handler exposes the product catalog and stock ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products", h.createProduct)
	r.Post("/products/{id}/initial-stock", h.setInitialStock)
	r.Post("/products/{id}/inbound", h.postInbound)
	r.Post("/products/{id}/adjustment", h.postAdjustment)
	r.Get("/products/{id}/mutations", h.listMutations)
	r.Get("/products/{id}/consistency", h.checkConsistency)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	products, total, err := h.service.ListProducts(r.Context(), q.Get("search"), shared.NewPagination(page, perPage, 0))
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       products,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type createProductRequest struct {
	SKU       string `json:"sku" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Price     string `json:"price" validate:"required"`
	BasePrice string `json:"base_price" validate:"required"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	product, err := parseProduct(req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateProduct(r.Context(), product)
	if err != nil {
		h.logger.Error("create product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type initialStockRequest struct {
	Qty int64 `json:"qty" validate:"gte=0"`
}

func (h *Handler) setInitialStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req initialStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.SetInitialStock(r.Context(), id, req.Qty, actor.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type movementRequest struct {
	Qty  int64  `json:"qty"`
	Note string `json:"note"`
}

func (h *Handler) postInbound(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Qty <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "inbound qty must be positive")
		return
	}
	if err := h.service.PostInbound(r.Context(), InboundInput{ProductID: id, Qty: req.Qty, Note: req.Note}); err != nil {
		h.logger.Error("post inbound", slog.Int64("product_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Qty == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "adjustment qty must be nonzero")
		return
	}
	if err := h.service.PostAdjustment(r.Context(), AdjustmentInput{ProductID: id, Qty: req.Qty, Note: req.Note}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listMutations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	mutations, err := h.service.ListMutations(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mutations)
}

func (h *Handler) checkConsistency(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	drift, err := h.service.CheckConsistency(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drift": drift, "consistent": drift == 0})
}

func parseProduct(req createProductRequest) (Product, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return Product{}, fmt.Errorf("%w: invalid price", shared.ErrValidation)
	}
	basePrice, err := decimal.NewFromString(req.BasePrice)
	if err != nil {
		return Product{}, fmt.Errorf("%w: invalid base_price", shared.ErrValidation)
	}
	return Product{SKU: req.SKU, Name: req.Name, Price: price, BasePrice: basePrice}, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}
