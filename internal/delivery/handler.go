package delivery

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tokoflow/tokoflow/internal/platform/httpx"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// Handler exposes the delivery endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches delivery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders/{id}/assign-driver", h.assign)
	r.Post("/orders/{id}/delivered", h.confirmDelivered)
	r.Post("/drivers/{id}/remittances", h.remit)
	r.Get("/drivers/{id}/remittances", h.listRemittances)
}

type assignRequest struct {
	DriverID int64 `json:"driver_id" validate:"required,gt=0"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	orderID, actor, ok := h.gate(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	order, err := h.service.Assign(r.Context(), orderID, req.DriverID, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) confirmDelivered(w http.ResponseWriter, r *http.Request) {
	orderID, actor, ok := h.gate(w, r)
	if !ok {
		return
	}
	order, err := h.service.ConfirmDelivered(r.Context(), orderID, actor)
	if err != nil {
		h.logger.Warn("delivery confirmation rejected", slog.Int64("order_id", orderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type remitRequest struct {
	OrderIDs []int64 `json:"order_ids" validate:"required,min=1"`
}

func (h *Handler) remit(w http.ResponseWriter, r *http.Request) {
	driverID, actor, ok := h.gate(w, r)
	if !ok {
		return
	}
	var req remitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	result, err := h.service.RemitCOD(r.Context(), driverID, req.OrderIDs, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listRemittances(w http.ResponseWriter, r *http.Request) {
	driverID, _, ok := h.gate(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, _ := time.Parse("2006-01-02", q.Get("from"))
	to, err := time.Parse("2006-01-02", q.Get("to"))
	if err != nil {
		to = time.Now()
	}
	remittances, err := h.service.Remittances(r.Context(), driverID, from, to.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, remittances)
}

func (h *Handler) gate(w http.ResponseWriter, r *http.Request) (int64, shared.Actor, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "invalid id")
		return 0, shared.Actor{}, false
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return 0, shared.Actor{}, false
	}
	return id, actor, true
}
