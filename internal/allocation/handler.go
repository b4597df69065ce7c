package allocation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tokoflow/tokoflow/internal/platform/httpx"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// Handler exposes the allocation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// warehouse roles may move stock.
var warehouseRoles = map[shared.Role]bool{
	shared.RoleSuperAdmin:  true,
	shared.RoleAdminGudang: true,
}

// MountRoutes attaches allocation routes under /orders.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders/{id}/allocate", h.allocate)
	r.Post("/orders/{id}/release", h.release)
	r.Post("/orders/{id}/cancel-backorder", h.cancelBackorder)
	r.Get("/orders/{id}/allocations", h.listAllocations)
	r.Get("/orders/{id}/backorders", h.listBackorders)
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	orderID, actor, ok := h.gate(w, r, warehouseRoles)
	if !ok {
		return
	}
	result, err := h.service.Allocate(r.Context(), orderID)
	if err != nil {
		h.logger.Error("allocate", slog.Int64("order_id", orderID), slog.Int64("actor_id", actor.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	orderID, _, ok := h.gate(w, r, warehouseRoles)
	if !ok {
		return
	}
	released, err := h.service.Release(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"released": released})
}

type cancelBackorderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelBackorder(w http.ResponseWriter, r *http.Request) {
	orderID, _, ok := h.gate(w, r, nil)
	if !ok {
		return
	}
	var req cancelBackorderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.CancelBackorder(r.Context(), orderID, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	orderID, _, ok := h.gate(w, r, nil)
	if !ok {
		return
	}
	rows, err := h.service.Allocations(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) listBackorders(w http.ResponseWriter, r *http.Request) {
	orderID, _, ok := h.gate(w, r, nil)
	if !ok {
		return
	}
	rows, err := h.service.Backorders(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

// gate parses the order ID and checks the actor's role when allowed is
// non-nil. It writes the response on failure.
func (h *Handler) gate(w http.ResponseWriter, r *http.Request, allowed map[shared.Role]bool) (int64, shared.Actor, bool) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "invalid order id")
		return 0, shared.Actor{}, false
	}
	actor, found := shared.ActorFromContext(r.Context())
	if !found {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return 0, shared.Actor{}, false
	}
	if allowed != nil && !allowed[actor.Role] {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not permitted")
		return 0, shared.Actor{}, false
	}
	return orderID, actor, true
}
