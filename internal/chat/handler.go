package chat

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tokoflow/tokoflow/internal/platform/httpx"
	"github.com/tokoflow/tokoflow/internal/shared"
)

// Handler exposes the chat session endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches chat routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/chat/sessions", h.open)
	r.Post("/chat/sessions/{id}/takeover", h.takeover)
	r.Post("/chat/sessions/{id}/touch", h.touch)
	r.Post("/chat/sessions/{id}/handback", h.handBack)
}

type openInput struct {
	Channel    string `json:"channel" validate:"required,oneof=whatsapp web"`
	ContactKey string `json:"contact_key" validate:"required"`
	CustomerID *int64 `json:"customer_id"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	session, err := h.service.Open(r.Context(), Channel(req.Channel), req.ContactKey, req.CustomerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) takeover(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	session, err := h.service.Takeover(r.Context(), id, actor)
	if err != nil {
		h.logger.Warn("chat takeover rejected", slog.Int64("session_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) touch(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.TouchAgent(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handBack(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.HandBack(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}
