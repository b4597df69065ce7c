package otp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tokoflow/tokoflow/internal/platform/httpx"
)

// Handler exposes OTP request and verification endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches the OTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/otp/request", h.request)
	r.Post("/otp/verify", h.verify)
}

type requestInput struct {
	Contact string `json:"contact" validate:"required"`
}

type verifyInput struct {
	Contact string `json:"contact" validate:"required"`
	Code    string `json:"code" validate:"required"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var req requestInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	if err := h.service.Issue(r.Context(), req.Contact); err != nil {
		h.logger.Warn("otp request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	if err := h.service.Verify(r.Context(), req.Contact, req.Code); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
