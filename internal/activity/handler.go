package activity

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campuskit/userservice/internal/platform/httpx"
	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// Handler serves the activity log endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers activity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
}

type listResponse struct {
	Activities []Record          `json:"activities"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal := users.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrNoCredential)
		return
	}

	params := ListParams{Page: 1, PerPage: 20}
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			params.Page = parsed
		}
	}
	if pp := r.URL.Query().Get("per_page"); pp != "" {
		if parsed, err := strconv.Atoi(pp); err == nil && parsed > 0 {
			params.PerPage = parsed
		}
	}
	if action := r.URL.Query().Get("action"); action != "" {
		if !shared.ValidAction(action) {
			httpx.Error(w, http.StatusBadRequest, "validation failed",
				"unknown action filter", shared.CodeValidationError)
			return
		}
		params.Action = action
	}

	records, page, err := h.service.List(r.Context(), principal, params)
	if err != nil {
		h.logger.Error("list activities failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Activities: records, Pagination: page})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	principal := users.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrNoCredential)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid activity id", shared.CodeValidationError)
		return
	}

	rec, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}
