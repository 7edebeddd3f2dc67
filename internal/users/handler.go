package users

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campuskit/userservice/internal/platform/httpx"
	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
)

// ActivityRecorder appends audit entries without ever failing the request
// that produced them.
type ActivityRecorder interface {
	Record(ctx context.Context, event shared.ActivityEvent)
}

// Handler serves the user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	recorder  ActivityRecorder
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, recorder ActivityRecorder, rbacMW rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		recorder:  recorder,
		rbac:      rbacMW,
		validator: validator.New(),
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)

	r.Get("/me", h.showMe)
	r.Put("/me", h.updateMe)
	r.Delete("/deactivate", h.deactivateMe)

	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)

	r.Post("/{id}/deactivate", h.deactivate)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermUserUpdate))
		r.Post("/{id}/activate", h.activate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermRoleUpdate))
		r.Patch("/{id}/role", h.setRole)
	})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) *User {
	principal := PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrNoCredential)
		return nil
	}
	return principal
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid user id", shared.CodeValidationError)
		return 0, false
	}
	return id, true
}

func (h *Handler) validate(w http.ResponseWriter, form any) bool {
	err := h.validator.Struct(form)
	if err == nil {
		return true
	}
	fields := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
	}
	httpx.ErrorWithContext(w, http.StatusBadRequest, "validation failed",
		"request body failed validation", shared.CodeValidationError,
		map[string]any{"fields": fields})
	return false
}

type listResponse struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	visible, err := h.service.List(r.Context(), principal)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if visible == nil {
		visible = []User{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Users: visible, Total: len(visible)})
}

type createRequest struct {
	UserID   string `json:"userid" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=student teacher competition_admin super_admin"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	var form createRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid request body", shared.CodeValidationError)
		return
	}
	if !h.validate(w, form) {
		return
	}

	user, err := h.service.Create(r.Context(), CreateParams{
		UserID:   form.UserID,
		Email:    form.Email,
		Password: form.Password,
		Role:     rbac.Role(form.Role),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) showMe(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}

type updateRequest struct {
	Email *string `json:"email" validate:"omitempty,email"`
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	h.applyUpdate(w, r, principal, principal.ID)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h.applyUpdate(w, r, principal, id)
}

func (h *Handler) applyUpdate(w http.ResponseWriter, r *http.Request, principal *User, id int64) {
	var form updateRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid request body", shared.CodeValidationError)
		return
	}
	if !h.validate(w, form) {
		return
	}

	user, err := h.service.Update(r.Context(), id, UpdateParams{Email: form.Email})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.recorder.Record(r.Context(), shared.EventFromRequest(r, principal.ID,
		shared.ActionUpdateProfile, "updated user "+user.UserID))
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	target, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Deactivate(r.Context(), target); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.recorder.Record(r.Context(), shared.EventFromRequest(r, principal.ID,
		shared.ActionDeactivate, "deactivated user "+target.UserID))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "user deactivated"})
}

func (h *Handler) deactivateMe(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	if err := h.service.Deactivate(r.Context(), principal); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.recorder.Record(r.Context(), shared.EventFromRequest(r, principal.ID,
		shared.ActionDeactivate, "deactivated own account"))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "account deactivated"})
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.service.Activate(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.recorder.Record(r.Context(), shared.EventFromRequest(r, principal.ID,
		shared.ActionActivate, "activated user "+user.UserID))
	httpx.JSON(w, http.StatusOK, user)
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=student teacher competition_admin super_admin"`
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(w, r)
	if principal == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var form setRoleRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid request body", shared.CodeValidationError)
		return
	}
	if !h.validate(w, form) {
		return
	}

	user, err := h.service.SetRole(r.Context(), id, rbac.Role(form.Role))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.recorder.Record(r.Context(), shared.EventFromRequest(r, principal.ID,
		shared.ActionUpdateProfile, "changed role of "+user.UserID+" to "+string(user.Role)))
	httpx.JSON(w, http.StatusOK, user)
}
