package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campuskit/userservice/internal/platform/httpx"
	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	users     *users.Service
	recorder  users.ActivityRecorder
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, userService *users.Service, recorder users.ActivityRecorder) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("password_strength", passwordStrength)
	return &Handler{
		logger:    logger,
		service:   service,
		users:     userService,
		recorder:  recorder,
		validator: v,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/register", h.handleRegister)
	r.Post("/change-password", h.handleChangePassword)
}

// passwordStrength requires at least one upper, one lower, one digit and one
// special character. Length is enforced separately by min=8.
func passwordStrength(fl validator.FieldLevel) bool {
	var upper, lower, digit, special bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	return upper && lower && digit && special
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

type loginRequest struct {
	UserID   string `json:"userid" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Message string      `json:"message"`
	User    *users.User `json:"user"`
	Token   string      `json:"token"`
	TokenPair
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid request body", shared.CodeValidationError)
		return
	}
	if !h.validate(w, form) {
		return
	}

	result, err := h.service.Login(r.Context(), form.UserID, form.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.recorder.Record(r.Context(), shared.EventFromRequest(r, result.User.ID, shared.ActionLogin, ""))
	httpx.JSON(w, http.StatusOK, loginResponse{
		Message:   "login successful",
		User:      result.User,
		Token:     result.OpaqueToken,
		TokenPair: result.Tokens,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := users.PrincipalFromContext(r.Context())
	if principal == nil {
		// Logout is idempotent: no credential means nothing to revoke.
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
		return
	}
	if err := h.service.Logout(r.Context(), principal.ID); err != nil {
		h.logger.Warn("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.recorder.Record(r.Context(), shared.EventFromRequest(r, principal.ID, shared.ActionLogout, ""))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var form refreshRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid request body", shared.CodeValidationError)
		return
	}
	if !h.validate(w, form) {
		return
	}

	pair, err := h.service.Refresh(r.Context(), form.RefreshToken)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

type registerRequest struct {
	UserID          string `json:"userid" validate:"required,min=3,max=64"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,password_strength"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=student teacher competition_admin super_admin"`
}

type registerResponse struct {
	Message string      `json:"message"`
	User    *users.User `json:"user"`
	Token   string      `json:"token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var form registerRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid request body", shared.CodeValidationError)
		return
	}
	if !h.validate(w, form) {
		return
	}

	result, err := h.service.Register(r.Context(), users.CreateParams{
		UserID:   form.UserID,
		Email:    form.Email,
		Password: form.Password,
		Role:     rbac.Role(form.Role),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.recorder.Record(r.Context(), shared.EventFromRequest(r, result.User.ID, shared.ActionRegister, ""))
	httpx.JSON(w, http.StatusCreated, registerResponse{
		Message: "user registered",
		User:    result.User,
		Token:   result.OpaqueToken,
	})
}

type changePasswordRequest struct {
	CurrentPassword    string `json:"current_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required,min=8,password_strength"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := users.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrNoCredential)
		return
	}

	var form changePasswordRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation failed",
			"invalid request body", shared.CodeValidationError)
		return
	}
	if !h.validate(w, form) {
		return
	}

	if err := h.users.ChangePassword(r.Context(), principal.ID, form.CurrentPassword, form.NewPassword); err != nil {
		switch {
		case errors.Is(err, users.ErrCurrentPasswordMismatch):
			failed := shared.EventFromRequest(r, principal.ID, shared.ActionChangePassword, "current password mismatch")
			failed.Success = false
			h.recorder.Record(r.Context(), failed)
			httpx.Error(w, http.StatusBadRequest, "validation failed",
				"current password is incorrect", shared.CodeValidationError)
		default:
			httpx.RespondError(w, err)
		}
		return
	}

	// Every other session becomes invalid with the old credential gone.
	if err := h.service.Logout(r.Context(), principal.ID); err != nil {
		h.logger.Warn("revoke opaque token after password change", slog.Any("error", err))
	}

	h.recorder.Record(r.Context(), shared.EventFromRequest(r, principal.ID, shared.ActionChangePassword, ""))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}
