package httpx

import (
	"errors"
	"net/http"

	"github.com/campuskit/userservice/internal/shared"
)

// RespondError maps domain errors to HTTP responses with stable codes.
// Authentication failures map to 401, protection failures to 403, missing
// resources to 404; anything unrecognised becomes an opaque 500.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNoCredential),
		errors.Is(err, shared.ErrInvalidToken),
		errors.Is(err, shared.ErrTokenExpired),
		errors.Is(err, shared.ErrPrincipalNotFound):
		Error(w, http.StatusUnauthorized, "authentication failed", authMessage(err), shared.CodeAuthenticationRequired)
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "authentication failed", "invalid userid or password", shared.CodeAuthenticationRequired)
	case errors.Is(err, shared.ErrAccountDisabled):
		Error(w, http.StatusUnauthorized, "authentication failed", "account has been disabled", shared.CodeAuthenticationRequired)
	case errors.Is(err, shared.ErrSystemAdminProtected):
		Error(w, http.StatusForbidden, "system admin protected", "the system root admin cannot be modified this way", shared.CodeSystemAdminProtection)
	case errors.Is(err, shared.ErrDuplicateUserID):
		Error(w, http.StatusBadRequest, "validation failed", "userid already exists", shared.CodeValidationError)
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "not found", "resource not found", shared.CodeNotFound)
	default:
		Error(w, http.StatusInternalServerError, "internal error", "an unexpected error occurred", shared.CodeInternalError)
	}
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, shared.ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, shared.ErrInvalidToken):
		return "invalid authentication token"
	case errors.Is(err, shared.ErrPrincipalNotFound):
		return "user not found or inactive"
	default:
		return "a valid authentication token is required"
	}
}
