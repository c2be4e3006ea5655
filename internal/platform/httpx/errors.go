package httpx

import (
	"errors"
	"net/http"

	"github.com/foamcrew/foamcrew/internal/shared"
)

// RespondError maps domain errors to an error envelope with a fitting
// HTTP status. Unknown errors collapse to a generic 500 so internals do
// not leak to clients.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrServerBusy):
		Error(w, http.StatusServiceUnavailable, shared.ErrServerBusy.Error())
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Error(w, http.StatusConflict, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
