// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Authorization failures collapse to a fixed problem with no detail so
// the body never distinguishes why access was denied.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		Unauthorized(w)
	case errors.Is(err, ErrForbidden):
		Forbidden(w)
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Unauthorized writes the fixed authorization-failure response. The body
// carries nothing that would distinguish an expired session from a
// missing one or a deactivated account.
func Unauthorized(w http.ResponseWriter) {
	Problem(w, http.StatusUnauthorized, "Unauthorized", "")
}

// Forbidden writes the fixed insufficient-permission response.
func Forbidden(w http.ResponseWriter) {
	Problem(w, http.StatusForbidden, "Forbidden", "")
}
