package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrUnprocessable = errors.New("unprocessable")
)

// StatusMapping binds a domain error to the status it is reported with.
type StatusMapping struct {
	Target error
	Status int
	Title  string
}

// Map is shorthand for building a StatusMapping.
func Map(target error, status int) StatusMapping {
	return StatusMapping{Target: target, Status: status, Title: http.StatusText(status)}
}

// Classify resolves err to a status code and title. Mappings are checked
// before the package sentinels; anything unmatched is a 500.
func Classify(err error, mappings ...StatusMapping) (int, string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, "Validation Failed"
	}
	for _, m := range mappings {
		if errors.Is(err, m.Target) {
			return m.Status, m.Title
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, ErrUnprocessable):
		return http.StatusUnprocessableEntity, "Unprocessable Entity"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Server errors are logged and their detail withheld from the client.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error, mappings ...StatusMapping) {
	status, title := Classify(err, mappings...)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Problem(w, status, title, "")
		return
	}
	Problem(w, status, title, describe(err))
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
