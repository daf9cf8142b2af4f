// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Request headers understood by the POS API.
const (
	HeaderSession     = "X-POS-Session"
	HeaderActor       = "X-Actor-ID"
	HeaderIdempotency = "Idempotency-Key"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Bind decodes the body into target and runs struct validation.
func Bind(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return v.Struct(target)
}

// PathInt64 parses a positive integer URL parameter.
func PathInt64(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrValidation, name)
	}
	return id, nil
}

// PathUUID parses a UUID URL parameter.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", ErrValidation, name)
	}
	return id, nil
}

// SessionID returns the POS session identifying the till's cart.
func SessionID(r *http.Request) (string, error) {
	session := strings.TrimSpace(r.Header.Get(HeaderSession))
	if session == "" {
		return "", fmt.Errorf("%w: %s header required", ErrValidation, HeaderSession)
	}
	return session, nil
}

// ActorID returns the cashier id supplied by the upstream gateway, or 0.
func ActorID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get(HeaderActor), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
