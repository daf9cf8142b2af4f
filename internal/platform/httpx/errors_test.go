package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOutOfStock = errors.New("stock: insufficient")

func TestClassify(t *testing.T) {
	mappings := []StatusMapping{Map(errOutOfStock, http.StatusConflict)}

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"mapped", fmt.Errorf("deduct: %w", errOutOfStock), http.StatusConflict},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"validation", fmt.Errorf("%w: bad id", ErrValidation), http.StatusBadRequest},
		{"unprocessable", ErrUnprocessable, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := Classify(tc.err, mappings...)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestRespondErrorHidesServerDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, nil, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Empty(t, body.Detail)

	rr = httptest.NewRecorder()
	RespondError(rr, nil, fmt.Errorf("%w: quantity", ErrValidation))
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Contains(t, body.Detail, "quantity")
}

func TestRespondErrorDescribesValidation(t *testing.T) {
	type payload struct {
		Quantity int `validate:"min=1"`
	}
	err := validator.New().Struct(payload{})
	rr := httptest.NewRecorder()
	RespondError(rr, nil, err)

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Equal(t, "Quantity: failed min", body.Detail)
}

func TestRequestHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := SessionID(req)
	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, ActorID(req))

	req.Header.Set(HeaderSession, "  till-3 ")
	req.Header.Set(HeaderActor, "12")
	session, err := SessionID(req)
	require.NoError(t, err)
	assert.Equal(t, "till-3", session)
	assert.EqualValues(t, 12, ActorID(req))

	req.Header.Set(HeaderActor, "-4")
	assert.Zero(t, ActorID(req))
}
