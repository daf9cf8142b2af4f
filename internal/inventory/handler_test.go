package inventory

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, 30)
	r := chi.NewRouter()
	r.Route("/inventory", h.MountRoutes)
	return r, repo
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerReceiveAndDeduct(t *testing.T) {
	h, repo := newTestHandler(t)

	rr := doJSON(t, h, http.MethodPost, "/inventory/batches",
		`{"product_id":1,"unit_id":1,"batch_number":"B-LATE","expiry_date":"2025-06-01","quantity":4}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = doJSON(t, h, http.MethodPost, "/inventory/batches",
		`{"product_id":1,"unit_id":1,"batch_number":"B-EARLY","expiry_date":"2025-02-01","quantity":3}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var early StockBatch
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&early))

	rr = doJSON(t, h, http.MethodPost, "/inventory/deduct", `{"product_id":1,"unit_id":1,"quantity":5}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var deductions []Deduction
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&deductions))
	require.Len(t, deductions, 2)
	require.Equal(t, early.ID, deductions[0].BatchID)
	require.EqualValues(t, 3, deductions[0].Quantity)

	rr = doJSON(t, h, http.MethodGet, "/inventory/stock/1/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stock stockResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stock))
	require.EqualValues(t, 2, stock.Total)
	require.EqualValues(t, 2, stock.Aggregate.Quantity)
	requireAggregateConsistent(t, repo, 1, 1)
}

func TestHandlerMapsDomainErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doJSON(t, h, http.MethodPost, "/inventory/batches",
		`{"product_id":1,"unit_id":1,"batch_number":"B1","quantity":2}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var batch StockBatch
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&batch))

	rr = doJSON(t, h, http.MethodPost, "/inventory/deduct", `{"product_id":1,"unit_id":1,"quantity":9}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/inventory/deduct", `{"product_id":1,"unit_id":1,"quantity":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodDelete, "/inventory/batches/999", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, h, http.MethodPatch, "/inventory/batches/"+jsonInt(batch.ID), `{"quantity":5,"reason":"recount"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/inventory/expiring?days=abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/inventory/batches?product_id=x", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
