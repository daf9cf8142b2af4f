package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

type memoryCatalog map[int64]Product

func (m memoryCatalog) FindProduct(ctx context.Context, productID, unitID int64) (Product, error) {
	p, ok := m[productID]
	if !ok || p.UnitID != unitID {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

type cartResponse struct {
	Lines []struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	} `json:"lines"`
	Totals struct {
		Subtotal   string `json:"subtotal"`
		GrandTotal string `json:"grand_total"`
	} `json:"totals"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, _ := newTestStore(t)
	catalog := memoryCatalog{
		1: product(1, "100", "0"),
		2: product(2, "15", "0"),
	}
	coupons := NewCouponService(&memoryCoupons{coupons: map[string]Coupon{
		"SAVE10":   {ID: 1, Code: "SAVE10", DiscountType: money.DiscountPercentage, DiscountValue: dec("10"), Active: true},
		"BIGSPEND": {ID: 2, Code: "BIGSPEND", DiscountType: money.DiscountFlat, DiscountValue: dec("5"), MinimumCartValue: decPtr("500"), Active: true},
	}})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store, catalog, coupons)
	r := chi.NewRouter()
	r.Route("/pos", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set(httpx.HeaderSession, "till-7")
	req.Header.Set("Content-Type", "application/json")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func TestHandlerCartFlow(t *testing.T) {
	srv := newTestServer(t)

	res, body := call(t, srv, http.MethodPost, "/pos/cart/lines", map[string]any{"product_id": 1, "unit_id": 1, "quantity": 2})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	var view cartResponse
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Lines, 1)
	requireDec(t, "200", dec(view.Totals.GrandTotal))

	res, body = call(t, srv, http.MethodPatch, "/pos/cart/lines/"+view.Lines[0].ID, map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, body = call(t, srv, http.MethodPost, "/pos/cart/coupons", map[string]any{"code": "save10"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &view))
	requireDec(t, "270", dec(view.Totals.GrandTotal))

	res, _ = call(t, srv, http.MethodPost, "/pos/cart/coupons", map[string]any{"code": "SAVE10"})
	require.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = call(t, srv, http.MethodPost, "/pos/cart/coupons", map[string]any{"code": "BIGSPEND"})
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res, body = call(t, srv, http.MethodGet, "/pos/cart", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &view))
	requireDec(t, "270", dec(view.Totals.GrandTotal))
}

func TestHandlerValidationLeavesCartUnchanged(t *testing.T) {
	srv := newTestServer(t)

	res, _ := call(t, srv, http.MethodPost, "/pos/cart/lines", map[string]any{"product_id": 1, "unit_id": 1, "quantity": 0})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = call(t, srv, http.MethodPost, "/pos/cart/lines", map[string]any{"product_id": 9, "unit_id": 1, "quantity": 1})
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = call(t, srv, http.MethodPost, "/pos/cart/discount", map[string]any{"type": "bogus", "value": "1"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	_, body := call(t, srv, http.MethodGet, "/pos/cart", nil)
	var view cartResponse
	require.NoError(t, json.Unmarshal(body, &view))
	require.Empty(t, view.Lines)
}

func TestHandlerRequiresSession(t *testing.T) {
	srv := newTestServer(t)

	res, err := srv.Client().Get(srv.URL + "/pos/cart")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestHandlerHoldResume(t *testing.T) {
	srv := newTestServer(t)

	res, _ := call(t, srv, http.MethodPost, "/pos/cart/hold", map[string]any{"label": "x"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	call(t, srv, http.MethodPost, "/pos/cart/lines", map[string]any{"product_id": 2, "unit_id": 1, "quantity": 1})
	res, body := call(t, srv, http.MethodPost, "/pos/cart/hold", map[string]any{"label": "table 4"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	var held HeldCart
	require.NoError(t, json.Unmarshal(body, &held))

	res, body = call(t, srv, http.MethodPost, "/pos/cart/held/"+held.ID.String()+"/resume", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var view cartResponse
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Lines, 1)
}
