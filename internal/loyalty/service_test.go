package loyalty

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu       sync.Mutex
	balances map[int64]int64
}

func (m *memoryRepo) AddPoints(ctx context.Context, customerID, points int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[customerID]; !ok {
		return 0, ErrCustomerNotFound
	}
	m.balances[customerID] += points
	return m.balances[customerID], nil
}

func (m *memoryRepo) Balance(ctx context.Context, customerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[customerID]
	if !ok {
		return 0, ErrCustomerNotFound
	}
	return b, nil
}

func TestPointsFloorsSpend(t *testing.T) {
	svc := NewService(&memoryRepo{}, decimal.NewFromInt(10))
	assert.EqualValues(t, 0, svc.Points(decimal.RequireFromString("9.99")))
	assert.EqualValues(t, 1, svc.Points(decimal.RequireFromString("10")))
	assert.EqualValues(t, 12, svc.Points(decimal.RequireFromString("129.50")))
	assert.EqualValues(t, 0, svc.Points(decimal.RequireFromString("-50")))

	disabled := NewService(&memoryRepo{}, decimal.Zero)
	assert.EqualValues(t, 0, disabled.Points(decimal.NewFromInt(1000)))
}

func TestAccrue(t *testing.T) {
	repo := &memoryRepo{balances: map[int64]int64{5: 3}}
	svc := NewService(repo, decimal.NewFromInt(10))
	ctx := context.Background()

	points, err := svc.Accrue(ctx, 5, decimal.NewFromInt(45))
	require.NoError(t, err)
	assert.EqualValues(t, 4, points)
	balance, err := svc.Balance(ctx, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 7, balance)

	points, err = svc.Accrue(ctx, 5, decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Zero(t, points)

	_, err = svc.Accrue(ctx, 6, decimal.NewFromInt(100))
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestHandlerBalance(t *testing.T) {
	svc := NewService(&memoryRepo{balances: map[int64]int64{5: 42}}, decimal.NewFromInt(10))
	r := chi.NewRouter()
	r.Route("/pos", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes)
	srv := httptest.NewServer(r)
	defer srv.Close()

	res, err := srv.Client().Get(srv.URL + "/pos/customers/5/loyalty")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body balanceResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.EqualValues(t, 42, body.Points)

	missing, err := srv.Client().Get(srv.URL + "/pos/customers/6/loyalty")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
