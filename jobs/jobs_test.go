package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

type stubStock struct {
	days     int
	batches  []inventory.StockBatch
	resynced int
	err      error
}

func (s *stubStock) GetExpiringSoon(ctx context.Context, days int) ([]inventory.StockBatch, error) {
	s.days = days
	return s.batches, s.err
}

func (s *stubStock) ResyncAll(ctx context.Context) (int, error) {
	return s.resynced, s.err
}

type stubKeys struct {
	retention time.Duration
}

func (s *stubKeys) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	s.retention = retention
	return 3, nil
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestExpiryScanLogsBatches(t *testing.T) {
	expiry := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	stock := &stubStock{batches: []inventory.StockBatch{
		{ID: 4, ProductID: 1, UnitID: 1, BatchNumber: "B-4", ExpiryDate: &expiry, Quantity: 6},
	}}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	var logs bytes.Buffer
	job := NewExpiryScanJob(stock, newLogger(&logs), metrics, 14)

	task, err := NewExpiryScanTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, 14, stock.days)
	assert.Contains(t, logs.String(), "batch_number=B-4")
	assert.Contains(t, logs.String(), "expiry_date=2025-04-02")

	task, err = NewExpiryScanTask(3)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 3, stock.days)
}

func TestExpiryScanRejectsBadPayload(t *testing.T) {
	job := NewExpiryScanJob(&stubStock{}, newLogger(&bytes.Buffer{}), nil, 14)
	err := job.Handle(context.Background(), asynq.NewTask(TaskExpiryScan, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestStockResyncTracksOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	stock := &stubStock{resynced: 12}
	job := NewStockResyncJob(stock, newLogger(&bytes.Buffer{}), metrics)

	require.NoError(t, job.Handle(context.Background(), NewStockResyncTask()))

	stock.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), NewStockResyncTask()))

	count, err := testutil.GatherAndCount(registry, "pos_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(registry, "pos_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	keys := &stubKeys{}
	job := NewIdempotencyCleanupJob(keys, newLogger(&bytes.Buffer{}), nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, DefaultKeyRetention, keys.retention)

	task, err := NewIdempotencyCleanupTask(2 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 2*time.Hour, keys.retention)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, newLogger(&bytes.Buffer{})).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"retry":0}`, rr.Body.String())
}
