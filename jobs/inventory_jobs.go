package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// ExpiringLister finds batches expiring within a number of days.
type ExpiringLister interface {
	GetExpiringSoon(ctx context.Context, days int) ([]inventory.StockBatch, error)
}

// Resyncer rebuilds every product unit aggregate.
type Resyncer interface {
	ResyncAll(ctx context.Context) (int, error)
}

// ExpiryScanJob logs batches approaching expiry so they can be discounted or
// pulled from the shelf.
type ExpiryScanJob struct {
	stock       ExpiringLister
	logger      *slog.Logger
	metrics     *jobmetrics.Metrics
	defaultDays int
}

// NewExpiryScanJob builds the job. defaultDays applies when the payload
// carries no window.
func NewExpiryScanJob(stock ExpiringLister, logger *slog.Logger, metrics *jobmetrics.Metrics, defaultDays int) *ExpiryScanJob {
	return &ExpiryScanJob{stock: stock, logger: logger, metrics: metrics, defaultDays: defaultDays}
}

// Handle runs the scan.
func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var payload ExpiryScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Days <= 0 {
		payload.Days = j.defaultDays
	}
	tracker := j.metrics.Track(TaskExpiryScan)
	defer func() { err = tracker.End(err) }()

	batches, err := j.stock.GetExpiringSoon(ctx, payload.Days)
	if err != nil {
		return err
	}
	j.metrics.SetExpiring(len(batches))
	for _, b := range batches {
		if b.ExpiryDate == nil {
			continue
		}
		j.logger.Warn("batch expiring soon",
			slog.Int64("batch_id", b.ID),
			slog.Int64("product_id", b.ProductID),
			slog.Int64("unit_id", b.UnitID),
			slog.String("batch_number", b.BatchNumber),
			slog.String("expiry_date", b.ExpiryDate.Format(time.DateOnly)),
			slog.Int64("quantity", b.Quantity))
	}
	j.logger.Info("expiry scan finished", slog.Int("days", payload.Days), slog.Int("batches", len(batches)))
	return nil
}

// StockResyncJob repairs aggregates that drifted from their batches.
type StockResyncJob struct {
	stock   Resyncer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewStockResyncJob builds the job.
func NewStockResyncJob(stock Resyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockResyncJob {
	return &StockResyncJob{stock: stock, logger: logger, metrics: metrics}
}

// Handle runs the resync.
func (j *StockResyncJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.metrics.Track(TaskStockResync)
	defer func() { err = tracker.End(err) }()

	count, err := j.stock.ResyncAll(ctx)
	if err != nil {
		j.logger.Error("stock resync", slog.Int("synced", count), slog.Any("error", err))
		return err
	}
	j.metrics.AddResynced(count)
	j.logger.Info("stock resync finished", slog.Int("synced", count))
	return nil
}
