package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// KeyCleaner deletes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// DefaultKeyRetention keeps checkout keys for a day.
const DefaultKeyRetention = 24 * time.Hour

// IdempotencyCleanupJob prunes the idempotency_keys table.
type IdempotencyCleanupJob struct {
	keys    KeyCleaner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob builds the job.
func NewIdempotencyCleanupJob(keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{keys: keys, logger: logger, metrics: metrics}
}

// Handle runs the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultKeyRetention
	}
	tracker := j.metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	removed, err := j.keys.Cleanup(ctx, payload.Retention)
	if err != nil {
		return err
	}
	j.logger.Info("idempotency cleanup finished", slog.Int64("removed", removed), slog.Duration("retention", payload.Retention))
	return nil
}
