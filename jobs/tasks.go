package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue used by every POS job.
	QueueDefault = "default"

	// TaskExpiryScan reports batches approaching expiry.
	TaskExpiryScan = "pos:inventory:expiry_scan"
	// TaskStockResync rebuilds product unit aggregates from batch sums.
	TaskStockResync = "pos:inventory:resync"
	// TaskIdempotencyCleanup drops expired checkout idempotency keys.
	TaskIdempotencyCleanup = "pos:idempotency:cleanup"
)

// ExpiryScanPayload sets the alert window in days.
type ExpiryScanPayload struct {
	Days int `json:"days"`
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewExpiryScanTask builds an expiry scan task.
func NewExpiryScanTask(days int) (*asynq.Task, error) {
	body, err := json.Marshal(ExpiryScanPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpiryScan, body, asynq.Queue(QueueDefault)), nil
}

// NewStockResyncTask builds an aggregate resync task.
func NewStockResyncTask() *asynq.Task {
	return asynq.NewTask(TaskStockResync, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
