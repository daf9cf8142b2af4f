package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueInspector reads queue state. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// JobsCLI triggers POS maintenance jobs by hand and reports queue state.
type JobsCLI struct {
	client      Enqueuer
	inspector   QueueInspector
	expiryDays  int
	closeClient func() error
}

// NewJobsCLI connects to the Redis instance backing the queue.
func NewJobsCLI(opts asynq.RedisClientOpt, expiryDays int) *JobsCLI {
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{
		client:     client,
		inspector:  inspector,
		expiryDays: expiryDays,
		closeClient: func() error {
			return errors.Join(inspector.Close(), client.Close())
		},
	}
}

// Close releases the queue connections.
func (c *JobsCLI) Close() error {
	if c.closeClient == nil {
		return nil
	}
	return c.closeClient()
}

// JobNames lists the jobs Trigger accepts.
func JobNames() []string {
	names := []string{jobs.TaskExpiryScan, jobs.TaskStockResync, jobs.TaskIdempotencyCleanup}
	sort.Strings(names)
	return names
}

// Trigger enqueues the named job with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	var (
		task *asynq.Task
		err  error
	)
	switch name {
	case jobs.TaskExpiryScan:
		task, err = jobs.NewExpiryScanTask(c.expiryDays)
	case jobs.TaskStockResync:
		task = jobs.NewStockResyncTask()
	case jobs.TaskIdempotencyCleanup:
		task, err = jobs.NewIdempotencyCleanupTask(jobs.DefaultKeyRetention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %q (want one of %v)", name, JobNames())
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute))
}

// QueueStats summarises the default queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
	}, nil
}

// WriteStats prints stats as an aligned table.
func WriteStats(w io.Writer, stats QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY")
	fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return tw.Flush()
}
