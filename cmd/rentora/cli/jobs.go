package cli

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/rentora/rentora/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// TriggerWelcome re-enqueues the welcome message of a tenant owner.
func (c *JobsCLI) TriggerWelcome(ctx context.Context, tenantID, ownerID uuid.UUID) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueTenantWelcome(ctx, tenantID, ownerID)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}
