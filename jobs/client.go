package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// sweepUniqueFor keeps repeated boots and manual triggers from piling up
// identical sweeps.
const sweepUniqueFor = time.Minute

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSessionSweep enqueues a one-off session sweep.
func (c *Client) EnqueueSessionSweep(ctx context.Context, payload SessionSweepPayload) (*asynq.TaskInfo, error) {
	task, err := NewSessionSweepTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.Unique(sweepUniqueFor),
		asynq.MaxRetry(3),
	)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
