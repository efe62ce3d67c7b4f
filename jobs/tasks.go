package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeSessionPurge prunes expired rows from the session registry.
	TaskTypeSessionPurge = "session:purge"
	// TaskTypeDeactivationSweep deletes every live session of a
	// deactivated user from the Redis store and the registry.
	TaskTypeDeactivationSweep = "users:deactivation_sweep"
)

// DeactivationSweepPayload names the user whose sessions must go.
type DeactivationSweepPayload struct {
	UserID int64 `json:"user_id"`
}

// Client enqueues background tasks.
type Client struct {
	inner  *asynq.Client
	logger *slog.Logger
}

// NewClient constructs a task client.
func NewClient(redisAddr string, logger *slog.Logger) *Client {
	return &Client{
		inner:  asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		logger: logger,
	}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueueDeactivationSweep schedules session teardown for a deactivated
// user. The gate already rejects the user per request; the sweep cleans
// the store so dead sessions do not linger until TTL.
func (c *Client) EnqueueDeactivationSweep(ctx context.Context, userID int64) error {
	payload, err := json.Marshal(DeactivationSweepPayload{UserID: userID})
	if err != nil {
		return err
	}
	info, err := c.inner.EnqueueContext(ctx, asynq.NewTask(TaskTypeDeactivationSweep, payload), asynq.MaxRetry(5))
	if err != nil {
		return err
	}
	c.logger.Info("enqueued deactivation sweep",
		slog.String("task_id", info.ID),
		slog.Int64("user_id", userID))
	return nil
}
