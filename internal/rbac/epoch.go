package rbac

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const grantsEpochKey = "rbac:grants_epoch"

// EpochCounter tracks a process-wide grants epoch in Redis. Every grant
// mutation bumps it; sessions record the epoch their snapshot was
// resolved at, so the gate can tell a stale snapshot from a current one
// without comparing permission sets.
type EpochCounter struct {
	client *redis.Client
}

// NewEpochCounter constructs an EpochCounter.
func NewEpochCounter(client *redis.Client) *EpochCounter {
	return &EpochCounter{client: client}
}

// Current returns the epoch, zero when no mutation has happened yet.
func (e *EpochCounter) Current(ctx context.Context) (int64, error) {
	n, err := e.client.Get(ctx, grantsEpochKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Bump advances the epoch.
func (e *EpochCounter) Bump(ctx context.Context) (int64, error) {
	return e.client.Incr(ctx, grantsEpochKey).Result()
}
