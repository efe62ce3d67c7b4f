package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opsdesk/opsdesk/internal/auth"
	"github.com/opsdesk/opsdesk/internal/shared"
)

// Worker runs the background task server and the periodic scheduler.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *slog.Logger
}

// NewWorker wires task handlers against their dependencies.
func NewWorker(redisAddr string, repo auth.RepositoryPort, sessions *shared.SessionManager, logger *slog.Logger) *Worker {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{"default": 1},
		Logger:      nil,
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSessionPurge, handleSessionPurge(repo, logger))
	mux.HandleFunc(TaskTypeDeactivationSweep, handleDeactivationSweep(repo, sessions, logger))

	return &Worker{server: server, scheduler: scheduler, mux: mux, logger: logger}
}

// Start registers the cron entries and runs the server. Blocks until
// Shutdown.
func (w *Worker) Start() error {
	if _, err := w.scheduler.Register("@hourly", asynq.NewTask(TaskTypeSessionPurge, nil)); err != nil {
		return fmt.Errorf("jobs: register session purge: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("jobs: start scheduler: %w", err)
	}
	return w.server.Run(w.mux)
}

// Shutdown stops the scheduler and drains the server.
func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
}

// handleSessionPurge prunes registry rows whose expiry has passed. The
// Redis side needs no purge: those keys expire on their own TTL.
func handleSessionPurge(repo auth.RepositoryPort, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := repo.DeleteExpiredSessions(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		logger.Info("purged expired sessions", slog.Int64("count", n))
		return nil
	}
}

// handleDeactivationSweep removes every registered session of one user
// from the Redis store and then from the registry.
func handleDeactivationSweep(repo auth.RepositoryPort, sessions *shared.SessionManager, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload DeactivationSweepPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode sweep payload: %w", err)
		}
		recs, err := repo.SessionsForUser(ctx, payload.UserID)
		if err != nil {
			return fmt.Errorf("list sessions for user %d: %w", payload.UserID, err)
		}
		for _, rec := range recs {
			if err := sessions.DeleteByID(ctx, rec.ID); err != nil {
				return fmt.Errorf("delete session %s: %w", rec.ID, err)
			}
			if err := repo.RemoveSession(ctx, rec.ID); err != nil {
				return fmt.Errorf("unregister session %s: %w", rec.ID, err)
			}
		}
		logger.Info("swept sessions for deactivated user",
			slog.Int64("user_id", payload.UserID),
			slog.Int("count", len(recs)))
		return nil
	}
}
