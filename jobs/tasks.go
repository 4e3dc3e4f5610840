package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/rollvault/rollvault/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPrune is the task type for pruning expired sessions.
	TaskSessionPrune = "sessions:prune"
)

// SessionPruner removes expired session records.
type SessionPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// NewSessionPruneTask constructs the session prune task.
func NewSessionPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPrune, nil)
}

// NewSessionPruneHandler returns the handler for TaskSessionPrune tasks.
func NewSessionPruneHandler(logger *slog.Logger, pruner SessionPruner, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskSessionPrune)
		removed, err := pruner.PruneExpired(ctx)
		if err != nil {
			logger.Error("session prune failed", slog.Any("error", err))
			return tracker.End(err)
		}
		if removed > 0 {
			logger.Info("pruned expired sessions", slog.Int64("removed", removed))
		}
		return tracker.End(nil)
	}
}
