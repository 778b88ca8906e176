package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/jobins-devs/redmine-jira-integration/internal/syncer"
)

// IssueSyncTask executes one attempt of a queued sync job. Attempt is
// 1-based and carried in the task payload so every execution knows its place
// in the retry budget.
type IssueSyncTask struct {
	SyncLogID uint `json:"sync_log_id"`
	Attempt   int  `json:"attempt"`
}

// Config returns the queue configuration for issue sync tasks.
// MaxAttempts is 1 on purpose: the engine schedules its own retries with
// explicit delays and records every attempt on the SyncLog row.
// The timeout here is a fallback; NewIssueSyncQueue overrides it with the
// configured task timeout.
func (t IssueSyncTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "issue_sync",
		MaxAttempts: 1,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// IssueSyncProcessor creates a processor function for IssueSyncTask.
func IssueSyncProcessor(engine *syncer.Engine) backlite.QueueProcessor[IssueSyncTask] {
	return func(ctx context.Context, task IssueSyncTask) error {
		if engine == nil {
			return fmt.Errorf("sync engine not configured")
		}
		attempt := task.Attempt
		if attempt < 1 {
			attempt = 1
		}
		return engine.Process(ctx, task.SyncLogID, attempt)
	}
}

// NewIssueSyncQueue creates a backlite queue for issue sync tasks. A positive
// timeout replaces the default per-task execution bound.
func NewIssueSyncQueue(engine *syncer.Engine, timeout time.Duration) backlite.Queue {
	queue := backlite.NewQueue(IssueSyncProcessor(engine))
	if timeout > 0 {
		queue.Config().Timeout = timeout
	}
	return queue
}
