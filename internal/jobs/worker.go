package jobs

import (
	"context"
	"errors"

	"github.com/maltedev/basket-harvester/internal/queue"
)

// StartWorker executes queued jobs sequentially until ctx is done or the queue
// is closed and drained.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) && ctx.Err() == nil {
				m.logger.Error("failed to take next job", "error", err)
			}
			m.logger.Info("job worker stopping")
			return
		}

		m.processJob(ctx, task)
	}
}

func (m *Manager) processJob(ctx context.Context, task *queue.Task) {
	logger := m.logger.With("id", task.ID, "profile", task.Profile)
	logger.Info("processing job")

	m.updateJobStatus(task.ID, StatusRunning, nil, nil)

	run, err := m.runner.Run(ctx, task)
	if err != nil {
		logger.Error("job failed", "error", err)
		m.updateJobStatus(task.ID, StatusFailed, run, err)
		return
	}

	m.updateJobStatus(task.ID, StatusCompleted, run, nil)
	logger.Info("job completed", "outcome", run.Outcome, "records", run.RecordCount, "artifact", run.Artifact)
}
