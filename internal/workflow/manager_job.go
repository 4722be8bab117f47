package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tagflow/internal/logging"
	"tagflow/internal/outcome"
	"tagflow/internal/queue"
	"tagflow/internal/services"
)

func withJobContext(ctx context.Context, lane queue.Lane, job *queue.Job) context.Context {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithLane(ctx, string(lane))
	ctx = services.WithKind(ctx, job.Meta.Kind)
	return services.WithRequestID(ctx, uuid.NewString())
}

func (m *Manager) processJob(ctx context.Context, lane queue.Lane, job *queue.Job) error {
	jobCtx := withJobContext(ctx, lane, job)
	logger := logging.WithContext(jobCtx, m.logger).With(
		logging.String(logging.FieldFolderHash, job.Meta.FolderHash),
		logging.String(logging.FieldFolderPath, job.Meta.FolderPath),
	)

	start := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("func", job.Func),
		logging.Int("attempt", job.Attempts),
	)

	var res outcome.Result
	if handler, ok := m.handler(job.Func); ok {
		res = m.executeWithHeartbeat(jobCtx, handler, job)
	} else {
		err := fmt.Errorf("%w: no handler registered for %q", services.ErrConfiguration, job.Func)
		res = outcome.Result{Err: outcome.FromError(err)}
	}

	if ctx.Err() != nil {
		// Left started; ResetStuck requeues it on the next boot.
		logger.Debug("job interrupted by shutdown")
		return context.Canceled
	}

	completion := queue.Completion{Result: res.Payload(), Failed: res.Failed()}
	if res.Failed() {
		completion.ErrorMessage = res.Err.Error()
	}
	completed, err := m.store.Complete(jobCtx, job.ID, completion)
	if err != nil {
		wrapped := fmt.Errorf("persist job outcome: %w", err)
		logger.Error("failed to persist job outcome", logging.Error(wrapped),
			logging.String(logging.FieldEventType, "job_complete_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		m.setLastError(wrapped)
		return wrapped
	}

	if res.Failed() {
		m.setLastError(res.Err)
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.String("error_type", res.Err.Type),
			logging.String(logging.FieldErrorHint, res.Err.Message),
			logging.Duration("job_duration", time.Since(start)),
		)
	} else {
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.Duration("job_duration", time.Since(start)),
		)
	}
	m.setLastJob(completed)
	m.fireHook(jobCtx, completed)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler Handler, job *queue.Job) outcome.Result {
	stop := m.heartbeat.keepAlive(ctx, job.ID)
	defer stop()
	return outcome.Capture(ctx, func(ctx context.Context) (any, error) {
		return handler(ctx, job)
	})
}

// fireHook runs the completion hook when this worker is the first to claim
// the job's hook marker.
func (m *Manager) fireHook(ctx context.Context, job *queue.Job) {
	hook := m.completionHook()
	if hook == nil {
		return
	}
	fired, err := m.store.MarkHookFired(ctx, job.ID)
	if err != nil {
		logging.WithContext(ctx, m.logger).Warn("mark hook fired failed", logging.Error(err))
		return
	}
	if !fired {
		return
	}
	hook(ctx, job)
}
