package jobs

import (
	"context"
	"log/slog"

	"tagflow/internal/dispatch"
	"tagflow/internal/logging"
	"tagflow/internal/notifications"
	"tagflow/internal/outcome"
	"tagflow/internal/queue"
	"tagflow/internal/session"
	"tagflow/internal/workflow"
)

// withFolderStatus emits the kind's before status, runs body, then emits the
// after status carrying body's error. Kinds without a phase run bare.
func (r *Runner) withFolderStatus(ctx context.Context, job *queue.Job, folder session.Folder, body func(context.Context) (any, error)) (any, error) {
	phase, ok := dispatch.PhaseFor(dispatch.Kind(job.Meta.Kind))
	if !ok {
		return body(ctx)
	}
	r.publishStatus(ctx, folder, phase.Before, nil)
	value, err := body(ctx)
	r.publishStatus(context.WithoutCancel(ctx), folder, phase.After, err)
	return value, err
}

func (r *Runner) publishStatus(ctx context.Context, folder session.Folder, status notifications.FolderStatus, cause error) {
	payload := notifications.FolderStatusPayload(folder.Hash, folder.Path, status, cause)
	if err := r.notifier.Publish(ctx, notifications.EventFolderStatus, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "folder status publish failed", "notification_failed",
			logging.String(logging.FieldFolderHash, folder.Hash),
			logging.String("status", status.String()),
			logging.Error(err),
		)
	}
}

// JobMeta is the per-job entry of a job status event.
func JobMeta(job *queue.Job) map[string]any {
	meta := make(map[string]any, len(job.Meta.Extra)+6)
	for k, v := range job.Meta.Extra {
		meta[k] = v
	}
	meta["folder_hash"] = job.Meta.FolderHash
	meta["folder_path"] = job.Meta.FolderPath
	meta["kind"] = job.Meta.Kind
	meta["job_id"] = job.ID
	meta["lane"] = string(job.Lane)
	meta["status"] = string(job.Status)
	return meta
}

// StatusUpdateHook publishes a job status event for every finished job. A
// result that is a serialized error travels as exc.
func StatusUpdateHook(notifier notifications.Service, logger *slog.Logger) workflow.CompletionHook {
	logger = logging.NewComponentLogger(logger, "jobs")
	return func(ctx context.Context, job *queue.Job) {
		var exc any
		if payload, ok := outcome.DetectError(job.Result); ok {
			exc = payload
		}
		payload := notifications.JobStatusPayload(JobMeta(job), exc)
		if err := notifier.Publish(ctx, notifications.EventJobStatus, payload); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, logger), "job status publish failed", "notification_failed",
				logging.Error(err),
			)
		}
	}
}
