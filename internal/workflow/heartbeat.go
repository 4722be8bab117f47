package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tagflow/internal/logging"
	"tagflow/internal/queue"
)

// heartbeat keeps last_heartbeat fresh on running jobs and requeues jobs
// whose worker stopped beating for longer than timeout.
type heartbeat struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

func newHeartbeat(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) heartbeat {
	return heartbeat{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow-heartbeat"),
		interval: interval,
		timeout:  timeout,
	}
}

// reclaim requeues stale started jobs. It is a no-op without a timeout.
func (h heartbeat) reclaim(ctx context.Context, logger *slog.Logger) error {
	if h.timeout <= 0 {
		return nil
	}
	n, err := h.store.ReclaimStale(ctx, time.Now().Add(-h.timeout))
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("reclaimed stale jobs",
			logging.Int64("count", n),
			logging.Duration("heartbeat_timeout", h.timeout),
		)
	}
	return nil
}

// keepAlive beats for jobID in the background. The returned func stops the
// beating and waits for the goroutine to exit.
func (h heartbeat) keepAlive(ctx context.Context, jobID string) (stop func()) {
	if h.interval <= 0 {
		return func() {}
	}
	beatCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	logger := logging.WithContext(ctx, h.logger)

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-beatCtx.Done():
				return
			case <-ticker.C:
			}
			err := h.store.UpdateHeartbeat(beatCtx, jobID)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				logger.Debug("heartbeat update cancelled")
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
