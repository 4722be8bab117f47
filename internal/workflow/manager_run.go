package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tagflow/internal/logging"
	"tagflow/internal/queue"
)

// Start launches one worker goroutine per configured lane. It returns an
// error if the manager is already running or has no handlers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.running:
		return errors.New("workflow already running")
	case len(m.handlers) == 0:
		return errors.New("workflow handlers not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	for i, lane := range m.lanes {
		w := laneWorker{
			m:       m,
			lane:    lane,
			logger:  m.logger.With(logging.String(logging.FieldLane, string(lane))),
			reclaim: i == 0,
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.run(runCtx)
		}()
	}
	return nil
}

// Stop cancels every lane worker and blocks until they return. In-flight
// jobs observe the cancellation through their context.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	wasRunning := m.running
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if !wasRunning {
		return
	}
	cancel()
	m.wg.Wait()
}

// laneWorker claims and executes jobs for a single lane. Only the first
// lane reclaims stale jobs since reclaim covers the whole queue.
type laneWorker struct {
	m       *Manager
	lane    queue.Lane
	logger  *slog.Logger
	reclaim bool
}

func (w laneWorker) run(ctx context.Context) {
	for ctx.Err() == nil {
		w.reclaimStale(ctx)

		job, err := w.m.store.Claim(ctx, w.lane)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			w.m.setLastError(err)
			logging.ErrorWithContext(w.logger, "failed to claim next job", "queue_claim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			sleep(ctx, w.m.retryInterval)
		case job == nil:
			sleep(ctx, w.m.pollInterval)
		default:
			if err := w.m.processJob(ctx, w.lane, job); errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (w laneWorker) reclaimStale(ctx context.Context) {
	if !w.reclaim {
		return
	}
	err := w.m.heartbeat.reclaim(ctx, w.logger)
	if err == nil || ctx.Err() != nil {
		return
	}
	logging.WarnWithContext(w.logger, "reclaim stale jobs failed", "heartbeat_reclaim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
		logging.String(logging.FieldImpact, "stuck jobs may remain started"),
	)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
