package workflow

import (
	"context"

	"tagflow/internal/logging"
	"tagflow/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool                 `json:"running"`
	Lanes      []queue.Lane         `json:"lanes"`
	Handlers   int                  `json:"handlers"`
	LastError  string               `json:"last_error,omitempty"`
	LastJob    *queue.Job           `json:"last_job,omitempty"`
	QueueStats map[queue.Status]int `json:"queue_stats"`
	LaneDepth  map[queue.Lane]int   `json:"lane_depth"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		Lanes:    append([]queue.Lane(nil), m.lanes...),
		Handlers: len(m.handlers),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		copy := *m.lastJob
		summary.LastJob = &copy
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	depth, err := m.store.LaneDepth(ctx)
	if err != nil {
		m.logger.Warn("failed to read lane depth", logging.Error(err))
	}
	summary.LaneDepth = depth
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
