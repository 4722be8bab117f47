package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tagflow/internal/config"
	"tagflow/internal/logging"
	"tagflow/internal/queue"
)

// Handler runs the body of one job.
type Handler func(ctx context.Context, job *queue.Job) (any, error)

// CompletionHook observes a finished job. It runs once per job after the
// outcome has been stored.
type CompletionHook func(ctx context.Context, job *queue.Job)

// Manager coordinates queue processing using registered job handlers.
type Manager struct {
	cfg           *config.Config
	store         *queue.Store
	logger        *slog.Logger
	pollInterval  time.Duration
	retryInterval time.Duration

	heartbeat heartbeat
	lanes     []queue.Lane
	handlers  map[string]Handler
	hook      CompletionHook

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithLanes restricts the manager to the given lanes.
func WithLanes(lanes ...queue.Lane) Option {
	return func(m *Manager) {
		if len(lanes) > 0 {
			m.lanes = append([]queue.Lane(nil), lanes...)
		}
	}
}

// WithPollInterval overrides how long an idle lane waits before polling.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithCompletionHook sets the hook fired after each job.
func WithCompletionHook(hook CompletionHook) Option {
	return func(m *Manager) { m.hook = hook }
}

// NewManager constructs a workflow manager for both lanes.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	m := &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logger,
		pollInterval:  seconds(cfg.Workflow.QueuePollInterval, time.Second),
		retryInterval: seconds(cfg.Workflow.ErrorRetryInterval, 5*time.Second),
		heartbeat: newHeartbeat(store, logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		lanes:    append([]queue.Lane(nil), queue.Lanes...),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

// Register binds a handler to a job function name. Registering the same name
// again replaces the handler.
func (m *Manager) Register(fn string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[fn] = handler
}

// RegisterAll registers every handler in handlers.
func (m *Manager) RegisterAll(handlers map[string]Handler) {
	for fn, h := range handlers {
		m.Register(fn, h)
	}
}

// SetCompletionHook replaces the completion hook.
func (m *Manager) SetCompletionHook(hook CompletionHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

func (m *Manager) handler(fn string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[fn]
	return h, ok
}

func (m *Manager) completionHook() CompletionHook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hook
}
