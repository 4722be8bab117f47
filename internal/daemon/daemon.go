package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tagflow/internal/config"
	"tagflow/internal/deps"
	"tagflow/internal/logging"
	"tagflow/internal/queue"
	"tagflow/internal/workflow"
)

// Daemon coordinates the lane workers and the API server and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager

	mu           sync.Mutex
	handler      http.Handler
	api          *apiServer
	dependencies []deps.Status

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	APIAddress   string                 `json:"api_address,omitempty"`
	QueueDBPath  string                 `json:"queue_db_path"`
	LockFilePath string                 `json:"lock_file_path"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Dependencies []deps.Status          `json:"dependencies,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		pidPath:  cfg.PIDPath(),
		lock:     flock.New(lockPath),
	}, nil
}

// SetHandler installs the HTTP handler served on [api].bind once the daemon
// starts. A nil handler disables the API server.
func (d *Daemon) SetHandler(h http.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// SetDependencies records the binary check results reported by Status.
func (d *Daemon) SetDependencies(statuses []deps.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dependencies = append([]deps.Status(nil), statuses...)
}

// Start acquires the daemon lock, requeues interrupted jobs, and launches the
// lane workers and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tagflow daemon instance is already running")
	}

	if reset, err := d.store.ResetStuck(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("requeue interrupted jobs: %w", err)
	} else if reset > 0 {
		d.logger.Info("requeued interrupted jobs", logging.Int64("count", reset))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.mu.Lock()
	d.api = newAPIServer(d.cfg.API.Bind, d.handler, d.logger)
	api := d.api
	d.mu.Unlock()
	if err := api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		d.logger.Warn("failed to write pid file", logging.String("path", d.pidPath), logging.Error(err))
	}

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("tagflow daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock. Jobs
// interrupted here stay started and are requeued by the next Start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	api := d.api
	d.api = nil
	d.mu.Unlock()
	api.stop()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tagflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the address the API server listens on, or "" when it
// is not running.
func (d *Daemon) APIAddress() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		APIAddress:   d.APIAddress(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Workflow:     d.workflow.Status(ctx),
	}
	if status.Running {
		started := d.startedAt
		status.StartedAt = &started
	}
	d.mu.Lock()
	status.Dependencies = append([]deps.Status(nil), d.dependencies...)
	d.mu.Unlock()
	return status
}
