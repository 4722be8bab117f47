// Package daemonctl starts and stops a background tagflow daemon from the CLI.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"tagflow/internal/config"
)

// ErrDaemonNotRunning is returned by Stop when no daemon answers and no pid
// file names a live process.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Probe reports the pid of a responsive daemon. Callers back it with the
// HTTP status endpoint.
type Probe func(ctx context.Context) (pid int, err error)

// LaunchOptions controls how the detached daemon process is started.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StartState describes what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

var startDetached = func(cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// Launch starts `<executable> daemon` in its own session so it outlives the
// CLI. Output goes to the run log, not the terminal.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	if err := startDetached(exec.Command(executablePath, args...)); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return nil
}

// EnsureStarted launches the daemon unless probe already answers, then waits
// up to timeout for it to come up.
func EnsureStarted(ctx context.Context, probe Probe, executablePath string, opts LaunchOptions, timeout time.Duration) (StartResult, error) {
	if pid, err := probe(ctx); err == nil {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	pid, err := waitForProbe(ctx, probe, timeout)
	if err != nil {
		return StartResult{}, fmt.Errorf("daemon failed to start: %w", err)
	}
	return StartResult{State: StartStateStarted, PID: pid}, nil
}

func waitForProbe(ctx context.Context, probe Probe, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		pid, err := probe(ctx)
		if err == nil {
			return pid, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return 0, lastErr
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Stop sends SIGTERM to the daemon and escalates to SIGKILL when it is still
// alive after grace. The pid comes from probe, falling back to the pid file.
func Stop(ctx context.Context, cfg *config.Config, probe Probe, grace time.Duration) (StopResult, error) {
	pid, err := probe(ctx)
	if err != nil || pid <= 0 {
		filePID, ok := ReadPID(cfg)
		if !ok || !Alive(filePID) {
			return StopResult{}, ErrDaemonNotRunning
		}
		pid = filePID
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, nil
		}
		return result, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	if waitForExit(ctx, pid, grace) {
		return result, nil
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", pid, err)
	}
	result.ForcedKill = true
	// A killed daemon cannot clean up after itself.
	_ = os.Remove(cfg.PIDPath())
	_ = os.Remove(cfg.LockPath())
	return result, nil
}

func waitForExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// ReadPID reads the pid a running daemon recorded, reporting false when the
// file is missing or unreadable.
func ReadPID(cfg *config.Config) (int, bool) {
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
