package daemonctl

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
	"time"

	"tagflow/internal/testsupport"
)

// TestHelperProcess stands in for a daemon. With HELPER_IGNORE_TERM set it
// survives SIGTERM so the SIGKILL escalation can be exercised.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("HELPER_IGNORE_TERM") == "1" {
		signal.Ignore(syscall.SIGTERM)
	}
	time.Sleep(30 * time.Second)
	os.Exit(0)
}

func startHelper(t *testing.T, ignoreTerm bool) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	if ignoreTerm {
		cmd.Env = append(cmd.Env, "HELPER_IGNORE_TERM=1")
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	// Reap the child so a signaled helper stops showing up as alive.
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-done
	})
	// Give the helper time to install its signal disposition.
	time.Sleep(200 * time.Millisecond)
	return cmd
}

func unreachable(context.Context) (int, error) { return 0, errors.New("connection refused") }

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := Stop(context.Background(), cfg, unreachable, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopTerminatesPIDFileProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	helper := startHelper(t, false)
	pid := helper.Process.Pid
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	result, err := Stop(context.Background(), cfg, unreachable, 5*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result.PID != pid || result.ForcedKill {
		t.Fatalf("unexpected result: %+v", result)
	}
	if Alive(pid) {
		t.Fatal("expected helper to exit")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	helper := startHelper(t, true)
	pid := helper.Process.Pid
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	probe := func(context.Context) (int, error) { return pid, nil }

	result, err := Stop(context.Background(), cfg, probe, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !result.ForcedKill {
		t.Fatalf("expected forced kill, got %+v", result)
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
}

func TestEnsureStartedSkipsLaunchWhenRunning(t *testing.T) {
	launched := false
	orig := startDetached
	startDetached = func(*exec.Cmd) error { launched = true; return nil }
	t.Cleanup(func() { startDetached = orig })

	probe := func(context.Context) (int, error) { return 77, nil }
	result, err := EnsureStarted(context.Background(), probe, "/usr/bin/tagflow", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != StartStateAlreadyRunning || result.PID != 77 || launched {
		t.Fatalf("unexpected result %+v launched=%v", result, launched)
	}
}

func TestEnsureStartedLaunchesAndWaits(t *testing.T) {
	var gotArgs []string
	orig := startDetached
	startDetached = func(cmd *exec.Cmd) error { gotArgs = cmd.Args; return nil }
	t.Cleanup(func() { startDetached = orig })

	calls := 0
	probe := func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("not yet")
		}
		return 99, nil
	}
	result, err := EnsureStarted(context.Background(), probe, "/usr/bin/tagflow",
		LaunchOptions{ConfigPath: "/etc/tagflow.toml", LogLevel: "debug"}, 5*time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != StartStateStarted || result.PID != 99 {
		t.Fatalf("unexpected result %+v", result)
	}
	want := []string{"/usr/bin/tagflow", "daemon", "--config", "/etc/tagflow.toml", "--log-level", "debug"}
	if len(gotArgs) != len(want) {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Fatalf("unexpected args %v", gotArgs)
		}
	}
}

func TestEnsureStartedTimesOut(t *testing.T) {
	orig := startDetached
	startDetached = func(*exec.Cmd) error { return nil }
	t.Cleanup(func() { startDetached = orig })

	if _, err := EnsureStarted(context.Background(), unreachable, "/usr/bin/tagflow", LaunchOptions{}, 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestReadPID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, ok := ReadPID(cfg); ok {
		t.Fatal("expected missing pid file")
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, ok := ReadPID(cfg); ok {
		t.Fatal("expected unparsable pid to be rejected")
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte("1234\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid, ok := ReadPID(cfg); !ok || pid != 1234 {
		t.Fatalf("unexpected pid %d ok=%v", pid, ok)
	}
}
