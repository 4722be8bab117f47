package daemon_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tagflow/internal/config"
	"tagflow/internal/daemon"
	"tagflow/internal/deps"
	"tagflow/internal/logging"
	"tagflow/internal/queue"
	"tagflow/internal/testsupport"
	"tagflow/internal/workflow"
)

type fixture struct {
	cfg   *config.Config
	store *queue.Store
	calls *atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return &fixture{cfg: cfg, store: testsupport.MustOpenQueue(t, cfg), calls: &atomic.Int32{}}
}

func (f *fixture) newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	mgr := workflow.NewManager(f.cfg, f.store, logging.NewNop(), workflow.WithPollInterval(10*time.Millisecond))
	mgr.Register("echo", func(context.Context, *queue.Job) (any, error) {
		f.calls.Add(1)
		return map[string]any{"ok": true}, nil
	})
	d, err := daemon.New(f.cfg, f.store, logging.NewNop(), mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	d := f.newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || status.StartedAt == nil {
		t.Fatalf("expected daemon to report running, got %+v", status)
	}
	if status.QueueDBPath != f.store.Path() {
		t.Fatalf("queue path = %q", status.QueueDBPath)
	}

	data, err := os.ReadFile(f.cfg.PIDPath())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if _, err := os.Stat(f.cfg.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	f := newFixture(t)
	first := f.newDaemon(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second := f.newDaemon(t)
	err := second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("expected start after release, got %v", err)
	}
}

func TestStartRequeuesInterruptedJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.store.Enqueue(ctx, queue.EnqueueRequest{Lane: queue.LaneImport, Func: "echo"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := f.store.Claim(ctx, queue.LaneImport); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	d := f.newDaemon(t)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "interrupted job to finish", func() bool {
		got, err := f.store.GetByID(ctx, job.ID)
		return err == nil && got != nil && got.Status == queue.StatusFinished
	})
	if f.calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", f.calls.Load())
	}
}

func TestAPIServerServesHandler(t *testing.T) {
	f := newFixture(t)
	d := f.newDaemon(t)
	d.SetDependencies([]deps.Status{{Name: "FFmpeg", Available: true}})
	d.SetHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong "+r.URL.Path)
	}))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("expected api address")
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "pong /api/status" {
		t.Fatalf("unexpected body %q", body)
	}

	status := d.Status(context.Background())
	if status.APIAddress != addr || len(status.Dependencies) != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	d.Stop()
	if d.APIAddress() != "" {
		t.Fatal("expected api address cleared after stop")
	}
}
