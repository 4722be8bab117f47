package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tagflow/internal/api"
	"tagflow/internal/dispatch"
	"tagflow/internal/queue"
	"tagflow/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"config", "validate"}, "", env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.Library.Directory)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestEnqueueThenQueueList(t *testing.T) {
	env := setupCLITestEnv(t)
	folder := testsupport.WriteTree(t, filepath.Join(env.cfg.Paths.InboxDir, "album"), "01.flac", "02.flac")

	out, err := env.run(t, "enqueue", "preview", folder, "--hash", "hash-cli", "--set", "group_albums=false", "--meta", "request=cli")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	requireContains(t, out, "Queued Preview for "+folder)

	jobs, err := env.queue.List(context.Background(), queue.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Meta.FolderHash != "hash-cli" || job.Meta.Extra["request"] != "cli" {
		t.Fatalf("unexpected meta: %+v", job.Meta)
	}
	if job.Lane != queue.LanePreview {
		t.Fatalf("expected preview lane, got %s", job.Lane)
	}

	out, err = env.run(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, shortID(job.ID))
	requireContains(t, out, folder)

	out, err = env.run(t, "queue", "list", "--lane", "import")
	if err != nil {
		t.Fatalf("queue list --lane: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	if _, err := env.run(t, "queue", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "enqueue", "remix", env.cfg.Paths.InboxDir); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestEnqueueCandidateWithoutSessionImportsAutomatically(t *testing.T) {
	env := setupCLITestEnv(t)
	folder := testsupport.WriteTree(t, filepath.Join(env.cfg.Paths.InboxDir, "fresh"), "a.mp3")

	out, err := env.run(t, "enqueue", "import_candidate", folder, "--hash", "never-previewed", "--json")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var resp api.QueuedResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Kind != string(dispatch.KindImportAuto) {
		t.Fatalf("expected dispatch to fall back to %s, got %s", dispatch.KindImportAuto, resp.Kind)
	}
	if len(resp.JobIDs) != 2 {
		t.Fatalf("expected preview and import jobs, got %v", resp.JobIDs)
	}
}

func TestAnalyzeJSONThenQueueShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "analyze", "3", "5", "--key=false", "--json")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var resp api.QueuedResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.JobID == "" || resp.Status != "queued" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	out, err = env.run(t, "queue", "show", resp.JobID)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	var job queue.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode job %q: %v", out, err)
	}
	if job.Meta.Kind != string(dispatch.KindAnalyze) || job.Lane != queue.LaneImport {
		t.Fatalf("unexpected job: %+v", job)
	}
	var args dispatch.AnalyzeArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if len(args.ItemIDs) != 2 || !args.BPM || args.Key {
		t.Fatalf("unexpected args: %+v", args)
	}

	if _, err := env.run(t, "analyze", "zero"); err == nil {
		t.Fatal("expected invalid item id to fail")
	}
	if _, err := env.run(t, "queue", "show", "missing"); err == nil {
		t.Fatal("expected unknown job to fail")
	}
}

func TestItemsDeleteAndMetadata(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "items", "delete", "task-a", "task-b", "--keep-files")
	if err != nil {
		t.Fatalf("items delete: %v", err)
	}
	requireContains(t, out, "Queued deletion for 2 task(s)")

	jobs, err := env.queue.List(context.Background(), queue.ListFilter{Lanes: []queue.Lane{queue.LaneImport}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	var args dispatch.DeleteItemsArgs
	if err := json.Unmarshal(jobs[0].Args, &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args.DeleteFiles {
		t.Fatal("expected --keep-files to disable file deletion")
	}

	_, err = env.run(t, "items", "metadata", "99")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestQueueMaintenance(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		if _, err := env.run(t, "analyze", id); err != nil {
			t.Fatalf("analyze %s: %v", id, err)
		}
	}

	out, err := env.run(t, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 0 job(s) (finished)")

	jobs, err := env.queue.List(ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out, err = env.run(t, "queue", "remove", jobs[0].ID)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed 1 job(s)")

	if _, err := env.run(t, "queue", "clear", "--all", "--failed"); err == nil {
		t.Fatal("expected conflicting flags to fail")
	}
	out, err = env.run(t, "queue", "clear", "--all")
	if err != nil {
		t.Fatalf("queue clear --all: %v", err)
	}
	requireContains(t, out, "Cleared 1 job(s) (all)")
}

func TestStatusRendersDaemonSnapshot(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid 4242)")
	requireContains(t, out, "Preview")
	requireContains(t, out, "1 waiting")

	out, err = env.run(t, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"pid": 4242`)
}

func TestStatusReportsUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	url := env.server.URL
	env.server.Close()

	out, err := runCLI(t, []string{"status"}, url, env.configPath)
	if err == nil {
		t.Fatal("expected status to fail when the API is down")
	}
	requireContains(t, out, "Not running")
}

func TestDepsListsBinaries(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "deps")
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "available")
	requireContains(t, out, "Checks")
}

func TestSessionsUnknownHash(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "sessions", "nope")
	if err == nil || !strings.Contains(err.Error(), "no session stored") {
		t.Fatalf("expected missing session error, got %v", err)
	}
}

func TestLogsShowsLatestRunFiltered(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := env.run(t, "logs"); err == nil {
		t.Fatal("expected logs to fail before any run log exists")
	}

	older := filepath.Join(env.cfg.Paths.LogDir, "tagflow-20260101T000000Z.log")
	newer := filepath.Join(env.cfg.Paths.LogDir, "tagflow-20260601T000000Z.log")
	if err := os.WriteFile(older, []byte("old line\n"), 0o644); err != nil {
		t.Fatalf("write older: %v", err)
	}
	content := "INFO job claimed job_id=abc\nINFO job claimed job_id=def\nINFO job finished job_id=abc\n"
	if err := os.WriteFile(newer, []byte(content), 0o644); err != nil {
		t.Fatalf("write newer: %v", err)
	}

	out, err := env.run(t, "logs", "--job", "abc")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "old line") || strings.Contains(out, "job_id=def") {
		t.Fatalf("unexpected lines in %q", out)
	}
	requireContains(t, out, "job finished job_id=abc")

	out, err = env.run(t, "logs", "-n", "1")
	if err != nil {
		t.Fatalf("logs -n: %v", err)
	}
	if strings.TrimSpace(out) != "INFO job finished job_id=abc" {
		t.Fatalf("unexpected tail %q", out)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	url := env.server.URL
	env.server.Close()

	out, err := runCLI(t, []string{"stop"}, url, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestStartReportsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "start")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon already running (pid 4242)")
}
