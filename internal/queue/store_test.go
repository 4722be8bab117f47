package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tagflow/internal/queue"
	"tagflow/internal/testsupport"
)

func enqueue(t *testing.T, store *queue.Store, req queue.EnqueueRequest) *queue.Job {
	t.Helper()
	if req.Func == "" {
		req.Func = "preview"
	}
	job, err := store.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return job
}

func claim(t *testing.T, store *queue.Store, lane queue.Lane) *queue.Job {
	t.Helper()
	job, err := store.Claim(context.Background(), lane)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	return job
}

func TestEnqueueStoresMetaAndArgs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	job := enqueue(t, store, queue.EnqueueRequest{
		Lane: queue.LanePreview,
		Func: "preview",
		Args: map[string]any{"group_albums": true},
		Meta: queue.Meta{FolderHash: "abc", FolderPath: "/music/in/a", Kind: "preview", Extra: map[string]any{"ref": "ui-1"}},
	})
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}

	fetched, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Meta.FolderHash != "abc" || fetched.Meta.Kind != "preview" || fetched.Meta.Extra["ref"] != "ui-1" {
		t.Fatalf("unexpected meta: %#v", fetched.Meta)
	}
	var args map[string]any
	if err := json.Unmarshal(fetched.Args, &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args["group_albums"] != true {
		t.Fatalf("unexpected args %v", args)
	}

	missing, err := store.GetByID(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil job for unknown id, got %#v err=%v", missing, err)
	}
}

func TestMetaFlattensExtra(t *testing.T) {
	meta := queue.Meta{FolderHash: "h", FolderPath: "/p", Kind: "import_auto", Extra: map[string]any{"kind": "spoofed", "user": "x"}}
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if flat["kind"] != "import_auto" || flat["user"] != "x" || flat["folder_hash"] != "h" {
		t.Fatalf("unexpected flattened meta %v", flat)
	}
}

func TestClaimOrdersByPositionAndAtFront(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	first := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, Func: "import_candidate"})
	second := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, Func: "import_candidate"})
	urgent := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, Func: "delete_items", AtFront: true})
	other := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview, Func: "preview"})

	want := []string{urgent.ID, first.ID, second.ID}
	for i, id := range want {
		got := claim(t, store, queue.LaneImport)
		if got == nil || got.ID != id {
			t.Fatalf("claim %d: got %#v want %s", i, got, id)
		}
		if got.Status != queue.StatusStarted || got.Attempts != 1 || got.LastHeartbeat == nil {
			t.Fatalf("claimed job not marked started: %#v", got)
		}
	}
	if got := claim(t, store, queue.LaneImport); got != nil {
		t.Fatalf("expected empty import lane, got %#v", got)
	}
	if got := claim(t, store, queue.LanePreview); got == nil || got.ID != other.ID {
		t.Fatalf("expected preview lane job, got %#v", got)
	}
}

func TestDependentWaitsForPredecessor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	preview := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview, Func: "preview"})
	imp := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, Func: "import_candidate", DependsOn: preview.ID})
	if imp.Status != queue.StatusDeferred || imp.DependsOn != preview.ID {
		t.Fatalf("expected deferred dependent, got %#v", imp)
	}
	if got := claim(t, store, queue.LaneImport); got != nil {
		t.Fatalf("dependent must not be claimable before predecessor finishes, got %#v", got)
	}

	started := claim(t, store, queue.LanePreview)
	if _, err := store.Complete(ctx, started.ID, queue.Completion{Result: map[string]any{"ok": true}}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	released, err := store.GetByID(ctx, imp.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if released.Status != queue.StatusQueued {
		t.Fatalf("expected dependent released, got %s", released.Status)
	}
	if got := claim(t, store, queue.LaneImport); got == nil || got.ID != imp.ID {
		t.Fatalf("expected dependent claimable, got %#v", got)
	}
}

func TestFailedPredecessorCancelsDependents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	preview := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview})
	imp := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, Func: "import_auto", DependsOn: preview.ID})
	tail := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, Func: "import_undo", DependsOn: imp.ID})

	claim(t, store, queue.LanePreview)
	done, err := store.Complete(ctx, preview.ID, queue.Completion{
		Result:       map[string]any{"type": "NotFound", "message": "boom"},
		Failed:       true,
		ErrorMessage: "boom",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != queue.StatusFailed || done.ErrorMessage != "boom" {
		t.Fatalf("unexpected completed job %#v", done)
	}

	for _, id := range []string{imp.ID, tail.ID} {
		job, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job.Status != queue.StatusCanceled {
			t.Fatalf("expected %s canceled, got %s", id, job.Status)
		}
	}
	if got := claim(t, store, queue.LaneImport); got != nil {
		t.Fatalf("canceled dependents must never be claimed, got %#v", got)
	}

	late := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, DependsOn: preview.ID})
	if late.Status != queue.StatusCanceled {
		t.Fatalf("enqueue behind failed job should be canceled, got %s", late.Status)
	}

	retried, err := store.RetryFailed(ctx, preview.ID)
	if err != nil || retried != 1 {
		t.Fatalf("RetryFailed = %d, %v", retried, err)
	}
	revived, err := store.GetByID(ctx, tail.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if revived.Status != queue.StatusDeferred {
		t.Fatalf("expected transitive dependent revived to deferred, got %s", revived.Status)
	}
}

func TestEnqueueBehindFinishedJobIsQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	first := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview})
	claim(t, store, queue.LanePreview)
	if _, err := store.Complete(ctx, first.ID, queue.Completion{}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	next := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, DependsOn: first.ID})
	if next.Status != queue.StatusQueued {
		t.Fatalf("expected queued, got %s", next.Status)
	}
}

func TestEnqueueRejectsUnknownDependency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	_, err := store.Enqueue(context.Background(), queue.EnqueueRequest{Lane: queue.LaneImport, Func: "x", DependsOn: "ghost"})
	if !errors.Is(err, queue.ErrUnknownDependency) {
		t.Fatalf("expected ErrUnknownDependency, got %v", err)
	}
	_, err = store.Enqueue(context.Background(), queue.EnqueueRequest{Lane: "bulk", Func: "x"})
	if err == nil {
		t.Fatal("expected error for unknown lane")
	}
}

func TestCompleteRequiresStartedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	job := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview})
	if _, err := store.Complete(context.Background(), job.ID, queue.Completion{}); !errors.Is(err, queue.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if _, err := store.Complete(context.Background(), "ghost", queue.Completion{}); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMarkHookFiredOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	job := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview})
	first, err := store.MarkHookFired(ctx, job.ID)
	if err != nil || !first {
		t.Fatalf("first MarkHookFired = %v, %v", first, err)
	}
	second, err := store.MarkHookFired(ctx, job.ID)
	if err != nil || second {
		t.Fatalf("second MarkHookFired = %v, %v", second, err)
	}
}

func TestResetStuckAndReclaimStale(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview})
	enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport})
	stale := claim(t, store, queue.LanePreview)
	claim(t, store, queue.LaneImport)

	reclaimed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Hour))
	if err != nil || reclaimed != 0 {
		t.Fatalf("expected fresh heartbeats to survive, got %d %v", reclaimed, err)
	}
	reclaimed, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil || reclaimed != 2 {
		t.Fatalf("expected two stale jobs reclaimed, got %d %v", reclaimed, err)
	}
	again := claim(t, store, queue.LanePreview)
	if again == nil || again.ID != stale.ID || again.Attempts != 2 {
		t.Fatalf("expected reclaimed job to be claimable again, got %#v", again)
	}

	reset, err := store.ResetStuck(ctx)
	if err != nil || reset != 1 {
		t.Fatalf("ResetStuck = %d, %v", reset, err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusQueued] != 2 || stats[queue.StatusStarted] != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestListFilterAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	done := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview})
	enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview})
	enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport})
	claim(t, store, queue.LanePreview)
	if _, err := store.Complete(ctx, done.ID, queue.Completion{}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	queued, err := store.List(ctx, queue.ListFilter{Statuses: []queue.Status{queue.StatusQueued}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", len(queued))
	}
	previews, err := store.List(ctx, queue.ListFilter{Lanes: []queue.Lane{queue.LanePreview}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(previews) != 2 {
		t.Fatalf("expected 2 preview jobs, got %d", len(previews))
	}

	cleared, err := store.ClearFinished(ctx)
	if err != nil || cleared != 1 {
		t.Fatalf("ClearFinished = %d, %v", cleared, err)
	}
	depth, err := store.LaneDepth(ctx)
	if err != nil {
		t.Fatalf("LaneDepth failed: %v", err)
	}
	if depth[queue.LanePreview] != 1 || depth[queue.LaneImport] != 1 {
		t.Fatalf("unexpected lane depth %v", depth)
	}
	all, err := store.Clear(ctx)
	if err != nil || all != 2 {
		t.Fatalf("Clear = %d, %v", all, err)
	}
}

func TestRemoveCancelsWaitingDependents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	head := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LanePreview})
	dep := enqueue(t, store, queue.EnqueueRequest{Lane: queue.LaneImport, DependsOn: head.ID})

	removed, err := store.Remove(ctx, head.ID)
	if err != nil || removed != 1 {
		t.Fatalf("Remove = %d, %v", removed, err)
	}
	job, err := store.GetByID(ctx, dep.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job.Status != queue.StatusCanceled {
		t.Fatalf("expected dependent canceled, got %s", job.Status)
	}
}
