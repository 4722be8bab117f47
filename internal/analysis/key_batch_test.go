package analysis

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tagflow/internal/config"
	"tagflow/internal/library"
)

type countingTags struct{ writes map[int64]int }

func (c *countingTags) TryWrite(_ context.Context, item *library.Item) error {
	c.writes[item.ID]++
	return nil
}

// stubKeyfinderByPath hangs for files whose name contains "slow" and reports
// a key for everything else.
func stubKeyfinderByPath(t *testing.T) {
	t.Helper()
	origLook, origCmd := lookPath, commandContext
	lookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		mode := "success"
		if len(args) > 0 && strings.Contains(filepath.Base(args[len(args)-1]), "slow") {
			mode = "hang"
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "KEYFINDER_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { lookPath, commandContext = origLook, origCmd })
}

func TestKeyTimeoutDoesNotAbortBatch(t *testing.T) {
	stubKeyfinderByPath(t)
	ctx := context.Background()

	dir := t.TempDir()
	lib, err := library.OpenPath(filepath.Join(dir, "library.db"))
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })

	var ids []int64
	for _, name := range []string{"slow.flac", "quick.flac"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
		item := &library.Item{Path: path, Title: name}
		if err := lib.Add(ctx, item); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		ids = append(ids, item.ID)
	}

	cfg := config.Default()
	tags := &countingTags{writes: map[int64]int{}}
	a := New(&cfg, nil,
		WithKeyDetector(KeyfinderCLI{Timeout: 200 * time.Millisecond}),
		WithTagWriter(tags),
	)

	start := time.Now()
	report, err := a.Analyze(ctx, ids, Options{Key: true}, WithLibrary(lib))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("key timeout not enforced: %s", elapsed)
	}
	if len(report.Analyzed) != 2 || len(report.Errors) != 0 {
		t.Fatalf("unexpected buckets: %+v", report)
	}
	if report.Analyzed[0].ItemID != ids[0] || report.Analyzed[0].InitialKey != nil {
		t.Fatalf("timed out item should have no key: %+v", report.Analyzed[0])
	}
	if report.Analyzed[1].ItemID != ids[1] || report.Analyzed[1].InitialKey == nil || *report.Analyzed[1].InitialKey != "C#m" {
		t.Fatalf("second item should carry the detected key: %+v", report.Analyzed[1])
	}
	for _, id := range ids {
		if tags.writes[id] != 1 {
			t.Fatalf("item %d written %d times, want 1", id, tags.writes[id])
		}
	}

	slow, _ := lib.GetItem(ctx, ids[0])
	quick, _ := lib.GetItem(ctx, ids[1])
	if slow.InitialKey != nil {
		t.Fatalf("timed out item stored key %q", *slow.InitialKey)
	}
	if quick.InitialKey == nil || *quick.InitialKey != "C#m" {
		t.Fatalf("detected key not stored: %+v", quick)
	}
}
