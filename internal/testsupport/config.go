package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tagflow/internal/config"
)

// ConfigOption mutates the generated config. base is the test's temp root.
type ConfigOption func(t testing.TB, cfg *config.Config, base string)

// NewConfig returns config.Default() with every directory moved under a
// fresh t.TempDir. Tag write-back, beets and ntfy are disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Library.Path = filepath.Join(cfg.Paths.DataDir, "library.db")
	cfg.Library.Directory = filepath.Join(base, "music")
	cfg.Library.BeetsConfig = ""
	cfg.Analysis.WriteTags = false
	cfg.Notifications.NtfyTopic = ""
	cfg.API.Bind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(t, &cfg, base)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithStubbedBinaries puts no-op executables for names (ffmpeg, ffprobe and
// keyfinder-cli when empty) first on PATH for the duration of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, _ *config.Config, base string) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "keyfinder-cli"}
		}
		bin := filepath.Join(base, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", bin, err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp root behind a config built by NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
