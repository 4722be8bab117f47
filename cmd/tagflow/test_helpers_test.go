package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tagflow/internal/api"
	"tagflow/internal/config"
	"tagflow/internal/daemon"
	"tagflow/internal/dispatch"
	"tagflow/internal/queue"
	"tagflow/internal/session"
	"tagflow/internal/testsupport"
	"tagflow/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	queue      *queue.Store
	sessions   *session.Store
	server     *httptest.Server
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "tagflow", "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		queue:      testsupport.MustOpenQueue(t, cfg),
		sessions:   testsupport.MustOpenSessions(t, cfg),
		configPath: configPath,
		baseDir:    base,
	}
	lib := testsupport.MustOpenLibrary(t, cfg)

	router := api.NewRouter(api.Deps{
		Dispatcher: dispatch.New(env.queue, env.sessions),
		Jobs:       env.queue,
		Sessions:   env.sessions,
		Items:      lib,
		Metadata: func(context.Context, string) (api.Metadata, error) {
			return api.Metadata{Tags: map[string]string{"title": "stub"}}, nil
		},
		Status: func(context.Context) any {
			return daemon.Status{
				Running:     true,
				PID:         4242,
				QueueDBPath: cfg.QueuePath(),
				Workflow: workflow.StatusSummary{
					Running:   true,
					Lanes:     []queue.Lane{queue.LanePreview, queue.LaneImport},
					LaneDepth: map[queue.Lane]int{queue.LanePreview: 1},
				},
			}
		},
	})
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, args, e.server.URL, e.configPath)
}

func runCLI(t *testing.T, args []string, apiURL, configPath string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiURL != "" {
		flags = append(flags, "--api", apiURL)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
