package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tagflow/internal/analysis"
	"tagflow/internal/api"
	"tagflow/internal/beetsconfig"
	"tagflow/internal/config"
	"tagflow/internal/daemon"
	"tagflow/internal/deps"
	"tagflow/internal/dispatch"
	"tagflow/internal/engine"
	"tagflow/internal/jobs"
	"tagflow/internal/library"
	"tagflow/internal/logging"
	"tagflow/internal/notifications"
	"tagflow/internal/preflight"
	"tagflow/internal/queue"
	"tagflow/internal/session"
	"tagflow/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the tagflow daemon and blocks until ctx is canceled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, logging.RunLogName(time.Now()))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logging.RunLogPattern, Exclude: []string{logPath}},
	)
	dependencies := deps.WithVersions(signalCtx, preflight.CheckSystemDeps(cfg))
	logDependencySnapshot(logger, dependencies)
	for _, failed := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "jobs touching this resource will fail until it is fixed"),
		)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	sessions, err := session.Open(cfg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()
	lib, err := library.Open(cfg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open library: %w", err)
	}
	defer lib.Close()

	defaults, err := beetsconfig.Resolve(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "beets config unreadable, using [import] defaults", "beets_config_invalid",
			logging.String("path", cfg.Library.BeetsConfig),
			logging.Error(err),
		)
		defaults = cfg.Import
	}

	hub := notifications.NewHub(logger, cfg.API.WebsocketBuffer)
	defer hub.Close()
	push := notifications.NewBackground(notifications.NewService(cfg), logger, 0)
	defer push.Close()
	notifier := notifications.Fanout(hub, push)

	eng := engine.New(lib, cfg.Library.Directory,
		engine.WithDefaults(defaults),
		engine.WithFFprobe(cfg.Analysis.FFprobeBinary),
		engine.WithLogger(logger),
	)
	analyzer := analysis.New(cfg, logger)
	runner := jobs.NewRunner(session.NewReconciler(sessions, logger), eng, analyzer,
		jobs.WithNotifier(notifier),
		jobs.WithLogger(logger),
	)
	dispatcher := dispatch.New(store, sessions,
		dispatch.WithNotifier(notifier),
		dispatch.WithDefaults(defaults),
		dispatch.WithLogger(logger),
	)

	manager := workflow.NewManager(cfg, store, logger,
		workflow.WithCompletionHook(jobs.StatusUpdateHook(notifier, logger)),
	)
	manager.RegisterAll(runner.Handlers())

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	d.SetDependencies(dependencies)
	d.SetHandler(api.NewRouter(api.Deps{
		Dispatcher: dispatcher,
		Jobs:       store,
		Sessions:   sessions,
		Items:      lib,
		Metadata:   api.FFprobeMetadata(cfg.Analysis.FFprobeBinary),
		Status:     func(ctx context.Context) any { return d.Status(ctx) },
		Stream:     hub,
		Token:      cfg.API.Token,
		Logger:     logger,
	}))

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, the API bind address, and queue database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("tagflow daemon shutting down")
	return nil
}

func logDependencySnapshot(logger *slog.Logger, statuses []deps.Status) {
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, s := range statuses {
		attrs = append(attrs,
			logging.Bool(s.Name+"_available", s.Available),
			logging.String(s.Name+"_binary", s.Command),
		)
	}
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		for _, m := range missing {
			logging.WarnWithContext(logger, "required binary missing", "dependency_missing",
				logging.String("dependency", m.Name),
				logging.String("detail", m.Detail),
				logging.String(logging.FieldImpact, "analysis and import jobs will fail"),
			)
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
