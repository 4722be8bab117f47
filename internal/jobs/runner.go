package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"tagflow/internal/analysis"
	"tagflow/internal/dispatch"
	"tagflow/internal/engine"
	"tagflow/internal/logging"
	"tagflow/internal/notifications"
	"tagflow/internal/queue"
	"tagflow/internal/services"
	"tagflow/internal/session"
	"tagflow/internal/workflow"
)

// Runner executes job bodies against the engine and stores.
type Runner struct {
	reconciler *session.Reconciler
	engine     *engine.Engine
	analyzer   *analysis.Analyzer
	notifier   notifications.Service
	logger     *slog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithNotifier sets where folder status transitions are published.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logging.NewComponentLogger(logger, "jobs") }
}

// NewRunner constructs a Runner.
func NewRunner(reconciler *session.Reconciler, eng *engine.Engine, analyzer *analysis.Analyzer, opts ...Option) *Runner {
	r := &Runner{
		reconciler: reconciler,
		engine:     eng,
		analyzer:   analyzer,
		notifier:   notifications.Noop(),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handlers maps every job function name to its body.
func (r *Runner) Handlers() map[string]workflow.Handler {
	return map[string]workflow.Handler{
		dispatch.FuncPreview: folderJob(r, session.Fresh, func(st *session.State, p engine.PreviewParams) engine.Session {
			return r.engine.Preview(st, p)
		}),
		dispatch.FuncAddCandidates: folderJob(r, session.Existing, func(st *session.State, p engine.AddCandidatesParams) engine.Session {
			return r.engine.AddCandidates(st, p)
		}),
		dispatch.FuncImportCandidate: folderJob(r, session.Existing, func(st *session.State, p engine.ImportParams) engine.Session {
			return r.engine.ImportCandidate(st, p)
		}),
		dispatch.FuncImportAuto: folderJob(r, session.Existing, func(st *session.State, p engine.AutoImportParams) engine.Session {
			return r.engine.AutoImport(st, p)
		}),
		dispatch.FuncImportBootleg: folderJob(r, session.CreateIfMissing, func(st *session.State, _ struct{}) engine.Session {
			return r.engine.Bootleg(st)
		}),
		dispatch.FuncImportUndo: folderJob(r, session.Existing, func(st *session.State, p engine.UndoParams) engine.Session {
			return r.engine.Undo(st, p)
		}),
		dispatch.FuncAnalyze:     r.analyze,
		dispatch.FuncDeleteItems: r.deleteItems,
	}
}

// FolderResult is the stored result of a folder job.
type FolderResult struct {
	SessionID string `json:"session_id"`
	Hash      string `json:"folder_hash"`
	Path      string `json:"folder_path"`
	Revision  int    `json:"folder_revision"`
	Tasks     int    `json:"tasks"`
	Imported  int    `json:"imported"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

func summarize(state *session.State) FolderResult {
	res := FolderResult{
		SessionID: state.ID,
		Hash:      state.Folder.Hash,
		Path:      state.Folder.Path,
		Revision:  state.Revision,
		Tasks:     len(state.Tasks),
	}
	for _, task := range state.Tasks {
		switch task.Progress {
		case session.ProgressImported:
			res.Imported++
		case session.ProgressSkipped:
			res.Skipped++
		case session.ProgressFailed:
			res.Failed++
		}
	}
	return res
}

func decodeArgs(job *queue.Job, out any) error {
	if err := json.Unmarshal(job.Args, out); err != nil {
		return services.Wrap(services.ErrValidation, "jobs", job.Func, "decode arguments", err)
	}
	return nil
}

// folderJob builds the handler of one folder kind: decode, wrap in folder
// status, and run the engine session under the reconciler.
func folderJob[P any](r *Runner, mode session.Mode, build func(*session.State, P) engine.Session) workflow.Handler {
	return func(ctx context.Context, job *queue.Job) (any, error) {
		var args dispatch.FolderArgs[P]
		if err := decodeArgs(job, &args); err != nil {
			return nil, err
		}
		return r.withFolderStatus(ctx, job, args.Folder, func(ctx context.Context) (any, error) {
			state, err := r.reconciler.RunAndCommit(ctx, args.Folder, mode, func(ctx context.Context, st *session.State) error {
				return build(st, args.Params).Run(ctx)
			})
			if state == nil {
				return nil, err
			}
			return summarize(state), err
		})
	}
}

func (r *Runner) analyze(ctx context.Context, job *queue.Job) (any, error) {
	var args dispatch.AnalyzeArgs
	if err := decodeArgs(job, &args); err != nil {
		return nil, err
	}
	var opts []analysis.CallOption
	if r.engine != nil && r.engine.Library() != nil {
		opts = append(opts, analysis.WithLibrary(r.engine.Library()))
	}
	return r.analyzer.Analyze(ctx, args.ItemIDs, analysis.Options{BPM: args.BPM, Key: args.Key}, opts...)
}

func (r *Runner) deleteItems(ctx context.Context, job *queue.Job) (any, error) {
	var args dispatch.DeleteItemsArgs
	if err := decodeArgs(job, &args); err != nil {
		return nil, err
	}
	removed, err := r.engine.DeleteItems(ctx, args.TaskIDs, args.DeleteFiles)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": removed, "task_ids": args.TaskIDs}, nil
}
