package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tagflow/internal/config"
	"tagflow/internal/engine"
	"tagflow/internal/logging"
	"tagflow/internal/notifications"
	"tagflow/internal/queue"
	"tagflow/internal/services"
	"tagflow/internal/session"
)

// Enqueuer accepts job submissions. Remove withdraws jobs of a submission
// that could not be queued in full.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.Job, error)
	Remove(ctx context.Context, ids ...string) (int64, error)
}

// SessionIndex reports whether a folder identity has a stored session.
type SessionIndex interface {
	Exists(ctx context.Context, hash, path string) (bool, error)
}

// Request is one folder work request.
type Request struct {
	Folder    session.Folder
	Kind      Kind
	ExtraMeta map[string]any
	Kwargs    Kwargs
}

// Handle reports the jobs a request produced. Kind is the kind actually
// dispatched, which differs from the requested one after a fallback.
type Handle struct {
	Kind Kind
	Jobs []*queue.Job
}

// ID returns the id of the last job in the chain, the one whose completion
// ends the request.
func (h Handle) ID() string {
	if len(h.Jobs) == 0 {
		return ""
	}
	return h.Jobs[len(h.Jobs)-1].ID
}

// IDs returns every job id in submission order.
func (h Handle) IDs() []string {
	ids := make([]string, len(h.Jobs))
	for i, job := range h.Jobs {
		ids[i] = job.ID
	}
	return ids
}

// Dispatcher validates requests and submits their jobs.
type Dispatcher struct {
	queue    Enqueuer
	sessions SessionIndex
	notifier notifications.Service
	defaults config.Import
	logger   *slog.Logger
	hash     func(string) (string, error)
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier sets where PENDING transitions are published.
func WithNotifier(n notifications.Service) Option {
	return func(d *Dispatcher) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithDefaults sets the import defaults applied to unset kwargs.
func WithDefaults(defaults config.Import) Option {
	return func(d *Dispatcher) { d.defaults = defaults }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.NewComponentLogger(logger, "dispatch") }
}

// New constructs a Dispatcher.
func New(q Enqueuer, sessions SessionIndex, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:    q,
		sessions: sessions,
		notifier: notifications.Noop(),
		defaults: config.Default().Import,
		logger:   logging.NewNop(),
		hash:     session.HashFolder,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch validates req and queues its jobs.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Handle, error) {
	params, err := ParseParams(req.Kind, req.Kwargs)
	if err != nil {
		return Handle{}, err
	}
	return d.Submit(ctx, req.Folder, req.ExtraMeta, params)
}

// Submit queues already validated params for folder. A blank hash is
// computed from the folder's current contents.
func (d *Dispatcher) Submit(ctx context.Context, folder session.Folder, extra map[string]any, params Params) (Handle, error) {
	if params == nil {
		return Handle{}, &UsageError{Reason: "missing params"}
	}
	folder, err := d.resolveFolder(params.Kind(), folder)
	if err != nil {
		return Handle{}, err
	}
	logger := logging.WithContext(ctx, d.logger).With(
		logging.String(logging.FieldFolderHash, folder.Hash),
		logging.String(logging.FieldFolderPath, folder.Path),
	)

	if p, ok := params.(ImportCandidateParams); ok {
		exists, err := d.sessions.Exists(ctx, folder.Hash, folder.Path)
		if err != nil {
			return Handle{}, fmt.Errorf("probe session: %w", err)
		}
		if !exists {
			logger.Info("no session for folder; importing automatically")
			params = ImportAutoParams{DuplicateActions: p.DuplicateActions}
		}
	}

	d.publishPending(ctx, logger, folder)

	var jobs []*queue.Job
	switch p := params.(type) {
	case PreviewParams:
		job, err := d.enqueueFolder(ctx, folder, KindPreview, FuncPreview, extra, "",
			d.previewParams(p.GroupAlbums, p.Autotag))
		if err != nil {
			return Handle{}, err
		}
		jobs = append(jobs, job)
	case AddCandidatesParams:
		job, err := d.enqueueFolder(ctx, folder, KindAddCandidates, FuncAddCandidates, extra, "",
			engine.AddCandidatesParams{Search: p.Search})
		if err != nil {
			return Handle{}, err
		}
		jobs = append(jobs, job)
	case ImportCandidateParams:
		job, err := d.enqueueFolder(ctx, folder, KindImportCandidate, FuncImportCandidate, extra, "",
			engine.ImportParams{CandidateIDs: p.CandidateIDs, DuplicateActions: p.DuplicateActions})
		if err != nil {
			return Handle{}, err
		}
		jobs = append(jobs, job)
	case ImportAutoParams:
		preview, err := d.enqueueFolder(ctx, folder, KindAutoPreview, FuncPreview, extra, "",
			d.previewParams(p.GroupAlbums, p.Autotag))
		if err != nil {
			return Handle{}, err
		}
		threshold := d.defaults.ImportThreshold
		if p.ImportThreshold != nil {
			threshold = *p.ImportThreshold
		}
		imp, err := d.enqueueFolder(ctx, folder, KindAutoImport, FuncImportAuto, extra, preview.ID,
			engine.AutoImportParams{Threshold: threshold, DuplicateActions: p.DuplicateActions})
		if err != nil {
			d.withdraw(ctx, logger, preview)
			return Handle{}, err
		}
		jobs = append(jobs, preview, imp)
	case BootlegParams:
		job, err := d.enqueueFolder(ctx, folder, KindImportBootleg, FuncImportBootleg, extra, "", struct{}{})
		if err != nil {
			return Handle{}, err
		}
		jobs = append(jobs, job)
	case UndoParams:
		job, err := d.enqueueFolder(ctx, folder, KindImportUndo, FuncImportUndo, extra, "",
			engine.UndoParams{DeleteFiles: p.DeleteFiles})
		if err != nil {
			return Handle{}, err
		}
		jobs = append(jobs, job)
	default:
		return Handle{}, &UsageError{Kind: params.Kind(), Reason: fmt.Sprintf("unsupported params %T", params)}
	}

	logger.Info("request dispatched",
		logging.String(logging.FieldKind, string(params.Kind())),
		logging.String(logging.FieldJobID, jobs[len(jobs)-1].ID),
		logging.Int("jobs", len(jobs)),
	)
	return Handle{Kind: params.Kind(), Jobs: jobs}, nil
}

func (d *Dispatcher) resolveFolder(kind Kind, folder session.Folder) (session.Folder, error) {
	folder.Path = strings.TrimSpace(folder.Path)
	folder.Hash = strings.TrimSpace(folder.Hash)
	if folder.Path == "" {
		return folder, &UsageError{Kind: kind, Reason: "folder path is required"}
	}
	if folder.Hash != "" {
		return folder, nil
	}
	hash, err := d.hash(folder.Path)
	if err != nil {
		return folder, services.Wrap(services.ErrValidation, "dispatch", "hash folder", folder.Path, err)
	}
	folder.Hash = hash
	return folder, nil
}

func (d *Dispatcher) previewParams(groupAlbums, autotag *bool) engine.PreviewParams {
	params := engine.PreviewParams{GroupAlbums: d.defaults.GroupAlbums, Autotag: d.defaults.Autotag}
	if groupAlbums != nil {
		params.GroupAlbums = *groupAlbums
	}
	if autotag != nil {
		params.Autotag = *autotag
	}
	return params
}

func (d *Dispatcher) enqueueFolder(ctx context.Context, folder session.Folder, kind Kind, fn string, extra map[string]any, dependsOn string, params any) (*queue.Job, error) {
	job, err := d.queue.Enqueue(ctx, queue.EnqueueRequest{
		Lane:      kind.Lane(),
		Func:      fn,
		Args:      FolderArgs[any]{Folder: folder, Params: params},
		Meta:      queue.Meta{FolderHash: folder.Hash, FolderPath: folder.Path, Kind: string(kind), Extra: extra},
		DependsOn: dependsOn,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return job, nil
}

func (d *Dispatcher) publishPending(ctx context.Context, logger *slog.Logger, folder session.Folder) {
	payload := notifications.FolderStatusPayload(folder.Hash, folder.Path, notifications.StatusPending, nil)
	if err := d.notifier.Publish(ctx, notifications.EventFolderStatus, payload); err != nil {
		logging.WarnWithContext(logger, "folder status publish failed", "notification_failed",
			logging.String("status", notifications.StatusPending.String()),
			logging.Error(err),
		)
	}
}

// EnqueueAnalyze queues an attribute analysis of itemIDs in the import lane.
func (d *Dispatcher) EnqueueAnalyze(ctx context.Context, itemIDs []int64, bpm, key bool, extra map[string]any) (*queue.Job, error) {
	if len(itemIDs) == 0 {
		return nil, &UsageError{Kind: KindAnalyze, Reason: "item_ids must be a non-empty list"}
	}
	job, err := d.queue.Enqueue(ctx, queue.EnqueueRequest{
		Lane: queue.LaneImport,
		Func: FuncAnalyze,
		Args: AnalyzeArgs{ItemIDs: itemIDs, BPM: bpm, Key: key},
		Meta: queue.Meta{Kind: string(KindAnalyze), Extra: extra},
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", KindAnalyze, err)
	}
	logging.WithContext(ctx, d.logger).Info("analysis queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("items", len(itemIDs)),
	)
	return job, nil
}

// EnqueueDeleteItems queues removal of every item imported by taskIDs. It
// goes to the front of the import lane.
func (d *Dispatcher) EnqueueDeleteItems(ctx context.Context, taskIDs []string, deleteFiles bool) (*queue.Job, error) {
	if len(taskIDs) == 0 {
		return nil, &UsageError{Kind: KindDeleteItems, Reason: "task_ids must be a non-empty list"}
	}
	job, err := d.queue.Enqueue(ctx, queue.EnqueueRequest{
		Lane:    queue.LaneImport,
		Func:    FuncDeleteItems,
		Args:    DeleteItemsArgs{TaskIDs: taskIDs, DeleteFiles: deleteFiles},
		Meta:    queue.Meta{Kind: string(KindDeleteItems), Extra: map[string]any{"task_ids": taskIDs}},
		AtFront: true,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", KindDeleteItems, err)
	}
	return job, nil
}

// withdraw removes a job whose partner could not be queued. A job that has
// already started is left to finish.
func (d *Dispatcher) withdraw(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	removed, err := d.queue.Remove(context.WithoutCancel(ctx), job.ID)
	switch {
	case err != nil:
		logging.WarnWithContext(logger, "orphaned job not removed", "dispatch_withdraw_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove it with tagflow queue remove"),
			logging.String(logging.FieldImpact, "a preview runs without its import"),
		)
	case removed == 0:
		logger.Info("orphaned job already started", logging.String(logging.FieldJobID, job.ID))
	}
}
