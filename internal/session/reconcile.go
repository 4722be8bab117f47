package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tagflow/internal/logging"
	"tagflow/internal/services"
)

// ErrNoSession marks a load that found no prior preview for the folder.
var ErrNoSession = errors.New("no session for folder")

// Mode selects how RunAndCommit obtains its state.
type Mode int

const (
	// Existing requires a stored session.
	Existing Mode = iota
	// CreateIfMissing resumes a stored session or starts an empty one.
	CreateIfMissing
	// Fresh discards stored sessions and commits a new revision.
	Fresh
)

// Reconciler moves session state between the store and the job driving it.
type Reconciler struct {
	store  *Store
	logger *slog.Logger
	hash   func(path string) (string, error)
}

// NewReconciler builds a reconciler over store.
func NewReconciler(store *Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logging.NewComponentLogger(logger, "session"),
		hash:   HashFolder,
	}
}

// Store exposes the backing store.
func (r *Reconciler) Store() *Store { return r.store }

// checkDrift warns when the folder on disk no longer matches the hash the job
// was submitted with. The supplied hash stays authoritative.
func (r *Reconciler) checkDrift(ctx context.Context, folder Folder) {
	logger := logging.WithContext(ctx, r.logger).With(
		logging.String(logging.FieldFolderHash, folder.Hash),
		logging.String(logging.FieldFolderPath, folder.Path),
	)
	current, err := r.hash(folder.Path)
	if err != nil {
		logging.WarnWithContext(logger, "folder hash unavailable", "folder_hash_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the folder still exists and is readable"),
			logging.String(logging.FieldImpact, "continuing with the submitted hash"),
		)
		return
	}
	if current != folder.Hash {
		logging.WarnWithContext(logger, "folder changed since submission", "folder_hash_drift",
			logging.String("current_hash", current),
			logging.String(logging.FieldErrorHint, "re-run preview to pick up the new contents"),
			logging.String(logging.FieldImpact, "continuing with the submitted hash"),
		)
	}
}

// LoadOrCreate resolves the live state for folder. Stored sessions are
// detached from scope before they are returned so the later merge is not
// rejected as an identity conflict. With create false a missing session is a
// validation error wrapping ErrNoSession.
func (r *Reconciler) LoadOrCreate(ctx context.Context, scope *Scope, folder Folder, create bool) (*State, error) {
	r.checkDrift(ctx, folder)

	rec, err := scope.Load(ctx, folder.Hash, folder.Path)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		scope.ExpungeAll()
		return FromRecord(rec)
	}
	if !create {
		return nil, services.Wrap(services.ErrValidation, "session", "load",
			fmt.Sprintf("folder %s has no preview (hash %s)", folder.Path, folder.Hash), ErrNoSession)
	}
	return NewState(folder), nil
}

// Fresh starts a new state for folder, ignoring anything stored.
func (r *Reconciler) Fresh(ctx context.Context, folder Folder) *State {
	r.checkDrift(ctx, folder)
	return NewState(folder)
}

// Commit writes state back in place, keeping its revision. A state that has
// never been stored is committed as the next revision of its folder hash
// instead, so it cannot collide with a revision recorded under another path.
func (r *Reconciler) Commit(ctx context.Context, scope *Scope, state *State) error {
	if !state.stored {
		return r.CommitFresh(ctx, scope, state)
	}
	rec, err := state.ToRecord()
	if err != nil {
		return err
	}
	if err := scope.MergeAndCommit(ctx, rec); err != nil {
		return err
	}
	state.CreatedAt = rec.CreatedAt
	return nil
}

// CommitFresh stores state as the next revision of its folder hash.
func (r *Reconciler) CommitFresh(ctx context.Context, scope *Scope, state *State) error {
	scope.ExpungeAll()
	rec, err := state.ToRecord()
	if err != nil {
		return err
	}
	if err := scope.CommitNewRevision(ctx, rec); err != nil {
		return err
	}
	state.Revision = rec.FolderRevision
	state.CreatedAt = rec.CreatedAt
	state.stored = true
	logging.WithContext(ctx, r.logger).Debug("session revision committed",
		logging.String(logging.FieldFolderHash, rec.FolderHash),
		logging.Int("revision", rec.FolderRevision),
	)
	return nil
}

// RunAndCommit obtains state for folder according to mode, runs fn on it, and
// writes the result back whether or not fn succeeded. A load failure returns
// before fn runs and nothing is written.
func (r *Reconciler) RunAndCommit(ctx context.Context, folder Folder, mode Mode, fn func(context.Context, *State) error) (state *State, err error) {
	scope := r.store.NewScope()
	switch mode {
	case Fresh:
		state = r.Fresh(ctx, folder)
	case CreateIfMissing:
		state, err = r.LoadOrCreate(ctx, scope, folder, true)
	default:
		state, err = r.LoadOrCreate(ctx, scope, folder, false)
	}
	if err != nil {
		return nil, err
	}

	defer func() {
		commitErr := r.Commit(context.WithoutCancel(ctx), scope, state)
		if commitErr != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "session commit failed", "session_commit_failed",
				logging.String(logging.FieldFolderHash, folder.Hash),
				logging.Error(commitErr),
			)
		}
		err = errors.Join(err, commitErr)
	}()

	err = fn(ctx, state)
	return state, err
}
