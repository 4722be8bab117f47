package engine

import (
	"context"
	"fmt"

	"tagflow/internal/fileutil"
	"tagflow/internal/library"
	"tagflow/internal/logging"
	"tagflow/internal/services"
	"tagflow/internal/session"
)

// UndoParams configures an undo.
type UndoParams struct {
	DeleteFiles bool `json:"delete_files"`
}

// UndoSession removes a folder's imported items from the library.
type UndoSession struct {
	engine *Engine
	state  *session.State
	params UndoParams
}

// Undo binds an undo to state.
func (e *Engine) Undo(state *session.State, params UndoParams) *UndoSession {
	return &UndoSession{engine: e, state: state, params: params}
}

// Run implements Session. A state with nothing imported is a usage error.
func (s *UndoSession) Run(ctx context.Context) error {
	if s.engine.library == nil {
		return services.Wrap(services.ErrConfiguration, "engine", "undo", "library is not configured", nil)
	}
	undone := 0
	for _, task := range s.state.Tasks {
		if task.Progress != session.ProgressImported && len(task.ImportedItems) == 0 {
			continue
		}
		items, err := s.engine.library.DeleteByTasks(ctx, task.ID)
		if err != nil {
			task.Error = err.Error()
			return err
		}
		if s.params.DeleteFiles {
			s.engine.removeFiles(ctx, items)
		}
		task.Progress = session.ProgressDeleted
		task.ImportedItems = nil
		task.ImportedPaths = nil
		task.Error = ""
		undone++
	}
	if undone == 0 {
		return services.Wrap(services.ErrValidation, "engine", "undo",
			fmt.Sprintf("nothing imported from %s", s.state.Folder.Path), nil)
	}
	return nil
}

// DeleteItems removes every library item imported by taskIDs, independent of
// any folder session, and returns how many were removed.
func (e *Engine) DeleteItems(ctx context.Context, taskIDs []string, deleteFiles bool) (int, error) {
	if e.library == nil {
		return 0, services.Wrap(services.ErrConfiguration, "engine", "delete items", "library is not configured", nil)
	}
	items, err := e.library.DeleteByTasks(ctx, taskIDs...)
	if err != nil {
		return 0, err
	}
	if deleteFiles {
		e.removeFiles(ctx, items)
	}
	return len(items), nil
}

func (e *Engine) removeItems(ctx context.Context, items []*library.Item, deleteFiles bool) error {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	if err := e.library.DeleteByIDs(ctx, ids...); err != nil {
		return err
	}
	if deleteFiles {
		e.removeFiles(ctx, items)
	}
	return nil
}

func (e *Engine) removeFiles(ctx context.Context, items []*library.Item) {
	for _, item := range items {
		if err := fileutil.RemoveFile(item.Path, e.directory); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, e.logger), "file removal failed", "item_file_remove_failed",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String("path", item.Path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "library row removed, file left on disk"),
			)
		}
	}
}
