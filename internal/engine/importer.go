package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"tagflow/internal/fileutil"
	"tagflow/internal/library"
	"tagflow/internal/logging"
	"tagflow/internal/services"
	"tagflow/internal/session"
	"tagflow/internal/textutil"
)

// ImportParams configures an import of chosen candidates. Tasks without a
// candidate id take their best candidate.
type ImportParams struct {
	CandidateIDs     TaskMapping[string]          `json:"candidate_ids"`
	DuplicateActions TaskMapping[DuplicateAction] `json:"duplicate_actions"`
}

// ImportCandidateSession imports each task with its chosen candidate.
type ImportCandidateSession struct {
	engine *Engine
	state  *session.State
	params ImportParams
}

// ImportCandidate binds a candidate import to state.
func (e *Engine) ImportCandidate(state *session.State, params ImportParams) *ImportCandidateSession {
	return &ImportCandidateSession{engine: e, state: state, params: params}
}

// Run implements Session.
func (s *ImportCandidateSession) Run(ctx context.Context) error {
	if len(s.state.Tasks) == 0 {
		return services.Wrap(services.ErrValidation, "engine", "import", "", ErrNoTasks)
	}
	var errs []error
	for _, task := range s.state.Tasks {
		if task.Progress == session.ProgressImported {
			continue
		}
		var (
			cand session.Candidate
			ok   bool
		)
		if id, chosen := s.params.CandidateIDs.For(task.ID); chosen {
			cand, ok = task.Candidate(id)
			if !ok {
				task.Progress = session.ProgressFailed
				task.Error = fmt.Sprintf("unknown candidate %q", id)
				errs = append(errs, services.Wrap(services.ErrValidation, "engine", "import", task.Error, nil))
				continue
			}
		} else if cand, ok = task.Best(); !ok {
			task.Progress = session.ProgressSkipped
			task.Error = "no candidates"
			continue
		}
		if err := s.engine.importTask(ctx, task, cand, s.engine.duplicateAction(s.params.DuplicateActions, task.ID)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AutoImportParams configures an unattended import.
type AutoImportParams struct {
	Threshold        float64                      `json:"import_threshold"`
	DuplicateActions TaskMapping[DuplicateAction] `json:"duplicate_actions"`
}

// AutoImportSession imports tasks whose best candidate is close enough.
type AutoImportSession struct {
	engine *Engine
	state  *session.State
	params AutoImportParams
}

// AutoImport binds an automatic import to state.
func (e *Engine) AutoImport(state *session.State, params AutoImportParams) *AutoImportSession {
	return &AutoImportSession{engine: e, state: state, params: params}
}

// Run implements Session. Tasks above the threshold are marked skipped.
func (s *AutoImportSession) Run(ctx context.Context) error {
	if len(s.state.Tasks) == 0 {
		return services.Wrap(services.ErrValidation, "engine", "auto import", "", ErrNoTasks)
	}
	var errs []error
	for _, task := range s.state.Tasks {
		if task.Progress == session.ProgressImported {
			continue
		}
		best, ok := task.Best()
		if !ok || best.Distance > s.params.Threshold {
			task.Progress = session.ProgressSkipped
			if ok {
				task.Error = fmt.Sprintf("best candidate distance %.3f above threshold %.3f", best.Distance, s.params.Threshold)
			} else {
				task.Error = "no candidates"
			}
			continue
		}
		if err := s.engine.importTask(ctx, task, best, s.engine.duplicateAction(s.params.DuplicateActions, task.ID)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BootlegSession imports a folder as-is, grouped by album, without needing a
// prior preview.
type BootlegSession struct {
	engine *Engine
	state  *session.State
}

// Bootleg binds an as-is import to state.
func (e *Engine) Bootleg(state *session.State) *BootlegSession {
	return &BootlegSession{engine: e, state: state}
}

// Run implements Session.
func (s *BootlegSession) Run(ctx context.Context) error {
	if len(s.state.Tasks) == 0 {
		tasks, err := s.engine.discover(ctx, s.state.Folder.Path, true)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return services.Wrap(services.ErrValidation, "engine", "bootleg",
				fmt.Sprintf("no audio files in %s", s.state.Folder.Path), nil)
		}
		s.state.Tasks = tasks
	}
	action := s.engine.duplicateAction(TaskMapping[DuplicateAction]{}, "")
	var errs []error
	for _, task := range s.state.Tasks {
		if task.Progress == session.ProgressImported {
			continue
		}
		cand, ok := task.Candidate(AsisCandidateID)
		if !ok {
			cand = asisCandidate(task.Tracks)
			task.Candidates = append(task.Candidates, cand)
		}
		if err := s.engine.importTask(ctx, task, cand, action); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// importTask copies the task's files into the library directory under the
// candidate's artist and album and adds them to the library.
func (e *Engine) importTask(ctx context.Context, task *session.Task, cand session.Candidate, action DuplicateAction) error {
	logger := logging.WithContext(ctx, e.logger).With(logging.String("task_id", task.ID))
	task.ChosenCandidate = cand.ID
	task.DuplicateAction = string(action)
	task.Error = ""

	if e.library == nil || e.directory == "" {
		task.Progress = session.ProgressFailed
		task.Error = "library is not configured"
		return services.Wrap(services.ErrConfiguration, "engine", "import", task.Error, nil)
	}

	existing, err := e.library.ItemsByAlbum(ctx, cand.Artist, cand.Album)
	if err != nil {
		task.Progress = session.ProgressFailed
		task.Error = err.Error()
		return err
	}
	existing = withoutTask(existing, task.ID)

	mergePaths := map[string]struct{}{}
	if len(existing) > 0 {
		switch action {
		case DuplicateSkip, DuplicateAsk:
			task.Progress = session.ProgressSkipped
			task.Error = fmt.Sprintf("%s - %s already in library", cand.Artist, cand.Album)
			logger.Info("duplicate album skipped",
				logging.String(logging.FieldEventType, "import_duplicate_skipped"),
				logging.String("duplicate_action", string(action)),
				logging.Int("existing_items", len(existing)),
			)
			return nil
		case DuplicateRemove:
			if err := e.removeItems(ctx, existing, true); err != nil {
				task.Progress = session.ProgressFailed
				task.Error = err.Error()
				return err
			}
		case DuplicateMerge:
			for _, item := range existing {
				mergePaths[item.Path] = struct{}{}
			}
		}
	}

	destDir := filepath.Join(e.directory,
		textutil.SanitizePathSegment(cand.Artist, "Unknown Artist"),
		textutil.SanitizePathSegment(cand.Album, "Unknown Album"))

	for i, track := range task.Tracks {
		if err := ctx.Err(); err != nil {
			task.Progress = session.ProgressFailed
			task.Error = err.Error()
			return err
		}
		dest := filepath.Join(destDir, textutil.SanitizePathSegment(filepath.Base(track.Path), fmt.Sprintf("track-%02d", i+1)))
		if _, dup := mergePaths[dest]; dup {
			continue
		}
		dest = fileutil.UniquePath(dest)
		if err := fileutil.CopyFileVerified(track.Path, dest); err != nil {
			task.Progress = session.ProgressFailed
			task.Error = fmt.Sprintf("copy %s: %v", track.Path, err)
			return services.Wrap(services.ErrTransient, "engine", "import", task.Error, err)
		}

		title := track.Title
		if len(cand.Tracks) == len(task.Tracks) && strings.TrimSpace(cand.Tracks[i].Title) != "" {
			title = cand.Tracks[i].Title
		}
		if strings.TrimSpace(title) == "" {
			title = strings.TrimSuffix(filepath.Base(track.Path), filepath.Ext(track.Path))
		}
		item := &library.Item{
			Path:   dest,
			Title:  title,
			Artist: cand.Artist,
			Album:  cand.Album,
			Track:  track.Number,
			TaskID: task.ID,
		}
		if err := e.library.Add(ctx, item); err != nil {
			task.Progress = session.ProgressFailed
			task.Error = err.Error()
			return err
		}
		task.ImportedItems = append(task.ImportedItems, item.ID)
		task.ImportedPaths = append(task.ImportedPaths, dest)
	}

	task.Progress = session.ProgressImported
	logger.Info("task imported",
		logging.String(logging.FieldEventType, "task_imported"),
		logging.String("candidate", cand.ID),
		logging.Int("items", len(task.ImportedItems)),
	)
	return nil
}

func withoutTask(items []*library.Item, taskID string) []*library.Item {
	out := items[:0]
	for _, item := range items {
		if item.TaskID != taskID {
			out = append(out, item)
		}
	}
	return out
}
