package engine

import (
	"context"
	"fmt"
	"strings"

	"tagflow/internal/logging"
	"tagflow/internal/services"
	"tagflow/internal/session"
)

// PreviewParams configures a preview.
type PreviewParams struct {
	GroupAlbums bool `json:"group_albums"`
	Autotag     bool `json:"autotag"`
}

// PreviewSession discovers the folder's tasks and their candidates.
type PreviewSession struct {
	engine *Engine
	state  *session.State
	params PreviewParams
}

// Preview binds a preview to state. Any tasks already in state are replaced.
func (e *Engine) Preview(state *session.State, params PreviewParams) *PreviewSession {
	return &PreviewSession{engine: e, state: state, params: params}
}

// Run implements Session.
func (s *PreviewSession) Run(ctx context.Context) error {
	tasks, err := s.engine.discover(ctx, s.state.Folder.Path, s.params.GroupAlbums)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return services.Wrap(services.ErrValidation, "engine", "preview",
			fmt.Sprintf("no audio files in %s", s.state.Folder.Path), nil)
	}
	for _, task := range tasks {
		asis := asisCandidate(task.Tracks)
		task.Candidates = []session.Candidate{asis}
		if s.params.Autotag {
			found := s.engine.lookup(ctx, Query{TaskID: task.ID, Artist: asis.Artist, Album: asis.Album, Tracks: task.Tracks})
			task.Candidates = appendCandidates(task.Candidates, found)
		}
		task.Progress = session.ProgressPreviewed
	}
	s.state.Tasks = tasks
	return nil
}

// lookup asks every source for candidates. Source failures are logged and
// skipped.
func (e *Engine) lookup(ctx context.Context, query Query) []session.Candidate {
	var out []session.Candidate
	for _, source := range e.sources {
		found, err := source.Candidates(ctx, query)
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, e.logger), "candidate lookup failed", "candidate_lookup_failed",
				logging.String("source", source.Name()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "task keeps its other candidates"),
			)
			continue
		}
		for _, cand := range found {
			cand.Source = source.Name()
			if !strings.HasPrefix(cand.ID, source.Name()+":") {
				cand.ID = source.Name() + ":" + cand.ID
			}
			if cand.Distance < 0 || cand.Distance > 1 {
				cand.Distance = candidateDistance(query.Tracks, cand.Artist, cand.Album)
			}
			out = append(out, cand)
		}
	}
	return out
}

// appendCandidates adds found to existing, replacing entries with the same id.
func appendCandidates(existing, found []session.Candidate) []session.Candidate {
	for _, cand := range found {
		replaced := false
		for i := range existing {
			if existing[i].ID == cand.ID {
				existing[i] = cand
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, cand)
		}
	}
	return existing
}
