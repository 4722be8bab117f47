package engine

import (
	"context"
	"fmt"
	"strings"

	"tagflow/internal/logging"
	"tagflow/internal/services"
	"tagflow/internal/session"
)

// Search is the per-task directive of an add-candidates request. Skip leaves
// the task untouched.
type Search struct {
	Skip   bool     `json:"skip,omitempty"`
	IDs    []string `json:"search_ids,omitempty"`
	Artist string   `json:"search_artist,omitempty"`
	Album  string   `json:"search_album,omitempty"`
}

// AddCandidatesParams configures an add-candidates run.
type AddCandidatesParams struct {
	Search TaskMapping[Search] `json:"search"`
}

// AddCandidatesSession appends searched candidates to previewed tasks.
type AddCandidatesSession struct {
	engine *Engine
	state  *session.State
	params AddCandidatesParams
}

// AddCandidates binds a candidate search to state.
func (e *Engine) AddCandidates(state *session.State, params AddCandidatesParams) *AddCandidatesSession {
	return &AddCandidatesSession{engine: e, state: state, params: params}
}

// Run implements Session.
func (s *AddCandidatesSession) Run(ctx context.Context) error {
	if len(s.state.Tasks) == 0 {
		return services.Wrap(services.ErrValidation, "engine", "add candidates", "", ErrNoTasks)
	}
	logger := logging.WithContext(ctx, s.engine.logger)
	for _, task := range s.state.Tasks {
		search, ok := s.params.Search.For(task.ID)
		if !ok || search.Skip {
			continue
		}
		query := Query{
			TaskID: task.ID,
			IDs:    search.IDs,
			Artist: strings.TrimSpace(search.Artist),
			Album:  strings.TrimSpace(search.Album),
			Tracks: task.Tracks,
		}
		found := s.engine.lookup(ctx, query)
		if len(found) == 0 && (query.Artist != "" || query.Album != "") {
			found = []session.Candidate{{
				ID:       fmt.Sprintf("search-%d", len(task.Candidates)),
				Source:   "search",
				Artist:   query.Artist,
				Album:    query.Album,
				Distance: candidateDistance(task.Tracks, query.Artist, query.Album),
				Tracks:   append([]session.Track(nil), task.Tracks...),
			}}
		}
		if len(found) == 0 {
			logging.WarnWithContext(logger, "search produced no candidates", "candidate_search_empty",
				logging.String("task_id", task.ID),
				logging.Any("search_ids", search.IDs),
				logging.String(logging.FieldErrorHint, "configure a candidate source or search by artist and album"),
			)
			continue
		}
		task.Candidates = appendCandidates(task.Candidates, found)
	}
	return nil
}
