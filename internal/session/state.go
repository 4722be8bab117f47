package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Progress tracks where a single task stands.
type Progress string

const (
	ProgressPending   Progress = "pending"
	ProgressPreviewed Progress = "previewed"
	ProgressImported  Progress = "imported"
	ProgressSkipped   Progress = "skipped"
	ProgressDeleted   Progress = "deleted"
	ProgressFailed    Progress = "failed"
)

// Track describes one audio file as read from its tags.
type Track struct {
	Path   string `json:"path"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Number int    `json:"number,omitempty"`
}

// Candidate is a proposed tagging for a task. Distance is in [0,1]; lower is
// better.
type Candidate struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	Distance float64 `json:"distance"`
	Tracks   []Track `json:"tracks,omitempty"`
}

// Task is one importable unit discovered in a folder, usually one album.
type Task struct {
	ID              string      `json:"id"`
	Tracks          []Track     `json:"tracks"`
	Candidates      []Candidate `json:"candidates,omitempty"`
	ChosenCandidate string      `json:"chosen_candidate,omitempty"`
	DuplicateAction string      `json:"duplicate_action,omitempty"`
	Progress        Progress    `json:"progress"`
	ImportedItems   []int64     `json:"imported_items,omitempty"`
	ImportedPaths   []string    `json:"imported_paths,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// Candidate returns the candidate with id, if present.
func (t *Task) Candidate(id string) (Candidate, bool) {
	for _, c := range t.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// Best returns the candidate with the lowest distance.
func (t *Task) Best() (Candidate, bool) {
	if len(t.Candidates) == 0 {
		return Candidate{}, false
	}
	best := t.Candidates[0]
	for _, c := range t.Candidates[1:] {
		if c.Distance < best.Distance {
			best = c
		}
	}
	return best, true
}

// State is the live, in-memory session for one folder. It is owned by the job
// processing it and never shared.
type State struct {
	ID        string
	Folder    Folder
	Revision  int
	Tasks     []*Task
	CreatedAt time.Time

	// stored is set once the state has a row of its own. Until then its
	// Revision is a placeholder and committing must allocate the next one.
	stored bool
}

// NewState constructs an empty session for folder.
func NewState(folder Folder) *State {
	return &State{
		ID:        uuid.NewString(),
		Folder:    folder,
		CreatedAt: time.Now().UTC(),
	}
}

// Stored reports whether the state was loaded from or committed to the store.
func (s *State) Stored() bool { return s.stored }

// Task returns the task with id, if present.
func (s *State) Task(id string) (*Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// ToRecord serializes the live state for storage.
func (s *State) ToRecord() (*Record, error) {
	tasks := s.Tasks
	if tasks == nil {
		tasks = []*Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("serialize tasks: %w", err)
	}
	return &Record{
		ID:             s.ID,
		FolderHash:     s.Folder.Hash,
		FolderPath:     s.Folder.Path,
		FolderRevision: s.Revision,
		Tasks:          data,
		CreatedAt:      s.CreatedAt,
	}, nil
}

// FromRecord rebuilds a live state from a persisted record.
func FromRecord(rec *Record) (*State, error) {
	state := &State{
		ID:        rec.ID,
		Folder:    Folder{Hash: rec.FolderHash, Path: rec.FolderPath},
		Revision:  rec.FolderRevision,
		CreatedAt: rec.CreatedAt,
		stored:    true,
	}
	if len(rec.Tasks) > 0 {
		if err := json.Unmarshal(rec.Tasks, &state.Tasks); err != nil {
			return nil, fmt.Errorf("deserialize tasks for session %s: %w", rec.ID, err)
		}
	}
	return state, nil
}
