package api

import (
	"encoding/json"
	"time"

	"tagflow/internal/queue"
	"tagflow/internal/session"
)

// EnqueueRequest is the body of POST /api/enqueue.
type EnqueueRequest struct {
	Hash      string         `json:"hash"`
	Path      string         `json:"path"`
	Kind      string         `json:"kind"`
	ExtraMeta map[string]any `json:"extra_meta"`
	Kwargs    map[string]any `json:"kwargs"`
}

// AnalyzeRequest is the body of POST /api/analyze. Both analyses default on.
type AnalyzeRequest struct {
	ItemIDs    []int64        `json:"item_ids"`
	AnalyzeBPM *bool          `json:"analyze_bpm"`
	AnalyzeKey *bool          `json:"analyze_key"`
	ExtraMeta  map[string]any `json:"extra_meta"`
}

// DeleteItemsRequest is the body of POST /api/items/delete.
type DeleteItemsRequest struct {
	TaskIDs     []string `json:"task_ids"`
	DeleteFiles *bool    `json:"delete_files"`
}

// QueuedResponse acknowledges an accepted submission.
type QueuedResponse struct {
	JobID  string   `json:"job_id"`
	JobIDs []string `json:"job_ids,omitempty"`
	Kind   string   `json:"kind,omitempty"`
	Status string   `json:"status"`
}

// JobListResponse wraps GET /api/jobs.
type JobListResponse struct {
	Jobs []*queue.Job `json:"jobs"`
}

// Revision is the transport form of a stored session record.
type Revision struct {
	ID             string          `json:"id"`
	FolderHash     string          `json:"folder_hash"`
	FolderPath     string          `json:"folder_path"`
	FolderRevision int             `json:"folder_revision"`
	Tasks          json.RawMessage `json:"tasks"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// RevisionListResponse wraps GET /api/sessions/:hash.
type RevisionListResponse struct {
	Hash      string     `json:"hash"`
	Revisions []Revision `json:"revisions"`
}

// Metadata is the embedded tag view of one audio file.
type Metadata struct {
	Tags       map[string]string `json:"tags"`
	Duration   float64           `json:"duration,omitempty"`
	SampleRate int               `json:"sample_rate,omitempty"`
}

// ItemMetadataResponse wraps GET /api/items/:id/metadata.
type ItemMetadataResponse struct {
	ItemID int64  `json:"item_id"`
	Path   string `json:"path"`
	Metadata
}

// FromRecord converts a stored session record for transport.
func FromRecord(rec *session.Record) Revision {
	tasks := json.RawMessage(rec.Tasks)
	if len(tasks) == 0 {
		tasks = json.RawMessage("[]")
	}
	return Revision{
		ID:             rec.ID,
		FolderHash:     rec.FolderHash,
		FolderPath:     rec.FolderPath,
		FolderRevision: rec.FolderRevision,
		Tasks:          tasks,
		CreatedAt:      formatTime(rec.CreatedAt),
		UpdatedAt:      formatTime(rec.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
