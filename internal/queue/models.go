package queue

import (
	"encoding/json"
	"time"
)

// Lane names an independent queue of work processed by its own worker.
type Lane string

const (
	LanePreview Lane = "preview"
	LaneImport  Lane = "import"
)

// Lanes lists every lane in worker start order.
var Lanes = []Lane{LanePreview, LaneImport}

// Valid reports whether the lane is one the workers serve.
func (l Lane) Valid() bool {
	return l == LanePreview || l == LaneImport
}

// Status represents the lifecycle of a queued job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusDeferred Status = "deferred"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusDeferred,
	StatusStarted,
	StatusFinished,
	StatusFailed,
	StatusCanceled,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus resolves a status label; unknown labels report false.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition happens without a retry.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusCanceled
}

// Meta tags a job so observers can correlate asynchronous completion with the
// request that produced it. Extra holds caller-supplied reference fields; it is
// flattened next to the fixed keys when serialized.
type Meta struct {
	FolderHash string
	FolderPath string
	Kind       string
	Extra      map[string]any
}

// MarshalJSON flattens Extra beside folder_hash, folder_path, and kind. The
// fixed keys win over colliding extra keys.
func (m Meta) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["folder_hash"] = m.FolderHash
	out["folder_path"] = m.FolderPath
	out["kind"] = m.Kind
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (m *Meta) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Meta{}
	if v, ok := raw["folder_hash"].(string); ok {
		m.FolderHash = v
	}
	if v, ok := raw["folder_path"].(string); ok {
		m.FolderPath = v
	}
	if v, ok := raw["kind"].(string); ok {
		m.Kind = v
	}
	delete(raw, "folder_hash")
	delete(raw, "folder_path")
	delete(raw, "kind")
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// Job is a unit of queued work.
type Job struct {
	ID            string          `json:"id"`
	Lane          Lane            `json:"lane"`
	Func          string          `json:"func"`
	Args          json.RawMessage `json:"args,omitempty"`
	Meta          Meta            `json:"meta"`
	Status        Status          `json:"status"`
	DependsOn     string          `json:"depends_on,omitempty"`
	Position      int64           `json:"position"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Attempts      int             `json:"attempts"`
	HookFired     bool            `json:"hook_fired"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	LastHeartbeat *time.Time      `json:"last_heartbeat,omitempty"`
}

// EnqueueRequest describes a job submission.
type EnqueueRequest struct {
	Lane      Lane
	Func      string
	Args      any
	Meta      Meta
	DependsOn string
	AtFront   bool
}

// Completion records how a job body ended.
type Completion struct {
	Result       any
	Failed       bool
	ErrorMessage string
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Lanes    []Lane
	Statuses []Status
	Limit    int
}
