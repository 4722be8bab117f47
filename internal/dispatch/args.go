package dispatch

import (
	"tagflow/internal/session"
)

// FolderArgs is the stored argument envelope of a folder job.
type FolderArgs[P any] struct {
	Folder session.Folder `json:"folder"`
	Params P              `json:"params"`
}

// AnalyzeArgs is the stored argument set of an attribute analysis job.
type AnalyzeArgs struct {
	ItemIDs []int64 `json:"item_ids"`
	BPM     bool    `json:"analyze_bpm"`
	Key     bool    `json:"analyze_key"`
}

// DeleteItemsArgs is the stored argument set of a bulk item deletion.
type DeleteItemsArgs struct {
	TaskIDs     []string `json:"task_ids"`
	DeleteFiles bool     `json:"delete_files"`
}
