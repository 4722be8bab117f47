package notifications

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FolderStatus is the lifecycle state of a folder as shown to subscribers.
type FolderStatus int

const (
	StatusUnknown FolderStatus = iota
	StatusPending
	StatusPreviewing
	StatusPreviewed
	StatusImporting
	StatusImported
	StatusDeleting
	StatusDeleted
)

var statusNames = map[FolderStatus]string{
	StatusUnknown:    "UNKNOWN",
	StatusPending:    "PENDING",
	StatusPreviewing: "PREVIEWING",
	StatusPreviewed:  "PREVIEWED",
	StatusImporting:  "IMPORTING",
	StatusImported:   "IMPORTED",
	StatusDeleting:   "DELETING",
	StatusDeleted:    "DELETED",
}

func (s FolderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("FolderStatus(%d)", int(s))
}

// ParseFolderStatus accepts the upper- or lower-case status name.
func ParseFolderStatus(value string) (FolderStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for status, name := range statusNames {
		if name == upper {
			return status, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown folder status %q", value)
}

// MarshalJSON encodes the status by name.
func (s FolderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *FolderStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseFolderStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Phase is the pair of statuses emitted around a folder job body.
type Phase struct {
	Before FolderStatus
	After  FolderStatus
}

var (
	PreviewPhase = Phase{Before: StatusPreviewing, After: StatusPreviewed}
	ImportPhase  = Phase{Before: StatusImporting, After: StatusImported}
	DeletePhase  = Phase{Before: StatusDeleting, After: StatusDeleted}
)
