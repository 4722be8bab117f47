package dispatch

import (
	"fmt"
	"strings"

	"tagflow/internal/notifications"
	"tagflow/internal/queue"
)

// Kind names a request type.
type Kind string

const (
	KindPreview         Kind = "preview"
	KindAddCandidates   Kind = "preview_add_candidates"
	KindImportCandidate Kind = "import_candidate"
	KindImportAuto      Kind = "import_auto"
	KindImportBootleg   Kind = "import_bootleg"
	KindImportUndo      Kind = "import_undo"

	// Internal kinds. They are not accepted by ParseKind and carry no
	// folder status.
	KindAnalyze     Kind = "analyze_attributes"
	KindDeleteItems Kind = "delete_items"

	// Meta kinds tagging the two halves of an auto import.
	KindAutoPreview Kind = "_auto_preview"
	KindAutoImport  Kind = "_auto_import"
)

// FolderKinds lists the kinds a caller may dispatch, in display order.
var FolderKinds = []Kind{
	KindPreview,
	KindAddCandidates,
	KindImportCandidate,
	KindImportAuto,
	KindImportBootleg,
	KindImportUndo,
}

// ParseKind accepts a folder kind in any case.
func ParseKind(value string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, k := range FolderKinds {
		if k == normalized {
			return k, nil
		}
	}
	return "", &UsageError{Kind: Kind(value), Reason: fmt.Sprintf("unsupported kind %q", value)}
}

// Job function names. Handlers register under these.
const (
	FuncPreview         = "preview"
	FuncAddCandidates   = "add_candidates"
	FuncImportCandidate = "import_candidate"
	FuncImportAuto      = "import_auto"
	FuncImportBootleg   = "import_bootleg"
	FuncImportUndo      = "import_undo"
	FuncAnalyze         = "analyze_attributes"
	FuncDeleteItems     = "delete_items"
)

// Lane returns the lane a kind is queued in.
func (k Kind) Lane() queue.Lane {
	switch k {
	case KindPreview, KindAddCandidates, KindAutoPreview:
		return queue.LanePreview
	default:
		return queue.LaneImport
	}
}

// PhaseFor maps a kind to the folder statuses emitted around its job body.
// Internal kinds have no phase.
func PhaseFor(kind Kind) (notifications.Phase, bool) {
	switch kind {
	case KindPreview, KindAddCandidates, KindAutoPreview:
		return notifications.PreviewPhase, true
	case KindImportCandidate, KindImportAuto, KindImportBootleg, KindAutoImport:
		return notifications.ImportPhase, true
	case KindImportUndo:
		return notifications.DeletePhase, true
	}
	return notifications.Phase{}, false
}
