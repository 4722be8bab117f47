package engine

import (
	"fmt"
	"strings"
)

// TaskMapping carries a per-task value: either one value applied to every
// task or an explicit map by task id. A per-task entry wins over All.
type TaskMapping[T any] struct {
	All     *T           `json:"all,omitempty"`
	PerTask map[string]T `json:"per_task,omitempty"`
}

// ForAll applies v to every task.
func ForAll[T any](v T) TaskMapping[T] {
	return TaskMapping[T]{All: &v}
}

// ForTasks maps explicit task ids to values.
func ForTasks[T any](values map[string]T) TaskMapping[T] {
	return TaskMapping[T]{PerTask: values}
}

// For returns the value for taskID.
func (m TaskMapping[T]) For(taskID string) (T, bool) {
	if v, ok := m.PerTask[taskID]; ok {
		return v, true
	}
	if m.All != nil {
		return *m.All, true
	}
	var zero T
	return zero, false
}

// IsZero reports whether the mapping carries no value at all.
func (m TaskMapping[T]) IsZero() bool {
	return m.All == nil && len(m.PerTask) == 0
}

// DuplicateAction says what an import does when the album is already in the
// library.
type DuplicateAction string

const (
	DuplicateSkip   DuplicateAction = "skip"
	DuplicateKeep   DuplicateAction = "keep"
	DuplicateRemove DuplicateAction = "remove"
	DuplicateMerge  DuplicateAction = "merge"
	DuplicateAsk    DuplicateAction = "ask"
)

// ParseDuplicateAction validates a user-supplied action.
func ParseDuplicateAction(value string) (DuplicateAction, error) {
	switch action := DuplicateAction(strings.ToLower(strings.TrimSpace(value))); action {
	case DuplicateSkip, DuplicateKeep, DuplicateRemove, DuplicateMerge, DuplicateAsk:
		return action, nil
	default:
		return "", fmt.Errorf("unknown duplicate action %q", value)
	}
}

func (e *Engine) duplicateAction(m TaskMapping[DuplicateAction], taskID string) DuplicateAction {
	if action, ok := m.For(taskID); ok && action != "" {
		return action
	}
	if action, err := ParseDuplicateAction(e.defaults.DuplicateAction); err == nil {
		return action
	}
	return DuplicateSkip
}
