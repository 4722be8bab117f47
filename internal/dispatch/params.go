package dispatch

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"tagflow/internal/engine"
	"tagflow/internal/services"
)

// Kwargs are the loosely typed parameters of a request, usually decoded from
// JSON.
type Kwargs map[string]any

// UsageError reports a request the caller has to fix. It matches
// services.ErrValidation.
type UsageError struct {
	Kind    Kind
	Key     string
	Allowed []string
	Reason  string
}

func (e *UsageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid %s request", e.Kind)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Allowed != nil {
		if len(e.Allowed) == 0 {
			b.WriteString(" (no kwargs allowed)")
		} else {
			fmt.Fprintf(&b, " (allowed: %s)", strings.Join(e.Allowed, ", "))
		}
	}
	return b.String()
}

func (e *UsageError) Unwrap() error { return services.ErrValidation }

// Params is the validated parameter set of one kind. The concrete types are
// PreviewParams, AddCandidatesParams, ImportCandidateParams, ImportAutoParams,
// BootlegParams and UndoParams.
type Params interface {
	Kind() Kind
}

// PreviewParams holds preview options. Nil fields fall back to the import
// defaults.
type PreviewParams struct {
	GroupAlbums *bool
	Autotag     *bool
}

// AddCandidatesParams holds the per-task search directives.
type AddCandidatesParams struct {
	Search engine.TaskMapping[engine.Search]
}

// ImportCandidateParams holds the chosen candidates and duplicate handling.
type ImportCandidateParams struct {
	CandidateIDs     engine.TaskMapping[string]
	DuplicateActions engine.TaskMapping[engine.DuplicateAction]
}

// ImportAutoParams holds the options of a preview-then-import chain.
type ImportAutoParams struct {
	GroupAlbums      *bool
	Autotag          *bool
	ImportThreshold  *float64
	DuplicateActions engine.TaskMapping[engine.DuplicateAction]
}

// BootlegParams takes no options.
type BootlegParams struct{}

// UndoParams controls whether copied files are deleted with their items.
type UndoParams struct {
	DeleteFiles bool
}

func (PreviewParams) Kind() Kind         { return KindPreview }
func (AddCandidatesParams) Kind() Kind   { return KindAddCandidates }
func (ImportCandidateParams) Kind() Kind { return KindImportCandidate }
func (ImportAutoParams) Kind() Kind      { return KindImportAuto }
func (BootlegParams) Kind() Kind         { return KindImportBootleg }
func (UndoParams) Kind() Kind            { return KindImportUndo }

var allowedKeys = map[Kind][]string{
	KindPreview:         {"autotag", "group_albums"},
	KindAddCandidates:   {"search"},
	KindImportCandidate: {"candidate_ids", "duplicate_actions"},
	KindImportAuto:      {"autotag", "duplicate_actions", "group_albums", "import_threshold"},
	KindImportBootleg:   {},
	KindImportUndo:      {"delete_files"},
}

// AllowedKeys returns the kwargs accepted by kind.
func AllowedKeys(kind Kind) []string {
	return slices.Clone(allowedKeys[kind])
}

// ParseParams validates kwargs against kind's schema.
func ParseParams(kind Kind, kwargs Kwargs) (Params, error) {
	allowed, ok := allowedKeys[kind]
	if !ok {
		return nil, &UsageError{Kind: kind, Reason: fmt.Sprintf("unsupported kind %q", kind)}
	}
	if err := checkKeys(kind, kwargs, allowed); err != nil {
		return nil, err
	}
	p := kwargParser{kind: kind, kwargs: kwargs}

	var params Params
	switch kind {
	case KindPreview:
		params = PreviewParams{
			GroupAlbums: p.optionalBool("group_albums"),
			Autotag:     p.optionalBool("autotag"),
		}
	case KindAddCandidates:
		if _, present := kwargs["search"]; !present {
			return nil, &UsageError{Kind: kind, Key: "search", Allowed: allowed, Reason: `missing required key "search"`}
		}
		params = AddCandidatesParams{Search: p.search("search")}
	case KindImportCandidate:
		params = ImportCandidateParams{
			CandidateIDs:     p.stringMapping("candidate_ids"),
			DuplicateActions: p.duplicateActions("duplicate_actions"),
		}
	case KindImportAuto:
		params = ImportAutoParams{
			GroupAlbums:      p.optionalBool("group_albums"),
			Autotag:          p.optionalBool("autotag"),
			ImportThreshold:  p.optionalFloat("import_threshold"),
			DuplicateActions: p.duplicateActions("duplicate_actions"),
		}
	case KindImportBootleg:
		params = BootlegParams{}
	case KindImportUndo:
		deleteFiles := true
		if v := p.optionalBool("delete_files"); v != nil {
			deleteFiles = *v
		}
		params = UndoParams{DeleteFiles: deleteFiles}
	}
	if p.err != nil {
		return nil, p.err
	}
	return params, nil
}

func checkKeys(kind Kind, kwargs Kwargs, allowed []string) error {
	var unexpected []string
	for key := range kwargs {
		if !slices.Contains(allowed, key) {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) == 0 {
		return nil
	}
	sort.Strings(unexpected)
	return &UsageError{
		Kind:    kind,
		Key:     unexpected[0],
		Allowed: slices.Clone(allowed),
		Reason:  fmt.Sprintf("unexpected kwargs %s", strings.Join(quoteAll(unexpected), ", ")),
	}
}

func quoteAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%q", v)
	}
	return out
}

// kwargParser records the first type error and turns later reads into
// no-ops.
type kwargParser struct {
	kind   Kind
	kwargs Kwargs
	err    error
}

func (p *kwargParser) fail(key, format string, args ...any) {
	if p.err == nil {
		p.err = &UsageError{Kind: p.kind, Key: key, Reason: fmt.Sprintf("%s: %s", key, fmt.Sprintf(format, args...))}
	}
}

func (p *kwargParser) optionalBool(key string) *bool {
	raw, ok := p.kwargs[key]
	if !ok || raw == nil || p.err != nil {
		return nil
	}
	v, ok := raw.(bool)
	if !ok {
		p.fail(key, "expected a boolean, got %T", raw)
		return nil
	}
	return &v
}

func (p *kwargParser) optionalFloat(key string) *float64 {
	raw, ok := p.kwargs[key]
	if !ok || raw == nil || p.err != nil {
		return nil
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			p.fail(key, "expected a number: %v", err)
			return nil
		}
		v = f
	default:
		p.fail(key, "expected a number, got %T", raw)
		return nil
	}
	if v < 0 || v > 1 {
		p.fail(key, "must be between 0 and 1, got %g", v)
		return nil
	}
	return &v
}

// mapping decodes either a single value, applied to every task, or an object
// keyed by task id.
func mapping[T any](p *kwargParser, key string, single func(any) (T, bool), perTask bool) engine.TaskMapping[T] {
	raw, ok := p.kwargs[key]
	if !ok || raw == nil || p.err != nil {
		return engine.TaskMapping[T]{}
	}
	if v, ok := single(raw); ok {
		return engine.ForAll(v)
	}
	obj, isObj := raw.(map[string]any)
	if !isObj || !perTask {
		p.fail(key, "unsupported value of type %T", raw)
		return engine.TaskMapping[T]{}
	}
	values := make(map[string]T, len(obj))
	for taskID, entry := range obj {
		v, ok := single(entry)
		if !ok {
			p.fail(key, "task %s: unsupported value of type %T", taskID, entry)
			return engine.TaskMapping[T]{}
		}
		values[taskID] = v
	}
	return engine.ForTasks(values)
}

func (p *kwargParser) stringMapping(key string) engine.TaskMapping[string] {
	return mapping(p, key, func(raw any) (string, bool) {
		s, ok := raw.(string)
		return s, ok && strings.TrimSpace(s) != ""
	}, true)
}

func (p *kwargParser) duplicateActions(key string) engine.TaskMapping[engine.DuplicateAction] {
	var parseErr error
	m := mapping(p, key, func(raw any) (engine.DuplicateAction, bool) {
		s, ok := raw.(string)
		if !ok {
			return "", false
		}
		action, err := engine.ParseDuplicateAction(s)
		if err != nil {
			parseErr = err
			return "", false
		}
		return action, true
	}, true)
	if parseErr != nil && p.err != nil {
		p.err = &UsageError{Kind: p.kind, Key: key, Reason: fmt.Sprintf("%s: %v", key, parseErr)}
	}
	return m
}

var searchKeys = []string{"search_album", "search_artist", "search_ids"}

// search accepts "skip", a single directive object, or an object of
// directives keyed by task id.
func (p *kwargParser) search(key string) engine.TaskMapping[engine.Search] {
	return mapping(p, key, func(raw any) (engine.Search, bool) {
		return parseSearch(raw)
	}, true)
}

func parseSearch(raw any) (engine.Search, bool) {
	switch v := raw.(type) {
	case string:
		if strings.EqualFold(strings.TrimSpace(v), "skip") {
			return engine.Search{Skip: true}, true
		}
		return engine.Search{}, false
	case engine.Search:
		return v, true
	case map[string]any:
		if len(v) == 0 {
			return engine.Search{}, false
		}
		var s engine.Search
		for k, field := range v {
			if !slices.Contains(searchKeys, k) {
				return engine.Search{}, false
			}
			switch k {
			case "search_artist":
				str, ok := field.(string)
				if !ok {
					return engine.Search{}, false
				}
				s.Artist = str
			case "search_album":
				str, ok := field.(string)
				if !ok {
					return engine.Search{}, false
				}
				s.Album = str
			case "search_ids":
				ids, ok := stringList(field)
				if !ok {
					return engine.Search{}, false
				}
				s.IDs = ids
			}
		}
		return s, true
	}
	return engine.Search{}, false
}

func stringList(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
