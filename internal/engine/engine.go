package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"tagflow/internal/config"
	"tagflow/internal/library"
	"tagflow/internal/logging"
	"tagflow/internal/media/ffprobe"
	"tagflow/internal/session"
)

// ErrNoTasks is returned when an operation needs a previewed session but the
// state holds no tasks.
var ErrNoTasks = errors.New("session has no tasks")

// Session is one engine operation bound to a live state.
type Session interface {
	Run(ctx context.Context) error
}

// Prober reads tags from one audio file.
type Prober func(ctx context.Context, path string) (ffprobe.Result, error)

// Query describes what a CandidateSource should look up.
type Query struct {
	TaskID string
	IDs    []string
	Artist string
	Album  string
	Tracks []session.Track
}

// CandidateSource supplies tagging candidates beyond the files' own tags.
type CandidateSource interface {
	Name() string
	Candidates(ctx context.Context, query Query) ([]session.Candidate, error)
}

// Engine runs tagging sessions against one library.
type Engine struct {
	library   *library.Library
	directory string
	probe     Prober
	sources   []CandidateSource
	defaults  config.Import
	logger    *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithProber replaces the ffprobe-backed tag reader.
func WithProber(p Prober) Option {
	return func(e *Engine) {
		if p != nil {
			e.probe = p
		}
	}
}

// WithSources registers candidate sources consulted by autotag and searches.
func WithSources(sources ...CandidateSource) Option {
	return func(e *Engine) { e.sources = append(e.sources, sources...) }
}

// WithDefaults sets the import defaults used when a job leaves a value unset.
func WithDefaults(defaults config.Import) Option {
	return func(e *Engine) { e.defaults = defaults }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "engine") }
}

// WithFFprobe reads tags with the named ffprobe binary.
func WithFFprobe(binary string) Option {
	return WithProber(func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, binary, path)
	})
}

// New builds an engine importing into directory and recording items in lib.
func New(lib *library.Library, directory string, opts ...Option) *Engine {
	e := &Engine{
		library:   lib,
		directory: strings.TrimSpace(directory),
		defaults: config.Import{
			DuplicateAction: string(DuplicateSkip),
		},
		logger: logging.NewComponentLogger(nil, "engine"),
	}
	WithFFprobe("")(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Defaults returns the import defaults in effect.
func (e *Engine) Defaults() config.Import { return e.defaults }

// Library returns the library the engine writes to.
func (e *Engine) Library() *library.Library { return e.library }
