package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"tagflow/internal/config"
	"tagflow/internal/library"
	"tagflow/internal/logging"
)

// ErrItemNotFound is the per-item error text for ids missing from the
// library.
const ErrItemNotFound = "Item not found in library"

// Options selects which attributes to analyze.
type Options struct {
	BPM bool `json:"analyze_bpm"`
	Key bool `json:"analyze_key"`
}

// AnalyzedItem is a report entry for an item that was processed. Nil fields
// could not be determined.
type AnalyzedItem struct {
	ItemID     int64   `json:"item_id"`
	Path       string  `json:"path"`
	BPM        *int    `json:"bpm"`
	InitialKey *string `json:"initial_key"`
}

// ItemError is a report entry for an item that could not be processed.
type ItemError struct {
	ItemID int64  `json:"item_id"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error"`
}

// SkippedItem is a report entry for an item that was deliberately left alone.
type SkippedItem struct {
	ItemID int64  `json:"item_id"`
	Reason string `json:"reason"`
}

// Report collects one entry per requested item id.
type Report struct {
	Analyzed []AnalyzedItem `json:"analyzed"`
	Errors   []ItemError    `json:"errors"`
	Skipped  []SkippedItem  `json:"skipped"`
}

func newReport() *Report {
	return &Report{Analyzed: []AnalyzedItem{}, Errors: []ItemError{}, Skipped: []SkippedItem{}}
}

// JSON encodes the report.
func (r *Report) JSON() (json.RawMessage, error) {
	return json.Marshal(r)
}

// Opener opens a library handle for a batch.
type Opener func(ctx context.Context) (*library.Library, error)

// Analyzer runs tempo and key analysis over library items.
type Analyzer struct {
	decoder  Decoder
	detector *OnsetDetector
	keys     KeyDetector
	tags     library.TagWriter
	open     Opener
	logger   *slog.Logger
}

// AnalyzerOption customizes an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithDecoder replaces the ffmpeg decoder.
func WithDecoder(d Decoder) AnalyzerOption { return func(a *Analyzer) { a.decoder = d } }

// WithKeyDetector replaces keyfinder-cli.
func WithKeyDetector(k KeyDetector) AnalyzerOption { return func(a *Analyzer) { a.keys = k } }

// WithTagWriter replaces the file tag writer.
func WithTagWriter(w library.TagWriter) AnalyzerOption { return func(a *Analyzer) { a.tags = w } }

// WithOpener replaces how the analyzer opens its own library handle.
func WithOpener(o Opener) AnalyzerOption { return func(a *Analyzer) { a.open = o } }

// New builds an analyzer from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...AnalyzerOption) *Analyzer {
	logger = logging.NewComponentLogger(logger, "analysis")
	a := &Analyzer{
		decoder:  FFmpegDecoder{FFmpeg: cfg.Analysis.FFmpegBinary, FFprobe: cfg.Analysis.FFprobeBinary},
		detector: NewOnsetDetector(),
		keys:     KeyfinderCLI{Binary: cfg.Analysis.KeyfinderBinary, Timeout: cfg.KeyTimeout(), Logger: logger},
		tags:     library.NopTagWriter{},
		open: func(context.Context) (*library.Library, error) {
			return library.Open(cfg)
		},
		logger: logger,
	}
	if cfg.Analysis.WriteTags {
		a.tags = library.FFmpegTagWriter{Binary: cfg.Analysis.FFmpegBinary}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type callOptions struct {
	library  *library.Library
	closeLib *bool
}

// CallOption adjusts a single Analyze call.
type CallOption func(*callOptions)

// WithLibrary analyzes against a caller-owned handle, which is not closed
// unless WithCloseLibrary(true) is also given.
func WithLibrary(lib *library.Library) CallOption {
	return func(o *callOptions) { o.library = lib }
}

// WithCloseLibrary overrides whether the handle is closed when the batch ends.
func WithCloseLibrary(closeLib bool) CallOption {
	return func(o *callOptions) { o.closeLib = &closeLib }
}

// Analyze processes ids in order. Per-item problems land in the report; the
// returned error is reserved for failing to obtain a library handle.
func (a *Analyzer) Analyze(ctx context.Context, ids []int64, opts Options, callOpts ...CallOption) (*Report, error) {
	var co callOptions
	for _, opt := range callOpts {
		opt(&co)
	}

	lib := co.library
	shouldClose := false
	if lib == nil {
		opened, err := a.open(ctx)
		if err != nil {
			return nil, fmt.Errorf("open library: %w", err)
		}
		lib = opened
		shouldClose = true
	}
	if co.closeLib != nil {
		shouldClose = *co.closeLib
	}
	if shouldClose {
		defer a.release(ctx, lib)
	}

	report := newReport()
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			report.Skipped = append(report.Skipped, SkippedItem{ItemID: id, Reason: "duplicate item id"})
			continue
		}
		seen[id] = struct{}{}
		if !opts.BPM && !opts.Key {
			report.Skipped = append(report.Skipped, SkippedItem{ItemID: id, Reason: "no analysis requested"})
			continue
		}
		a.analyzeItem(ctx, lib, id, opts, report)
	}
	return report, nil
}

func (a *Analyzer) analyzeItem(ctx context.Context, lib *library.Library, id int64, opts Options, report *Report) {
	logger := logging.WithContext(ctx, a.logger).With(logging.Int64(logging.FieldItemID, id))

	item, err := lib.GetItem(ctx, id)
	if err != nil {
		report.Errors = append(report.Errors, ItemError{ItemID: id, Error: err.Error()})
		return
	}
	if item == nil {
		report.Errors = append(report.Errors, ItemError{ItemID: id, Error: ErrItemNotFound})
		return
	}
	if _, err := os.Stat(item.Path); errors.Is(err, fs.ErrNotExist) {
		report.Errors = append(report.Errors, ItemError{ItemID: id, Path: item.Path, Error: "file not found"})
		return
	}

	entry := AnalyzedItem{ItemID: id, Path: item.Path}
	if opts.BPM {
		if bpm, ok := a.tempo(ctx, logger, item.Path); ok {
			entry.BPM = &bpm
			item.BPM = &bpm
		}
	}
	if opts.Key {
		if key := a.keys.DetectKey(ctx, item.Path); key != nil {
			entry.InitialKey = key
			item.InitialKey = key
		}
	}

	if err := lib.StoreItem(ctx, item); err != nil {
		report.Errors = append(report.Errors, ItemError{ItemID: id, Path: item.Path, Error: err.Error()})
		return
	}
	if err := a.tags.TryWrite(ctx, item); err != nil {
		logging.WarnWithContext(logger, "tag write-back failed", "tag_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "library updated, file tags unchanged"),
		)
	}
	logger.Debug("item analyzed", logging.Any("bpm", entry.BPM), logging.Any("initial_key", entry.InitialKey))
	report.Analyzed = append(report.Analyzed, entry)
}

func (a *Analyzer) tempo(ctx context.Context, logger *slog.Logger, path string) (int, bool) {
	det, err := a.detect(ctx, path)
	if err != nil {
		logging.WarnWithContext(logger, "audio decode failed", "tempo_decode_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "bpm left unset"),
		)
		return 0, false
	}
	bpm, ok := EstimateBPM(det.Beats, det.Tempo)
	if !ok {
		logger.Info("tempo undetermined",
			logging.String(logging.FieldEventType, "tempo_undetermined"),
			logging.Int("beats", len(det.Beats)),
			logging.Float64("detector_tempo", det.Tempo),
		)
		return 0, false
	}
	return RoundBPM(bpm), true
}

// detect runs onset detection over path. Stream-capable decoders feed the
// flux computation directly so the track is never held in memory.
func (a *Analyzer) detect(ctx context.Context, path string) (Detection, error) {
	if sd, ok := a.decoder.(StreamDecoder); ok {
		flux := a.detector.newFlux()
		rate, err := sd.Stream(ctx, path, flux.write)
		if err != nil {
			return Detection{}, err
		}
		return detectEnvelope(flux.envelope, rate), nil
	}
	samples, rate, err := a.decoder.Decode(ctx, path)
	if err != nil {
		return Detection{}, err
	}
	return a.detector.Detect(samples, rate), nil
}

// release closes a batch handle. Errors are logged and never replace the
// finished report.
func (a *Analyzer) release(ctx context.Context, lib *library.Library) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("library close panicked", logging.Any("panic", r))
		}
	}()
	if err := lib.Close(); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "library close failed", "library_close_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "report unaffected"),
		)
	}
}
