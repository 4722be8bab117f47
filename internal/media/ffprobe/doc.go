// Package ffprobe provides a typed wrapper around ffprobe JSON output for
// audio files.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: per-stream properties, including the sample rate and tags
//   - Format: container-level metadata (duration, size, tags)
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Tag lookups merge container and stream tags case-insensitively, since
// different containers put them in different places.
package ffprobe
