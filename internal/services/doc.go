// Package services defines shared utilities consumed by job handlers and the
// HTTP surface.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, lanes, kinds, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so usage errors, missing
//     records, and tool failures can be classified consistently by callers.
//
// Use these helpers when wiring new job logic so error handling and
// observability stay uniform across lanes.
package services
