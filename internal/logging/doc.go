// Package logging assembles structured slog loggers and formatting helpers used
// across tagflow services.
//
// It owns the configurable console/JSON handlers, fans records out to every
// configured destination, and exposes context-aware helpers so job code tags
// log lines with job IDs, lanes, kinds, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
