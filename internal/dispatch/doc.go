// Package dispatch turns folder-scoped work requests into queued jobs.
//
// A request names a Kind, a folder identity, and loosely typed kwargs. Each
// kind has a closed kwargs schema; ParseParams validates the kwargs into the
// kind's parameter struct and rejects unknown keys with a UsageError. The
// Dispatcher then routes the job into the preview or import lane, chaining
// the two jobs of an auto import so the import depends on the preview.
package dispatch
